package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/rcagrade/internal/domain/batch"
)

// Artifact file names inside the output directory.
const (
	ResultsFile = "results.csv"
	ReportFile  = "report.md"
)

// Artifacts are the paths written by WriteArtifacts.
type Artifacts struct {
	ResultsPath string
	ReportPath  string
}

// WriteArtifacts creates outdir if needed and writes both artifacts into it.
// meta's paths are filled in from outdir.
func WriteArtifacts(outdir string, meta Metadata, rep *batch.Report) (Artifacts, error) {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("create output dir: %w", err)
	}
	out := Artifacts{
		ResultsPath: filepath.Join(outdir, ResultsFile),
		ReportPath:  filepath.Join(outdir, ReportFile),
	}
	meta.ResultsPath = out.ResultsPath
	meta.ReportPath = out.ReportPath

	var results bytes.Buffer
	if err := WriteResults(&results, rep.Rows); err != nil {
		return Artifacts{}, err
	}
	if err := os.WriteFile(out.ResultsPath, results.Bytes(), 0o644); err != nil {
		return Artifacts{}, fmt.Errorf("write %s: %w", out.ResultsPath, err)
	}

	var report bytes.Buffer
	if err := WriteReport(&report, meta, rep); err != nil {
		return Artifacts{}, err
	}
	if err := os.WriteFile(out.ReportPath, report.Bytes(), 0o644); err != nil {
		return Artifacts{}, fmt.Errorf("write %s: %w", out.ReportPath, err)
	}
	return out, nil
}
