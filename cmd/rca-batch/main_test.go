package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/rcagrade/internal/adapters/source"
	"github.com/okian/rcagrade/internal/domain/batch"
)

const incidentsCSV = `issue_key,summary,description,root_cause,resolution,preventive_action
INC-1,Checkout slow,p99 4s,pool exhausted,raised pool,alert on pool
INC-2,Disk full,writes failed,rotation off,rotated,disk alerts
INC-3,DNS flap,lookups failed,ttl too low,raised ttl,synthetic checks
`

// fakeOllama answers evaluation prompts, failing with 500 for any prompt
// that mentions one of the ids in broken.
func fakeOllama(t *testing.T, broken ...string) *httptest.Server {
	t.Helper()
	totals := map[string]int{"INC-1": 80, "INC-2": 45, "INC-3": 62}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, id := range broken {
			if strings.Contains(req.Prompt, id) {
				http.Error(w, "model crashed", http.StatusInternalServerError)
				return
			}
		}
		total := 0
		for id, v := range totals {
			if strings.Contains(req.Prompt, "Incident ID: "+id) {
				total = v
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": evaluationFor(total), "done": true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// evaluationFor spreads total over the five rubric dimensions.
func evaluationFor(total int) string {
	var parts [5]int
	rest := total
	for i := range parts {
		parts[i] = min(rest, 20)
		rest -= parts[i]
	}
	return fmt.Sprintf(`{"scores":{"clarity":%d,"depth":%d,"evidence":%d,"corrective":%d,"preventive":%d},"total":%d,"strengths":[],"gaps":[],"improvements":[],"executive_summary":"scored"}`,
		parts[0], parts[1], parts[2], parts[3], parts[4], total)
}

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "incidents.csv")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecute(t *testing.T) {
	convey.Convey("Given a CSV and a reachable model", t, func() {
		ctx := context.Background()
		input := writeCSV(t, incidentsCSV)
		outdir := filepath.Join(t.TempDir(), "out")
		var stdout, stderr bytes.Buffer

		convey.Convey("When every row scores", func() {
			ollama := fakeOllama(t)
			code := execute(ctx, []string{"--csv", input, "--outdir", outdir, "--host", ollama.URL}, &stdout, &stderr)

			convey.Convey("Then both artifacts are written and announced", func() {
				convey.So(code, convey.ShouldEqual, exitOK)
				results := filepath.Join(outdir, "results.csv")
				report := filepath.Join(outdir, "report.md")
				convey.So(stdout.String(), convey.ShouldContainSubstring, "Wrote: "+results)
				convey.So(stdout.String(), convey.ShouldContainSubstring, "Wrote: "+report)
				convey.So(stdout.String(), convey.ShouldContainSubstring, "[OK] INC-1")

				data, err := os.ReadFile(results)
				convey.So(err, convey.ShouldBeNil)
				convey.So(strings.Count(string(data), "\n"), convey.ShouldEqual, 4)

				md, err := os.ReadFile(report)
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(md), convey.ShouldContainSubstring, "# RCA Batch Report")
				convey.So(string(md), convey.ShouldContainSubstring, "**Host:** `"+ollama.URL+"`")
			})
		})

		convey.Convey("When one row fails", func() {
			ollama := fakeOllama(t, "INC-2")

			convey.Convey("Then the run continues by default", func() {
				code := execute(ctx, []string{"--csv", input, "--outdir", outdir, "--host", ollama.URL}, &stdout, &stderr)
				convey.So(code, convey.ShouldEqual, exitOK)
				convey.So(stderr.String(), convey.ShouldContainSubstring, "[ERR] INC-2")

				data, err := os.ReadFile(filepath.Join(outdir, "results.csv"))
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(data), convey.ShouldContainSubstring, batch.ErrorPrefix)
			})

			convey.Convey("And fail-fast exits 1 without artifacts", func() {
				code := execute(ctx, []string{"--csv", input, "--outdir", outdir, "--host", ollama.URL, "--fail-fast"}, &stdout, &stderr)
				convey.So(code, convey.ShouldEqual, exitFailure)
				convey.So(stdout.String(), convey.ShouldNotContainSubstring, "[OK] INC-3")
				_, err := os.Stat(outdir)
				convey.So(errors.Is(err, fs.ErrNotExist), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a limit is given", func() {
			ollama := fakeOllama(t)
			code := execute(ctx, []string{"--csv", input, "--outdir", outdir, "--host", ollama.URL, "--limit", "1"}, &stdout, &stderr)

			convey.Convey("Then only the first rows are scored", func() {
				convey.So(code, convey.ShouldEqual, exitOK)
				convey.So(stdout.String(), convey.ShouldContainSubstring, "[OK] INC-1")
				convey.So(stdout.String(), convey.ShouldNotContainSubstring, "INC-2")
			})
		})
	})

	convey.Convey("Given bad input", t, func() {
		ctx := context.Background()
		var stdout, stderr bytes.Buffer

		convey.Convey("A missing CSV exits 2", func() {
			code := execute(ctx, []string{"--csv", filepath.Join(t.TempDir(), "nope.csv")}, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitNotFound)
			convey.So(stderr.String(), convey.ShouldContainSubstring, "CSV not found")
		})

		convey.Convey("An unknown column exits 1 before any model call", func() {
			input := writeCSV(t, incidentsCSV)
			code := execute(ctx, []string{"--csv", input, "--col-id", "ticket", "--host", "http://127.0.0.1:1"}, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitFailure)
			convey.So(stderr.String(), convey.ShouldContainSubstring, "ticket")
		})

		convey.Convey("A missing --csv flag exits 1", func() {
			code := execute(ctx, nil, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitFailure)
			convey.So(stderr.String(), convey.ShouldContainSubstring, "csv")
		})
	})
}

func TestExitCode(t *testing.T) {
	convey.Convey("Given run errors", t, func() {
		convey.So(exitCode(nil), convey.ShouldEqual, exitOK)
		convey.So(exitCode(fmt.Errorf("%w: CSV not found: x.csv: %w", errInputNotFound, fs.ErrNotExist)), convey.ShouldEqual, exitNotFound)
		convey.So(exitCode(fmt.Errorf("write report: %w", fs.ErrNotExist)), convey.ShouldEqual, exitFailure)
		convey.So(exitCode(&source.MappingError{Missing: []string{"x"}}), convey.ShouldEqual, exitFailure)
		convey.So(exitCode(&batch.RowError{Index: 0, Err: errors.New("boom")}), convey.ShouldEqual, exitFailure)
	})
}
