package export

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/okian/rcagrade/internal/domain/batch"
)

// Metadata describes the run a report belongs to.
type Metadata struct {
	Input       string
	Model       string
	Host        string
	RunID       string
	ResultsPath string
	ReportPath  string
}

const noData = "_(no data)_"

// WriteReport renders the markdown report for rep.
func WriteReport(w io.Writer, meta Metadata, rep *batch.Report) error {
	var b strings.Builder

	b.WriteString("# RCA Batch Report\n\n")
	fmt.Fprintf(&b, "**Input:** `%s`\n", meta.Input)
	fmt.Fprintf(&b, "**Model:** `%s`\n", meta.Model)
	fmt.Fprintf(&b, "**Host:** `%s`\n", meta.Host)
	fmt.Fprintf(&b, "**Run ID:** `%s`\n", meta.RunID)
	fmt.Fprintf(&b, "**Rows processed:** %d\n", len(rep.Rows))
	fmt.Fprintf(&b, "**Started (UTC):** %s\n", utc(rep.StartedAt))
	fmt.Fprintf(&b, "**Finished (UTC):** %s\n\n", utc(rep.FinishedAt))

	b.WriteString("## Summary Metrics\n")
	fmt.Fprintf(&b, "- Average score: **%.1f**\n", rep.Average)
	fmt.Fprintf(&b, "- Median score (P50): **%.1f**\n", rep.Median)
	fmt.Fprintf(&b, "- Valid rows: %d\n", rep.ValidCount)
	fmt.Fprintf(&b, "- Failed rows: %d\n\n", rep.FailedCount)

	b.WriteString("## Top 5 (Highest Scores)\n")
	b.WriteString(rankTable(rep.Top5))
	b.WriteString("\n\n## Bottom 5 (Lowest Scores)\n")
	b.WriteString(rankTable(rep.Bottom5))

	b.WriteString("\n\n## Output Files\n")
	fmt.Fprintf(&b, "- Results CSV: `%s`\n", meta.ResultsPath)
	fmt.Fprintf(&b, "- This report: `%s`\n", meta.ReportPath)

	_, err := io.WriteString(w, b.String())
	return err
}

func utc(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// rankTable renders rows as an incident_id | total | summary markdown table.
func rankTable(rows []batch.Row) string {
	if len(rows) == 0 {
		return noData
	}

	var buf bytes.Buffer
	table := newMarkdownTable([]string{"incident_id", "total", "summary"}, &buf)
	for _, row := range rows {
		total := ""
		if row.Total != nil {
			total = strconv.Itoa(*row.Total)
		}
		_ = table.Append([]string{cell(row.IncidentID), total, cell(row.Summary)})
	}
	_ = table.Render()
	return strings.TrimRight(buf.String(), "\n")
}

// cell keeps free text inside one markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func newMarkdownTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}
