// Package export writes batch results to disk: a row-level CSV and a
// markdown summary report.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/okian/rcagrade/internal/domain/batch"
)

// ResultColumns is the header of the results CSV.
var ResultColumns = []string{
	"incident_id", "summary", "total",
	"clarity", "depth", "evidence", "corrective", "preventive",
	"executive_summary",
}

// WriteResults writes one CSV line per row. Null scores become empty cells.
func WriteResults(w io.Writer, rows []batch.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		record := []string{
			row.IncidentID,
			row.Summary,
			optInt(row.Total),
			optInt(row.Clarity),
			optInt(row.Depth),
			optInt(row.Evidence),
			optInt(row.Corrective),
			optInt(row.Preventive),
			row.ExecutiveSummary,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush results: %w", err)
	}
	return nil
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
