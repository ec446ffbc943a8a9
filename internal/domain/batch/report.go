package batch

import (
	"sort"
	"time"
)

// TopN is the size of the top and bottom tables.
const TopN = 5

// Report aggregates a completed run. Statistics cover valid rows only.
type Report struct {
	Rows        []Row     `json:"rows"`
	Average     float64   `json:"average"`
	Median      float64   `json:"median"`
	Top5        []Row     `json:"top5"`
	Bottom5     []Row     `json:"bottom5"`
	ValidCount  int       `json:"valid_count"`
	FailedCount int       `json:"failed_count"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Summarize computes the report statistics for rows. With no valid rows the
// average and median are 0 and both tables are empty.
func Summarize(rows []Row) *Report {
	report := &Report{
		Rows:    rows,
		Top5:    []Row{},
		Bottom5: []Row{},
	}

	valid := make([]Row, 0, len(rows))
	for _, row := range rows {
		if row.Valid() {
			valid = append(valid, row)
		}
	}
	report.ValidCount = len(valid)
	report.FailedCount = len(rows) - len(valid)
	if len(valid) == 0 {
		return report
	}

	totals := make([]int, len(valid))
	sum := 0
	for i, row := range valid {
		totals[i] = *row.Total
		sum += *row.Total
	}
	report.Average = float64(sum) / float64(len(valid))
	report.Median = median(totals)

	desc := append([]Row(nil), valid...)
	sort.SliceStable(desc, func(i, j int) bool { return *desc[i].Total > *desc[j].Total })
	asc := append([]Row(nil), valid...)
	sort.SliceStable(asc, func(i, j int) bool { return *asc[i].Total < *asc[j].Total })

	report.Top5 = desc[:min(TopN, len(desc))]
	report.Bottom5 = asc[:min(TopN, len(asc))]
	return report
}

// median sorts values in place. An even count yields the mean of the two
// middle values.
func median(values []int) float64 {
	sort.Ints(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return float64(values[mid])
	}
	return float64(values[mid-1]+values[mid]) / 2
}
