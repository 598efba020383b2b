package marketdata

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-history/internal/types"
	"github.com/rxtech-lab/argo-history/pkg/marketdata/writer"
)

// QualityReport summarizes a bar table.
type QualityReport struct {
	Rows                int
	First               time.Time
	Last                time.Time
	MissingValues       int
	DuplicateTimestamps int
	// OutOfOrder counts bars whose timestamp is earlier than the previous bar's.
	OutOfOrder  int
	Columns     []string
	ZoneLabeled bool
	Close       CloseStats
}

// CloseStats describes the close column with NaN cells skipped. Current is the close of the
// last row that has one. Valid is false when no row has a close.
type CloseStats struct {
	Current float64
	Mean    float64
	Min     float64
	Max     float64
	Valid   bool
}

// Summarize builds a QualityReport. First and Last are the earliest and latest timestamps,
// whatever the order of data.
func Summarize(data []types.MarketData, columns []string, zoneLabeled bool) QualityReport {
	if columns == nil {
		columns = writer.CSVHeader
	}

	report := QualityReport{
		Rows:        len(data),
		Columns:     columns,
		ZoneLabeled: zoneLabeled,
	}

	seen := make(map[int64]struct{}, len(data))

	var (
		closeSum   float64
		closeCount int
	)

	for i, bar := range data {
		report.MissingValues += bar.NaNCount()

		key := bar.Time.UnixNano()
		if _, ok := seen[key]; ok {
			report.DuplicateTimestamps++
		} else {
			seen[key] = struct{}{}
		}

		if i > 0 && bar.Time.Before(data[i-1].Time) {
			report.OutOfOrder++
		}

		if report.First.IsZero() || bar.Time.Before(report.First) {
			report.First = bar.Time
		}

		if report.Last.IsZero() || bar.Time.After(report.Last) {
			report.Last = bar.Time
		}

		if math.IsNaN(bar.Close) {
			continue
		}

		if closeCount == 0 {
			report.Close.Min, report.Close.Max = bar.Close, bar.Close
		}

		report.Close.Current = bar.Close
		report.Close.Min = math.Min(report.Close.Min, bar.Close)
		report.Close.Max = math.Max(report.Close.Max, bar.Close)
		closeSum += bar.Close
		closeCount++
	}

	if closeCount > 0 {
		report.Close.Mean = closeSum / float64(closeCount)
		report.Close.Valid = true
	}

	return report
}

// Print writes the report in the layout the CLI uses.
func (r QualityReport) Print(w io.Writer) {
	fmt.Fprintf(w, "Records: %d\n", r.Rows)

	if r.Rows > 0 {
		fmt.Fprintf(w, "Actual range: %s to %s\n", r.First.Format(writer.ZonedTimeLayout), r.Last.Format(writer.ZonedTimeLayout))
	}

	fmt.Fprintf(w, "Missing values: %d\n", r.MissingValues)
	fmt.Fprintf(w, "Duplicate timestamps: %d\n", r.DuplicateTimestamps)
	fmt.Fprintf(w, "Out of order: %d\n", r.OutOfOrder)
	fmt.Fprintf(w, "Data columns: %s\n", strings.Join(r.Columns, ", "))
	fmt.Fprintf(w, "Timezone aware: %t\n", r.ZoneLabeled)

	if r.Close.Valid {
		fmt.Fprintf(w, "Close: current %.2f, mean %.2f, min %.2f, max %.2f\n",
			r.Close.Current, r.Close.Mean, r.Close.Min, r.Close.Max)
	}
}
