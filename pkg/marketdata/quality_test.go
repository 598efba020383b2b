package marketdata

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rxtech-lab/argo-history/internal/types"
)

func TestSummarize(t *testing.T) {
	base := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	data := []types.MarketData{
		{Time: base, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{Time: base.Add(5 * time.Minute), Open: math.NaN(), High: 1, Low: 1, Close: 1, Volume: math.NaN()},
		{Time: base.Add(5 * time.Minute), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{Time: base.Add(-5 * time.Minute), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}

	report := Summarize(data, nil, false)

	assert.Equal(t, 4, report.Rows)
	assert.Equal(t, base.Add(-5*time.Minute), report.First)
	assert.Equal(t, base.Add(5*time.Minute), report.Last)
	assert.Equal(t, 2, report.MissingValues)
	assert.Equal(t, 1, report.DuplicateTimestamps)
	assert.Equal(t, 1, report.OutOfOrder)
	assert.Equal(t, []string{"datetime", "open", "high", "low", "close", "volume"}, report.Columns)
	assert.Equal(t, CloseStats{Current: 1, Mean: 1, Min: 1, Max: 1, Valid: true}, report.Close)
}

func TestSummarizeCloseStats(t *testing.T) {
	base := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	report := Summarize([]types.MarketData{
		{Time: base, Close: 60},
		{Time: base.Add(time.Hour), Close: 58},
		{Time: base.Add(2 * time.Hour), Close: 61},
		{Time: base.Add(3 * time.Hour), Close: math.NaN()},
	}, nil, false)

	assert.True(t, report.Close.Valid)
	assert.Equal(t, 61.0, report.Close.Current)
	assert.InDelta(t, 59.6667, report.Close.Mean, 0.001)
	assert.Equal(t, 58.0, report.Close.Min)
	assert.Equal(t, 61.0, report.Close.Max)

	var buf bytes.Buffer
	report.Print(&buf)
	assert.Contains(t, buf.String(), "Close: current 61.00, mean 59.67, min 58.00, max 61.00")
}

func TestSummarizeEmpty(t *testing.T) {
	report := Summarize([]types.MarketData{}, []string{"datetime", "close"}, true)

	assert.Equal(t, 0, report.Rows)
	assert.True(t, report.First.IsZero())
	assert.True(t, report.ZoneLabeled)

	var buf bytes.Buffer
	report.Print(&buf)
	assert.Contains(t, buf.String(), "Records: 0")
	assert.NotContains(t, buf.String(), "Actual range")
	assert.Contains(t, buf.String(), "Data columns: datetime, close")
	assert.False(t, report.Close.Valid)
	assert.NotContains(t, buf.String(), "Close:")
}

func TestQualityReportPrint(t *testing.T) {
	base := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	report := Summarize([]types.MarketData{
		{Time: base, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{Time: base.Add(time.Hour), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}, nil, false)

	var buf bytes.Buffer
	report.Print(&buf)

	out := buf.String()
	assert.Contains(t, out, "Records: 2")
	assert.Contains(t, out, "Actual range: 2025-07-16 00:00:00+00:00 to 2025-07-16 01:00:00+00:00")
	assert.Contains(t, out, "Missing values: 0")
	assert.Contains(t, out, "Duplicate timestamps: 0")
	assert.Contains(t, out, "Timezone aware: false")
}
