package marketdata

import (
	"math"
	"slices"
	"time"

	"github.com/rxtech-lab/argo-history/internal/types"
)

// ResampleDaily aggregates bars into one bar per calendar day of the bars' own location:
// open is the first value, high the maximum, low the minimum, close the last value and
// volume the sum. NaN cells are skipped. Days without bars are not emitted, nor are days
// whose prices are all NaN. The result is in time order and stamped at local midnight.
func ResampleDaily(data []types.MarketData) []types.MarketData {
	sorted := slices.Clone(data)
	slices.SortStableFunc(sorted, func(a, b types.MarketData) int {
		return a.Time.Compare(b.Time)
	})

	daily := []types.MarketData{}

	var (
		current types.MarketData
		started bool
	)

	flush := func() {
		if started && !hasNaNPrice(current) {
			daily = append(daily, current)
		}
	}

	for _, bar := range sorted {
		day := startOfDay(bar.Time)

		if !started || !day.Equal(current.Time) {
			flush()

			current = types.MarketData{
				Symbol: bar.Symbol,
				Time:   day,
				Open:   math.NaN(),
				High:   math.NaN(),
				Low:    math.NaN(),
				Close:  math.NaN(),
			}
			started = true
		}

		if math.IsNaN(current.Open) {
			current.Open = bar.Open
		}

		current.High = nanMax(current.High, bar.High)
		current.Low = nanMin(current.Low, bar.Low)

		if !math.IsNaN(bar.Close) {
			current.Close = bar.Close
		}

		if !math.IsNaN(bar.Volume) {
			current.Volume += bar.Volume
		}
	}

	flush()

	return daily
}

func hasNaNPrice(bar types.MarketData) bool {
	return math.IsNaN(bar.Open) || math.IsNaN(bar.High) || math.IsNaN(bar.Low) || math.IsNaN(bar.Close)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func nanMax(a, b float64) float64 {
	if math.IsNaN(a) {
		return b
	}

	if math.IsNaN(b) {
		return a
	}

	return math.Max(a, b)
}

func nanMin(a, b float64) float64 {
	if math.IsNaN(a) {
		return b
	}

	if math.IsNaN(b) {
		return a
	}

	return math.Min(a, b)
}
