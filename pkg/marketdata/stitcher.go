package marketdata

import (
	"sort"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-history/internal/types"
)

// ChunkResult pairs a planned chunk with what the provider returned for it.
// Bars is None when the fetch failed and Some (possibly empty) otherwise.
type ChunkResult struct {
	Chunk Chunk
	Bars  optional.Option[[]types.MarketData]
}

// Stitch merges per-chunk results, given latest-first as planned, into one table for r.
//
// Providers answer "the last N bars as of now", so each chunk's bars are first cut down
// to that chunk's own range. Chunks are then concatenated oldest-first, repeated
// timestamps keep their first occurrence, and the result is sorted and clipped to r.
// A run where every chunk is missing or empty yields an empty, non-nil table.
func Stitch(r TimeRange, results []ChunkResult) []types.MarketData {
	total := 0
	for _, result := range results {
		if result.Bars.IsSome() {
			total += len(result.Bars.Unwrap())
		}
	}

	combined := make([]types.MarketData, 0, total)

	for i := len(results) - 1; i >= 0; i-- {
		result := results[i]
		if result.Bars.IsNone() {
			continue
		}

		for _, bar := range result.Bars.Unwrap() {
			if result.Chunk.Range.Contains(bar.Time) {
				combined = append(combined, bar)
			}
		}
	}

	seen := make(map[int64]struct{}, len(combined))
	stitched := make([]types.MarketData, 0, len(combined))

	for _, bar := range combined {
		key := bar.Time.UnixNano()
		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}

		if r.Contains(bar.Time) {
			stitched = append(stitched, bar)
		}
	}

	sort.SliceStable(stitched, func(i, j int) bool {
		return stitched[i].Time.Before(stitched[j].Time)
	})

	return stitched
}

// FilterRange returns the bars of data inside r, preserving order.
func FilterRange(data []types.MarketData, r TimeRange) []types.MarketData {
	filtered := make([]types.MarketData, 0, len(data))

	for _, bar := range data {
		if r.Contains(bar.Time) {
			filtered = append(filtered, bar)
		}
	}

	return filtered
}
