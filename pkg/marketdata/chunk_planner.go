package marketdata

import (
	"time"

	"github.com/rxtech-lab/argo-history/pkg/errors"
)

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Validate rejects empty and reversed ranges.
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.New(errors.ErrCodeMissingParameter, "time range requires both start and end")
	}

	if !r.Start.Before(r.End) {
		return errors.Newf(errors.ErrCodeInvalidParameter, "start %s must be before end %s",
			r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}

	return nil
}

// Contains reports whether t lies in [Start, End).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Chunk is one request-sized slice of a larger range.
type Chunk struct {
	Range TimeRange
	// Bars is the number of bars expected in Range.
	Bars int
}

// PlanChunks splits r into chunks of at most maxBars bars each. Chunks are returned
// latest-first: chunks[0].Range.End == r.End, the last chunk starts at r.Start, and every
// chunk starts exactly where the next one ends.
func PlanChunks(r TimeRange, ts Timespan, maxBars int) ([]Chunk, error) {
	if err := ts.Validate(); err != nil {
		return nil, err
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	if maxBars < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "max bars per request must be at least 1, got %d", maxBars)
	}

	period := ts.Duration()
	span := r.End.Sub(r.Start)

	// maxBars*period can overflow a Duration for large limits; a step covering the
	// whole range is equivalent.
	step := span
	if int64(maxBars) <= int64(span/period) {
		step = time.Duration(maxBars) * period
	}

	chunks := make([]Chunk, 0, int(span/step)+1)

	cursor := r.End
	for cursor.After(r.Start) {
		chunkStart := cursor.Add(-step)
		if chunkStart.Before(r.Start) {
			chunkStart = r.Start
		}

		chunks = append(chunks, Chunk{
			Range: TimeRange{Start: chunkStart, End: cursor},
			Bars:  countBars(chunkStart, cursor, period),
		})

		cursor = chunkStart
	}

	return chunks, nil
}
