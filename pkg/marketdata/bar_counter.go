package marketdata

import (
	"time"
)

// CountBars returns how many bars of the given timespan start in [start, end): the points
// start, start+d, start+2d, ... that are strictly before end. It is zero when start is not
// before end or the timespan is unknown.
func CountBars(start, end time.Time, ts Timespan) int {
	return countBars(start, end, ts.Duration())
}

func countBars(start, end time.Time, period time.Duration) int {
	if period <= 0 || !start.Before(end) {
		return 0
	}

	span := end.Sub(start)

	count := int(span/period) + 1
	// end itself is excluded
	if span%period == 0 {
		count--
	}

	return count
}

// EstimateBars is the calendar-day estimate used to size a single "last N bars" request:
// whole days in the range times BarsPerDay, truncated. The second result is true when the
// timespan has no fixed duration and the estimate is only approximate.
func EstimateBars(start, end time.Time, ts Timespan) (int, bool) {
	if !start.Before(end) {
		return 0, ts.Approximate()
	}

	days := int(end.Sub(start) / (24 * time.Hour))

	return int(float64(days) * ts.BarsPerDay()), ts.Approximate()
}
