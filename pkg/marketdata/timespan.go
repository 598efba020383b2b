package marketdata

import (
	"strings"
	"time"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-history/pkg/errors"
)

// Timespan is the bar period. The set is closed: anything not listed below is rejected
// by ParseTimespan and Validate.
type Timespan string

const (
	TimespanOneMinute      Timespan = "1m"
	TimespanThreeMinutes   Timespan = "3m"
	TimespanFiveMinutes    Timespan = "5m"
	TimespanFifteenMinutes Timespan = "15m"
	TimespanThirtyMinutes  Timespan = "30m"
	TimespanOneHour        Timespan = "1h"
	TimespanFourHours      Timespan = "4h"
	TimespanOneDay         Timespan = "1d"
	TimespanOneWeek        Timespan = "1w"
	TimespanOneMonth       Timespan = "1M"
)

// AllTimespans lists every supported timespan, shortest first.
var AllTimespans = []Timespan{
	TimespanOneMinute,
	TimespanThreeMinutes,
	TimespanFiveMinutes,
	TimespanFifteenMinutes,
	TimespanThirtyMinutes,
	TimespanOneHour,
	TimespanFourHours,
	TimespanOneDay,
	TimespanOneWeek,
	TimespanOneMonth,
}

// timespanAliases maps the labels used by the old download scripts onto timespans.
var timespanAliases = map[string]Timespan{
	"1min":  TimespanOneMinute,
	"3min":  TimespanThreeMinutes,
	"5min":  TimespanFiveMinutes,
	"15min": TimespanFifteenMinutes,
	"30min": TimespanThirtyMinutes,
}

// ParseTimespan parses a timespan label. Canonical labels are case sensitive ("1m" is a
// minute, "1M" a month); the "Nmin" aliases are not.
func ParseTimespan(label string) (Timespan, error) {
	label = strings.TrimSpace(label)

	ts := Timespan(label)
	if ts.Valid() {
		return ts, nil
	}

	if alias, ok := timespanAliases[strings.ToLower(label)]; ok {
		return alias, nil
	}

	return "", errors.Newf(errors.ErrCodeInvalidTimespan, "invalid interval %q, valid options: %s", label, strings.Join(TimespanLabels(), ", "))
}

// TimespanLabels returns the canonical labels of AllTimespans.
func TimespanLabels() []string {
	labels := make([]string, 0, len(AllTimespans))
	for _, ts := range AllTimespans {
		labels = append(labels, string(ts))
	}

	return labels
}

// Valid reports whether t is one of AllTimespans.
func (t Timespan) Valid() bool {
	return t.Duration() > 0
}

// Validate returns an ErrCodeInvalidTimespan error for unsupported timespans.
func (t Timespan) Validate() error {
	if !t.Valid() {
		return errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported timespan: %q", string(t))
	}

	return nil
}

// Duration returns the spacing between bars. Weekly and monthly bars are not evenly
// spaced; for them the result is the 7 and 30 day approximation (see Approximate).
// Unknown timespans return 0.
func (t Timespan) Duration() time.Duration {
	switch t {
	case TimespanOneMinute:
		return time.Minute
	case TimespanThreeMinutes:
		return 3 * time.Minute
	case TimespanFiveMinutes:
		return 5 * time.Minute
	case TimespanFifteenMinutes:
		return 15 * time.Minute
	case TimespanThirtyMinutes:
		return 30 * time.Minute
	case TimespanOneHour:
		return time.Hour
	case TimespanFourHours:
		return 4 * time.Hour
	case TimespanOneDay:
		return 24 * time.Hour
	case TimespanOneWeek:
		return 7 * 24 * time.Hour
	case TimespanOneMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Approximate is true when Duration is only an estimate of the real bar spacing.
func (t Timespan) Approximate() bool {
	return t == TimespanOneWeek || t == TimespanOneMonth
}

// BarsPerDay is the number of bars in one calendar day.
func (t Timespan) BarsPerDay() float64 {
	switch t {
	case TimespanOneWeek:
		return 1.0 / 7
	case TimespanOneMonth:
		return 1.0 / 30
	}

	d := t.Duration()
	if d == 0 {
		return 0
	}

	return float64(24*time.Hour) / float64(d)
}

// Label returns the timespan name used in output file names.
func (t Timespan) Label() string {
	return string(t)
}

func (t Timespan) Multiplier() int {
	switch t {
	case TimespanThreeMinutes:
		return 3
	case TimespanFiveMinutes:
		return 5
	case TimespanFifteenMinutes:
		return 15
	case TimespanThirtyMinutes:
		return 30
	case TimespanFourHours:
		return 4
	default:
		return 1
	}
}

func (t Timespan) Timespan() models.Timespan {
	switch t {
	case TimespanOneMinute, TimespanThreeMinutes, TimespanFiveMinutes, TimespanFifteenMinutes, TimespanThirtyMinutes:
		return models.Minute
	case TimespanOneHour, TimespanFourHours:
		return models.Hour
	case TimespanOneDay:
		return models.Day
	case TimespanOneWeek:
		return models.Week
	case TimespanOneMonth:
		return models.Month
	default:
		return models.Day
	}
}
