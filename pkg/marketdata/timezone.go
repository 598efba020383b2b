package marketdata

import (
	"fmt"
	"time"
	// Embedded zone database so relabeling works on hosts without one.
	_ "time/tzdata"

	"github.com/rxtech-lab/argo-history/internal/types"
	"github.com/rxtech-lab/argo-history/pkg/errors"
)

// DefaultSourceTimezone is the zone provider wall clocks are labeled with when no other
// source is configured.
const DefaultSourceTimezone = "America/Sao_Paulo"

// TimezoneOptions selects the optional timezone post-processing.
type TimezoneOptions struct {
	// Adjust labels every wall clock as being in Source without changing it.
	Adjust bool
	// Convert moves the labeled times to Target. Requires Adjust.
	Convert bool
	// Source defaults to DefaultSourceTimezone.
	Source *time.Location
	// Target defaults to UTC.
	Target *time.Location
}

// Validate rejects Convert without Adjust: a conversion needs a source label.
func (o TimezoneOptions) Validate() error {
	if o.Convert && !o.Adjust {
		return errors.New(errors.ErrCodeInvalidParameter, "timezone conversion requires timezone adjustment")
	}

	return nil
}

// TimezoneResult is the output of NormalizeTimezone.
type TimezoneResult struct {
	Bars []types.MarketData
	// Applied is true when the bars carry the source (or target) label.
	Applied bool
	// Converted is true when the bars were moved to the target zone.
	Converted bool
	// Location is the zone the bars are expressed in when Applied.
	Location *time.Location
	// Err explains why a requested adjustment was skipped. Bars are then unmodified.
	Err error
}

// LoadLocation resolves a zone name, returning a coded error for unknown names.
func LoadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidTimezone, err, "unknown timezone %q", name)
	}

	return loc, nil
}

// NormalizeTimezone relabels and optionally converts bar timestamps.
//
// The only returned error is a caller error (Convert without Adjust). When a wall clock
// cannot be labeled because it is skipped or repeated by a DST transition, the input is
// returned unmodified with the reason in TimezoneResult.Err; tables are never partially
// labeled.
func NormalizeTimezone(data []types.MarketData, opts TimezoneOptions) (TimezoneResult, error) {
	if err := opts.Validate(); err != nil {
		return TimezoneResult{}, err
	}

	if !opts.Adjust || len(data) == 0 {
		return TimezoneResult{Bars: data}, nil
	}

	source := opts.Source
	if source == nil {
		loc, err := LoadLocation(DefaultSourceTimezone)
		if err != nil {
			return TimezoneResult{Bars: data, Err: err}, nil
		}

		source = loc
	}

	target := opts.Target
	if target == nil {
		target = time.UTC
	}

	out := make([]types.MarketData, len(data))

	for i, bar := range data {
		labeled, err := Relabel(bar.Time, source)
		if err != nil {
			return TimezoneResult{
				Bars: data,
				Err:  errors.Wrap(errors.ErrCodeTimezoneAmbiguous, fmt.Sprintf("cannot label bar %d", i), err),
			}, nil
		}

		if opts.Convert {
			labeled = labeled.In(target)
		}

		bar.Time = labeled
		out[i] = bar
	}

	location := source
	if opts.Convert {
		location = target
	}

	return TimezoneResult{
		Bars:      out,
		Applied:   true,
		Converted: opts.Convert,
		Location:  location,
	}, nil
}

// Relabel returns the instant whose wall clock in loc equals the wall clock of t.
// It fails with a *errors.TimezoneError if that wall clock does not exist in loc or
// exists twice.
func Relabel(t time.Time, loc *time.Location) (time.Time, error) {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	labeled := time.Date(year, month, day, hour, minute, sec, t.Nanosecond(), loc)

	if !sameWallClock(labeled, t) {
		return time.Time{}, errors.NewTimezoneError(loc.String(), t, false)
	}

	_, offset := labeled.Zone()

	for _, shift := range []time.Duration{-12 * time.Hour, 12 * time.Hour} {
		_, other := labeled.Add(shift).Zone()
		if other == offset {
			continue
		}

		alt := labeled.Add(time.Duration(offset-other) * time.Second)
		if !alt.Equal(labeled) && sameWallClock(alt.In(loc), t) {
			return time.Time{}, errors.NewTimezoneError(loc.String(), t, true)
		}
	}

	return labeled, nil
}

func sameWallClock(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ah, amin, as := a.Clock()
	bh, bmin, bs := b.Clock()

	return ay == by && am == bm && ad == bd && ah == bh && amin == bmin && as == bs && a.Nanosecond() == b.Nanosecond()
}
