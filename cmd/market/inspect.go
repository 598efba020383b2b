package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/rxtech-lab/argo-history/pkg/marketdata"
)

func rangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "start", Aliases: []string{"s"}, Usage: "Start of the range in `YYYY-MM-DD` format (inclusive)", Required: true},
		&cli.StringFlag{Name: "end", Aliases: []string{"e"}, Usage: "Last day of the range in `YYYY-MM-DD` format (inclusive), or an exclusive timestamp", Required: true},
		&cli.StringFlag{Name: "interval", Aliases: []string{"i"}, Usage: "Bar interval", Value: string(marketdata.TimespanFiveMinutes)},
	}
}

func parseRangeFlags(cmd *cli.Command) (marketdata.TimeRange, marketdata.Timespan, error) {
	ts, err := marketdata.ParseTimespan(cmd.String("interval"))
	if err != nil {
		return marketdata.TimeRange{}, "", err
	}

	start, err := parseDate(cmd.String("start"))
	if err != nil {
		return marketdata.TimeRange{}, "", err
	}

	end, err := parseEndDate(cmd.String("end"))
	if err != nil {
		return marketdata.TimeRange{}, "", err
	}

	r := marketdata.TimeRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return marketdata.TimeRange{}, "", err
	}

	return r, ts, nil
}

func (a *app) countCommand() *cli.Command {
	return &cli.Command{
		Name:  "count",
		Usage: "Print how many bars a range holds",
		Flags: rangeFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, ts, err := parseRangeFlags(cmd)
			if err != nil {
				return err
			}

			estimate, approximate := marketdata.EstimateBars(r.Start, r.End, ts)

			fmt.Fprintf(a.out, "Bars: %d\n", marketdata.CountBars(r.Start, r.End, ts))
			fmt.Fprintf(a.out, "Calendar-day estimate: %d\n", estimate)

			if approximate {
				fmt.Fprintf(a.out, "Note: %s bars have no fixed length, counts are approximate\n", ts.Label())
			}

			return nil
		},
	}
}

func (a *app) planCommand() *cli.Command {
	flags := append(rangeFlags(), &cli.IntFlag{Name: "max-bars", Usage: "Maximum bars per request (default from config)"})

	return &cli.Command{
		Name:  "plan",
		Usage: "Print the chunk plan for a range",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, ts, err := parseRangeFlags(cmd)
			if err != nil {
				return err
			}

			maxBars := a.config.Provider.MaxBars
			if cmd.IsSet("max-bars") {
				maxBars = int(cmd.Int("max-bars"))
			}

			chunks, err := marketdata.PlanChunks(r, ts, maxBars)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "%d chunks of at most %d %s bars\n", len(chunks), maxBars, ts.Label())

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tSTART\tEND\tBARS")

			for i, chunk := range chunks {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", i+1,
					chunk.Range.Start.Format(time.DateTime),
					chunk.Range.End.Format(time.DateTime),
					chunk.Bars)
			}

			return tw.Flush()
		},
	}
}
