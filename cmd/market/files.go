package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-history/pkg/marketdata"
	"github.com/rxtech-lab/argo-history/pkg/marketdata/writer"
)

func (a *app) checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Print a data quality report of a downloaded CSV, DuckDB or parquet file",
		ArgsUsage: "FILE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("a data file is required")
			}

			table, err := writer.ReadTable(path)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "File: %s\n", path)
			marketdata.Summarize(table.Bars, table.Columns, table.ZoneLabeled).Print(a.out)

			return nil
		},
	}
}

func (a *app) fixTZCommand() *cli.Command {
	return &cli.Command{
		Name:      "fix-tz",
		Usage:     "Label the timestamps of a downloaded CSV file with a timezone",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source-tz", Usage: "IANA zone of the wall clocks in the file (default from config)"},
			&cli.BoolFlag{Name: "convert-tz", Usage: "Convert the labeled timestamps to UTC"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write to `FILE` instead of rewriting the input"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("a data file is required")
			}

			table, err := writer.ReadCSV(path)
			if err != nil {
				return err
			}

			if table.ZoneLabeled {
				fmt.Fprintf(a.out, "%s is already timezone aware, nothing to do\n", path)
				return nil
			}

			source, err := marketdata.LoadLocation(firstSet(cmd, "source-tz", a.config.Timezone.Source))
			if err != nil {
				return err
			}

			tz, err := marketdata.NormalizeTimezone(table.Bars, marketdata.TimezoneOptions{
				Adjust:  true,
				Convert: cmd.Bool("convert-tz"),
				Source:  source,
			})
			if err != nil {
				return err
			}

			if tz.Err != nil {
				return fmt.Errorf("cannot label %s: %w", path, tz.Err)
			}

			table.Bars = tz.Bars

			output := firstSet(cmd, "output", path)
			if err := table.WriteCSV(output, true); err != nil {
				return err
			}

			a.logger.Info("Timezone fixed",
				zap.String("file", output),
				zap.String("zone", tz.Location.String()),
				zap.Int("rows", len(tz.Bars)),
			)

			fmt.Fprintf(a.out, "Labeled %d rows as %s in %s\n", len(tz.Bars), tz.Location, output)
			marketdata.Summarize(tz.Bars, nil, true).Print(a.out)

			return nil
		},
	}
}

func (a *app) providersCommand() *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "List providers and their JSON download request schema",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "schema", Usage: "Print each provider's request schema"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			for _, name := range marketdata.GetSupportedProviders() {
				info, err := marketdata.GetProviderInfo(name)
				if err != nil {
					return err
				}

				auth := "no auth"
				if info.RequiresAuth {
					auth = "API key required"
				}

				fmt.Fprintf(a.out, "%s (%s, %s): %s\n", info.Name, info.DisplayName, auth, info.Description)

				if cmd.Bool("schema") {
					schema, err := marketdata.GetDownloadConfigSchema(name)
					if err != nil {
						return err
					}

					fmt.Fprintln(a.out, schema)
				}
			}

			return nil
		},
	}
}
