package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-history/pkg/marketdata"
	"github.com/rxtech-lab/argo-history/pkg/marketdata/writer"
)

func (a *app) downloadCommand() *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download historical bars for a symbol and range",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "symbol", Aliases: []string{"t"}, Usage: "Symbol to download (e.g. BTCUSDT, SPY)"},
			&cli.StringFlag{Name: "venue", Aliases: []string{"x"}, Usage: "Exchange or market of the symbol (e.g. BINANCE, CRYPTO)"},
			&cli.StringFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   fmt.Sprintf("Bar interval (%s)", strings.Join(marketdata.TimespanLabels(), ", ")),
			},
			&cli.StringFlag{Name: "start", Aliases: []string{"s"}, Usage: "Start of the range in `YYYY-MM-DD` format (inclusive)"},
			&cli.StringFlag{Name: "end", Aliases: []string{"e"}, Usage: "Last day of the range in `YYYY-MM-DD` format (inclusive), or an exclusive timestamp"},
			&cli.IntFlag{Name: "max-bars", Usage: "Maximum bars per request (default from config)"},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   fmt.Sprintf("Data provider to use (%s)", strings.Join(marketdata.GetSupportedProviders(), ", ")),
			},
			&cli.StringFlag{
				Name:    "writer",
				Aliases: []string{"w"},
				Usage:   fmt.Sprintf("Output format (%s)", strings.Join(formatNames(), ", ")),
			},
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "Path to the data output directory"},
			&cli.StringFlag{Name: "mode", Usage: "Download mode (chunked, direct)", Value: string(marketdata.ModeChunked)},
			&cli.BoolFlag{Name: "anchor-now", Usage: "Size each chunk request from the chunk start up to now"},
			&cli.BoolFlag{Name: "adjust-tz", Usage: "Label timestamps with the source timezone"},
			&cli.BoolFlag{Name: "convert-tz", Usage: "Convert labeled timestamps to UTC (requires --adjust-tz)"},
			&cli.StringFlag{Name: "source-tz", Usage: "IANA zone of the provider wall clocks (default from config)"},
			&cli.BoolFlag{Name: "daily-summary", Usage: "Also write the bars resampled to one bar per day"},
			&cli.StringSliceFlag{Name: "alternative", Usage: "Fallback `SYMBOL:VENUE` tried when the symbol has no data (repeatable)"},
			&cli.StringFlag{Name: "request", Usage: "JSON download request `FILE` (see the providers command for its schema)"},
			&cli.BoolFlag{Name: "interactive", Usage: "Prompt for missing parameters"},
		},
		Action: a.downloadAction,
	}
}

func formatNames() []string {
	names := make([]string, 0, len(writer.Formats))
	for _, f := range writer.Formats {
		names = append(names, string(f))
	}

	return names
}

// downloadRequest is a fully resolved download.
type downloadRequest struct {
	client marketdata.ClientConfig
	params marketdata.DownloadParams
}

// downloadAction resolves flags, config and prompt into a request and runs it.
func (a *app) downloadAction(ctx context.Context, cmd *cli.Command) error {
	req, err := a.resolveDownload(cmd)
	if err != nil {
		return err
	}

	progress := newProgressReporter(a.errOut)
	defer progress.finish()

	client, err := marketdata.NewClient(req.client, a.logger, progress.OnProgress)
	if err != nil {
		return fmt.Errorf("failed to create market data client: %w", err)
	}

	params := req.params

	a.logger.Info("Starting download",
		zap.String("symbol", params.Symbol),
		zap.String("venue", params.Venue),
		zap.String("interval", params.Timespan.Label()),
		zap.Time("start", params.Start),
		zap.Time("end", params.End),
		zap.String("provider", string(req.client.ProviderType)),
		zap.String("writer", string(req.client.WriterType)),
	)

	result, err := client.Download(ctx, params)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	progress.finish()

	if result.Rows == 0 {
		fmt.Fprintf(a.out, "No data found for %s between %s and %s\n",
			params.Symbol, params.Start.Format(time.DateOnly), params.End.Add(-time.Nanosecond).Format(time.DateOnly))

		return nil
	}

	fmt.Fprintf(a.out, "Saved %d bars of %s to %s\n", result.Rows, result.Symbol, result.Path)

	if result.FailedChunks > 0 {
		fmt.Fprintf(a.out, "Warning: %d of %d requests failed, the table may have gaps\n", result.FailedChunks, result.Chunks)
	}

	if result.Timezone.Err != nil {
		fmt.Fprintf(a.out, "Warning: timestamps left unlabeled: %v\n", result.Timezone.Err)
	}

	if result.SummaryPath != "" {
		fmt.Fprintf(a.out, "Saved daily summary of %d days to %s\n", result.SummaryRows, result.SummaryPath)
	}

	marketdata.Summarize(result.Bars, nil, result.Timezone.Applied).Print(a.out)

	return nil
}

// resolveDownload merges, in increasing priority, the YAML config, the JSON request file
// and the flags, then prompts for anything still missing when --interactive is set.
func (a *app) resolveDownload(cmd *cli.Command) (downloadRequest, error) {
	cfg := a.config

	values := PromptValues{
		Provider: cfg.Provider.Name,
		APIKey:   cfg.Provider.PolygonAPIKey,
	}

	var (
		fromFile marketdata.DownloadParams
		hasFile  bool
	)

	if path := cmd.String("request"); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return downloadRequest{}, fmt.Errorf("failed to read request file: %w", err)
		}

		if cmd.IsSet("provider") {
			values.Provider = cmd.String("provider")
		}

		parsed, err := marketdata.ParseDownloadConfig(values.Provider, string(content))
		if err != nil {
			return downloadRequest{}, err
		}

		fromFile, err = parsed.ToDownloadParams()
		if err != nil {
			return downloadRequest{}, err
		}

		if polygon, ok := parsed.(*marketdata.PolygonDownloadConfig); ok {
			values.APIKey = polygon.ApiKey
		}

		hasFile = true
		values.Symbol = fromFile.Symbol
		values.Interval = fromFile.Timespan.Label()
		values.Start = fromFile.Start.Format(time.RFC3339)
		values.End = fromFile.End.Format(time.RFC3339)
	}

	overrideString(cmd, "provider", &values.Provider)
	overrideString(cmd, "symbol", &values.Symbol)
	overrideString(cmd, "interval", &values.Interval)
	overrideString(cmd, "start", &values.Start)
	overrideString(cmd, "end", &values.End)

	if cmd.Bool("interactive") && !values.Complete() {
		prompted, err := a.prompt(values)
		if err != nil {
			return downloadRequest{}, err
		}

		values = prompted
	}

	if err := requireValues(values); err != nil {
		return downloadRequest{}, err
	}

	params := fromFile
	params.Symbol = values.Symbol

	if !hasFile || cmd.IsSet("venue") {
		params.Venue = cmd.String("venue")
	}

	var err error

	if params.Timespan, err = marketdata.ParseTimespan(values.Interval); err != nil {
		return downloadRequest{}, err
	}

	if params.Start, err = parseDate(values.Start); err != nil {
		return downloadRequest{}, err
	}

	if params.End, err = parseEndDate(values.End); err != nil {
		return downloadRequest{}, err
	}

	if err := a.applyDownloadFlags(cmd, &params, hasFile); err != nil {
		return downloadRequest{}, err
	}

	format, err := writer.ParseFormat(firstSet(cmd, "writer", cfg.Storage.Writer))
	if err != nil {
		return downloadRequest{}, err
	}

	maxBars := cfg.Provider.MaxBars
	if cmd.IsSet("max-bars") {
		maxBars = int(cmd.Int("max-bars"))
	}

	return downloadRequest{
		client: marketdata.ClientConfig{
			ProviderType:  marketdata.ProviderType(values.Provider),
			WriterType:    format,
			DataPath:      firstSet(cmd, "data", cfg.Storage.DataDir),
			PolygonApiKey: values.APIKey,
			MaxBars:       maxBars,
		},
		params: params,
	}, nil
}

// applyDownloadFlags sets mode, anchor, timezone and alternatives from the flags. Values
// from a request file are kept unless the flag is given.
func (a *app) applyDownloadFlags(cmd *cli.Command, params *marketdata.DownloadParams, hasFile bool) error {
	if !hasFile || cmd.IsSet("mode") {
		params.Mode = marketdata.DownloadMode(cmd.String("mode"))
	}

	if cmd.Bool("anchor-now") {
		params.Anchor = marketdata.AnchorNow
	}

	if cmd.IsSet("daily-summary") || !hasFile {
		params.DailySummary = cmd.Bool("daily-summary")
	}

	if cmd.IsSet("adjust-tz") || !hasFile {
		params.Timezone.Adjust = cmd.Bool("adjust-tz")
	}

	if cmd.IsSet("convert-tz") || !hasFile {
		params.Timezone.Convert = cmd.Bool("convert-tz")
	}

	if params.Timezone.Adjust && (params.Timezone.Source == nil || cmd.IsSet("source-tz")) {
		loc, err := marketdata.LoadLocation(firstSet(cmd, "source-tz", a.config.Timezone.Source))
		if err != nil {
			return err
		}

		params.Timezone.Source = loc
	}

	if cmd.IsSet("alternative") {
		alternatives, err := parseAlternatives(cmd.StringSlice("alternative"))
		if err != nil {
			return err
		}

		params.Alternatives = alternatives
	}

	return nil
}

// parseAlternatives parses SYMBOL:VENUE pairs. The venue is optional.
func parseAlternatives(values []string) ([]marketdata.Alternative, error) {
	alternatives := make([]marketdata.Alternative, 0, len(values))

	for _, value := range values {
		symbol, venue, _ := strings.Cut(strings.TrimSpace(value), ":")
		if symbol == "" {
			return nil, fmt.Errorf("invalid alternative %q, expected SYMBOL:VENUE", value)
		}

		alternatives = append(alternatives, marketdata.Alternative{
			Symbol: strings.ToUpper(symbol),
			Venue:  strings.ToUpper(venue),
		})
	}

	return alternatives, nil
}

func requireValues(values PromptValues) error {
	var missing []string

	for _, field := range []struct {
		flag  string
		value string
	}{
		{"--provider", values.Provider},
		{"--symbol", values.Symbol},
		{"--interval", values.Interval},
		{"--start", values.Start},
		{"--end", values.End},
	} {
		if field.value == "" {
			missing = append(missing, field.flag)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required parameters: %s (or use --interactive)", strings.Join(missing, ", "))
	}

	if values.needsAPIKey() {
		return fmt.Errorf("polygon requires an API key: set POLYGON_API_KEY or use --interactive")
	}

	return nil
}

func overrideString(cmd *cli.Command, name string, target *string) {
	if cmd.IsSet(name) {
		*target = cmd.String(name)
	}
}

func firstSet(cmd *cli.Command, name string, fallback string) string {
	if cmd.IsSet(name) {
		return cmd.String(name)
	}

	return fallback
}
