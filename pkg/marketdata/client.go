package marketdata

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-history/internal/logger"
	"github.com/rxtech-lab/argo-history/internal/types"
	"github.com/rxtech-lab/argo-history/pkg/errors"
	"github.com/rxtech-lab/argo-history/pkg/marketdata/provider"
	"github.com/rxtech-lab/argo-history/pkg/marketdata/writer"
)

// DefaultMaxBars is the per-request bar cap used when none is configured.
const DefaultMaxBars = 20000

// ProviderType is re-exported so callers only need this package.
type ProviderType = provider.ProviderType

const (
	ProviderPolygon = provider.ProviderPolygon
	ProviderBinance = provider.ProviderBinance
)

// DownloadMode selects how a range is fetched.
type DownloadMode string

const (
	// ModeChunked plans the range into chunks of at most MaxBars and stitches them.
	ModeChunked DownloadMode = "chunked"
	// ModeDirect issues a single request, retrying with larger bar counts until the range
	// has data.
	ModeDirect DownloadMode = "direct"
)

// RequestAnchor selects how many bars a chunk asks the provider for.
type RequestAnchor string

const (
	// AnchorChunk requests the chunk's own bar estimate.
	AnchorChunk RequestAnchor = "chunk"
	// AnchorNow requests every bar from the chunk start up to the time of the request, so a
	// "last N bars" provider reaches back far enough to cover older chunks.
	AnchorNow RequestAnchor = "now"
)

// directBarCounts are the bar counts tried after the estimate in direct mode.
var directBarCounts = []int{50000, 100000, 200000, 500000, 1000000}

// directEstimatePadding is added to the estimate for the second direct attempt.
const directEstimatePadding = 10000

// OnProgress reports download progress. current and total count chunk requests.
type OnProgress func(current float64, total float64, message string)

// ClientConfig holds the configuration for the market data client.
type ClientConfig struct {
	ProviderType  ProviderType  `validate:"required,oneof=polygon binance"`
	WriterType    writer.Format `validate:"required,oneof=csv duckdb parquet"`
	DataPath      string        `validate:"required"`
	PolygonApiKey string        `validate:"required_if=ProviderType polygon"`
	MaxBars       int           `validate:"omitempty,min=1"`
}

// Alternative is a symbol and venue tried when the main symbol has no data.
type Alternative struct {
	Symbol string `validate:"required"`
	Venue  string
}

// DownloadParams holds the parameters for a market data download request.
type DownloadParams struct {
	Symbol   string `validate:"required"`
	Venue    string
	Timespan Timespan  `validate:"required"`
	Start    time.Time `validate:"required"`
	End      time.Time `validate:"required,gtfield=Start"`
	// MaxBars overrides ClientConfig.MaxBars when set.
	MaxBars      int             `validate:"omitempty,min=1"`
	Mode         DownloadMode    `validate:"omitempty,oneof=chunked direct"`
	Anchor       RequestAnchor   `validate:"omitempty,oneof=chunk now"`
	Timezone     TimezoneOptions `validate:"-"`
	Alternatives []Alternative   `validate:"dive"`
	// DailySummary also writes the table resampled to one bar per day.
	DailySummary bool
}

// Range returns the requested half-open range.
func (p DownloadParams) Range() TimeRange {
	return TimeRange{Start: p.Start, End: p.End}
}

// Result describes a finished download.
type Result struct {
	// Symbol and Venue are the pair that produced the data.
	Symbol string
	Venue  string
	// Path is empty when nothing was written.
	Path string
	// SummaryPath is set when a daily summary was written.
	SummaryPath  string
	SummaryRows  int
	Rows         int
	Chunks       int
	FailedChunks int
	Timezone     TimezoneResult
	Bars         []types.MarketData
}

// Client is the market data client responsible for downloading data from providers and storing it using writers.
type Client struct {
	provider   provider.Provider
	config     ClientConfig
	validate   *validator.Validate
	logger     *logger.Logger
	onProgress OnProgress
	now        func() time.Time
}

// NewClient creates a new market data client with the given configuration.
func NewClient(config ClientConfig, log *logger.Logger, onProgress OnProgress) (*Client, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid client configuration", err)
	}

	var apiConfig any
	if config.ProviderType == ProviderPolygon {
		apiConfig = config.PolygonApiKey
	}

	marketProvider, err := provider.NewMarketDataProvider(config.ProviderType, apiConfig)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidProvider, err, "failed to create %s client", config.ProviderType)
	}

	return newClient(config, marketProvider, validate, log, onProgress), nil
}

// NewClientWithProvider creates a client on top of an existing provider.
func NewClientWithProvider(config ClientConfig, marketProvider provider.Provider, log *logger.Logger, onProgress OnProgress) (*Client, error) {
	validate := validator.New()
	if err := validate.StructExcept(config, "PolygonApiKey"); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid client configuration", err)
	}

	if marketProvider == nil {
		return nil, errors.New(errors.ErrCodeInvalidProvider, "provider is required")
	}

	return newClient(config, marketProvider, validate, log, onProgress), nil
}

func newClient(config ClientConfig, marketProvider provider.Provider, validate *validator.Validate, log *logger.Logger, onProgress OnProgress) *Client {
	if config.MaxBars == 0 {
		config.MaxBars = DefaultMaxBars
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	if onProgress == nil {
		onProgress = func(float64, float64, string) {}
	}

	return &Client{
		provider:   marketProvider,
		config:     config,
		validate:   validate,
		logger:     log,
		onProgress: onProgress,
		now:        time.Now,
	}
}

// WithClock replaces the clock used for AnchorNow request sizes.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now

	return c
}

// Download fetches params' range, tries the alternatives in order when the main symbol has
// no data, applies the timezone options and writes the table under the data path.
// A range without any data is not an error: the result has Rows == 0 and no Path.
func (c *Client) Download(ctx context.Context, params DownloadParams) (Result, error) {
	if err := c.validateParams(params); err != nil {
		return Result{}, err
	}

	candidates := make([]Alternative, 0, len(params.Alternatives)+1)
	candidates = append(candidates, Alternative{Symbol: params.Symbol, Venue: params.Venue})
	candidates = append(candidates, params.Alternatives...)

	var result Result

	for i, candidate := range candidates {
		if i > 0 {
			c.logger.Info("Trying alternative symbol",
				zap.String("symbol", candidate.Symbol),
				zap.String("venue", candidate.Venue),
			)
		}

		attempt, err := c.fetch(ctx, params, candidate)
		if err != nil {
			return Result{}, err
		}

		result = attempt
		if result.Rows > 0 {
			break
		}

		c.logger.Warn("No data in range",
			zap.String("symbol", candidate.Symbol),
			zap.String("venue", candidate.Venue),
			zap.Time("start", params.Start),
			zap.Time("end", params.End),
		)
	}

	if result.Rows == 0 {
		return result, nil
	}

	if params.Timezone.Adjust {
		tz, err := NormalizeTimezone(result.Bars, params.Timezone)
		if err != nil {
			return Result{}, err
		}

		if tz.Err != nil {
			c.logger.Warn("Timezone adjustment failed, keeping naive timestamps", zap.Error(tz.Err))
		}

		result.Timezone = tz
		result.Bars = tz.Bars
	}

	outputPath := filepath.Join(c.config.DataPath, OutputFileName(result.Symbol, params.Start, params.End, params.Timespan, c.config.WriterType))

	path, err := c.write(outputPath, result.Symbol, result.Bars, result.Timezone.Applied)
	if err != nil {
		return Result{}, err
	}

	result.Path = path

	if params.DailySummary {
		daily := ResampleDaily(result.Bars)
		summaryPath := filepath.Join(c.config.DataPath, DailySummaryFileName(result.Symbol, params.Start, params.End, c.config.WriterType))

		result.SummaryPath, err = c.write(summaryPath, result.Symbol, daily, result.Timezone.Applied)
		if err != nil {
			return Result{}, err
		}

		result.SummaryRows = len(daily)
	}

	c.logger.Info("Download finished",
		zap.String("symbol", result.Symbol),
		zap.Int("rows", result.Rows),
		zap.Int("chunks", result.Chunks),
		zap.Int("failed_chunks", result.FailedChunks),
		zap.String("path", path),
	)

	return result, nil
}

// Fetch runs the fetch and stitch steps for the main symbol only, without writing.
func (c *Client) Fetch(ctx context.Context, params DownloadParams) (Result, error) {
	if err := c.validateParams(params); err != nil {
		return Result{}, err
	}

	return c.fetch(ctx, params, Alternative{Symbol: params.Symbol, Venue: params.Venue})
}

func (c *Client) validateParams(params DownloadParams) error {
	if err := params.Timespan.Validate(); err != nil {
		return err
	}

	if err := params.Range().Validate(); err != nil {
		return err
	}

	if err := c.validate.Struct(params); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid download parameters", err)
	}

	return params.Timezone.Validate()
}

func (c *Client) maxBars(params DownloadParams) int {
	if params.MaxBars > 0 {
		return params.MaxBars
	}

	return c.config.MaxBars
}

func (c *Client) fetch(ctx context.Context, params DownloadParams, target Alternative) (Result, error) {
	if params.Mode == ModeDirect {
		return c.fetchDirect(ctx, params, target)
	}

	return c.fetchChunked(ctx, params, target)
}

// fetchChunked fetches the planned chunks one at a time, latest first. A failed chunk is
// logged and recorded as missing; only cancellation aborts the run.
func (c *Client) fetchChunked(ctx context.Context, params DownloadParams, target Alternative) (Result, error) {
	r := params.Range()

	chunks, err := PlanChunks(r, params.Timespan, c.maxBars(params))
	if err != nil {
		return Result{}, err
	}

	c.logger.Info("Planned chunks",
		zap.String("symbol", target.Symbol),
		zap.String("interval", params.Timespan.Label()),
		zap.Int("chunks", len(chunks)),
		zap.Int("max_bars", c.maxBars(params)),
	)

	results := make([]ChunkResult, 0, len(chunks))
	failed := 0

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		c.onProgress(float64(i), float64(len(chunks)), fmt.Sprintf("Fetching %s chunk %d/%d", target.Symbol, i+1, len(chunks)))

		barCount := c.requestSize(params, chunk)

		bars, err := c.provider.FetchRecent(ctx, target.Symbol, target.Venue, params.Timespan.Multiplier(), params.Timespan.Timespan(), barCount)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}

			failed++

			c.logger.Warn("Chunk fetch failed",
				zap.String("symbol", target.Symbol),
				zap.Time("chunk_start", chunk.Range.Start),
				zap.Time("chunk_end", chunk.Range.End),
				zap.Int("bars", barCount),
				zap.Error(err),
			)

			results = append(results, ChunkResult{Chunk: chunk, Bars: optional.None[[]types.MarketData]()})

			continue
		}

		c.logger.Debug("Chunk fetched",
			zap.Time("chunk_start", chunk.Range.Start),
			zap.Time("chunk_end", chunk.Range.End),
			zap.Int("requested", barCount),
			zap.Int("received", len(bars)),
		)

		results = append(results, ChunkResult{Chunk: chunk, Bars: optional.Some(bars)})
	}

	c.onProgress(float64(len(chunks)), float64(len(chunks)), fmt.Sprintf("Fetched %s", target.Symbol))

	stitched := Stitch(r, results)

	return Result{
		Symbol:       target.Symbol,
		Venue:        target.Venue,
		Rows:         len(stitched),
		Chunks:       len(chunks),
		FailedChunks: failed,
		Bars:         stitched,
	}, nil
}

func (c *Client) requestSize(params DownloadParams, chunk Chunk) int {
	if params.Anchor != AnchorNow {
		return chunk.Bars
	}

	now := c.now()
	if !now.After(chunk.Range.Start) {
		return chunk.Bars
	}

	return max(CountBars(chunk.Range.Start, now, params.Timespan), chunk.Bars)
}

// directRequestSizes returns the escalating bar counts tried in direct mode, dropping
// non-positive and repeated sizes.
func directRequestSizes(estimate int) []int {
	candidates := append([]int{estimate, estimate + directEstimatePadding}, directBarCounts...)

	sizes := make([]int, 0, len(candidates))
	seen := make(map[int]bool, len(candidates))

	for _, n := range candidates {
		if n <= 0 || seen[n] {
			continue
		}

		seen[n] = true
		sizes = append(sizes, n)
	}

	return sizes
}

// fetchDirect requests the whole range at once with growing bar counts. The first request
// whose result has bars inside the range wins.
func (c *Client) fetchDirect(ctx context.Context, params DownloadParams, target Alternative) (Result, error) {
	r := params.Range()

	estimate, approximate := EstimateBars(r.Start, r.End, params.Timespan)
	c.logger.Info("Estimated bars needed",
		zap.String("symbol", target.Symbol),
		zap.Int("estimate", estimate),
		zap.Bool("approximate", approximate),
	)

	sizes := directRequestSizes(estimate)
	failed := 0

	for i, n := range sizes {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		c.onProgress(float64(i), float64(len(sizes)), fmt.Sprintf("Requesting %d bars of %s", n, target.Symbol))

		bars, err := c.provider.FetchRecent(ctx, target.Symbol, target.Venue, params.Timespan.Multiplier(), params.Timespan.Timespan(), n)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}

			failed++

			c.logger.Warn("Direct fetch failed", zap.String("symbol", target.Symbol), zap.Int("bars", n), zap.Error(err))

			continue
		}

		filtered := Stitch(r, []ChunkResult{{Chunk: Chunk{Range: r, Bars: n}, Bars: optional.Some(bars)}})

		c.logger.Info("Direct fetch",
			zap.Int("requested", n),
			zap.Int("received", len(bars)),
			zap.Int("in_range", len(filtered)),
		)

		if len(filtered) > 0 {
			c.onProgress(float64(len(sizes)), float64(len(sizes)), fmt.Sprintf("Fetched %s", target.Symbol))

			return Result{
				Symbol:       target.Symbol,
				Venue:        target.Venue,
				Rows:         len(filtered),
				Chunks:       i + 1,
				FailedChunks: failed,
				Bars:         filtered,
			}, nil
		}
	}

	return Result{
		Symbol:       target.Symbol,
		Venue:        target.Venue,
		Chunks:       len(sizes),
		FailedChunks: failed,
		Bars:         []types.MarketData{},
	}, nil
}

// write stores bars at outputPath with the configured writer. Bars without a symbol get symbol.
func (c *Client) write(outputPath string, symbol string, bars []types.MarketData, zoneLabeled bool) (path string, err error) {
	w, err := writer.New(c.config.WriterType, outputPath, writer.Options{ZoneLabeled: zoneLabeled})
	if err != nil {
		return "", err
	}

	if err := w.Initialize(); err != nil {
		return "", errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to initialize %s writer at %s", c.config.WriterType, outputPath)
	}

	defer func() {
		if cerr := w.Close(); cerr != nil {
			if err == nil {
				err = errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "error closing writer", cerr)
			} else {
				c.logger.Warn("Error closing writer after another error", zap.Error(cerr))
			}
		}
	}()

	for _, bar := range bars {
		if bar.Symbol == "" {
			bar.Symbol = symbol
		}

		if err := w.Write(bar); err != nil {
			return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to write data", err)
		}
	}

	path, err = w.Finalize()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to finalize writer", err)
	}

	return path, nil
}

// OutputFileName returns <SYMBOL>_<start>_to_<end>_<interval>.<ext> with characters that are
// invalid in file names replaced by "_". Both dates are inclusive: end names the last day the
// half-open range reaches, so an end at midnight names the day before.
func OutputFileName(symbol string, start, end time.Time, ts Timespan, format writer.Format) string {
	name := fmt.Sprintf("%s_%s_to_%s_%s.%s",
		symbol,
		start.Format("2006-01-02"),
		end.Add(-time.Nanosecond).Format("2006-01-02"),
		ts.Label(),
		format.Extension())

	return sanitizeFileName(name)
}

// DailySummaryFileName returns <SYMBOL>_daily_summary_<start>_to_<end>.<ext>, dated like
// OutputFileName.
func DailySummaryFileName(symbol string, start, end time.Time, format writer.Format) string {
	name := fmt.Sprintf("%s_daily_summary_%s_to_%s.%s",
		symbol,
		start.Format("2006-01-02"),
		end.Add(-time.Nanosecond).Format("2006-01-02"),
		format.Extension())

	return sanitizeFileName(name)
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}

		return r
	}, name)
}
