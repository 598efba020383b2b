package marketdata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/rxtech-lab/argo-history/internal/logger"
	"github.com/rxtech-lab/argo-history/internal/types"
	"github.com/rxtech-lab/argo-history/mocks"
	argoerrors "github.com/rxtech-lab/argo-history/pkg/errors"
	"github.com/rxtech-lab/argo-history/pkg/marketdata/writer"
)

// ClientTestSuite is a test suite for the Client implementation
type ClientTestSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	mockProvider *mocks.MockProvider
	gen          *mocks.DataGenerator
	tempDir      string
	start        time.Time
	end          time.Time
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

// SetupTest runs before each test
func (suite *ClientTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.mockProvider = mocks.NewMockProvider(suite.ctrl)
	suite.gen = mocks.NewDataGenerator(7)
	suite.tempDir = suite.T().TempDir()
	suite.start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.end = time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)
}

// TearDownTest runs after each test
func (suite *ClientTestSuite) TearDownTest() {
	suite.ctrl.Finish()
}

func (suite *ClientTestSuite) config() ClientConfig {
	return ClientConfig{
		ProviderType: ProviderBinance,
		WriterType:   writer.FormatCSV,
		DataPath:     suite.tempDir,
		MaxBars:      1000,
	}
}

// newClient returns a client whose clock is frozen at suite.end.
func (suite *ClientTestSuite) newClient(config ClientConfig, onProgress OnProgress) *Client {
	client, err := NewClientWithProvider(config, suite.mockProvider, logger.NewNopLogger(), onProgress)
	suite.Require().NoError(err)

	return client.WithClock(func() time.Time { return suite.end })
}

func (suite *ClientTestSuite) params() DownloadParams {
	return DownloadParams{
		Symbol:   "BTCUSDT",
		Venue:    "BINANCE",
		Timespan: TimespanFiveMinutes,
		Start:    suite.start,
		End:      suite.end,
	}
}

// lastBarsAsOf simulates a provider that can only return the n most recent bars before now.
func (suite *ClientTestSuite) lastBarsAsOf(now time.Time) func(context.Context, string, string, int, models.Timespan, int) ([]types.MarketData, error) {
	return func(_ context.Context, symbol string, _ string, _ int, _ models.Timespan, n int) ([]types.MarketData, error) {
		return suite.gen.GenerateRange(symbol, now.Add(-time.Duration(n)*5*time.Minute), now, 5*time.Minute), nil
	}
}

func (suite *ClientTestSuite) TestDownloadChunkedAnchorNow() {
	params := suite.params()
	params.Anchor = AnchorNow

	gomock.InOrder(
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", "BINANCE", 5, models.Minute, 1000).DoAndReturn(suite.lastBarsAsOf(suite.end)),
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", "BINANCE", 5, models.Minute, 2000).DoAndReturn(suite.lastBarsAsOf(suite.end)),
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", "BINANCE", 5, models.Minute, 2880).DoAndReturn(suite.lastBarsAsOf(suite.end)),
	)

	var progressCalls int
	client := suite.newClient(suite.config(), func(current float64, total float64, message string) {
		progressCalls++
		suite.Equal(3.0, total)
	})

	result, err := client.Download(context.Background(), params)
	suite.Require().NoError(err)

	suite.Equal(2880, result.Rows)
	suite.Equal(3, result.Chunks)
	suite.Equal(0, result.FailedChunks)
	suite.Equal("BTCUSDT", result.Symbol)
	suite.Equal(4, progressCalls)
	suite.Equal(filepath.Join(suite.tempDir, "BTCUSDT_2025-01-01_to_2025-01-10_5m.csv"), result.Path)

	table, err := writer.ReadCSV(result.Path)
	suite.Require().NoError(err)
	suite.Len(table.Bars, 2880)
	suite.False(table.ZoneLabeled)
	suite.Equal(suite.start, table.Bars[0].Time)
	suite.Equal(suite.end.Add(-5*time.Minute), table.Bars[len(table.Bars)-1].Time)
}

// TestDownloadChunkedKeepsOnlyInRangeBars requests each chunk's own estimate from a provider
// that answers relative to now: older chunks get bars outside their range, which are dropped.
func (suite *ClientTestSuite) TestDownloadChunkedKeepsOnlyInRangeBars() {
	gomock.InOrder(
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", "BINANCE", 5, models.Minute, 1000).DoAndReturn(suite.lastBarsAsOf(suite.end)),
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", "BINANCE", 5, models.Minute, 1000).DoAndReturn(suite.lastBarsAsOf(suite.end)),
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", "BINANCE", 5, models.Minute, 880).DoAndReturn(suite.lastBarsAsOf(suite.end)),
	)

	client := suite.newClient(suite.config(), nil)

	result, err := client.Download(context.Background(), suite.params())
	suite.Require().NoError(err)

	suite.Equal(1000, result.Rows)
	suite.Equal(suite.end.Add(-1000*5*time.Minute), result.Bars[0].Time)
}

func (suite *ClientTestSuite) TestDownloadChunkFailureLeavesGap() {
	params := suite.params()
	params.Anchor = AnchorNow

	gomock.InOrder(
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), 1000).Return(nil, errors.New("rate limited")),
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), 2000).DoAndReturn(suite.lastBarsAsOf(suite.end)),
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), 2880).DoAndReturn(suite.lastBarsAsOf(suite.end)),
	)

	client := suite.newClient(suite.config(), nil)

	result, err := client.Download(context.Background(), params)
	suite.Require().NoError(err)

	suite.Equal(1, result.FailedChunks)
	suite.Equal(1880, result.Rows)

	gapStart := suite.end.Add(-1000 * 5 * time.Minute)
	for _, bar := range result.Bars {
		suite.True(bar.Time.Before(gapStart))
	}
}

func (suite *ClientTestSuite) TestDownloadAllChunksEmpty() {
	suite.mockProvider.EXPECT().
		FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]types.MarketData{}, nil).
		Times(3)

	client := suite.newClient(suite.config(), nil)

	result, err := client.Download(context.Background(), suite.params())
	suite.NoError(err)
	suite.Equal(0, result.Rows)
	suite.Empty(result.Path)
	suite.NotNil(result.Bars)

	entries, err := os.ReadDir(suite.tempDir)
	suite.Require().NoError(err)
	suite.Empty(entries)
}

func (suite *ClientTestSuite) TestDownloadAlternatives() {
	params := suite.params()
	params.Start = suite.end.Add(-time.Hour)
	params.Symbol = "BTC.D"
	params.Venue = "CRYPTOCAP"
	params.Alternatives = []Alternative{
		{Symbol: "BTCDOM", Venue: "CRYPTOCAP"},
		{Symbol: "BTCDOMUSDT", Venue: "BINANCE"},
	}

	gomock.InOrder(
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTC.D", "CRYPTOCAP", 5, models.Minute, 12).Return(nil, errors.New("unknown symbol")),
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTCDOM", "CRYPTOCAP", 5, models.Minute, 12).Return([]types.MarketData{}, nil),
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTCDOMUSDT", "BINANCE", 5, models.Minute, 12).DoAndReturn(suite.lastBarsAsOf(suite.end)),
	)

	client := suite.newClient(suite.config(), nil)

	result, err := client.Download(context.Background(), params)
	suite.Require().NoError(err)
	suite.Equal("BTCDOMUSDT", result.Symbol)
	suite.Equal("BINANCE", result.Venue)
	suite.Equal(12, result.Rows)
	suite.Equal("BTCDOMUSDT_2025-01-10_to_2025-01-10_5m.csv", filepath.Base(result.Path))
}

func (suite *ClientTestSuite) TestDownloadDirectMode() {
	params := suite.params()
	params.Mode = ModeDirect
	params.Start = suite.end.Add(-24 * time.Hour)

	// 1 day of 5 minute bars is estimated at 288
	gomock.InOrder(
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", "BINANCE", 5, models.Minute, 288).Return(nil, errors.New("timeout")),
		suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", "BINANCE", 5, models.Minute, 10288).DoAndReturn(suite.lastBarsAsOf(suite.end)),
	)

	client := suite.newClient(suite.config(), nil)

	result, err := client.Download(context.Background(), params)
	suite.Require().NoError(err)
	suite.Equal(288, result.Rows)
	suite.Equal(2, result.Chunks)
	suite.Equal(1, result.FailedChunks)
	suite.Equal(params.Start, result.Bars[0].Time)
}

func (suite *ClientTestSuite) TestDownloadDirectModeNoDataInRange() {
	params := suite.params()
	params.Mode = ModeDirect
	params.Start = suite.end.Add(-24 * time.Hour)

	// The provider's history ends a week before the requested range.
	stale := suite.lastBarsAsOf(suite.start)
	suite.mockProvider.EXPECT().
		FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, symbol string, venue string, multiplier int, timespan models.Timespan, n int) ([]types.MarketData, error) {
			return stale(ctx, symbol, venue, multiplier, timespan, min(n, 100))
		}).
		Times(len(directRequestSizes(288)))

	client := suite.newClient(suite.config(), nil)

	result, err := client.Download(context.Background(), params)
	suite.NoError(err)
	suite.Equal(0, result.Rows)
	suite.Empty(result.Path)
}

func (suite *ClientTestSuite) TestDownloadTimezone() {
	params := suite.params()
	params.Start = suite.end.Add(-time.Hour)
	params.Timezone = TimezoneOptions{Adjust: true, Convert: true}

	suite.mockProvider.EXPECT().
		FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), 12).
		DoAndReturn(suite.lastBarsAsOf(suite.end))

	client := suite.newClient(suite.config(), nil)

	result, err := client.Download(context.Background(), params)
	suite.Require().NoError(err)
	suite.True(result.Timezone.Applied)
	suite.True(result.Timezone.Converted)
	suite.NoError(result.Timezone.Err)

	// São Paulo is UTC-3 in January
	suite.True(result.Bars[0].Time.Equal(params.Start.Add(3 * time.Hour)))

	content, err := os.ReadFile(result.Path)
	suite.Require().NoError(err)
	lines := strings.Split(string(content), "\n")
	suite.Equal("2025-01-11 02:00:00+00:00", strings.Split(lines[1], ",")[0])
}

func (suite *ClientTestSuite) TestDownloadAdjustOnly() {
	params := suite.params()
	params.Start = suite.end.Add(-time.Hour)
	params.Timezone = TimezoneOptions{Adjust: true}

	suite.mockProvider.EXPECT().
		FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), 12).
		DoAndReturn(suite.lastBarsAsOf(suite.end))

	client := suite.newClient(suite.config(), nil)

	result, err := client.Download(context.Background(), params)
	suite.Require().NoError(err)
	suite.True(result.Timezone.Applied)
	suite.False(result.Timezone.Converted)

	content, err := os.ReadFile(result.Path)
	suite.Require().NoError(err)
	lines := strings.Split(string(content), "\n")
	suite.Equal("2025-01-10 23:00:00-03:00", strings.Split(lines[1], ",")[0])
}

func (suite *ClientTestSuite) TestDownloadInvalidParams() {
	testCases := []struct {
		name   string
		modify func(p *DownloadParams)
		code   argoerrors.ErrorCode
	}{
		{
			name:   "missing symbol",
			modify: func(p *DownloadParams) { p.Symbol = "" },
			code:   argoerrors.ErrCodeInvalidParameter,
		},
		{
			name:   "start after end",
			modify: func(p *DownloadParams) { p.Start, p.End = p.End, p.Start },
			code:   argoerrors.ErrCodeInvalidParameter,
		},
		{
			name:   "start equals end",
			modify: func(p *DownloadParams) { p.Start = p.End },
			code:   argoerrors.ErrCodeInvalidParameter,
		},
		{
			name:   "unknown timespan",
			modify: func(p *DownloadParams) { p.Timespan = Timespan("2h") },
			code:   argoerrors.ErrCodeInvalidTimespan,
		},
		{
			name:   "negative max bars",
			modify: func(p *DownloadParams) { p.MaxBars = -1 },
			code:   argoerrors.ErrCodeInvalidParameter,
		},
		{
			name:   "unknown mode",
			modify: func(p *DownloadParams) { p.Mode = DownloadMode("parallel") },
			code:   argoerrors.ErrCodeInvalidParameter,
		},
		{
			name:   "convert without adjust",
			modify: func(p *DownloadParams) { p.Timezone = TimezoneOptions{Convert: true} },
			code:   argoerrors.ErrCodeInvalidParameter,
		},
		{
			name:   "alternative without symbol",
			modify: func(p *DownloadParams) { p.Alternatives = []Alternative{{Venue: "BINANCE"}} },
			code:   argoerrors.ErrCodeInvalidParameter,
		},
	}

	client := suite.newClient(suite.config(), nil)

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			params := suite.params()
			tc.modify(&params)

			_, err := client.Download(context.Background(), params)
			suite.Error(err)
			suite.True(argoerrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func (suite *ClientTestSuite) TestDownloadCancelled() {
	ctx, cancel := context.WithCancel(context.Background())

	suite.mockProvider.EXPECT().
		FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, string, int, models.Timespan, int) ([]types.MarketData, error) {
			cancel()
			return nil, context.Canceled
		})

	client := suite.newClient(suite.config(), nil)

	_, err := client.Download(ctx, suite.params())
	suite.ErrorIs(err, context.Canceled)
}

func (suite *ClientTestSuite) TestDownloadWriteFailure() {
	blocker := filepath.Join(suite.tempDir, "not-a-dir")
	suite.Require().NoError(os.WriteFile(blocker, []byte("x"), 0o644))

	config := suite.config()
	config.DataPath = blocker

	params := suite.params()
	params.Start = suite.end.Add(-time.Hour)

	suite.mockProvider.EXPECT().
		FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), 12).
		DoAndReturn(suite.lastBarsAsOf(suite.end))

	client := suite.newClient(config, nil)

	_, err := client.Download(context.Background(), params)
	suite.Error(err)
	suite.True(argoerrors.HasCode(err, argoerrors.ErrCodeMarketDataWriteFailed))
}

func (suite *ClientTestSuite) TestDownloadParquetWriter() {
	config := suite.config()
	config.WriterType = writer.FormatParquet

	params := suite.params()
	params.Start = suite.end.Add(-time.Hour)

	suite.mockProvider.EXPECT().
		FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), 12).
		DoAndReturn(suite.lastBarsAsOf(suite.end))

	client := suite.newClient(config, nil)

	result, err := client.Download(context.Background(), params)
	suite.Require().NoError(err)
	suite.True(strings.HasSuffix(result.Path, "_5m.parquet"))

	data, err := writer.ReadParquet(result.Path)
	suite.Require().NoError(err)
	suite.Len(data, 12)
	suite.Equal("BTCUSDT", data[0].Symbol)
}

func (suite *ClientTestSuite) TestFetchDoesNotWrite() {
	params := suite.params()
	params.Start = suite.end.Add(-time.Hour)

	suite.mockProvider.EXPECT().
		FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), 12).
		DoAndReturn(suite.lastBarsAsOf(suite.end))

	client := suite.newClient(suite.config(), nil)

	result, err := client.Fetch(context.Background(), params)
	suite.Require().NoError(err)
	suite.Equal(12, result.Rows)
	suite.Empty(result.Path)

	entries, err := os.ReadDir(suite.tempDir)
	suite.Require().NoError(err)
	suite.Empty(entries)
}

func (suite *ClientTestSuite) TestClientConfigValidation() {
	testCases := []struct {
		name        string
		config      ClientConfig
		expectError bool
	}{
		{
			name:   "valid binance config",
			config: ClientConfig{ProviderType: ProviderBinance, WriterType: writer.FormatCSV, DataPath: suite.tempDir},
		},
		{
			name:   "valid polygon config",
			config: ClientConfig{ProviderType: ProviderPolygon, WriterType: writer.FormatDuckDB, DataPath: suite.tempDir, PolygonApiKey: "key"},
		},
		{
			name:        "polygon without api key",
			config:      ClientConfig{ProviderType: ProviderPolygon, WriterType: writer.FormatCSV, DataPath: suite.tempDir},
			expectError: true,
		},
		{
			name:        "unknown provider",
			config:      ClientConfig{ProviderType: ProviderType("tradingview"), WriterType: writer.FormatCSV, DataPath: suite.tempDir},
			expectError: true,
		},
		{
			name:        "unknown writer",
			config:      ClientConfig{ProviderType: ProviderBinance, WriterType: writer.Format("xlsx"), DataPath: suite.tempDir},
			expectError: true,
		},
		{
			name:        "missing data path",
			config:      ClientConfig{ProviderType: ProviderBinance, WriterType: writer.FormatCSV},
			expectError: true,
		},
		{
			name:        "invalid max bars",
			config:      ClientConfig{ProviderType: ProviderBinance, WriterType: writer.FormatCSV, DataPath: suite.tempDir, MaxBars: -5},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			client, err := NewClient(tc.config, nil, nil)
			if tc.expectError {
				suite.Error(err)
				suite.Nil(client)
				suite.True(argoerrors.HasCode(err, argoerrors.ErrCodeInvalidConfiguration))

				return
			}

			suite.NoError(err)
			suite.Require().NotNil(client)
			suite.Equal(DefaultMaxBars, client.config.MaxBars)
		})
	}
}

func (suite *ClientTestSuite) TestDownloadDailySummary() {
	params := suite.params()
	params.Start = suite.end.AddDate(0, 0, -2)
	params.DailySummary = true

	suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", "BINANCE", 5, models.Minute, 576).DoAndReturn(suite.lastBarsAsOf(suite.end))

	config := suite.config()
	config.WriterType = writer.FormatParquet
	client := suite.newClient(config, nil)

	result, err := client.Download(context.Background(), params)
	suite.Require().NoError(err)
	suite.Equal(576, result.Rows)
	suite.Equal(2, result.SummaryRows)
	suite.Equal(filepath.Join(suite.tempDir, "BTCUSDT_daily_summary_2025-01-09_to_2025-01-10.parquet"), result.SummaryPath)

	table, err := writer.ReadTable(result.SummaryPath)
	suite.Require().NoError(err)
	suite.Require().Len(table.Bars, 2)

	first := table.Bars[0]
	suite.Equal(params.Start, first.Time)
	suite.Equal("BTCUSDT", first.Symbol)
	suite.Equal(result.Bars[0].Open, first.Open)
	suite.Equal(result.Bars[287].Close, first.Close)

	var volume float64
	for _, bar := range result.Bars[:288] {
		volume += bar.Volume
	}

	suite.InDelta(volume, first.Volume, 1e-6)
}

func (suite *ClientTestSuite) TestDownloadWithoutDailySummary() {
	params := suite.params()
	params.Start = suite.end.AddDate(0, 0, -1)

	suite.mockProvider.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", "BINANCE", 5, models.Minute, 288).DoAndReturn(suite.lastBarsAsOf(suite.end))

	result, err := suite.newClient(suite.config(), nil).Download(context.Background(), params)
	suite.Require().NoError(err)
	suite.Empty(result.SummaryPath)
	suite.NoFileExists(filepath.Join(suite.tempDir, "BTCUSDT_daily_summary_2025-01-10_to_2025-01-10.csv"))
}

func (suite *ClientTestSuite) TestNewClientWithProviderRequiresProvider() {
	_, err := NewClientWithProvider(suite.config(), nil, nil, nil)
	suite.Error(err)
	suite.True(argoerrors.HasCode(err, argoerrors.ErrCodeInvalidProvider))
}

func (suite *ClientTestSuite) TestOutputFileName() {
	start := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 20, 23, 59, 59, 0, time.UTC)

	suite.Equal("BTC.D_2025-07-16_to_2025-08-20_5m.csv", OutputFileName("BTC.D", start, end, TimespanFiveMinutes, writer.FormatCSV))
	suite.Equal("X_BTCUSD_2025-07-16_to_2025-08-20_1h.duckdb", OutputFileName("X:BTCUSD", start, end, TimespanOneHour, writer.FormatDuckDB))
	suite.Equal("a_b_c_d_e_f_g_h_i_2025-07-16_to_2025-08-20_1M.parquet", OutputFileName(`a<b>c"d/e\f|g?h*i`, start, end, TimespanOneMonth, writer.FormatParquet))

	// an exclusive midnight end names the last day it covers
	midnight := time.Date(2025, 8, 21, 0, 0, 0, 0, time.UTC)
	suite.Equal("BTC.D_2025-07-16_to_2025-08-20_5m.csv", OutputFileName("BTC.D", start, midnight, TimespanFiveMinutes, writer.FormatCSV))
	suite.Equal("X_BTCUSD_daily_summary_2025-07-16_to_2025-08-20.csv", DailySummaryFileName("X:BTCUSD", start, midnight, writer.FormatCSV))
}

func (suite *ClientTestSuite) TestDirectRequestSizes() {
	suite.Equal([]int{288, 10288, 50000, 100000, 200000, 500000, 1000000}, directRequestSizes(288))
	suite.Equal([]int{10000, 50000, 100000, 200000, 500000, 1000000}, directRequestSizes(0))
	suite.Equal([]int{40000, 50000, 100000, 200000, 500000, 1000000}, directRequestSizes(40000))
}
