package provider

import (
	"context"
	"fmt"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-history/internal/types"
	"github.com/rxtech-lab/argo-history/pkg/errors"
)

// binanceMaxLimit is the largest page the klines endpoint returns.
const binanceMaxLimit = 1000

// BinanceKlinesService is the subset of the klines request builder the client uses.
type BinanceKlinesService interface {
	Symbol(symbol string) BinanceKlinesService
	Interval(interval string) BinanceKlinesService
	EndTime(endTime int64) BinanceKlinesService
	Limit(limit int) BinanceKlinesService
	Do(ctx context.Context) ([]*binance.Kline, error)
}

// BinanceAPIClient creates klines requests.
type BinanceAPIClient interface {
	NewKlinesService() BinanceKlinesService
}

type binanceClientWrapper struct {
	client *binance.Client
}

func (w *binanceClientWrapper) NewKlinesService() BinanceKlinesService {
	return &binanceKlinesServiceWrapper{service: w.client.NewKlinesService()}
}

type binanceKlinesServiceWrapper struct {
	service *binance.KlinesService
}

func (w *binanceKlinesServiceWrapper) Symbol(symbol string) BinanceKlinesService {
	w.service.Symbol(symbol)

	return w
}

func (w *binanceKlinesServiceWrapper) Interval(interval string) BinanceKlinesService {
	w.service.Interval(interval)

	return w
}

func (w *binanceKlinesServiceWrapper) EndTime(endTime int64) BinanceKlinesService {
	w.service.EndTime(endTime)

	return w
}

func (w *binanceKlinesServiceWrapper) Limit(limit int) BinanceKlinesService {
	w.service.Limit(limit)

	return w
}

func (w *binanceKlinesServiceWrapper) Do(ctx context.Context) ([]*binance.Kline, error) {
	return w.service.Do(ctx)
}

type BinanceClient struct {
	apiClient BinanceAPIClient
	now       func() time.Time
}

// NewBinanceClient creates a client for the public Binance market data API.
// No credentials are needed.
func NewBinanceClient() (Provider, error) {
	client := binance.NewClient("", "")

	return NewBinanceClientWithAPI(&binanceClientWrapper{client: client}), nil
}

// NewBinanceClientWithAPI creates a BinanceClient on top of an existing API client.
func NewBinanceClientWithAPI(apiClient BinanceAPIClient) *BinanceClient {
	return &BinanceClient{
		apiClient: apiClient,
		now:       time.Now,
	}
}

// WithClock replaces the clock used as "now".
func (c *BinanceClient) WithClock(now func() time.Time) *BinanceClient {
	c.now = now

	return c
}

// FetchRecent pages backward from now with EndTime+Limit until barCount klines are
// collected or Binance has no older data. The venue is ignored: every symbol trades on
// Binance itself.
func (c *BinanceClient) FetchRecent(ctx context.Context, symbol string, _ string, multiplier int, timespan models.Timespan, barCount int) ([]types.MarketData, error) {
	interval, err := convertTimespanToBinanceInterval(timespan, multiplier)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidTimespan, "failed to convert timespan to Binance interval", err)
	}

	if barCount <= 0 {
		return []types.MarketData{}, nil
	}

	endTime := c.now().UnixMilli()
	remaining := barCount

	// pages are collected newest first
	var pages [][]*binance.Kline

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		limit := min(remaining, binanceMaxLimit)

		klines, err := c.apiClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			EndTime(endTime).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch klines for %s from Binance", symbol)
		}

		if len(klines) == 0 {
			break
		}

		if len(klines) > remaining {
			klines = klines[len(klines)-remaining:]
		}

		pages = append(pages, klines)
		remaining -= len(klines)

		// A short page means there is no older history.
		if len(klines) < limit {
			break
		}

		endTime = klines[0].OpenTime - 1
	}

	data := make([]types.MarketData, 0, barCount-remaining)
	for i := len(pages) - 1; i >= 0; i-- {
		data = append(data, convertKlines(symbol, pages[i])...)
	}

	return data, nil
}

// convertKlines converts Binance klines to MarketData. Prices arrive as decimal strings;
// unparsable values become 0.
func convertKlines(symbol string, klines []*binance.Kline) []types.MarketData {
	data := make([]types.MarketData, 0, len(klines))

	for _, k := range klines {
		data = append(data, types.MarketData{
			Id:     "",
			Symbol: symbol,
			Time:   time.UnixMilli(k.OpenTime).UTC(), // Using OpenTime as the timestamp for the bar
			Open:   parseDecimal(k.Open),
			High:   parseDecimal(k.High),
			Low:    parseDecimal(k.Low),
			Close:  parseDecimal(k.Close),
			Volume: parseDecimal(k.Volume),
		})
	}

	return data
}

func parseDecimal(value string) float64 {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0
	}

	return d.InexactFloat64()
}

// convertTimespanToBinanceInterval converts the polygon timespan and multiplier to a Binance interval string.
// Binance intervals: 1m, 3m, 5m, 15m, 30m, 1h, 2h, 4h, 6h, 8h, 12h, 1d, 3d, 1w, 1M
// Ref: https://binance-docs.github.io/apidocs/spot/en/#kline-candlestick-data
func convertTimespanToBinanceInterval(timespan models.Timespan, multiplier int) (string, error) {
	switch timespan {
	case models.Minute:
		switch multiplier {
		case 1, 3, 5, 15, 30:
			return fmt.Sprintf("%dm", multiplier), nil
		}

		return "", fmt.Errorf("unsupported minute multiplier for Binance: %d", multiplier)
	case models.Hour:
		switch multiplier {
		case 1, 2, 4, 6, 8, 12:
			return fmt.Sprintf("%dh", multiplier), nil
		}

		return "", fmt.Errorf("unsupported hourly multiplier for Binance: %d", multiplier)
	case models.Day:
		if multiplier == 1 || multiplier == 3 {
			return fmt.Sprintf("%dd", multiplier), nil
		}

		return "", fmt.Errorf("unsupported daily multiplier for Binance: %d", multiplier)
	case models.Week:
		if multiplier == 1 {
			return "1w", nil
		}

		return "", fmt.Errorf("unsupported weekly multiplier for Binance: %d", multiplier)
	case models.Month:
		if multiplier == 1 {
			return "1M", nil
		}

		return "", fmt.Errorf("unsupported monthly multiplier for Binance: %d", multiplier)
	default:
		return "", fmt.Errorf("unsupported timespan for Binance: %s", timespan)
	}
}
