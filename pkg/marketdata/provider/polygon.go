package provider

import (
	"context"
	"slices"
	"strings"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/rxtech-lab/argo-history/internal/types"
	"github.com/rxtech-lab/argo-history/pkg/errors"
)

const (
	// polygonMaxLimit is the largest page size the aggregates endpoint accepts.
	polygonMaxLimit = 50000
	// polygonLookbackPadding widens the lookback window to cover weekends, holidays and
	// closed sessions, where the venue produces no bars.
	polygonLookbackPadding = 3
	polygonMinLookback     = 7 * 24 * time.Hour
	polygonMaxLookback     = 50 * 365 * 24 * time.Hour
)

// PolygonAggsIterator is satisfied by *iter.Iter[models.Agg].
type PolygonAggsIterator interface {
	Next() bool
	Item() models.Agg
	Err() error
}

// PolygonAPIClient lists aggregate bars.
type PolygonAPIClient interface {
	ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator
}

type polygonClientWrapper struct {
	client *polygon.Client
}

func (w *polygonClientWrapper) ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator {
	return w.client.ListAggs(ctx, params, options...)
}

type PolygonClient struct {
	apiClient PolygonAPIClient
	now       func() time.Time
}

func NewPolygonClient(apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "apiKey is required")
	}

	client := polygon.New(apiKey)

	return NewPolygonClientWithAPI(&polygonClientWrapper{client: client}), nil
}

// NewPolygonClientWithAPI creates a PolygonClient on top of an existing API client.
func NewPolygonClientWithAPI(apiClient PolygonAPIClient) *PolygonClient {
	return &PolygonClient{
		apiClient: apiClient,
		now:       time.Now,
	}
}

// WithClock replaces the clock used as "now".
func (c *PolygonClient) WithClock(now func() time.Time) *PolygonClient {
	c.now = now

	return c
}

// FetchRecent queries newest-first aggregates over a lookback window wide enough for
// barCount bars and keeps the first barCount of them.
func (c *PolygonClient) FetchRecent(ctx context.Context, symbol string, venue string, multiplier int, timespan models.Timespan, barCount int) ([]types.MarketData, error) {
	period := periodOf(multiplier, timespan)
	if period == 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported timespan for Polygon: %s", timespan)
	}

	if barCount <= 0 {
		return []types.MarketData{}, nil
	}

	ticker := PolygonTicker(symbol, venue)
	now := c.now()
	from := now.Add(-lookback(period, barCount))

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     ticker,
		Multiplier: max(multiplier, 1),
		Timespan:   timespan,
		From:       models.Millis(from),
		To:         models.Millis(now),
	}.WithOrder(models.Desc).WithLimit(min(barCount, polygonMaxLimit))

	iter := c.apiClient.ListAggs(ctx, params)

	data := make([]types.MarketData, 0, min(barCount, polygonMaxLimit))
	for len(data) < barCount && iter.Next() {
		agg := iter.Item()
		data = append(data, types.MarketData{
			Id:     "",
			Symbol: symbol,
			Time:   time.Time(agg.Timestamp).UTC(),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		})
	}

	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "error iterating polygon aggregates for %s", ticker)
	}

	slices.Reverse(data)

	return data, nil
}

// lookback returns how far back to query for barCount bars of length period, clamped to
// [polygonMinLookback, polygonMaxLookback].
func lookback(period time.Duration, barCount int) time.Duration {
	seconds := period.Seconds() * float64(barCount) * polygonLookbackPadding
	if seconds >= polygonMaxLookback.Seconds() {
		return polygonMaxLookback
	}

	return max(time.Duration(seconds*float64(time.Second)), polygonMinLookback)
}

// PolygonTicker prefixes symbol with the Polygon market marker for venue. Stock venues and
// already prefixed symbols are returned unchanged.
// example:
// PolygonTicker("BTCUSD", "CRYPTO") // "X:BTCUSD"
func PolygonTicker(symbol string, venue string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(symbol, ":") {
		return symbol
	}

	switch strings.ToUpper(strings.TrimSpace(venue)) {
	case "CRYPTO":
		return "X:" + symbol
	case "FX", "FOREX":
		return "C:" + symbol
	case "INDICES", "INDEX":
		return "I:" + symbol
	default:
		return symbol
	}
}
