package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-history/internal/types"
)

// ProviderType defines the type of market data provider.
type ProviderType string

const (
	ProviderPolygon ProviderType = "polygon"
	ProviderBinance ProviderType = "binance"
)

type Provider interface {
	// FetchRecent returns up to barCount of the most recent bars for symbol, counted back
	// from the moment of the call, oldest first. There is no way to ask for bars ending at
	// an earlier time; callers that want a window must filter the result themselves.
	// example:
	// FetchRecent(ctx, "BTCUSDT", "BINANCE", 5, models.Minute, 1000)
	FetchRecent(ctx context.Context, symbol string, venue string, multiplier int, timespan models.Timespan, barCount int) ([]types.MarketData, error)
}

// NewMarketDataProvider creates a new market data provider based on the provider type.
func NewMarketDataProvider(providerType ProviderType, config any) (Provider, error) {
	switch providerType {
	case ProviderBinance:
		return NewBinanceClient()
	case ProviderPolygon:
		apiKey, ok := config.(string)
		if !ok {
			return nil, fmt.Errorf("polygon provider requires API key string config")
		}

		return NewPolygonClient(apiKey)
	default:
		return nil, fmt.Errorf("unsupported market data provider: %s", providerType)
	}
}

// periodOf returns the length of one bar, using 7 and 30 days for weeks and months.
func periodOf(multiplier int, timespan models.Timespan) time.Duration {
	var unit time.Duration

	switch timespan {
	case models.Second:
		unit = time.Second
	case models.Minute:
		unit = time.Minute
	case models.Hour:
		unit = time.Hour
	case models.Day:
		unit = 24 * time.Hour
	case models.Week:
		unit = 7 * 24 * time.Hour
	case models.Month:
		unit = 30 * 24 * time.Hour
	case models.Quarter:
		unit = 91 * 24 * time.Hour
	case models.Year:
		unit = 365 * 24 * time.Hour
	default:
		return 0
	}

	if multiplier < 1 {
		multiplier = 1
	}

	return time.Duration(multiplier) * unit
}
