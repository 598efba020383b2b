package marketdata

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rxtech-lab/argo-history/pkg/errors"
	"github.com/rxtech-lab/argo-history/pkg/marketdata/writer"
)

// configDateLayouts are the accepted date formats, most specific first.
var configDateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// AlternativeConfig is a fallback symbol in a JSON download configuration.
type AlternativeConfig struct {
	Symbol string `json:"symbol" jsonschema:"title=Symbol,description=Fallback symbol tried when the main symbol has no data,required" validate:"required"`
	Venue  string `json:"venue,omitempty" jsonschema:"title=Venue,description=Venue of the fallback symbol"`
}

// BaseDownloadConfig contains common fields for all download configurations.
type BaseDownloadConfig struct {
	Symbol          string              `json:"symbol" jsonschema:"title=Symbol,description=The symbol to download bars for (e.g. SPY or BTCUSDT),required" validate:"required"`
	Venue           string              `json:"venue,omitempty" jsonschema:"title=Venue,description=Exchange or market of the symbol (e.g. BINANCE or CRYPTO)"`
	StartDate       string              `json:"startDate" jsonschema:"title=Start Date,description=Start of the range (inclusive),required" validate:"required"`
	EndDate         string              `json:"endDate" jsonschema:"title=End Date,description=End of the range (exclusive),required" validate:"required"`
	Interval        string              `json:"interval" jsonschema:"title=Interval,description=Bar interval,required,enum=1m,enum=3m,enum=5m,enum=15m,enum=30m,enum=1h,enum=4h,enum=1d,enum=1w,enum=1M" validate:"required,oneof=1m 3m 5m 15m 30m 1h 4h 1d 1w 1M"`
	MaxBars         int                 `json:"maxBars,omitempty" jsonschema:"title=Max Bars,description=Maximum bars per request,minimum=1,default=20000" validate:"omitempty,min=1"`
	Mode            string              `json:"mode,omitempty" jsonschema:"title=Mode,description=Download mode,enum=chunked,enum=direct,default=chunked" validate:"omitempty,oneof=chunked direct"`
	AdjustTimezone  bool                `json:"adjustTimezone,omitempty" jsonschema:"title=Adjust Timezone,description=Label timestamps with the source timezone"`
	ConvertTimezone bool                `json:"convertTimezone,omitempty" jsonschema:"title=Convert Timezone,description=Convert labeled timestamps to UTC"`
	SourceTimezone  string              `json:"sourceTimezone,omitempty" jsonschema:"title=Source Timezone,description=IANA zone the provider wall clocks are in,default=America/Sao_Paulo"`
	Alternatives    []AlternativeConfig `json:"alternatives,omitempty" jsonschema:"title=Alternatives,description=Symbols tried in order when the main symbol has no data" validate:"dive"`
	DailySummary    bool                `json:"dailySummary,omitempty" jsonschema:"title=Daily Summary,description=Also write the bars resampled to one bar per day"`
}

// PolygonDownloadConfig contains configuration for downloading from Polygon.io.
type PolygonDownloadConfig struct {
	BaseDownloadConfig

	ApiKey string `json:"apiKey" jsonschema:"title=API Key,description=Polygon.io API key for authentication,required" validate:"required"`
}

// BinanceDownloadConfig contains configuration for downloading from Binance.
// Binance public market data API does not require authentication.
type BinanceDownloadConfig struct {
	BaseDownloadConfig
}

// Validate validates the BaseDownloadConfig fields.
func (c *BaseDownloadConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	start, err := parseConfigDate(c.StartDate)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid startDate format", err)
	}

	end, err := parseConfigDate(c.EndDate)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid endDate format", err)
	}

	if err := (TimeRange{Start: start, End: end}).Validate(); err != nil {
		return err
	}

	if c.ConvertTimezone && !c.AdjustTimezone {
		return errors.New(errors.ErrCodeInvalidConfiguration, "convertTimezone requires adjustTimezone")
	}

	if c.SourceTimezone != "" {
		if _, err := LoadLocation(c.SourceTimezone); err != nil {
			return err
		}
	}

	return nil
}

// Validate validates the PolygonDownloadConfig.
func (c *PolygonDownloadConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	return c.BaseDownloadConfig.Validate()
}

// Validate validates the BinanceDownloadConfig.
func (c *BinanceDownloadConfig) Validate() error {
	return c.BaseDownloadConfig.Validate()
}

// ToDownloadParams converts a BaseDownloadConfig to DownloadParams.
func (c *BaseDownloadConfig) ToDownloadParams() (DownloadParams, error) {
	start, err := parseConfigDate(c.StartDate)
	if err != nil {
		return DownloadParams{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse startDate", err)
	}

	end, err := parseConfigDate(c.EndDate)
	if err != nil {
		return DownloadParams{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse endDate", err)
	}

	timespan, err := ParseTimespan(c.Interval)
	if err != nil {
		return DownloadParams{}, err
	}

	tz := TimezoneOptions{Adjust: c.AdjustTimezone, Convert: c.ConvertTimezone}
	if c.SourceTimezone != "" {
		tz.Source, err = LoadLocation(c.SourceTimezone)
		if err != nil {
			return DownloadParams{}, err
		}
	}

	alternatives := make([]Alternative, 0, len(c.Alternatives))
	for _, alt := range c.Alternatives {
		alternatives = append(alternatives, Alternative{Symbol: alt.Symbol, Venue: alt.Venue})
	}

	return DownloadParams{
		Symbol:       c.Symbol,
		Venue:        c.Venue,
		Timespan:     timespan,
		Start:        start,
		End:          end,
		MaxBars:      c.MaxBars,
		Mode:         DownloadMode(c.Mode),
		Timezone:     tz,
		Alternatives: alternatives,
		DailySummary: c.DailySummary,
	}, nil
}

// ToClientConfig converts a PolygonDownloadConfig to ClientConfig.
func (c *PolygonDownloadConfig) ToClientConfig(dataPath string, format writer.Format) ClientConfig {
	return ClientConfig{
		ProviderType:  ProviderPolygon,
		WriterType:    format,
		DataPath:      dataPath,
		PolygonApiKey: c.ApiKey,
		MaxBars:       c.MaxBars,
	}
}

// ToClientConfig converts a BinanceDownloadConfig to ClientConfig.
func (c *BinanceDownloadConfig) ToClientConfig(dataPath string, format writer.Format) ClientConfig {
	return ClientConfig{
		ProviderType:  ProviderBinance,
		WriterType:    format,
		DataPath:      dataPath,
		PolygonApiKey: "",
		MaxBars:       c.MaxBars,
	}
}

// ParsePolygonConfig parses JSON into a PolygonDownloadConfig.
func ParsePolygonConfig(jsonConfig string) (*PolygonDownloadConfig, error) {
	var config PolygonDownloadConfig
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse JSON config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ParseBinanceConfig parses JSON into a BinanceDownloadConfig.
func ParseBinanceConfig(jsonConfig string) (*BinanceDownloadConfig, error) {
	var config BinanceDownloadConfig
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse JSON config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// parseConfigDate accepts RFC3339 and plain dates. Dates without a zone are UTC.
func parseConfigDate(value string) (time.Time, error) {
	var lastErr error

	for _, layout := range configDateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}

		lastErr = err
	}

	return time.Time{}, lastErr
}
