package types

import "time"

// MarketData is one OHLCV bar. The price and volume fields are carried
// through the download pipeline untouched; only Time is interpreted.
type MarketData struct {
	Id     string    `json:"id" csv:"-"`
	Symbol string    `json:"symbol" csv:"-"`
	Time   time.Time `json:"time" csv:"datetime"`
	Open   float64   `json:"open" csv:"open"`
	High   float64   `json:"high" csv:"high"`
	Low    float64   `json:"low" csv:"low"`
	Close  float64   `json:"close" csv:"close"`
	Volume float64   `json:"volume" csv:"volume"`
}

// Within reports whether the bar's timestamp lies in the half-open interval [start, end).
func (m MarketData) Within(start, end time.Time) bool {
	return !m.Time.Before(start) && m.Time.Before(end)
}

// NaNCount reports how many of the OHLCV fields are NaN.
func (m MarketData) NaNCount() int {
	count := 0

	for _, v := range []float64{m.Open, m.High, m.Low, m.Close, m.Volume} {
		if v != v {
			count++
		}
	}

	return count
}
