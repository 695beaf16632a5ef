// Package marketdata provides access to historical prices and quarterly
// fundamentals for the research services. Data is fetched from an external
// market data API, cached persistently, and backed by optional local
// per-symbol history databases.
package marketdata

import "context"

// Candle represents one daily OHLCV price point
type Candle struct {
	Date   string  `json:"date" msgpack:"date"`
	Open   float64 `json:"open" msgpack:"open"`
	High   float64 `json:"high" msgpack:"high"`
	Low    float64 `json:"low" msgpack:"low"`
	Close  float64 `json:"close" msgpack:"close"`
	Volume int64   `json:"volume" msgpack:"volume"`
}

// Quarter represents one quarterly reporting period. Values are in the
// reporting currency; Capex is stored as a positive magnitude.
type Quarter struct {
	Period      string  `json:"period" msgpack:"period"`
	Revenue     float64 `json:"revenue" msgpack:"revenue"`
	Inventory   float64 `json:"inventory" msgpack:"inventory"`
	Receivables float64 `json:"receivables" msgpack:"receivables"`
	Capex       float64 `json:"capex" msgpack:"capex"`
}

// Quote is a point-in-time price summary: the latest close and the
// fractional change against the close of the lookback window start.
type Quote struct {
	CurrentPrice  float64 `json:"current_price"`
	PercentChange float64 `json:"percent_change"`
}

// Provider is the read surface the research services depend on. Candles and
// quarters are returned newest-first.
type Provider interface {
	DailyCandles(ctx context.Context, symbol string, days int) ([]Candle, error)
	QuarterlyFundamentals(ctx context.Context, symbol string) ([]Quarter, error)
	Quote(ctx context.Context, symbol string, windowDays int) (*Quote, error)
}
