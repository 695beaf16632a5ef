package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"time"
)

// StaticProvider generates deterministic synthetic market data. It backs
// development mode and tests so the pipeline runs without network access;
// the same symbol always produces the same series.
type StaticProvider struct{}

// NewStaticProvider creates a synthetic data provider
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// DailyCandles generates a deterministic price walk, newest first
func (p *StaticProvider) DailyCandles(_ context.Context, symbol string, days int) ([]Candle, error) {
	seed := symbolSeed(symbol)
	base := 40.0 + float64(seed%120)
	drift := 0.0008 * float64(int(seed%7)-3)

	today := time.Now().UTC().Truncate(24 * time.Hour)

	candles := make([]Candle, 0, days)
	for i := 0; i < days; i++ {
		// i sessions back from today
		age := float64(days - 1 - i)
		wave := math.Sin(float64(seed%13)+age/9.0) * 0.02
		close := base * (1 + drift*age + wave)
		open := close * 0.995
		high := close * 1.01
		low := close * 0.99
		volume := int64(1_000_000 + (seed+uint64(i)*31)%500_000)

		candles = append(candles, Candle{
			Date:   today.AddDate(0, 0, -i).Format("2006-01-02"),
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(close),
			Volume: volume,
		})
	}
	return candles, nil
}

// QuarterlyFundamentals generates eight synthetic quarters, newest first
func (p *StaticProvider) QuarterlyFundamentals(_ context.Context, symbol string) ([]Quarter, error) {
	seed := symbolSeed(symbol)
	revenue := 1e9 * (1 + float64(seed%50)/10)
	growth := 0.02 + float64(seed%9)/100

	quarters := make([]Quarter, 0, 8)
	now := time.Now().UTC()
	for i := 0; i < 8; i++ {
		factor := math.Pow(1+growth, -float64(i))
		q := now.AddDate(0, -3*i, 0)
		quarters = append(quarters, Quarter{
			Period:      q.Format("2006-01"),
			Revenue:     revenue * factor,
			Inventory:   revenue * 0.3 * factor,
			Receivables: revenue * 0.2 * factor,
			Capex:       revenue * 0.1 * factor,
		})
	}
	return quarters, nil
}

// Quote derives a quote from the synthetic candle series
func (p *StaticProvider) Quote(ctx context.Context, symbol string, windowDays int) (*Quote, error) {
	candles, err := p.DailyCandles(ctx, symbol, windowDays+5)
	if err != nil {
		return nil, err
	}
	return QuoteFromCandles(candles, windowDays)
}

func symbolSeed(symbol string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return h.Sum64()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
