package research

import (
	"context"
	"fmt"
	"sort"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/brunocrt/crew-investment-agents/internal/clients/marketdata"
)

// Service computes the research signals from market data
type Service struct {
	data marketdata.Provider
	log  zerolog.Logger
}

// NewService creates a new research service
func NewService(data marketdata.Provider, log zerolog.Logger) *Service {
	return &Service{
		data: data,
		log:  log.With().Str("component", "research").Logger(),
	}
}

// CapexGrowth computes the change in capital expenditures over the two most
// recent reported quarters. A rise of 20% or more is a strong leading
// indicator for downstream investment.
func (s *Service) CapexGrowth(ctx context.Context, ticker string) (*CapexGrowth, error) {
	quarters, err := s.data.QuarterlyFundamentals(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if len(quarters) < 2 {
		return nil, fmt.Errorf("not enough capex history for %s", ticker)
	}

	latest, prev := quarters[0], quarters[1]
	if prev.Capex == 0 {
		return nil, fmt.Errorf("zero previous capex for %s", ticker)
	}

	growth := (latest.Capex - prev.Capex) / abs(prev.Capex)

	return &CapexGrowth{
		Ticker:         ticker,
		LatestPeriod:   latest.Period,
		PreviousPeriod: prev.Period,
		LatestCapex:    latest.Capex,
		PreviousCapex:  prev.Capex,
		GrowthPct:      growth,
		StrongSignal:   growth >= CapexStrongGrowth,
	}, nil
}

// PriceSpikes identifies instruments whose price rose more than the spike
// threshold over the lookback window. With no tickers given, the default
// commodity futures list is scanned. Instruments with missing data are
// skipped rather than failing the scan.
func (s *Service) PriceSpikes(ctx context.Context, tickers []string) ([]PriceSpike, error) {
	if len(tickers) == 0 {
		tickers = DefaultCommodityTickers
	}

	var spikes []PriceSpike
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return spikes, err
		}

		candles, err := s.data.DailyCandles(ctx, ticker, SpikeWindowDays+5)
		if err != nil || len(candles) == 0 {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("No price data for spike scan")
			continue
		}

		// Newest first: index 0 is the current close, index windowDays is
		// the baseline. Thin series fall back to the oldest bar.
		end := candles[0]
		start := candles[len(candles)-1]
		if len(candles) > SpikeWindowDays {
			start = candles[SpikeWindowDays]
		}
		if start.Close == 0 {
			continue
		}

		change := (end.Close - start.Close) / start.Close
		if change >= SpikeThreshold {
			spikes = append(spikes, PriceSpike{
				Ticker:     ticker,
				StartDate:  start.Date,
				EndDate:    end.Date,
				StartPrice: start.Close,
				EndPrice:   end.Close,
				ChangePct:  change,
			})
		}
	}
	return spikes, nil
}

// SectorRotation measures trailing sector ETF performance against the broad
// market and the fraction of market down days on which each sector closed
// up. Defensive outperformance on drawdown days suggests institutional
// capital shifting into the sector. Results are sorted by relative return,
// best first.
func (s *Service) SectorRotation(ctx context.Context, lookbackDays int) ([]SectorPerformance, error) {
	if lookbackDays <= 0 {
		lookbackDays = RotationLookbackDays
	}

	marketCloses, err := s.closesByDate(ctx, MarketTicker, lookbackDays+5)
	if err != nil {
		return nil, fmt.Errorf("failed to load market benchmark %s: %w", MarketTicker, err)
	}

	type sectorSeries struct {
		sector Sector
		closes map[string]float64
	}
	var loaded []sectorSeries
	for _, sector := range DefaultSectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		closes, err := s.closesByDate(ctx, sector.Ticker, lookbackDays+5)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", sector.Ticker).Msg("Skipping sector, no data")
			continue
		}
		loaded = append(loaded, sectorSeries{sector: sector, closes: closes})
	}
	if len(loaded) == 0 {
		return nil, fmt.Errorf("no sector data available")
	}

	// Sessions present across every series, so returns line up day by day.
	dates := make([]string, 0, len(marketCloses))
	for date := range marketCloses {
		shared := true
		for _, ss := range loaded {
			if _, ok := ss.closes[date]; !ok {
				shared = false
				break
			}
		}
		if shared {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	if len(dates) < 2 {
		return nil, fmt.Errorf("insufficient overlapping history for rotation analysis")
	}

	marketSeries := orderedCloses(marketCloses, dates)
	marketReturns := dailyReturns(marketSeries)
	marketReturn := marketSeries[len(marketSeries)-1]/marketSeries[0] - 1

	results := make([]SectorPerformance, 0, len(loaded))
	for _, ss := range loaded {
		series := orderedCloses(ss.closes, dates)
		returns := dailyReturns(series)
		trailing := series[len(series)-1]/series[0] - 1
		relative := trailing - marketReturn

		downDays, upOnDown := 0, 0
		for i, mr := range marketReturns {
			if mr < 0 {
				downDays++
				if returns[i] > 0 {
					upOnDown++
				}
			}
		}
		ratio := 0.0
		if downDays > 0 {
			ratio = float64(upOnDown) / float64(downDays)
		}

		results = append(results, SectorPerformance{
			Ticker:            ss.sector.Ticker,
			Name:              ss.sector.Name,
			TrailingReturn:    trailing,
			MarketReturn:      marketReturn,
			RelativeReturn:    relative,
			UpOnDownDaysRatio: ratio,
			Signal:            relative > 0 && ratio >= DefensiveRatioFloor,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].RelativeReturn > results[j].RelativeReturn
	})
	return results, nil
}

// SellSignals aggregates fundamental, technical and distribution exit
// signals for each ticker. A section with unavailable data is omitted from
// the report rather than failing the whole scan.
func (s *Service) SellSignals(ctx context.Context, tickers []string) ([]SellReport, error) {
	reports := make([]SellReport, 0, len(tickers))
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		report := SellReport{Ticker: ticker}

		if fundamental, err := s.fundamentalPeak(ctx, ticker); err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Fundamental analysis unavailable")
		} else {
			report.Fundamental = fundamental
		}

		if technical, err := s.technicalExhaustion(ctx, ticker); err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Technical analysis unavailable")
		} else {
			report.Technical = technical
		}

		if distribution, err := s.distributionActivity(ctx, ticker); err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Distribution analysis unavailable")
		} else {
			report.Distribution = distribution
		}

		report.RedFlag = (report.Fundamental != nil && report.Fundamental.Signal) ||
			(report.Technical != nil && report.Technical.Signal) ||
			(report.Distribution != nil && report.Distribution.Signal)

		reports = append(reports, report)
	}
	return reports, nil
}

// fundamentalPeak flags demand rolling over: inventory growth outpacing
// revenue growth while receivables growth slows, or capital spending
// turning down.
func (s *Service) fundamentalPeak(ctx context.Context, ticker string) (*FundamentalPeak, error) {
	quarters, err := s.data.QuarterlyFundamentals(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if len(quarters) < 2 {
		return nil, fmt.Errorf("not enough history for fundamental analysis on %s", ticker)
	}

	latest, prev := quarters[0], quarters[1]
	if prev.Revenue == 0 || prev.Inventory == 0 || prev.Receivables == 0 {
		return nil, fmt.Errorf("incomplete prior quarter for %s", ticker)
	}

	revGrowth := (latest.Revenue - prev.Revenue) / abs(prev.Revenue)
	invGrowth := (latest.Inventory - prev.Inventory) / abs(prev.Inventory)
	arGrowth := (latest.Receivables - prev.Receivables) / abs(prev.Receivables)

	signal := (invGrowth-revGrowth) >= InventoryOutpaceFloor && arGrowth < revGrowth

	var capexGrowth float64
	capexPeak := false
	if prev.Capex != 0 {
		capexGrowth = (latest.Capex - prev.Capex) / abs(prev.Capex)
		capexPeak = capexGrowth < 0
	}
	if capexPeak {
		signal = true
	}

	return &FundamentalPeak{
		RevenueGrowthPct:     revGrowth,
		InventoryGrowthPct:   invGrowth,
		ReceivablesGrowthPct: arGrowth,
		CapexGrowthPct:       capexGrowth,
		CapexPeak:            capexPeak,
		Signal:               signal,
	}, nil
}

// technicalExhaustion flags price stretched far above the 200-day SMA, or a
// new 30-day high made on weakening RSI.
func (s *Service) technicalExhaustion(ctx context.Context, ticker string) (*TechnicalExhaustion, error) {
	candles, err := s.data.DailyCandles(ctx, ticker, 400)
	if err != nil {
		return nil, err
	}
	if len(candles) < SMAPeriod {
		return nil, fmt.Errorf("not enough data for %d-day SMA on %s", SMAPeriod, ticker)
	}

	closes := closesAscending(candles)
	n := len(closes)

	sma := talib.Sma(closes, SMAPeriod)
	sma200 := sma[n-1]
	current := closes[n-1]
	if sma200 == 0 {
		return nil, fmt.Errorf("degenerate SMA for %s", ticker)
	}
	extension := (current - sma200) / sma200

	rsi := talib.Rsi(closes, RSIPeriod)
	currentRSI := rsi[n-1]

	newHigh := false
	rsiDivergence := false
	priorRSIMax := 0.0
	if n >= HighWindowDays {
		recentHigh := maxOf(closes[n-HighWindowDays:])
		newHigh = current >= recentHigh
		// Max RSI in the window excluding the current session.
		priorRSIMax = maxOf(rsi[n-HighWindowDays : n-1])
		rsiDivergence = newHigh && currentRSI < priorRSIMax
	}

	overextended := extension >= OverextensionFloor

	return &TechnicalExhaustion{
		CurrentPrice:      current,
		SMA200:            sma200,
		ExtensionPct:      extension,
		CurrentRSI:        currentRSI,
		PriorWindowRSIMax: priorRSIMax,
		NewHigh:           newHigh,
		RSIDivergence:     rsiDivergence,
		Overextended:      overextended,
		Signal:            overextended || rsiDivergence,
	}, nil
}

// distributionActivity counts sessions in the past month where price fell on
// volume above both the prior session and the 60-day average.
func (s *Service) distributionActivity(ctx context.Context, ticker string) (*DistributionActivity, error) {
	candles, err := s.data.DailyCandles(ctx, ticker, 90)
	if err != nil {
		return nil, err
	}
	if len(candles) < 2 {
		return nil, fmt.Errorf("not enough history for distribution analysis on %s", ticker)
	}

	closes := closesAscending(candles)
	volumes := volumesAscending(candles)
	n := len(closes)

	avgWindow := volumes
	if n >= VolumeAvgWindow {
		avgWindow = volumes[n-VolumeAvgWindow:]
	}
	avgVolume := stat.Mean(avgWindow, nil)

	count := 0
	for i := 1; i <= DistributionWindow && i < n; i++ {
		cur, prev := n-i, n-i-1
		if closes[cur] < closes[prev] &&
			volumes[cur] > volumes[prev] &&
			volumes[cur] > avgVolume {
			count++
		}
	}

	return &DistributionActivity{
		DistributionDays: count,
		AvgVolume60:      avgVolume,
		Signal:           count >= DistributionFloor,
	}, nil
}

func (s *Service) closesByDate(ctx context.Context, ticker string, days int) (map[string]float64, error) {
	candles, err := s.data.DailyCandles(ctx, ticker, days)
	if err != nil {
		return nil, err
	}
	closes := make(map[string]float64, len(candles))
	for _, c := range candles {
		closes[c.Date] = c.Close
	}
	return closes, nil
}

func orderedCloses(byDate map[string]float64, dates []string) []float64 {
	out := make([]float64, len(dates))
	for i, date := range dates {
		out[i] = byDate[date]
	}
	return out
}

func dailyReturns(closes []float64) []float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	return returns
}

func closesAscending(candles []marketdata.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[len(candles)-1-i] = c.Close
	}
	return out
}

func volumesAscending(candles []marketdata.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[len(candles)-1-i] = float64(c.Volume)
	}
	return out
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
