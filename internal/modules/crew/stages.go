package crew

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/brunocrt/crew-investment-agents/internal/clients/marketdata"
	"github.com/brunocrt/crew-investment-agents/internal/modules/analysis"
	"github.com/brunocrt/crew-investment-agents/internal/modules/research"
)

// Stage names mirror the crew roles.
const (
	StageCapexResearcher          = "capex_researcher"
	StagePricingAnalyst           = "pricing_analyst"
	StageRotationAnalyst          = "rotation_analyst"
	StageRecommendationStrategist = "recommendation_strategist"
)

// NewInvestmentCrew wires the standard four-role workflow: capex, pricing
// and rotation research running concurrently, then the recommendation
// strategist combining their reports with exit signals and live quotes.
func NewInvestmentCrew(svc *research.Service, data marketdata.Provider, requireAll bool, log zerolog.Logger) *Crew {
	stages := []Stage{
		{Name: StageCapexResearcher, Run: capexStage(svc)},
		{Name: StagePricingAnalyst, Run: pricingStage(svc)},
		{Name: StageRotationAnalyst, Run: rotationStage(svc)},
	}
	return NewCrew(stages, StageRecommendationStrategist, strategistStage(svc, data), requireAll, log)
}

// capexStage computes capex growth per ticker. Tickers with missing data
// are skipped; the stage fails only when no ticker yields a result.
func capexStage(svc *research.Service) func(context.Context, []string, func(string)) (string, error) {
	return func(ctx context.Context, tickers []string, emit func(string)) (string, error) {
		results := make([]research.CapexGrowth, 0, len(tickers))
		for _, ticker := range tickers {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			growth, err := svc.CapexGrowth(ctx, ticker)
			if err != nil {
				emit(fmt.Sprintf("[%s] %s: no capex data (%v)", StageCapexResearcher, ticker, err))
				continue
			}
			marker := ""
			if growth.StrongSignal {
				marker = " (strong signal)"
			}
			emit(fmt.Sprintf("[%s] %s capex growth %+.1f%%%s",
				StageCapexResearcher, ticker, growth.GrowthPct*100, marker))
			results = append(results, *growth)
		}
		if len(results) == 0 {
			return "", fmt.Errorf("no capex data for any ticker")
		}
		return marshalReport(results)
	}
}

// pricingStage scans the commodity futures list for supply shock spikes
func pricingStage(svc *research.Service) func(context.Context, []string, func(string)) (string, error) {
	return func(ctx context.Context, _ []string, emit func(string)) (string, error) {
		spikes, err := svc.PriceSpikes(ctx, nil)
		if err != nil {
			return "", err
		}
		if len(spikes) == 0 {
			emit(fmt.Sprintf("[%s] no commodity price spikes detected", StagePricingAnalyst))
		}
		for _, spike := range spikes {
			emit(fmt.Sprintf("[%s] %s up %+.1f%% since %s",
				StagePricingAnalyst, spike.Ticker, spike.ChangePct*100, spike.StartDate))
		}
		return marshalReport(spikes)
	}
}

// rotationStage measures sector performance against the broad market
func rotationStage(svc *research.Service) func(context.Context, []string, func(string)) (string, error) {
	return func(ctx context.Context, _ []string, emit func(string)) (string, error) {
		sectors, err := svc.SectorRotation(ctx, research.RotationLookbackDays)
		if err != nil {
			return "", err
		}
		for _, sector := range sectors {
			if sector.Signal {
				emit(fmt.Sprintf("[%s] rotation into %s (%s): relative return %+.1f%%, up on %.0f%% of down days",
					StageRotationAnalyst, sector.Name, sector.Ticker,
					sector.RelativeReturn*100, sector.UpOnDownDaysRatio*100))
			}
		}
		return marshalReport(sectors)
	}
}

// strategistStage turns the research reports and exit signals into final
// per-ticker verdicts. Its output is the JSON document ParseResult expects.
func strategistStage(svc *research.Service, data marketdata.Provider) Synthesizer {
	return func(ctx context.Context, tickers []string, reports map[string]string, emit func(string)) (string, error) {
		sellReports, err := svc.SellSignals(ctx, tickers)
		if err != nil {
			return "", err
		}
		redFlags := make(map[string]*research.SellReport, len(sellReports))
		for i := range sellReports {
			redFlags[sellReports[i].Ticker] = &sellReports[i]
		}

		strongCapex := make(map[string]bool)
		var capexResults []research.CapexGrowth
		if raw, ok := reports[StageCapexResearcher]; ok {
			if uerr := json.Unmarshal([]byte(raw), &capexResults); uerr == nil {
				for _, r := range capexResults {
					if r.StrongSignal {
						strongCapex[r.Ticker] = true
					}
				}
			}
		}

		now := time.Now().UTC()
		recs := make([]analysis.Recommendation, 0, len(tickers))
		buys, sells := 0, 0
		for _, ticker := range tickers {
			if err := ctx.Err(); err != nil {
				return "", err
			}

			rec := analysis.Recommendation{
				Ticker:     ticker,
				Rating:     "hold",
				ReportTime: now,
			}

			if report := redFlags[ticker]; report != nil && report.RedFlag {
				rec.Rating = "sell"
				rec.Reason = sellReason(report)
				sells++
			} else if strongCapex[ticker] {
				rec.Rating = "buy"
				rec.Reason = "capital expenditure acceleration above 20% quarter over quarter"
				buys++
			} else {
				rec.Reason = "no strong signal in either direction"
			}

			if quote, qerr := data.Quote(ctx, ticker, research.SpikeWindowDays); qerr == nil {
				rec.CurrentPrice = quote.CurrentPrice
				rec.PercentChange = quote.PercentChange
			} else {
				emit(fmt.Sprintf("[%s] %s: no quote available (%v)", StageRecommendationStrategist, ticker, qerr))
			}

			emit(fmt.Sprintf("[%s] %s -> %s", StageRecommendationStrategist, ticker, rec.Rating))
			recs = append(recs, rec)
		}

		summary := buildSummary(tickers, buys, sells, capexResults, reports)
		emit(fmt.Sprintf("[%s] %s", StageRecommendationStrategist, summary))

		out, err := json.Marshal(parsedResult{Summary: summary, Recommendations: recs})
		if err != nil {
			return "", fmt.Errorf("failed to encode crew output: %w", err)
		}
		return string(out), nil
	}
}

// sellReason names the exit signals that triggered
func sellReason(report *research.SellReport) string {
	var reasons []string
	if report.Fundamental != nil && report.Fundamental.Signal {
		if report.Fundamental.CapexPeak {
			reasons = append(reasons, "declining capital expenditures")
		} else {
			reasons = append(reasons, "inventory building faster than revenue")
		}
	}
	if report.Technical != nil && report.Technical.Signal {
		if report.Technical.Overextended {
			reasons = append(reasons, "price extended far above 200-day average")
		} else {
			reasons = append(reasons, "new high on weakening momentum")
		}
	}
	if report.Distribution != nil && report.Distribution.Signal {
		reasons = append(reasons, fmt.Sprintf("%d distribution days in the past month",
			report.Distribution.DistributionDays))
	}
	return strings.Join(reasons, "; ")
}

// buildSummary composes the human-readable overview from the stage reports
func buildSummary(tickers []string, buys, sells int, capexResults []research.CapexGrowth, reports map[string]string) string {
	parts := []string{
		fmt.Sprintf("Analyzed %d tickers: %d buy, %d sell, %d hold.",
			len(tickers), buys, sells, len(tickers)-buys-sells),
	}

	var strong []string
	for _, r := range capexResults {
		if r.StrongSignal {
			strong = append(strong, r.Ticker)
		}
	}
	if len(strong) > 0 {
		parts = append(parts, fmt.Sprintf("Strong capex acceleration: %s.", strings.Join(strong, ", ")))
	}

	var spikes []research.PriceSpike
	if raw, ok := reports[StagePricingAnalyst]; ok {
		_ = json.Unmarshal([]byte(raw), &spikes)
	}
	if len(spikes) > 0 {
		names := make([]string, 0, len(spikes))
		for _, s := range spikes {
			names = append(names, fmt.Sprintf("%s (%+.1f%%)", s.Ticker, s.ChangePct*100))
		}
		parts = append(parts, fmt.Sprintf("Commodity price spikes: %s.", strings.Join(names, ", ")))
	}

	var sectors []research.SectorPerformance
	if raw, ok := reports[StageRotationAnalyst]; ok {
		_ = json.Unmarshal([]byte(raw), &sectors)
	}
	var rotating []string
	for _, s := range sectors {
		if s.Signal {
			rotating = append(rotating, s.Name)
		}
	}
	if len(rotating) > 0 {
		parts = append(parts, fmt.Sprintf("Defensive rotation into: %s.", strings.Join(rotating, ", ")))
	}

	return strings.Join(parts, " ")
}

func marshalReport(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode stage report: %w", err)
	}
	return string(b), nil
}
