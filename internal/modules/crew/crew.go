// Package crew orchestrates the multi-stage research workflow: concurrent
// research stages followed by a synthesis stage that turns their reports
// into per-ticker recommendations.
package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/brunocrt/crew-investment-agents/internal/modules/analysis"
	"github.com/brunocrt/crew-investment-agents/internal/modules/research"
)

// Stage is one research step. It reports progress through emit and returns
// its findings as a JSON document for the synthesis stage to consume.
type Stage struct {
	Name string
	Run  func(ctx context.Context, tickers []string, emit func(string)) (string, error)
}

// Synthesizer produces the final crew output from the research reports.
// The returned text is parsed by ParseResult into summary and
// recommendations.
type Synthesizer func(ctx context.Context, tickers []string, reports map[string]string, emit func(string)) (string, error)

// Crew runs the research stages concurrently, joins, then synthesizes.
// Stage failures are collected rather than cancelling siblings: a started
// stage always runs to completion unless the whole analysis is cancelled.
type Crew struct {
	stages     []Stage
	synth      Synthesizer
	synthName  string
	requireAll bool
	log        zerolog.Logger
}

// NewCrew assembles a crew from explicit stages. requireAll turns any stage
// failure into a run failure; otherwise one successful research stage is
// enough to synthesize a (degraded) result.
func NewCrew(stages []Stage, synthName string, synth Synthesizer, requireAll bool, log zerolog.Logger) *Crew {
	return &Crew{
		stages:     stages,
		synth:      synth,
		synthName:  synthName,
		requireAll: requireAll,
		log:        log.With().Str("component", "crew").Logger(),
	}
}

// Run executes the workflow for one analysis. It implements
// analysis.Pipeline.
func (c *Crew) Run(ctx context.Context, tickers []string, emit func(string)) (string, []analysis.Recommendation, error) {
	if len(tickers) == 0 {
		// Monitoring mode: scan the curated candidate watchlist.
		tickers = research.DefaultCandidateTickers
		emit(fmt.Sprintf("No tickers provided, monitoring %d default candidates", len(tickers)))
	}
	emit(fmt.Sprintf("Starting investment crew for: %s", strings.Join(tickers, ", ")))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		reports = make(map[string]string, len(c.stages))
		errs    []error
	)

	for _, stage := range c.stages {
		stage := stage
		wg.Add(1)
		go func() {
			defer wg.Done()
			emit(fmt.Sprintf("[%s] stage started", stage.Name))

			report, err := stage.Run(ctx, tickers, emit)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", stage.Name, err))
				emit(fmt.Sprintf("[%s] stage failed: %v", stage.Name, err))
				return
			}
			reports[stage.Name] = report
			emit(fmt.Sprintf("[%s] stage complete", stage.Name))
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	if len(reports) == 0 {
		return "", nil, fmt.Errorf("%w: all research stages failed: %v",
			analysis.ErrStageFailure, errors.Join(errs...))
	}

	emit(fmt.Sprintf("[%s] stage started", c.synthName))
	raw, err := c.synth(ctx, tickers, reports, emit)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		return "", nil, fmt.Errorf("%w: %s: %v", analysis.ErrStageFailure, c.synthName, err)
	}
	emit(fmt.Sprintf("[%s] stage complete", c.synthName))

	summary, recs := ParseResult(raw)

	if len(errs) > 0 {
		if c.requireAll {
			// Partial output travels with the error so it can be persisted.
			return summary, recs, fmt.Errorf("%w: %v", analysis.ErrStageFailure, errors.Join(errs...))
		}
		emit(fmt.Sprintf("Completed with %d of %d research stages", len(reports), len(c.stages)))
		c.log.Warn().Int("failed_stages", len(errs)).Msg("Crew completed degraded")
	}

	return summary, recs, nil
}
