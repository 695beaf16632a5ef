package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/brunocrt/crew-investment-agents/internal/events"
)

// Pipeline executes the multi-stage research workflow for one analysis.
// Implementations emit progress through the supplied callback only; they
// know nothing about persistence or subscribers.
type Pipeline interface {
	Run(ctx context.Context, tickers []string, emit func(string)) (summary string, recs []Recommendation, err error)
}

// Service owns the analysis lifecycle: creation, background pipeline
// execution, status transitions, and cancellation-on-delete.
type Service struct {
	repo     *Repository
	broker   *Broker
	sink     *Sink
	pipeline Pipeline
	bus      *events.Bus
	log      zerolog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a new session engine
func NewService(repo *Repository, broker *Broker, sink *Sink, pipeline Pipeline, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		broker:   broker,
		sink:     sink,
		pipeline: pipeline,
		bus:      bus,
		log:      log.With().Str("component", "session_engine").Logger(),
		running:  make(map[string]context.CancelFunc),
	}
}

// Submit creates a pending analysis and schedules its pipeline in the
// background. It never blocks on pipeline execution.
func (s *Service) Submit(tickers []string) (*Analysis, error) {
	a, err := s.repo.Create(tickers)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("analysis_id", a.ID).
		Strs("tickers", a.Tickers).
		Msg("Analysis submitted")

	s.emitStatus(a.ID, a.Tickers, StatusPending)

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.running[a.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runAnalysis(ctx, a.ID, a.Tickers)

	return a, nil
}

// Get fetches one analysis
func (s *Service) Get(id string) (*Analysis, error) {
	return s.repo.Get(id)
}

// List returns all analyses
func (s *Service) List() ([]*Analysis, error) {
	return s.repo.List()
}

// Logs returns persisted log lines in sequence order
func (s *Service) Logs(id string) ([]LogLine, error) {
	return s.repo.Logs(id)
}

// Subscribe attaches a live subscriber to the analysis. The returned handle
// replays all currently-persisted lines first, then live lines.
func (s *Service) Subscribe(id string) (*Subscriber, error) {
	// The backlog read runs under the broker lock, making the persisted
	// prefix and registration atomic against concurrent publishes.
	return s.broker.Subscribe(id, func() ([]LogLine, error) {
		return s.repo.Logs(id)
	})
}

// Delete removes the analysis, signals cancellation to its pipeline, and
// tears down live subscriptions. The pipeline observes cancellation at its
// next emission or stage boundary; once the record is gone any in-flight
// append fails with ErrNotFound and the sink stops forwarding.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	if cancel, ok := s.running[id]; ok {
		cancel()
	}
	s.mu.Unlock()

	if err := s.repo.Delete(id); err != nil {
		return err
	}

	s.broker.CloseTopic(id)
	s.sink.forget(id)

	s.log.Info().Str("analysis_id", id).Msg("Analysis deleted")
	if s.bus != nil {
		s.bus.Emit(events.AnalysisDeleted, "analysis", map[string]interface{}{
			"analysis_id": id,
		})
	}
	return nil
}

// Shutdown waits for in-flight pipelines to finish or the context to expire
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runAnalysis drives one pipeline run to a terminal state
func (s *Service) runAnalysis(ctx context.Context, id string, tickers []string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	log := s.log.With().Str("analysis_id", id).Logger()

	if err := s.repo.UpdateStatus(id, StatusRunning); err != nil {
		if errors.Is(err, ErrNotFound) {
			return // deleted before the pipeline started
		}
		log.Error().Err(err).Msg("Failed to mark analysis running")
		return
	}
	s.emitStatus(id, tickers, StatusRunning)

	// The emit callback is the pipeline's only output path. A sink failure
	// (deleted record or storage fault) cancels the run cooperatively.
	emit := func(chunk string) {
		if ctx.Err() != nil {
			return
		}
		if err := s.sink.Write(id, chunk); err != nil {
			s.mu.Lock()
			if cancel, ok := s.running[id]; ok {
				cancel()
			}
			s.mu.Unlock()
		}
	}

	summary, recs, err := s.pipeline.Run(ctx, tickers, emit)

	if ctx.Err() != nil {
		// Cancelled by deletion or sink abandonment. The record is either
		// gone or about to be; write nothing further.
		log.Debug().Msg("Pipeline run cancelled")
		return
	}

	if err != nil {
		log.Warn().Err(err).Msg("Pipeline failed")
		// Preserve whatever partial output the pipeline produced before the
		// failure; a failed analysis is not silent.
		if summary != "" || len(recs) > 0 {
			if serr := s.repo.SetResult(id, summary, recs); serr != nil && !errors.Is(serr, ErrNotFound) {
				log.Error().Err(serr).Msg("Failed to persist partial result")
			}
		}
		if serr := s.repo.UpdateStatus(id, StatusFailed); serr != nil && !errors.Is(serr, ErrNotFound) {
			log.Error().Err(serr).Msg("Failed to mark analysis failed")
		}
		s.emitStatus(id, tickers, StatusFailed)
		return
	}

	if serr := s.repo.SetResult(id, summary, recs); serr != nil && !errors.Is(serr, ErrNotFound) {
		log.Error().Err(serr).Msg("Failed to persist result")
		_ = s.repo.UpdateStatus(id, StatusFailed)
		s.emitStatus(id, tickers, StatusFailed)
		return
	}
	if serr := s.repo.UpdateStatus(id, StatusCompleted); serr != nil && !errors.Is(serr, ErrNotFound) {
		log.Error().Err(serr).Msg("Failed to mark analysis completed")
		return
	}

	log.Info().Int("recommendations", len(recs)).Msg("Analysis completed")
	s.emitStatus(id, tickers, StatusCompleted)
}

func (s *Service) emitStatus(id string, tickers []string, status Status) {
	if s.bus == nil {
		return
	}
	s.bus.EmitTyped("analysis", &events.AnalysisStatusData{
		AnalysisID: id,
		Status:     string(status),
		Tickers:    tickers,
		Timestamp:  time.Now(),
	})
}
