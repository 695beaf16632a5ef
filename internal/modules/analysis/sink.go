package analysis

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/brunocrt/crew-investment-agents/internal/events"
)

// appendLogger is the slice of the repository the sink needs
type appendLogger interface {
	AppendLog(id string, message string) (int64, time.Time, error)
}

// Sink captures raw output chunks from a running pipeline, persists each
// line, and republishes it to live subscribers. Forwarding happens strictly
// after successful persistence, so a client never observes a line that
// failed to persist.
type Sink struct {
	repo   appendLogger
	broker *Broker
	bus    *events.Bus
	log    zerolog.Logger

	// Per-analysis locks held across persist+forward, so live delivery
	// follows sequence order even when stages emit concurrently.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewSink creates a new log sink
func NewSink(repo appendLogger, broker *Broker, bus *events.Bus, log zerolog.Logger) *Sink {
	return &Sink{
		repo:   repo,
		broker: broker,
		bus:    bus,
		log:    log.With().Str("component", "log_sink").Logger(),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Write splits the chunk into discrete lines and, for each: persists via the
// store, then forwards to the broker. Returns ErrNotFound as soon as the
// analysis record is gone, at which point no further lines are forwarded and
// the caller must abandon the run.
func (s *Sink) Write(analysisID string, chunk string) error {
	lock := s.analysisLock(analysisID)
	lock.Lock()
	defer lock.Unlock()

	for _, raw := range strings.Split(chunk, "\n") {
		msg := strings.TrimRight(raw, "\r")
		if msg == "" {
			continue
		}

		seq, ts, err := s.repo.AppendLog(analysisID, msg)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				s.log.Debug().
					Str("analysis_id", analysisID).
					Msg("Analysis deleted mid-run, abandoning log capture")
				return ErrNotFound
			}
			s.log.Error().Err(err).
				Str("analysis_id", analysisID).
				Msg("Failed to persist log line")
			return err
		}

		// Forwarded line carries the persisted timestamp, so live and
		// replayed copies are identical.
		line := LogLine{
			AnalysisID: analysisID,
			Sequence:   seq,
			Message:    msg,
			Timestamp:  ts,
		}
		s.broker.Publish(line)

		if s.bus != nil {
			s.bus.EmitTyped("analysis", &events.LogAppendedData{
				AnalysisID: analysisID,
				Sequence:   seq,
				Message:    msg,
			})
		}
	}
	return nil
}

// analysisLock returns the per-analysis emit lock, creating it on first use
func (s *Sink) analysisLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// forget drops the emit lock for a deleted analysis
func (s *Sink) forget(id string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.locks, id)
}
