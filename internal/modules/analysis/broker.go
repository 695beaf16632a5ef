package analysis

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultSubscriberBuffer is the per-subscriber live-tail buffer. A
// subscriber whose buffer fills is dropped rather than stalling the
// publisher; unbounded buffering would grow without limit under a stalled
// client.
const DefaultSubscriberBuffer = 256

// Subscriber is a transient handle bound to one analysis. It owns nothing
// beyond its delivery channel; the channel is closed when the subscriber is
// dropped, unsubscribed, or the analysis is deleted.
type Subscriber struct {
	AnalysisID string

	// Highest sequence delivered in this subscriber's backlog snapshot.
	// Live lines at or below it were persisted before the snapshot was
	// taken and are already in the channel.
	afterSeq int64

	ch     chan LogLine
	broker *Broker
	once   sync.Once
}

// Lines returns the delivery channel. It yields the persisted backlog first,
// then live lines, and is closed on unsubscribe, overrun, or deletion.
func (s *Subscriber) Lines() <-chan LogLine {
	return s.ch
}

// Close unsubscribes the handle. Safe to call multiple times.
func (s *Subscriber) Close() {
	s.broker.Unsubscribe(s)
}

// Broker fans each published log line out to every live subscriber of the
// analysis. Per-subscriber delivery paths are isolated: a slow subscriber is
// dropped, never blocking its siblings.
type Broker struct {
	log        zerolog.Logger
	bufferSize int

	mu     sync.Mutex
	topics map[string]map[*Subscriber]struct{}
}

// NewBroker creates a new subscription broker
func NewBroker(log zerolog.Logger) *Broker {
	return &Broker{
		log:        log.With().Str("component", "broker").Logger(),
		bufferSize: DefaultSubscriberBuffer,
		topics:     make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber for the analysis. The backlog
// function is evaluated under the broker lock, so the persisted prefix and
// the registration are one atomic step: no line published after the snapshot
// can be missed. The snapshot boundary is recorded on the subscriber; a line
// persisted before the snapshot but published after it is skipped in
// Publish, so no backlog line can be delivered twice.
func (b *Broker) Subscribe(analysisID string, backlog func() ([]LogLine, error)) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines, err := backlog()
	if err != nil {
		return nil, err
	}

	sub := &Subscriber{
		AnalysisID: analysisID,
		ch:         make(chan LogLine, len(lines)+b.bufferSize),
		broker:     b,
	}
	if len(lines) > 0 {
		sub.afterSeq = lines[len(lines)-1].Sequence
	}

	// Backlog fits the buffer by construction, so these sends never block.
	for _, line := range lines {
		sub.ch <- line
	}

	if b.topics[analysisID] == nil {
		b.topics[analysisID] = make(map[*Subscriber]struct{})
	}
	b.topics[analysisID][sub] = struct{}{}

	b.log.Debug().
		Str("analysis_id", analysisID).
		Int("backlog", len(lines)).
		Int("subscribers", len(b.topics[analysisID])).
		Msg("Subscriber attached")

	return sub, nil
}

// Publish delivers one line to every current subscriber of the analysis.
// Sends are non-blocking; a subscriber with a full buffer is dropped.
func (b *Broker) Publish(line LogLine) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.topics[line.AnalysisID] {
		if line.Sequence <= sub.afterSeq {
			// Already delivered in this subscriber's backlog snapshot.
			continue
		}
		select {
		case sub.ch <- line:
		default:
			// Delivery overrun: drop this subscriber, keep publishing to
			// the rest.
			b.log.Warn().
				Str("analysis_id", line.AnalysisID).
				Int64("sequence", line.Sequence).
				Msg("Subscriber buffer full, dropping connection")
			b.removeLocked(sub)
		}
	}
}

// Unsubscribe removes the handle. Safe to call multiple times or after the
// analysis ended.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// CloseTopic drops every subscriber of the analysis. Called on deletion;
// analyses reaching a terminal state keep their subscriptions open so clients
// observe trailing lines.
func (b *Broker) CloseTopic(analysisID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.topics[analysisID] {
		b.removeLocked(sub)
	}
}

// SubscriberCount returns the number of live subscribers for an analysis
func (b *Broker) SubscriberCount(analysisID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[analysisID])
}

// removeLocked deletes a subscriber and closes its channel exactly once.
// Caller must hold b.mu.
func (b *Broker) removeLocked(sub *Subscriber) {
	subs, ok := b.topics[sub.AnalysisID]
	if ok {
		if _, present := subs[sub]; present {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.topics, sub.AnalysisID)
			}
		}
	}
	sub.once.Do(func() { close(sub.ch) })
}
