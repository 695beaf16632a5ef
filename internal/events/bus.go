// Package events provides the in-process event bus used to broadcast
// analysis lifecycle changes to interested components (SSE stream, monitors).
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	AnalysisCreated   EventType = "ANALYSIS_CREATED"
	AnalysisStarted   EventType = "ANALYSIS_STARTED"
	AnalysisCompleted EventType = "ANALYSIS_COMPLETED"
	AnalysisFailed    EventType = "ANALYSIS_FAILED"
	AnalysisDeleted   EventType = "ANALYSIS_DELETED"
	LogAppended       EventType = "LOG_APPENDED"
	ErrorOccurred     EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Handler is invoked for every event of a subscribed type.
// Handlers must not block; slow consumers should buffer internally.
type Handler func(event *Event)

// Subscription identifies one registered handler so transient consumers
// (an SSE connection, for example) can detach on disconnect.
type Subscription struct {
	eventType EventType
	id        uint64
}

// Bus handles event emission and fan-out to subscribed handlers
type Bus struct {
	log      zerolog.Logger
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType]map[uint64]Handler
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log:      log.With().Str("component", "events").Logger(),
		handlers: make(map[EventType]map[uint64]Handler),
	}
}

// Subscribe registers a handler for an event type. The returned subscription
// releases the handler when passed to Unsubscribe.
func (b *Bus) Subscribe(eventType EventType, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[uint64]Handler)
	}
	b.handlers[eventType][b.nextID] = handler

	return &Subscription{eventType: eventType, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Safe to call more
// than once or with nil.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[sub.eventType]; ok {
		delete(handlers, sub.id)
		if len(handlers) == 0 {
			delete(b.handlers, sub.eventType)
		}
	}
}

// Emit emits an event to all handlers subscribed to its type
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	// Snapshot handlers so publish never iterates a mutating map
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[eventType]))
	for _, h := range b.handlers[eventType] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Int("handlers", len(handlers)).
		Msg("Event emitted")

	for _, h := range handlers {
		h(event)
	}
}

// EmitTyped emits an event carrying a typed data payload
func (b *Bus) EmitTyped(module string, data EventData) {
	b.Emit(data.EventType(), module, data.Fields())
}

// EmitError emits an error event
func (b *Bus) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	b.Emit(ErrorOccurred, module, data)
}
