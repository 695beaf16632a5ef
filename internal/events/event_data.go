package events

import "time"

// EventData is the interface that all typed event payloads implement.
// This allows for type-safe event data while maintaining flexibility.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType

	// Fields returns the payload as a generic map for wire encoding
	Fields() map[string]interface{}
}

// AnalysisStatusData contains data for analysis lifecycle events
type AnalysisStatusData struct {
	AnalysisID string
	Status     string
	Tickers    []string
	Timestamp  time.Time
}

// EventType returns the event type for AnalysisStatusData
func (d *AnalysisStatusData) EventType() EventType {
	switch d.Status {
	case "running":
		return AnalysisStarted
	case "completed":
		return AnalysisCompleted
	case "failed":
		return AnalysisFailed
	default:
		return AnalysisCreated
	}
}

// Fields returns the payload as a generic map
func (d *AnalysisStatusData) Fields() map[string]interface{} {
	return map[string]interface{}{
		"analysis_id": d.AnalysisID,
		"status":      d.Status,
		"tickers":     d.Tickers,
		"timestamp":   d.Timestamp,
	}
}

// LogAppendedData contains data for LogAppended events
type LogAppendedData struct {
	AnalysisID string
	Sequence   int64
	Message    string
}

// EventType returns the event type for LogAppendedData
func (d *LogAppendedData) EventType() EventType {
	return LogAppended
}

// Fields returns the payload as a generic map
func (d *LogAppendedData) Fields() map[string]interface{} {
	return map[string]interface{}{
		"analysis_id": d.AnalysisID,
		"sequence":    d.Sequence,
		"message":     d.Message,
	}
}
