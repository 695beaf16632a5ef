// Package analysis implements the analysis session engine: durable analysis
// records, per-analysis log capture, background pipeline execution, and live
// log fan-out to subscribed clients.
package analysis

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of an analysis
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status is a terminal state
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Analysis represents a single analysis run over a set of tickers.
// Summary and Recommendations are populated once the run reaches a
// terminal state (a partial summary may exist on failure).
type Analysis struct {
	ID              string
	Tickers         []string
	Status          Status
	Summary         string
	Recommendations []Recommendation
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RecommendationString renders the short TICKER:RATING form used by list views
func (a *Analysis) RecommendationString() string {
	if len(a.Recommendations) == 0 {
		return ""
	}
	parts := make([]string, 0, len(a.Recommendations))
	for _, rec := range a.Recommendations {
		parts = append(parts, rec.Ticker+":"+rec.Rating)
	}
	return strings.Join(parts, ", ")
}

// Recommendation is a structured per-ticker verdict extracted from the
// synthesis stage output
type Recommendation struct {
	Ticker        string    `json:"ticker"`
	Rating        string    `json:"rating"` // "buy", "sell", "hold"
	CurrentPrice  float64   `json:"current_price,omitempty"`
	PercentChange float64   `json:"percent_change,omitempty"`
	ReportTime    time.Time `json:"report_time,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// LogLine is one ordered, persisted unit of output from an analysis run.
// Sequence numbers are assigned at write time and are strictly increasing
// per analysis with no gaps.
type LogLine struct {
	AnalysisID string    `json:"analysis_id"`
	Sequence   int64     `json:"sequence"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}
