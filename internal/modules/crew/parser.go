package crew

import (
	"encoding/json"
	"strings"

	"github.com/brunocrt/crew-investment-agents/internal/modules/analysis"
)

const recommendationsPrefix = "RECOMMENDATIONS:"

// parsedResult is the structured form the strategist emits
type parsedResult struct {
	Summary         string                    `json:"summary"`
	Recommendations []analysis.Recommendation `json:"recommendations"`
}

// ParseResult interprets the raw synthesis output. A JSON object carrying
// summary and recommendations fields is extracted directly; anything else
// becomes the summary verbatim, with an optional "RECOMMENDATIONS:" line of
// comma-separated TICKER:RATING pairs populating the recommendation list.
func ParseResult(raw string) (string, []analysis.Recommendation) {
	trimmed := strings.TrimSpace(raw)

	var parsed parsedResult
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Summary != "" {
		return parsed.Summary, parsed.Recommendations
	}

	// Fallback: the whole output is the summary; scan for a legacy
	// recommendations line.
	var recs []analysis.Recommendation
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, recommendationsPrefix) {
			continue
		}
		recs = parsePairs(strings.TrimPrefix(line, recommendationsPrefix))
		break
	}
	return trimmed, recs
}

// parsePairs parses "GE:buy, ETN:hold" into recommendations with empty
// reasons. Malformed pairs are skipped.
func parsePairs(s string) []analysis.Recommendation {
	var recs []analysis.Recommendation
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		ticker := strings.ToUpper(strings.TrimSpace(parts[0]))
		rating := strings.ToLower(strings.TrimSpace(parts[1]))
		if ticker == "" || rating == "" {
			continue
		}
		recs = append(recs, analysis.Recommendation{
			Ticker: ticker,
			Rating: rating,
		})
	}
	return recs
}
