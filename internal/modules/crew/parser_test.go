package crew

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResultJSON(t *testing.T) {
	raw := `{"summary": "Industrials look strong", "recommendations": [
		{"ticker": "GE", "rating": "buy", "reason": "capex acceleration"},
		{"ticker": "CMI", "rating": "hold"}
	]}`

	summary, recs := ParseResult(raw)

	assert.Equal(t, "Industrials look strong", summary)
	require.Len(t, recs, 2)
	assert.Equal(t, "GE", recs[0].Ticker)
	assert.Equal(t, "buy", recs[0].Rating)
	assert.Equal(t, "capex acceleration", recs[0].Reason)
	assert.Equal(t, "CMI", recs[1].Ticker)
}

func TestParseResultRawSummary(t *testing.T) {
	raw := "The market shows early signs of sector rotation into utilities."

	summary, recs := ParseResult(raw)

	assert.Equal(t, raw, summary)
	assert.Empty(t, recs)
}

func TestParseResultLegacyRecommendationsLine(t *testing.T) {
	raw := "Mixed signals this week.\nRECOMMENDATIONS: ge:buy, ETN:Hold, nvda:sell\nEnd of report."

	summary, recs := ParseResult(raw)

	assert.Contains(t, summary, "Mixed signals")
	require.Len(t, recs, 3)
	assert.Equal(t, "GE", recs[0].Ticker)
	assert.Equal(t, "buy", recs[0].Rating)
	assert.Equal(t, "ETN", recs[1].Ticker)
	assert.Equal(t, "hold", recs[1].Rating)
	assert.Equal(t, "NVDA", recs[2].Ticker)
	assert.Equal(t, "sell", recs[2].Rating)
}

func TestParseResultSkipsMalformedPairs(t *testing.T) {
	raw := "Summary.\nRECOMMENDATIONS: GE:buy, not-a-pair, :sell, ETN:, CMI:hold"

	_, recs := ParseResult(raw)

	require.Len(t, recs, 2)
	assert.Equal(t, "GE", recs[0].Ticker)
	assert.Equal(t, "CMI", recs[1].Ticker)
}

func TestParseResultJSONWithoutSummaryFallsBack(t *testing.T) {
	// Valid JSON without a summary field is treated as raw text.
	raw := `{"recommendations": []}`

	summary, recs := ParseResult(raw)

	assert.Equal(t, raw, summary)
	assert.Empty(t, recs)
}

func TestParseResultTrimsWhitespace(t *testing.T) {
	summary, _ := ParseResult("\n\n  report body  \n")
	assert.Equal(t, "report body", summary)
}
