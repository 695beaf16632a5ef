package analysis

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers contains HTTP handlers for the analysis API
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates a new analysis handlers instance
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("handler", "analysis").Logger(),
	}
}

// createRequest is the POST /api/analyses payload
type createRequest struct {
	Tickers []string `json:"tickers"`
}

// HandleCreate kicks off a new analysis for the supplied tickers.
// POST /api/analyses
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// An empty ticker list is valid: the pipeline runs in unscoped
	// monitoring mode.
	a, err := h.service.Submit(req.Tickers)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to submit analysis")
		http.Error(w, "Failed to create analysis", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"analysis_id": a.ID,
	})
}

// HandleList returns all analyses with basic metadata.
// GET /api/analyses
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	analyses, err := h.service.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list analyses")
		http.Error(w, "Failed to list analyses", http.StatusInternalServerError)
		return
	}

	response := make([]map[string]interface{}, 0, len(analyses))
	for _, a := range analyses {
		response = append(response, map[string]interface{}{
			"id":             a.ID,
			"tickers":        a.Tickers,
			"status":         string(a.Status),
			"recommendation": a.RecommendationString(),
			"created_at":     a.CreatedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// HandleGet returns the full analysis record including summary and
// recommendations.
// GET /api/analyses/{id}
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a, err := h.service.Get(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Analysis not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("analysis_id", id).Msg("Failed to get analysis")
		http.Error(w, "Failed to get analysis", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":              a.ID,
		"tickers":         a.Tickers,
		"status":          string(a.Status),
		"summary":         a.Summary,
		"recommendation":  a.RecommendationString(),
		"recommendations": a.Recommendations,
		"created_at":      a.CreatedAt.Format(time.RFC3339),
		"updated_at":      a.UpdatedAt.Format(time.RFC3339),
	})
}

// HandleLogs retrieves persisted logs for an analysis.
// GET /api/analyses/{id}/logs
func (h *Handlers) HandleLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	lines, err := h.service.Logs(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Analysis not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("analysis_id", id).Msg("Failed to get logs")
		http.Error(w, "Failed to get logs", http.StatusInternalServerError)
		return
	}

	response := make([]map[string]interface{}, 0, len(lines))
	for _, line := range lines {
		response = append(response, map[string]interface{}{
			"sequence":  line.Sequence,
			"message":   line.Message,
			"timestamp": line.Timestamp.Format(time.RFC3339Nano),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// HandleDelete removes the analysis and terminates its pipeline and streams.
// DELETE /api/analyses/{id}
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Analysis not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("analysis_id", id).Msg("Failed to delete analysis")
		http.Error(w, "Failed to delete analysis", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
