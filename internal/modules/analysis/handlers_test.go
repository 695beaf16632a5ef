package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, pipeline Pipeline) (*chi.Mux, *Service) {
	svc := newTestService(t, pipeline)
	h := NewHandlers(svc, zerolog.Nop())

	r := chi.NewRouter()
	r.Route("/api/analyses", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Get("/{id}/logs", h.HandleLogs)
		r.Delete("/{id}", h.HandleDelete)
	})
	return r, svc
}

func instantPipeline() Pipeline {
	return &fakePipeline{
		run: func(ctx context.Context, tickers []string, emit func(string)) (string, []Recommendation, error) {
			emit("working")
			return "done", []Recommendation{{Ticker: "GE", Rating: "buy"}}, nil
		},
	}
}

func TestHandleCreate(t *testing.T) {
	router, _ := newTestRouter(t, instantPipeline())

	req := httptest.NewRequest(http.MethodPost, "/api/analyses", strings.NewReader(`{"tickers": ["ge", "etn"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["analysis_id"])
}

func TestHandleCreateInvalidBody(t *testing.T) {
	router, _ := newTestRouter(t, instantPipeline())

	req := httptest.NewRequest(http.MethodPost, "/api/analyses", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGet(t *testing.T) {
	router, svc := newTestRouter(t, instantPipeline())

	a, err := svc.Submit([]string{"GE"})
	require.NoError(t, err)
	waitForStatus(t, svc, a.ID, StatusCompleted)

	req := httptest.NewRequest(http.MethodGet, "/api/analyses/"+a.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, a.ID, body["id"])
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "done", body["summary"])
	assert.Equal(t, "GE:buy", body["recommendation"])
}

func TestHandleGetNotFound(t *testing.T) {
	router, _ := newTestRouter(t, instantPipeline())

	req := httptest.NewRequest(http.MethodGet, "/api/analyses/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleList(t *testing.T) {
	router, svc := newTestRouter(t, instantPipeline())

	a, err := svc.Submit([]string{"GE"})
	require.NoError(t, err)
	waitForStatus(t, svc, a.ID, StatusCompleted)

	req := httptest.NewRequest(http.MethodGet, "/api/analyses", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, a.ID, body[0]["id"])
}

func TestHandleLogs(t *testing.T) {
	router, svc := newTestRouter(t, instantPipeline())

	a, err := svc.Submit([]string{"GE"})
	require.NoError(t, err)
	waitForStatus(t, svc, a.ID, StatusCompleted)

	req := httptest.NewRequest(http.MethodGet, "/api/analyses/"+a.ID+"/logs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "working", body[0]["message"])
	assert.Equal(t, float64(1), body[0]["sequence"])
}

func TestHandleLogsNotFound(t *testing.T) {
	router, _ := newTestRouter(t, instantPipeline())

	req := httptest.NewRequest(http.MethodGet, "/api/analyses/missing/logs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDelete(t *testing.T) {
	router, svc := newTestRouter(t, instantPipeline())

	a, err := svc.Submit([]string{"GE"})
	require.NoError(t, err)
	waitForStatus(t, svc, a.ID, StatusCompleted)

	req := httptest.NewRequest(http.MethodDelete, "/api/analyses/"+a.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/analyses/"+a.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
