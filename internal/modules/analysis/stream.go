package analysis

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const streamWriteTimeout = 10 * time.Second

// StreamHandler upgrades a client connection to a WebSocket and streams the
// analysis log: persisted backlog first, then live lines until the client
// disconnects or the analysis is deleted.
type StreamHandler struct {
	service *Service
	log     zerolog.Logger
}

// NewStreamHandler creates a new live log stream handler
func NewStreamHandler(service *Service, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		service: service,
		log:     log.With().Str("handler", "log_stream").Logger(),
	}
}

// streamFrame is the wire form of one log line
type streamFrame struct {
	Sequence  int64  `json:"sequence"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ServeHTTP handles GET /ws/{id}
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.service.Subscribe(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Analysis not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("analysis_id", id).Msg("Failed to subscribe")
		http.Error(w, "Failed to subscribe", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The UI is served from a different origin in development
		InsecureSkipVerify: true,
	})
	if err != nil {
		sub.Close()
		h.log.Warn().Err(err).Str("analysis_id", id).Msg("WebSocket upgrade failed")
		return
	}
	defer sub.Close()

	h.log.Info().Str("analysis_id", id).Msg("Client connected to log stream")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so pings are answered and disconnects surface as
	// a cancelled context. We never expect client messages.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return

		case line, ok := <-sub.Lines():
			if !ok {
				// Analysis deleted or this subscriber was dropped for
				// falling behind.
				_ = conn.Close(websocket.StatusGoingAway, "stream closed")
				h.log.Info().Str("analysis_id", id).Msg("Log stream closed")
				return
			}

			writeCtx, writeCancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(writeCtx, conn, streamFrame{
				Sequence:  line.Sequence,
				Message:   line.Message,
				Timestamp: line.Timestamp.Format(time.RFC3339Nano),
			})
			writeCancel()
			if err != nil {
				h.log.Debug().Err(err).Str("analysis_id", id).Msg("Stream write failed")
				_ = conn.Close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}
