// Package api wires HTTP requests to the turn pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seonho-lim/aide/internal/conversation"
	"github.com/seonho-lim/aide/internal/stats"
	"github.com/seonho-lim/aide/pkg/logging"
)

// TurnService is the slice of the session controller the HTTP layer uses.
type TurnService interface {
	HandleTurn(ctx context.Context, threadID, userMessage string) (*conversation.TurnResult, error)
	OnThreadDeleted(ctx context.Context, threadID string) error
}

// ThreadHandler serves the thread message and deletion endpoints.
type ThreadHandler struct {
	service TurnService
	logger  *logging.Logger
}

// NewThreadHandler creates a thread handler.
func NewThreadHandler(service TurnService, logger *logging.Logger) *ThreadHandler {
	if service == nil {
		panic("api: turn service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ThreadHandler{service: service, logger: logger}
}

// MessageRequest is the POST /threads/{threadID}/messages body.
type MessageRequest struct {
	Message string `json:"message"`
}

// MessageResponse is the turn outcome returned to the caller.
type MessageResponse struct {
	ThreadID      string `json:"thread_id"`
	TurnID        string `json:"turn_id"`
	Response      string `json:"response"`
	Reset         bool   `json:"reset"`
	Confidence    int    `json:"confidence"`
	Contamination int    `json:"contamination"`
}

// PostMessage handles POST /threads/{threadID}/messages.
func (h *ThreadHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode message request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.HandleTurn(r.Context(), threadID, req.Message)
	if err != nil {
		if errors.Is(err, conversation.ErrEmptyMessage) || errors.Is(err, conversation.ErrMissingThreadID) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to process turn", "thread_id", threadID, "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, MessageResponse{
		ThreadID:      result.ThreadID,
		TurnID:        result.TurnID,
		Response:      result.Response,
		Reset:         result.Reset,
		Confidence:    result.Confidence,
		Contamination: result.Contamination,
	})
}

// DeleteThread handles DELETE /threads/{threadID}.
func (h *ThreadHandler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	if err := h.service.OnThreadDeleted(r.Context(), threadID); err != nil {
		if errors.Is(err, conversation.ErrMissingThreadID) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to delete thread", "thread_id", threadID, "error", err)
		http.Error(w, "Failed to delete thread", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ThreadHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

// StatsReader aggregates recorded turn outcomes for one thread.
type StatsReader interface {
	ThreadStats(ctx context.Context, threadID string) (*stats.ThreadStats, error)
}

// StatsHandler serves per-thread aggregate statistics.
type StatsHandler struct {
	reader StatsReader
	logger *logging.Logger
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(reader StatsReader, logger *logging.Logger) *StatsHandler {
	if reader == nil {
		panic("api: stats reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StatsHandler{reader: reader, logger: logger}
}

// ThreadStatsResponse is the GET /threads/{threadID}/stats body.
type ThreadStatsResponse struct {
	ThreadID  string  `json:"thread_id"`
	Turns     int64   `json:"turns"`
	Resets    int64   `json:"resets"`
	AvgScore  float64 `json:"avg_confidence"`
	FirstTurn string  `json:"first_turn,omitempty"`
	LastTurn  string  `json:"last_turn,omitempty"`
}

// GetThreadStats handles GET /threads/{threadID}/stats.
func (h *StatsHandler) GetThreadStats(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	out, err := h.reader.ThreadStats(r.Context(), threadID)
	if err != nil {
		h.logger.Error("failed to aggregate thread stats", "thread_id", threadID, "error", err)
		http.Error(w, "Failed to fetch thread stats", http.StatusInternalServerError)
		return
	}

	resp := ThreadStatsResponse{
		ThreadID: out.ThreadID,
		Turns:    out.Turns,
		Resets:   out.Resets,
		AvgScore: out.AvgScore,
	}
	if out.Turns > 0 {
		resp.FirstTurn = out.FirstTurn.Format(time.RFC3339)
		resp.LastTurn = out.LastTurn.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
