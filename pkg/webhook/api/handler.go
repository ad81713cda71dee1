package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/xid"

	"github.com/leadchat/leadchat/pkg/events"
	"github.com/leadchat/leadchat/pkg/leads"
	"github.com/leadchat/leadchat/pkg/webhook"
)

const (
	maxRequestBodySize  = 1 << 20 // 1 MiB
	defaultDeliveryPage = 100
)

// Store reads delivery history and dead letters.
type Store interface {
	ListDeliveries(ctx context.Context, sessionID string, limit int) ([]webhook.DeliveryAttempt, error)
	ListDeadLetters(ctx context.Context) ([]webhook.DeadLetter, error)
	GetDeadLetter(ctx context.Context, id string) (*webhook.DeadLetter, error)
	MarkDeadLetterReplayed(ctx context.Context, id string) error
}

// Dispatcher sends envelopes to the configured endpoints.
type Dispatcher interface {
	Dispatch(ctx context.Context, env events.Envelope)
	Redeliver(ctx context.Context, endpointID string, env events.Envelope) error
}

// Handler provides the operator REST endpoints for lead webhooks.
type Handler struct {
	store      Store
	dispatcher Dispatcher
	source     string
}

// NewHandler creates a new webhook API handler. A nil dispatcher leaves
// the replay and test routes unregistered.
func NewHandler(store Store, dispatcher Dispatcher, source string) *Handler {
	return &Handler{store: store, dispatcher: dispatcher, source: source}
}

// RegisterRoutes registers all webhook API routes on the given mux.
// Authentication is applied by whoever mounts the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/webhook/deliveries", h.ListDeliveries)
	mux.HandleFunc("GET /api/v1/webhook/dead-letters", h.ListDeadLetters)
	if h.dispatcher == nil {
		return
	}
	mux.HandleFunc("POST /api/v1/webhook/dead-letters/{id}/replay", h.ReplayDeadLetter)
	mux.HandleFunc("POST /api/v1/webhook/test", h.Test)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// ListDeliveries handles GET /api/v1/webhook/deliveries
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeliveryPage
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	attempts, err := h.store.ListDeliveries(r.Context(), r.URL.Query().Get("session_id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	resp := make([]DeliveryResponse, 0, len(attempts))
	for _, da := range attempts {
		resp = append(resp, DeliveryResponse{
			ID:            da.ID,
			WebhookID:     da.WebhookID,
			EventID:       da.EventID,
			EventType:     da.EventType,
			SessionID:     da.SessionID,
			ResponseCode:  da.ResponseCode,
			AttemptNumber: da.AttemptNumber,
			Status:        da.Status,
			Error:         da.Error,
			DurationMs:    da.DurationMs,
			CreatedAt:     da.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListDeadLetters handles GET /api/v1/webhook/dead-letters
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := h.store.ListDeadLetters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	resp := make([]DeadLetterResponse, 0, len(letters))
	for _, dl := range letters {
		resp = append(resp, DeadLetterResponse{
			ID:        dl.ID,
			WebhookID: dl.WebhookID,
			EventID:   dl.EventID,
			EventType: dl.EventType,
			LastError: dl.LastError,
			Attempts:  dl.Attempts,
			CreatedAt: dl.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReplayDeadLetter handles POST /api/v1/webhook/dead-letters/{id}/replay
func (h *Handler) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	dl, err := h.store.GetDeadLetter(r.Context(), id)
	if errors.Is(err, leads.ErrNotFound) {
		writeError(w, http.StatusNotFound, "dead letter not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load dead letter")
		return
	}
	if !dl.Replayable {
		writeError(w, http.StatusConflict, "dead letter already replayed")
		return
	}

	var env events.Envelope
	if err := json.Unmarshal([]byte(dl.Payload), &env); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt dead letter payload")
		return
	}

	if err := h.dispatcher.Redeliver(r.Context(), dl.WebhookID, env); err != nil {
		if errors.Is(err, webhook.ErrUnknownEndpoint) {
			writeError(w, http.StatusConflict, "webhook endpoint no longer configured")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to replay dead letter")
		return
	}

	if err := h.store.MarkDeadLetterReplayed(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark dead letter replayed")
		return
	}

	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "replay scheduled", EventID: env.ID})
}

// Test handles POST /api/v1/webhook/test
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req TestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		req.Message = "This is a test webhook delivery from leadchat"
	}

	data, err := json.Marshal(events.WebhookTestData{Message: req.Message})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode test event")
		return
	}
	env := events.Envelope{
		ID:        xid.New().String(),
		Type:      events.WebhookTest,
		Source:    h.source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	h.dispatcher.Dispatch(r.Context(), env)
	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "test event dispatched", EventID: env.ID})
}
