package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/leadchat/leadchat/config"
	"github.com/leadchat/leadchat/pkg/leads"
)

const defaultLeadPageSize = 50

// Mailer checks and exercises the lead email channel.
type Mailer interface {
	Verify(ctx context.Context) error
	SendSample(ctx context.Context) error
}

// LeadLister lists stored leads.
type LeadLister interface {
	ListRecent(ctx context.Context, limit, offset int) ([]leads.Lead, error)
}

// SessionCounter reports live chat sessions.
type SessionCounter interface {
	Len() int
}

// Handler serves the widget's HTTP surface: health, public chat settings,
// static assets and the operator routes.
type Handler struct {
	widget    *config.Widget
	publicDir string
	mailer    Mailer
	leads     LeadLister
	sessions  SessionCounter
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithPublicDir serves static files, including widget.js, from dir.
func WithPublicDir(dir string) Option {
	return func(h *Handler) { h.publicDir = dir }
}

// WithMailer enables the SMTP test routes.
func WithMailer(m Mailer) Option {
	return func(h *Handler) { h.mailer = m }
}

// WithLeads enables the lead listing route.
func WithLeads(l LeadLister) Option {
	return func(h *Handler) { h.leads = l }
}

// WithSessions reports live sessions on /health.
func WithSessions(s SessionCounter) Option {
	return func(h *Handler) { h.sessions = s }
}

// NewHandler creates a handler for the given widget document.
func NewHandler(widget *config.Widget, opts ...Option) *Handler {
	h := &Handler{widget: widget, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the public routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /chat-config", h.ChatConfig)
	mux.HandleFunc("OPTIONS /chat-config", h.preflight)

	if h.publicDir != "" {
		mux.HandleFunc("GET /widget.js", h.WidgetScript)
		mux.Handle("GET /", http.FileServer(http.Dir(h.publicDir)))
	}
}

// RegisterOperatorRoutes registers the operator routes. They carry no
// authentication of their own; mount the mux behind an auth middleware.
func (h *Handler) RegisterOperatorRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug-config", h.DebugConfig)
	mux.HandleFunc("GET /api/v1/leads", h.ListLeads)
	if h.mailer != nil {
		mux.HandleFunc("POST /test-email", h.TestEmail)
		mux.HandleFunc("POST /test-lead-email", h.TestLeadEmail)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func allowAnyOrigin(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// TokenAuth guards handlers with a single static bearer token. It is meant
// for local development where no OAuth2 issuer is available.
func TokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "OK", Timestamp: h.now().UTC().Format(time.RFC3339)}
	if h.sessions != nil {
		n := h.sessions.Len()
		resp.Sessions = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChatConfig handles GET /chat-config
func (h *Handler) ChatConfig(w http.ResponseWriter, _ *http.Request) {
	allowAnyOrigin(w)
	writeJSON(w, http.StatusOK, h.widget.Public())
}

func (h *Handler) preflight(w http.ResponseWriter, _ *http.Request) {
	allowAnyOrigin(w)
	w.WriteHeader(http.StatusNoContent)
}

// WidgetScript handles GET /widget.js
func (h *Handler) WidgetScript(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.publicDir, "widget.js")
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "widget not found")
		return
	}
	allowAnyOrigin(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	http.ServeFile(w, r, path)
}

// DebugConfig handles GET /debug-config
func (h *Handler) DebugConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.widget.Redacted())
}

// TestEmail handles POST /test-email
func (h *Handler) TestEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.mailer.Verify(r.Context()); err != nil {
		slog.WarnContext(r.Context(), "smtp verification failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, MailCheckResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, MailCheckResponse{Success: true, Message: "Configuração de e-mail válida"})
}

// TestLeadEmail handles POST /test-lead-email
func (h *Handler) TestLeadEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.mailer.SendSample(r.Context()); err != nil {
		slog.WarnContext(r.Context(), "sample lead email failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, MailCheckResponse{
			Success: false,
			Message: "Falha ao enviar email de teste",
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, MailCheckResponse{
		Success: true,
		Message: "Email de teste enviado com sucesso!",
		SentTo:  h.widget.Admin.Email,
	})
}

// ListLeads handles GET /api/v1/leads
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	if h.leads == nil {
		writeError(w, http.StatusNotImplemented, "lead storage not configured")
		return
	}

	limit := queryInt(r, "limit", defaultLeadPageSize)
	offset := queryInt(r, "offset", 0)
	if limit <= 0 || limit > 500 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	if offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}

	out, err := h.leads.ListRecent(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	if out == nil {
		out = []leads.Lead{}
	}
	writeJSON(w, http.StatusOK, LeadListResponse{Leads: out})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

// operatorPatterns are the public-mux entries that lead to operator routes.
var operatorPatterns = []string{
	"GET /api/",
	"POST /api/",
	"GET /debug-config",
	"POST /test-email",
	"POST /test-lead-email",
}

// MountOperator exposes the operator mux on mux, every request passing
// through guard first.
func MountOperator(mux *http.ServeMux, ops http.Handler, guard func(http.Handler) http.Handler) {
	guarded := guard(ops)
	for _, pattern := range operatorPatterns {
		mux.Handle(pattern, guarded)
	}
}
