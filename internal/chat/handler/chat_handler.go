package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/leadchat/leadchat/pkg/conversation"
)

// ChatService is the conversation entry point the handler drives.
type ChatService interface {
	OnConnect(ctx context.Context, id string) (*conversation.Session, error)
	OnMessage(ctx context.Context, id, text string) error
	OnDisconnect(id string)
}

// ChatHandler upgrades widget connections to websockets and bridges them
// to the conversation service.
type ChatHandler struct {
	svc      ChatService
	hub      *Hub
	origins  []string
	upgrader websocket.Upgrader
}

// NewChatHandler creates a websocket handler. An empty origins list or
// one containing "*" accepts any origin.
func NewChatHandler(svc ChatService, hub *Hub, origins []string) *ChatHandler {
	h := &ChatHandler{svc: svc, hub: hub, origins: origins}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

// RegisterRoutes registers the websocket endpoint on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /ws", h)
}

// ServeHTTP runs one widget connection until it closes.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	id := xid.New().String()
	c := newClient(id, conn)
	h.hub.add(c)
	go c.writePump()

	// The session outlives the upgrade request's context.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.disconnect(c)
	}()

	if _, err := h.svc.OnConnect(ctx, id); err != nil {
		slog.ErrorContext(ctx, "start chat session failed",
			slog.String("conn_id", id), slog.String("error", err.Error()))
		return
	}

	h.readLoop(ctx, c)
}

// disconnect closes the connection before ending the session: an emit
// blocked on the client's full queue holds the session lock, and only the
// closed client releases it.
func (h *ChatHandler) disconnect(c *client) {
	c.close()
	h.hub.remove(c.id)
	h.svc.OnDisconnect(c.id)
}

func (h *ChatHandler) readLoop(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.DebugContext(ctx, "websocket closed", slog.String("conn_id", c.id), slog.String("error", err.Error()))
			}
			return
		}

		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			slog.DebugContext(ctx, "ignoring malformed frame", slog.String("conn_id", c.id))
			continue
		}
		if in.Event != eventUserMessage {
			continue
		}

		if err := h.svc.OnMessage(ctx, c.id, in.Data.Text); err != nil {
			if errors.Is(err, conversation.ErrUnknownSession) {
				slog.DebugContext(ctx, "message for unknown session", slog.String("conn_id", c.id))
				continue
			}
			slog.WarnContext(ctx, "handle message failed",
				slog.String("conn_id", c.id), slog.String("error", err.Error()))
		}
	}
}

func (h *ChatHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	parsed, err := url.Parse(origin)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return false
	}
	return strings.EqualFold(parsed.Host, r.Host)
}
