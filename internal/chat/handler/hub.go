package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leadchat/leadchat/pkg/conversation"
)

const defaultSendTimeout = 5 * time.Second

var (
	errConnClosed = errors.New("connection closed")
	errSlowClient = errors.New("client send queue full")
)

// Hub routes bot actions to the websocket connection owning each session.
// It implements conversation.Emitter.
type Hub struct {
	sendTimeout time.Duration

	mu    sync.RWMutex
	conns map[string]*client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		sendTimeout: defaultSendTimeout,
		conns:       make(map[string]*client),
	}
}

// Emit queues a bot-message frame for the session's connection.
func (h *Hub) Emit(ctx context.Context, sessionID string, a conversation.Action) error {
	h.mu.RLock()
	c, ok := h.conns[sessionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", conversation.ErrUnknownSession, sessionID)
	}
	return c.enqueue(ctx, outboundFrame{Event: eventBotMessage, Data: a}, h.sendTimeout)
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}
