package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/frame/queue"
	"github.com/rs/xid"
)

const defaultSubscriberBuffer = 64

// Publisher stamps chat activity into envelopes and sends them to the
// frame queue and to any in-process listeners. Without a queue manager
// only the listeners see events.
type Publisher struct {
	queueMgr queue.Manager
	source   string
	queueRef string

	mu        sync.RWMutex
	listeners map[string]chan Envelope
}

// NewPublisher creates a publisher writing to the queue registered as queueRef.
func NewPublisher(queueMgr queue.Manager, source, queueRef string) *Publisher {
	return &Publisher{
		queueMgr:  queueMgr,
		source:    source,
		queueRef:  queueRef,
		listeners: make(map[string]chan Envelope),
	}
}

// Emit wraps data in an envelope for the session and publishes it.
func (p *Publisher) Emit(ctx context.Context, eventType EventType, sessionID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	env := Envelope{
		ID:        xid.New().String(),
		Type:      eventType,
		Source:    p.source,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}
	p.fanOut(ctx, env)

	if p.queueMgr == nil {
		return nil
	}
	if err := p.queueMgr.Publish(ctx, p.queueRef, env); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// fanOut never blocks; a listener with a full buffer misses the event.
func (p *Publisher) fanOut(ctx context.Context, env Envelope) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for id, ch := range p.listeners {
		select {
		case ch <- env:
		default:
			slog.WarnContext(ctx, "event dropped: subscriber buffer full",
				slog.String("subscriber", id), slog.String("event_type", string(env.Type)))
		}
	}
}

// Subscribe registers an in-process listener. Release it with Unsubscribe.
func (p *Publisher) Subscribe(id string, bufSize int) <-chan Envelope {
	if bufSize <= 0 {
		bufSize = defaultSubscriberBuffer
	}
	ch := make(chan Envelope, bufSize)

	p.mu.Lock()
	if old, ok := p.listeners[id]; ok {
		close(old)
	}
	p.listeners[id] = ch
	p.mu.Unlock()
	return ch
}

// Unsubscribe removes the listener and closes its channel.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.listeners[id]; ok {
		delete(p.listeners, id)
		close(ch)
	}
}

// Close releases every listener.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.listeners {
		delete(p.listeners, id)
		close(ch)
	}
}
