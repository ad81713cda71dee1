package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"

	"github.com/leadchat/leadchat/pkg/events"
)

// ErrUnknownEndpoint is returned when no configured endpoint has the id.
var ErrUnknownEndpoint = errors.New("unknown webhook endpoint")

// Subscriber implements frame's queue.SubscribeWorker. It forwards the
// event types it is interested in to every configured endpoint.
type Subscriber struct {
	Endpoints  []Endpoint
	EventTypes []events.EventType
	Deliverer  *Deliverer
	Pool       workerpool.WorkerPool
}

// Handle is called by frame's pub/sub for each event message.
func (ws *Subscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("webhook subscriber: unmarshal envelope")
		return err
	}

	if !ws.wants(env.Type) {
		return nil
	}
	ws.Dispatch(ctx, env)
	return nil
}

// Dispatch hands the envelope to every endpoint regardless of its type.
func (ws *Subscriber) Dispatch(ctx context.Context, env events.Envelope) {
	for _, ep := range ws.Endpoints {
		ws.submit(ctx, ep, env)
	}
	slog.DebugContext(ctx, "lead event dispatched to webhooks",
		slog.String("event_id", env.ID), slog.Int("endpoints", len(ws.Endpoints)))
}

// Redeliver sends the envelope again to the endpoint with the given id.
func (ws *Subscriber) Redeliver(ctx context.Context, endpointID string, env events.Envelope) error {
	for _, ep := range ws.Endpoints {
		if ep.ID == endpointID {
			ws.submit(ctx, ep, env)
			return nil
		}
	}
	return fmt.Errorf("webhook %q: %w", endpointID, ErrUnknownEndpoint)
}

func (ws *Subscriber) submit(ctx context.Context, ep Endpoint, env events.Envelope) {
	ctx = context.WithoutCancel(ctx)
	if ws.Pool == nil {
		go ws.Deliverer.Deliver(ctx, ep, env)
		return
	}
	if err := ws.Pool.Submit(ctx, func() {
		ws.Deliverer.Deliver(ctx, ep, env)
	}); err != nil {
		slog.WarnContext(ctx, "webhook pool full, delivering on a goroutine",
			slog.String("webhook_id", ep.ID), slog.String("error", err.Error()))
		go ws.Deliverer.Deliver(ctx, ep, env)
	}
}

func (ws *Subscriber) wants(et events.EventType) bool {
	if len(ws.EventTypes) == 0 {
		return et == events.LeadCaptured
	}
	return slices.Contains(ws.EventTypes, et)
}
