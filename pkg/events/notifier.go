package events

import (
	"context"
	"time"
)

type sessionKey struct{}

// WithSessionID tags ctx with the conversation session it belongs to.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFrom returns the session id carried by ctx, if any.
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// Notifier publishes completed leads as lead.captured events.
type Notifier struct {
	Publisher *Publisher
}

// Notify emits a lead.captured event carrying the answers.
func (n Notifier) Notify(ctx context.Context, answers map[string]string) error {
	return n.Publisher.Emit(ctx, LeadCaptured, SessionIDFrom(ctx), LeadData{
		Answers:     answers,
		CompletedAt: time.Now().UTC(),
	})
}
