package conversation

import (
	"context"

	"github.com/leadchat/leadchat/pkg/script"
)

// ActionType is the kind of bot output sent to the visitor.
type ActionType string

const (
	ActionMessage ActionType = "message"
	ActionOptions ActionType = "options"
)

// Action is one bot output for a session.
type Action struct {
	Type          ActionType      `json:"type"`
	Text          string          `json:"text"`
	IsBot         bool            `json:"isBot"`
	AwaitingInput bool            `json:"awaitingInput,omitempty"`
	Finished      bool            `json:"finished,omitempty"`
	Options       []script.Option `json:"options,omitempty"`
}

// Emitter delivers actions to the visitor behind a session.
type Emitter interface {
	Emit(ctx context.Context, sessionID string, a Action) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, sessionID string, a Action) error

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, sessionID string, a Action) error {
	return f(ctx, sessionID, a)
}
