package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	SessionStarted   EventType = "session.started"
	SessionEnded     EventType = "session.ended"
	SessionCompleted EventType = "session.completed"
	StepPresented    EventType = "step.presented"
	AnswerRecorded   EventType = "answer.recorded"
	OptionUnmatched  EventType = "option.unmatched"
	LeadCaptured     EventType = "lead.captured"
	NotifyFailed     EventType = "lead.notify_failed"
	WebhookTest      EventType = "webhook.test"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionStartedData is the payload for session.started events.
type SessionStartedData struct {
	Steps int `json:"steps"`
}

// SessionEndedData is the payload for session.ended events.
type SessionEndedData struct {
	Reason     string `json:"reason"` // "disconnect" or "expired"
	Completed  bool   `json:"completed"`
	DurationMs int64  `json:"duration_ms"`
}

// StepPresentedData is the payload for step.presented events.
type StepPresentedData struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
}

// AnswerRecordedData is the payload for answer.recorded events.
type AnswerRecordedData struct {
	Index int    `json:"index"`
	Field string `json:"field"`
}

// OptionUnmatchedData is the payload for option.unmatched events.
type OptionUnmatchedData struct {
	Index int    `json:"index"`
	Reply string `json:"reply"`
}

// LeadData is the payload for session.completed and lead.captured events.
type LeadData struct {
	Answers     map[string]string `json:"answers"`
	CompletedAt time.Time         `json:"completed_at"`
}

// NotifyFailedData is the payload for lead.notify_failed events.
type NotifyFailedData struct {
	Error string `json:"error"`
}

// WebhookTestData is the payload for webhook.test events.
type WebhookTestData struct {
	Message string `json:"message"`
}
