package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/pitabwire/frame/workerpool"

	"github.com/leadchat/leadchat/pkg/events"
	"github.com/leadchat/leadchat/pkg/script"
)

const (
	DefaultStepDelay     = time.Second
	DefaultGreetingDelay = time.Second
)

// Interpreter drives sessions through their script. It holds no
// per-session state; every method serialises on the session's mutex.
type Interpreter struct {
	emitter   Emitter
	notifier  Notifier
	publisher *events.Publisher
	pool      workerpool.WorkerPool

	stepDelay     time.Duration
	greetingDelay time.Duration
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithStepDelay sets the pause before auto-advancing past a message step.
func WithStepDelay(d time.Duration) Option {
	return func(i *Interpreter) { i.stepDelay = d }
}

// WithGreetingDelay sets the pause between connect and the first step.
func WithGreetingDelay(d time.Duration) Option {
	return func(i *Interpreter) { i.greetingDelay = d }
}

// WithPublisher emits conversation events.
func WithPublisher(pub *events.Publisher) Option {
	return func(i *Interpreter) { i.publisher = pub }
}

// WithPool runs notifier calls on a frame worker pool.
func WithPool(pool workerpool.WorkerPool) Option {
	return func(i *Interpreter) { i.pool = pool }
}

// NewInterpreter creates an interpreter emitting through emitter and
// reporting completed conversations to notifier.
func NewInterpreter(emitter Emitter, notifier Notifier, opts ...Option) *Interpreter {
	i := &Interpreter{
		emitter:       emitter,
		notifier:      notifier,
		stepDelay:     DefaultStepDelay,
		greetingDelay: DefaultGreetingDelay,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start presents the first step of a freshly created session.
func (i *Interpreter) Start(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.Phase != PhaseIdle {
		return
	}

	s.Phase = PhasePresenting
	i.publish(s, events.SessionStarted, events.SessionStartedData{Steps: s.Script.StepCount()})
	s.schedule(i.greetingDelay, func() { i.emitStep(s) })
}

// Reply applies a visitor reply to the session. Replies that arrive while
// no answer is expected are ignored, as are blank replies to an input
// step. A blank reply to an options step is re-prompted like any other
// unmatched reply.
func (i *Interpreter) Reply(s *Session, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.Phase == PhaseCompleted {
		return
	}

	text = strings.TrimSpace(text)
	s.LastActivity = time.Now()

	step, err := s.Script.StepAt(s.Cursor)
	if err != nil {
		i.finalize(s)
		return
	}

	switch st := step.(type) {
	case script.Input:
		if !s.AwaitingInput || text == "" {
			return
		}
		field := st.Field()
		s.RecordAnswer(field, text)
		s.AwaitingInput = false
		s.PendingInputKind = ""
		s.WaitingForUserResponse = false
		i.publish(s, events.AnswerRecorded, events.AnswerRecordedData{Index: s.Cursor, Field: field})
		i.advance(s)

	case script.Options:
		if !s.WaitingForUserResponse {
			return
		}
		opt, ok := st.Match(text)
		if !ok {
			slog.DebugContext(s.ctx, "reply matched no option",
				slog.String("session_id", s.ID),
				slog.Int("step", s.Cursor),
				slog.String("error", ErrUnmatchedOption.Error()))
			i.publish(s, events.OptionUnmatched, events.OptionUnmatchedData{Index: s.Cursor, Reply: text})
			i.emit(s, Action{Type: ActionMessage, Text: s.Script.RepromptMessage(), IsBot: true})
			return
		}
		if st.SaveAs != "" {
			s.RecordAnswer(st.SaveAs, opt.Value)
			i.publish(s, events.AnswerRecorded, events.AnswerRecordedData{Index: s.Cursor, Field: st.SaveAs})
		}
		s.WaitingForUserResponse = false
		i.advance(s)
	}
}

// Close stops the session. Pending continuations become no-ops.
func (i *Interpreter) Close(s *Session, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimer()

	i.publish(s, events.SessionEnded, events.SessionEndedData{
		Reason:     reason,
		Completed:  s.finalized,
		DurationMs: time.Since(s.StartTime).Milliseconds(),
	})
	s.cancel()
}

// emitStep presents the step under the cursor. The caller holds s.mu.
func (i *Interpreter) emitStep(s *Session) {
	step, err := s.Script.StepAt(s.Cursor)
	if err != nil {
		if !errors.Is(err, script.ErrOutOfRange) {
			slog.WarnContext(s.ctx, "step lookup failed",
				slog.String("session_id", s.ID), slog.String("error", err.Error()))
		}
		i.finalize(s)
		return
	}

	s.Phase = PhasePresenting
	text := i.render(s, step.Prompt())
	i.publish(s, events.StepPresented, events.StepPresentedData{Index: s.Cursor, Kind: string(step.Kind())})

	switch st := step.(type) {
	case script.Message:
		i.emit(s, Action{Type: ActionMessage, Text: text, IsBot: true})
		if !s.WaitingForUserResponse {
			s.schedule(i.stepDelay, func() { i.advance(s) })
		}

	case script.Input:
		s.AwaitingInput = true
		s.PendingInputKind = st.InputType
		s.WaitingForUserResponse = true
		s.Phase = PhaseAwaitingReply
		i.emit(s, Action{Type: ActionMessage, Text: text, IsBot: true, AwaitingInput: true})

	case script.Options:
		s.WaitingForUserResponse = true
		s.Phase = PhaseAwaitingReply
		i.emit(s, Action{Type: ActionOptions, Text: text, IsBot: true, Options: st.Choices})
	}
}

// advance moves past the current step and presents the next one, or
// finalizes when the script is exhausted. The caller holds s.mu.
func (i *Interpreter) advance(s *Session) {
	if s.Advance() {
		i.emitStep(s)
		return
	}
	i.finalize(s)
}

// finalize completes the session exactly once. The caller holds s.mu.
func (i *Interpreter) finalize(s *Session) {
	if s.finalized {
		return
	}
	s.finalized = true
	s.stopTimer()
	s.AwaitingInput = false
	s.PendingInputKind = ""
	s.WaitingForUserResponse = false

	answers := maps.Clone(s.Answers)
	i.notify(s, answers)

	i.emit(s, Action{Type: ActionMessage, Text: s.Script.ClosingMessage(), IsBot: true, Finished: true})
	s.Phase = PhaseCompleted
	i.publish(s, events.SessionCompleted, events.LeadData{Answers: answers, CompletedAt: time.Now().UTC()})
}

// notify hands the answers to the notifier without waiting for it.
func (i *Interpreter) notify(s *Session, answers map[string]string) {
	if i.notifier == nil {
		return
	}
	id := s.ID
	ctx := events.WithSessionID(context.WithoutCancel(s.ctx), id)

	job := func() {
		if err := i.notifier.Notify(ctx, answers); err != nil {
			err = fmt.Errorf("%w: %w", ErrNotification, err)
			slog.ErrorContext(ctx, "lead notification failed",
				slog.String("session_id", id), slog.String("error", err.Error()))
			if i.publisher != nil {
				_ = i.publisher.Emit(ctx, events.NotifyFailed, id, events.NotifyFailedData{Error: err.Error()})
			}
			return
		}
		slog.InfoContext(ctx, "lead notification sent", slog.String("session_id", id))
	}

	if i.pool != nil {
		err := i.pool.Submit(ctx, job)
		if err == nil {
			return
		}
		slog.WarnContext(ctx, "worker pool rejected notification, using a goroutine",
			slog.String("session_id", id), slog.String("error", err.Error()))
	}
	go job()
}

func (i *Interpreter) emit(s *Session, a Action) {
	if err := i.emitter.Emit(s.ctx, s.ID, a); err != nil {
		slog.WarnContext(s.ctx, "emit failed",
			slog.String("session_id", s.ID), slog.String("error", err.Error()))
	}
}

func (i *Interpreter) render(s *Session, text string) string {
	out, err := RenderText(text, s.ID, s.Answers)
	if err != nil {
		slog.WarnContext(s.ctx, "step text render failed, using raw text",
			slog.String("session_id", s.ID), slog.String("error", err.Error()))
		return text
	}
	return out
}

func (i *Interpreter) publish(s *Session, eventType events.EventType, data any) {
	if i.publisher == nil {
		return
	}
	if err := i.publisher.Emit(s.ctx, eventType, s.ID, data); err != nil {
		slog.WarnContext(s.ctx, "event publish failed",
			slog.String("event_type", string(eventType)), slog.String("error", err.Error()))
	}
}
