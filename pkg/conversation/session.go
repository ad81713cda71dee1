package conversation

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/leadchat/leadchat/pkg/script"
)

// Phase is where a session is in the step machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePresenting
	PhaseAwaitingReply
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePresenting:
		return "presenting"
	case PhaseAwaitingReply:
		return "awaiting_reply"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Session is the per-visitor conversation state. It keeps the script it
// started with, so reloading the script never affects it.
//
// The exported state methods do not lock; the Interpreter serialises all
// access through the session mutex.
type Session struct {
	mu sync.Mutex

	ID     string
	Script *script.Script

	Cursor                 int
	Answers                map[string]string
	AwaitingInput          bool
	PendingInputKind       script.InputKind
	WaitingForUserResponse bool
	Phase                  Phase

	StartTime    time.Time
	LastActivity time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	timer     *time.Timer
	timerGen  uint64
	closed    bool
	finalized bool
}

// NewSession creates a session positioned on the first step.
func NewSession(id string, s *script.Script) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Session{
		ID:           id,
		Script:       s,
		Answers:      make(map[string]string),
		StartTime:    now,
		LastActivity: now,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RecordAnswer stores value under field. Later writes win.
func (s *Session) RecordAnswer(field, value string) {
	s.Answers[field] = value
}

// Advance moves the cursor one step forward and reports whether a step
// remains at the new position. The cursor never passes the end.
func (s *Session) Advance() bool {
	if s.Cursor < s.Script.StepCount() {
		s.Cursor++
	}
	return s.Cursor < s.Script.StepCount()
}

// IsComplete reports whether the cursor is past the last step.
func (s *Session) IsComplete() bool {
	return s.Cursor >= s.Script.StepCount()
}

// State is a point-in-time copy of a session.
type State struct {
	ID                     string
	Cursor                 int
	Answers                map[string]string
	AwaitingInput          bool
	PendingInputKind       script.InputKind
	WaitingForUserResponse bool
	Phase                  Phase
	StartTime              time.Time
	LastActivity           time.Time
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		ID:                     s.ID,
		Cursor:                 s.Cursor,
		Answers:                maps.Clone(s.Answers),
		AwaitingInput:          s.AwaitingInput,
		PendingInputKind:       s.PendingInputKind,
		WaitingForUserResponse: s.WaitingForUserResponse,
		Phase:                  s.Phase,
		StartTime:              s.StartTime,
		LastActivity:           s.LastActivity,
	}
}

func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastActivity
}

// schedule runs fn after d under the session lock, unless the session is
// closed or another continuation was scheduled since. The caller holds
// the lock. A zero delay runs fn inline.
func (s *Session) schedule(d time.Duration, fn func()) {
	s.stopTimer()
	if d <= 0 {
		fn()
		return
	}
	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || gen != s.timerGen {
			return
		}
		s.timer = nil
		fn()
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}
