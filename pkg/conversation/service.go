package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"

	"github.com/leadchat/leadchat/pkg/script"
)

const (
	DefaultSessionTTL = 30 * time.Minute
	reaperInterval    = 1 * time.Minute
)

// Service is the entry point for transport adapters. It owns the registry
// of live sessions and routes connect, message and disconnect signals to
// the interpreter.
type Service struct {
	source script.Source
	interp *Interpreter
	pool   workerpool.WorkerPool
	ttl    time.Duration
	every  time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSessionTTL sets how long a session may stay idle before the reaper
// closes it.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.ttl = ttl }
}

// WithReaperPool runs the reaper on a frame worker pool.
func WithReaperPool(pool workerpool.WorkerPool) ServiceOption {
	return func(s *Service) { s.pool = pool }
}

// NewService creates a service running sessions from the scripts source hands out.
func NewService(source script.Source, interp *Interpreter, opts ...ServiceOption) *Service {
	svc := &Service{
		source:   source,
		interp:   interp,
		ttl:      DefaultSessionTTL,
		every:    reaperInterval,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// OnConnect creates a session for a new connection and presents the
// first step.
func (svc *Service) OnConnect(ctx context.Context, id string) (*Session, error) {
	sc := svc.source.Current()
	if sc == nil {
		return nil, fmt.Errorf("%w: no script loaded", script.ErrConfiguration)
	}

	sess := NewSession(id, sc)

	svc.mu.Lock()
	if _, exists := svc.sessions[id]; exists {
		svc.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	svc.sessions[id] = sess
	svc.mu.Unlock()

	slog.InfoContext(ctx, "session connected",
		slog.String("session_id", id), slog.Int("steps", sc.StepCount()))
	svc.interp.Start(sess)
	return sess, nil
}

// OnMessage routes a visitor reply to its session.
func (svc *Service) OnMessage(ctx context.Context, id, text string) error {
	sess, ok := svc.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	svc.interp.Reply(sess, text)
	return nil
}

// OnDisconnect discards the session. Unknown ids are ignored.
func (svc *Service) OnDisconnect(id string) {
	svc.mu.Lock()
	sess, ok := svc.sessions[id]
	delete(svc.sessions, id)
	svc.mu.Unlock()

	if !ok {
		return
	}
	svc.interp.Close(sess, "disconnect")
	slog.Info("session disconnected", slog.String("session_id", id))
}

// Get returns the live session with the given id.
func (svc *Service) Get(id string) (*Session, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	sess, ok := svc.sessions[id]
	return sess, ok
}

// Len returns the number of live sessions.
func (svc *Service) Len() int {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return len(svc.sessions)
}

// Shutdown closes every live session.
func (svc *Service) Shutdown() {
	svc.mu.Lock()
	all := svc.sessions
	svc.sessions = make(map[string]*Session)
	svc.mu.Unlock()

	for _, sess := range all {
		svc.interp.Close(sess, "shutdown")
	}
}

// StartReaper begins the background idle-session reaper.
func (svc *Service) StartReaper(ctx context.Context) {
	reap := func() {
		ticker := time.NewTicker(svc.every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				svc.reapIdle(time.Now())
			}
		}
	}
	if svc.pool != nil {
		err := svc.pool.Submit(ctx, reap)
		if err == nil {
			return
		}
		slog.WarnContext(ctx, "worker pool rejected session reaper, using a goroutine",
			slog.String("error", err.Error()))
	}
	go reap()
}

// reapIdle closes sessions idle for longer than the TTL and returns how
// many it closed.
func (svc *Service) reapIdle(now time.Time) int {
	var stale []*Session

	svc.mu.Lock()
	for id, sess := range svc.sessions {
		if now.Sub(sess.lastActivity()) > svc.ttl {
			stale = append(stale, sess)
			delete(svc.sessions, id)
		}
	}
	svc.mu.Unlock()

	for _, sess := range stale {
		slog.Warn("reaping idle chat session", slog.String("session_id", sess.ID))
		svc.interp.Close(sess, "expired")
	}
	return len(stale)
}
