package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leadchat/leadchat/pkg/conversation"
	"github.com/leadchat/leadchat/pkg/script"
)

type botFrame struct {
	Event string              `json:"event"`
	Data  conversation.Action `json:"data"`
}

type leadSink struct {
	mu      sync.Mutex
	answers []map[string]string
	got     chan struct{}
}

func (s *leadSink) Notify(_ context.Context, answers map[string]string) error {
	s.mu.Lock()
	s.answers = append(s.answers, answers)
	s.mu.Unlock()
	s.got <- struct{}{}
	return nil
}

func newTestServer(t *testing.T, origins []string) (*httptest.Server, *conversation.Service, *leadSink) {
	t.Helper()
	sc, err := script.New([]script.Step{
		script.Message{Text: "Oi!"},
		script.Options{Text: "Interesse?", SaveAs: "interesse", Choices: []script.Option{
			{Value: "produtos", Text: "Produtos"},
		}},
		script.Input{Text: "Nome?", InputType: script.InputName},
	}, "Obrigado!", "")
	if err != nil {
		t.Fatalf("script.New: %v", err)
	}

	sink := &leadSink{got: make(chan struct{}, 4)}
	hub := NewHub()
	interp := conversation.NewInterpreter(hub, sink,
		conversation.WithGreetingDelay(0),
		conversation.WithStepDelay(5*time.Millisecond))
	svc := conversation.NewService(script.Static{S: sc}, interp)

	mux := http.NewServeMux()
	NewChatHandler(svc, hub, origins).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		svc.Shutdown()
	})
	return ts, svc, sink
}

func wsURL(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	return u.String()
}

func readBot(t *testing.T, conn *websocket.Conn) conversation.Action {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f botFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if f.Event != "bot-message" {
		t.Fatalf("event = %q, want bot-message", f.Event)
	}
	return f.Data
}

func say(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	err := conn.WriteJSON(map[string]any{"event": "user-message", "data": map[string]string{"text": text}})
	if err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestChatConversationOverWebsocket(t *testing.T) {
	ts, _, sink := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(t, ts), nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	if a := readBot(t, conn); a.Text != "Oi!" || !a.IsBot {
		t.Fatalf("greeting = %+v", a)
	}
	opts := readBot(t, conn)
	if opts.Type != conversation.ActionOptions || len(opts.Options) != 1 {
		t.Fatalf("options = %+v", opts)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	say(t, conn, "produtos")
	if a := readBot(t, conn); !a.AwaitingInput {
		t.Fatalf("name prompt = %+v", a)
	}

	say(t, conn, "Maria")
	if a := readBot(t, conn); !a.Finished || a.Text != "Obrigado!" {
		t.Fatalf("closing = %+v", a)
	}

	select {
	case <-sink.got:
	case <-time.After(2 * time.Second):
		t.Fatal("lead was not notified")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if got := sink.answers[0]; got["interesse"] != "produtos" || got["name"] != "Maria" {
		t.Errorf("answers = %v", got)
	}
}

func TestChatDisconnectRemovesSession(t *testing.T) {
	ts, svc, _ := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(t, ts), nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	readBot(t, conn)
	if svc.Len() != 1 {
		t.Fatalf("sessions = %d, want 1", svc.Len())
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for svc.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestChatOriginCheck(t *testing.T) {
	ts, _, _ := newTestServer(t, []string{"https://acme.test"})

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"allowed origin", "https://acme.test", true},
		{"no origin", "", true},
		{"cross origin", "https://evil.test", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.origin != "" {
				headers.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(t, ts), headers)
			if tt.ok {
				if err != nil {
					t.Fatalf("dial: %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("expected cross-origin dial to fail")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Fatalf("response = %+v, want 403", resp)
			}
		})
	}
}

func TestHubEmitUnknownSession(t *testing.T) {
	hub := NewHub()
	err := hub.Emit(context.Background(), "nobody", conversation.Action{Text: "x"})
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
}

// lockingService ends sessions under a lock, the way the interpreter
// takes the session lock in Close.
type lockingService struct {
	mu    *sync.Mutex
	ended []string
}

func (s *lockingService) OnConnect(context.Context, string) (*conversation.Session, error) {
	return nil, nil
}

func (s *lockingService) OnMessage(context.Context, string, string) error { return nil }

func (s *lockingService) OnDisconnect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, id)
}

func TestDisconnectReleasesBlockedEmit(t *testing.T) {
	sessionLock := &sync.Mutex{}
	svc := &lockingService{mu: sessionLock}
	hub := NewHub()
	h := &ChatHandler{svc: svc, hub: hub}

	c := newClient("sess-1", nil)
	for range sendQueueSize {
		c.out <- outboundFrame{Event: eventBotMessage}
	}
	hub.add(c)

	locked := make(chan struct{})
	emitErr := make(chan error, 1)
	go func() {
		sessionLock.Lock()
		defer sessionLock.Unlock()
		close(locked)
		emitErr <- hub.Emit(context.Background(), "sess-1", conversation.Action{Text: "late"})
	}()
	<-locked
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	h.disconnect(c)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("disconnect took %v, want prompt release", elapsed)
	}

	select {
	case err := <-emitErr:
		if !errors.Is(err, errConnClosed) {
			t.Errorf("emit err = %v, want errConnClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("emit still blocked after disconnect")
	}
	if len(svc.ended) != 1 || svc.ended[0] != "sess-1" {
		t.Errorf("ended = %v", svc.ended)
	}
	if hub.Len() != 0 {
		t.Errorf("hub connections = %d, want 0", hub.Len())
	}
}
