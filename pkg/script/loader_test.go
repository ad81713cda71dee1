package script

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testDocumentJSON = `{
	"company": {"name": "Acme"},
	"conversation": {
		"steps": [
			{"type": "message", "text": "Oi!"},
			{"type": "options", "text": "Interesse?", "save_as": "interesse",
			 "options": [{"value": "produtos", "text": "Produtos"}]},
			{"type": "input", "text": "Nome?", "input_type": "name"},
			{"type": "input", "text": "Algo mais?", "input_type": "text", "save_as": "observacoes"}
		],
		"closing_message": "Obrigado!"
	}
}`

const testDocumentYAML = `
company:
  name: Acme
conversation:
  closing_message: "Valeu!"
  reprompt_message: "Escolha uma opção."
  steps:
    - type: message
      text: "Olá"
    - type: input
      text: "E-mail?"
      input_type: email
`

func TestLoaderJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(testDocumentJSON), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loader := NewLoader(path)
	s, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.StepCount() != 4 {
		t.Fatalf("steps = %d, want 4", s.StepCount())
	}
	st, _ := s.StepAt(1)
	opts, ok := st.(Options)
	if !ok {
		t.Fatalf("step 1 is %T, want Options", st)
	}
	if opts.SaveAs != "interesse" || len(opts.Choices) != 1 {
		t.Errorf("options = %+v", opts)
	}
	st, _ = s.StepAt(3)
	if in := st.(Input); in.Field() != "observacoes" {
		t.Errorf("field = %q, want observacoes", in.Field())
	}
	if loader.Current() != s {
		t.Error("Current should return the loaded script")
	}
}

func TestLoaderYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widget.yaml")
	if err := os.WriteFile(path, []byte(testDocumentYAML), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ClosingMessage() != "Valeu!" {
		t.Errorf("closing = %q", s.ClosingMessage())
	}
	if s.RepromptMessage() != "Escolha uma opção." {
		t.Errorf("reprompt = %q", s.RepromptMessage())
	}
}

func TestLoaderRejectsInvalidKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(testDocumentJSON), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loader := NewLoader(path)
	first, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	os.WriteFile(path, []byte(`{"conversation": {"steps": []}}`), 0644)
	if _, err := loader.Load(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if loader.Current() != first {
		t.Error("invalid reload must keep the previous script")
	}
}

func TestLoaderErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"missing conversation", "a.json", `{"company": {}}`},
		{"bad json", "b.json", `{{`},
		{"unknown step type", "c.json", `{"conversation": {"steps": [{"type": "video"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			os.WriteFile(path, []byte(tt.content), 0644)
			if _, err := NewLoader(path).Load(); !errors.Is(err, ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}

	if _, err := NewLoader(filepath.Join(dir, "missing.json")).Load(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("missing file err = %v, want ErrConfiguration", err)
	}
}

func waitForClosing(t *testing.T, loader *Loader, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for loader.Current().ClosingMessage() != want {
		if time.Now().After(deadline) {
			t.Fatalf("closing = %q, want %q", loader.Current().ClosingMessage(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatchAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	doc := func(closing string) []byte {
		return []byte(`{"conversation": {"steps": [{"type": "message", "text": "Oi"}], "closing_message": "` + closing + `"}}`)
	}
	if err := os.WriteFile(path, doc("v1"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	done := make(chan struct{})
	watchErr := make(chan error, 1)
	go func() { watchErr <- loader.WatchAndReload(done) }()
	defer func() {
		close(done)
		if err := <-watchErr; err != nil {
			t.Errorf("WatchAndReload: %v", err)
		}
	}()

	// The watcher registers asynchronously; keep rewriting until it sees a change.
	deadline := time.Now().Add(3 * time.Second)
	for loader.Current().ClosingMessage() != "v2" {
		if time.Now().After(deadline) {
			t.Fatal("watcher never reloaded the document")
		}
		os.WriteFile(path, doc("v2"), 0644)
		time.Sleep(50 * time.Millisecond)
	}

	os.WriteFile(filepath.Join(dir, "other.json"), doc("other"), 0644)
	os.WriteFile(path, []byte(`{"conversation": {"steps": []}}`), 0644)
	time.Sleep(200 * time.Millisecond)
	if got := loader.Current().ClosingMessage(); got != "v2" {
		t.Fatalf("closing after bad rewrite = %q, want v2 kept", got)
	}

	os.WriteFile(path, doc("v3"), 0644)
	waitForClosing(t, loader, "v3")
}
