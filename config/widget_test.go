package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leadchat/leadchat/pkg/script"
)

const widgetJSON = `{
	"company": {"name": "Acme", "logo": "https://acme.test/logo.png"},
	"smtp": {"host": "smtp.acme.test", "port": 587, "user": "bot@acme.test", "password": "s3cret"},
	"admin": {"email": "admin@acme.test"},
	"chat": {"title": "Fale conosco", "subtitle": "Online", "placeholder": "Digite...",
	         "colors": {"primary": "#25D366"}},
	"conversation": {"steps": [{"type": "message", "text": "Oi"}], "closing_message": "Tchau"}
}`

func writeWidget(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadWidget(t *testing.T) {
	w, err := LoadWidget(writeWidget(t, "config.json", widgetJSON))
	if err != nil {
		t.Fatalf("LoadWidget: %v", err)
	}
	if w.Company.Name != "Acme" || w.SMTP.Port != 587 || w.Admin.Email != "admin@acme.test" {
		t.Errorf("widget = %+v", w)
	}
	if len(w.Conversation.Steps) != 1 {
		t.Errorf("steps = %d, want 1", len(w.Conversation.Steps))
	}
	if w.SMTP.Sender() != "bot@acme.test" {
		t.Errorf("sender = %q, want smtp user", w.SMTP.Sender())
	}
}

func TestLoadWidgetYAML(t *testing.T) {
	path := writeWidget(t, "widget.yml", `
company:
  name: Acme
smtp:
  port: 465
  from_email: leads@acme.test
chat:
  colors:
    background: "#fff"
`)
	w, err := LoadWidget(path)
	if err != nil {
		t.Fatalf("LoadWidget: %v", err)
	}
	if w.SMTP.Port != 465 || w.SMTP.Sender() != "leads@acme.test" || w.Chat.Colors.Background != "#fff" {
		t.Errorf("widget = %+v", w)
	}
}

func TestLoadWidgetErrors(t *testing.T) {
	if _, err := LoadWidget(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, script.ErrConfiguration) {
		t.Errorf("missing file err = %v", err)
	}
	if _, err := LoadWidget(writeWidget(t, "bad.json", "{")); !errors.Is(err, script.ErrConfiguration) {
		t.Errorf("bad json err = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	w, err := LoadWidget(writeWidget(t, "config.json", widgetJSON))
	if err != nil {
		t.Fatalf("LoadWidget: %v", err)
	}

	err = w.ApplyEnv(envMap(map[string]string{
		"COMPANY_NAME":       `"Loja da Ana"`,
		"SMTP_PORT":          "465",
		"SMTP_PASS":          "override",
		"ADMIN_EMAIL":        "vendas@ana.test",
		"CHAT_TITLE":         "",
		"CHAT_COLOR_PRIMARY": "#000",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	tests := []struct {
		name, got, want string
	}{
		{"company quotes stripped", w.Company.Name, "Loja da Ana"},
		{"password", w.SMTP.Password, "override"},
		{"admin", w.Admin.Email, "vendas@ana.test"},
		{"empty env keeps document", w.Chat.Title, "Fale conosco"},
		{"color", w.Chat.Colors.Primary, "#000"},
		{"untouched logo", w.Company.Logo, "https://acme.test/logo.png"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if w.SMTP.Port != 465 {
		t.Errorf("port = %d, want 465", w.SMTP.Port)
	}

	if err := w.ApplyEnv(envMap(map[string]string{"SMTP_PORT": "abc"})); !errors.Is(err, script.ErrConfiguration) {
		t.Errorf("bad port err = %v", err)
	}
}

func TestPublicAndRedacted(t *testing.T) {
	w, err := LoadWidget(writeWidget(t, "config.json", widgetJSON))
	if err != nil {
		t.Fatalf("LoadWidget: %v", err)
	}

	pub := w.Public()
	if pub.Company.Name != "Acme" || pub.Chat.Colors.Primary != "#25D366" {
		t.Errorf("public = %+v", pub)
	}

	r := w.Redacted()
	if r.SMTP.Password != redacted {
		t.Errorf("password = %q, want redacted", r.SMTP.Password)
	}
	if len(r.Conversation.Steps) != 0 {
		t.Error("redacted copy should omit the conversation")
	}
	if w.SMTP.Password != "s3cret" {
		t.Error("Redacted must not modify the original")
	}
}

func TestServerConfigDurations(t *testing.T) {
	c := ServerConfig{StepDelayMs: 250, GreetingDelayMs: 0, SessionTTLMinutes: 5, AllowedOrigins: " https://a.test, ,https://b.test "}
	if c.StepDelay().Milliseconds() != 250 || c.GreetingDelay() != 0 || c.SessionTTL().Minutes() != 5 {
		t.Errorf("durations = %v %v %v", c.StepDelay(), c.GreetingDelay(), c.SessionTTL())
	}
	if got := c.Origins(); len(got) != 2 || got[1] != "https://b.test" {
		t.Errorf("origins = %v", got)
	}
}

func TestServerConfigLocation(t *testing.T) {
	c := ServerConfig{LeadTimezone: "Not/AZone"}
	if c.Location() != time.UTC {
		t.Errorf("unknown zone should fall back to UTC")
	}
	c.LeadTimezone = "UTC"
	if c.Location().String() != "UTC" {
		t.Errorf("location = %v", c.Location())
	}
}
