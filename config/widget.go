package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leadchat/leadchat/pkg/script"
)

const redacted = "***HIDDEN***"

// Widget is the widget document: branding, mail settings and the
// conversation script.
type Widget struct {
	Company      Company             `json:"company"      yaml:"company"`
	SMTP         SMTP                `json:"smtp"         yaml:"smtp"`
	Admin        Admin               `json:"admin"        yaml:"admin"`
	Chat         Chat                `json:"chat"         yaml:"chat"`
	Conversation script.Conversation `json:"conversation" yaml:"conversation"`
}

type Company struct {
	Name string `json:"name"           yaml:"name"`
	Logo string `json:"logo,omitempty" yaml:"logo"`
}

type SMTP struct {
	Host      string `json:"host"       yaml:"host"`
	Port      int    `json:"port"       yaml:"port"`
	User      string `json:"user"       yaml:"user"`
	Password  string `json:"password"   yaml:"password"`
	FromEmail string `json:"from_email" yaml:"from_email"`
	FromName  string `json:"from_name"  yaml:"from_name"`
}

// Sender returns the envelope sender, falling back to the SMTP user.
func (s SMTP) Sender() string {
	if s.FromEmail != "" {
		return s.FromEmail
	}
	return s.User
}

type Admin struct {
	Email string `json:"email" yaml:"email"`
}

type Chat struct {
	Title       string `json:"title"       yaml:"title"`
	Subtitle    string `json:"subtitle"    yaml:"subtitle"`
	Placeholder string `json:"placeholder" yaml:"placeholder"`
	Colors      Colors `json:"colors"      yaml:"colors"`
}

type Colors struct {
	Primary    string `json:"primary,omitempty"    yaml:"primary"`
	Secondary  string `json:"secondary,omitempty"  yaml:"secondary"`
	Text       string `json:"text,omitempty"       yaml:"text"`
	Background string `json:"background,omitempty" yaml:"background"`
}

// LoadWidget reads the widget document at path. YAML is used for .yaml
// and .yml files, JSON otherwise.
func LoadWidget(path string) (*Widget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", script.ErrConfiguration, path, err)
	}

	var w Widget
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &w)
	default:
		err = json.Unmarshal(data, &w)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %q: %v", script.ErrConfiguration, path, err)
	}
	return &w, nil
}

// LookupFunc looks up an environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays non-empty environment variables onto the document.
func (w *Widget) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}
	set := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	if v, ok := get("COMPANY_NAME"); ok {
		w.Company.Name = strings.ReplaceAll(v, `"`, "")
	}
	set("COMPANY_LOGO", &w.Company.Logo)
	set("SMTP_HOST", &w.SMTP.Host)
	if v, ok := get("SMTP_PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: SMTP_PORT %q is not a number", script.ErrConfiguration, v)
		}
		w.SMTP.Port = port
	}
	set("SMTP_USER", &w.SMTP.User)
	set("SMTP_PASS", &w.SMTP.Password)
	set("SMTP_FROM_EMAIL", &w.SMTP.FromEmail)
	set("SMTP_FROM_NAME", &w.SMTP.FromName)
	set("ADMIN_EMAIL", &w.Admin.Email)
	set("CHAT_TITLE", &w.Chat.Title)
	set("CHAT_SUBTITLE", &w.Chat.Subtitle)
	set("CHAT_PLACEHOLDER", &w.Chat.Placeholder)
	set("CHAT_COLOR_PRIMARY", &w.Chat.Colors.Primary)
	set("CHAT_COLOR_SECONDARY", &w.Chat.Colors.Secondary)
	set("CHAT_COLOR_TEXT", &w.Chat.Colors.Text)
	set("CHAT_COLOR_BACKGROUND", &w.Chat.Colors.Background)
	return nil
}

// PublicChat is the subset of the document the embedded widget may see.
type PublicChat struct {
	Company Company `json:"company"`
	Chat    Chat    `json:"chat"`
}

// Public returns the widget-facing subset of the document.
func (w *Widget) Public() PublicChat {
	return PublicChat{Company: w.Company, Chat: w.Chat}
}

// Redacted returns a copy safe to show to operators, without secrets or
// the conversation script.
func (w *Widget) Redacted() Widget {
	cp := *w
	cp.Conversation = script.Conversation{}
	if cp.SMTP.Password != "" {
		cp.SMTP.Password = redacted
	}
	return cp
}
