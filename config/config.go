package config

import (
	"strings"
	"time"

	"github.com/pitabwire/frame/config"
)

// ServerConfig holds configuration for the lead chat server.
type ServerConfig struct {
	config.ConfigurationDefault

	// Widget document and assets
	WidgetConfigPath  string `envDefault:"./config.json" env:"WIDGET_CONFIG_PATH"`
	WatchWidgetConfig bool   `envDefault:"false"         env:"WATCH_WIDGET_CONFIG"`
	PublicDir         string `envDefault:"./public"      env:"PUBLIC_DIR"`

	// Conversation pacing
	StepDelayMs       int `envDefault:"1000" env:"STEP_DELAY_MS"`
	GreetingDelayMs   int `envDefault:"1000" env:"GREETING_DELAY_MS"`
	SessionTTLMinutes int `envDefault:"30"   env:"SESSION_TTL_MINUTES"`

	// HTTP surface
	AllowedOrigins string `envDefault:"*" env:"ALLOWED_ORIGINS"`
	// Static bearer token for operator routes in local development. Empty
	// means frame OAuth2 JWT authentication.
	AdminToken string `envDefault:"" env:"ADMIN_TOKEN"`

	// Lead email
	SMTPInsecureSkipVerify bool   `envDefault:"false"             env:"SMTP_INSECURE_SKIP_VERIFY"`
	LeadTimezone           string `envDefault:"America/Sao_Paulo" env:"LEAD_TIMEZONE"`

	// Webhooks
	LeadWebhookURL      string `envDefault:""      env:"LEAD_WEBHOOK_URL"`
	LeadWebhookSecret   string `envDefault:""      env:"LEAD_WEBHOOK_SECRET"`
	WebhookAllowPrivate bool   `envDefault:"false" env:"WEBHOOK_ALLOW_PRIVATE_IPS"`
	WebhookMaxRetries   int    `envDefault:"5"     env:"WEBHOOK_MAX_RETRIES"`
	WebhookTimeoutSec   int    `envDefault:"10"    env:"WEBHOOK_TIMEOUT_SEC"`
	WebhookBackoffSec   int    `envDefault:"1"     env:"WEBHOOK_BACKOFF_INITIAL_SEC"`
	WebhookBackoffMax   int    `envDefault:"300"   env:"WEBHOOK_BACKOFF_MAX_SEC"`
	CBFailThreshold     int    `envDefault:"5"     env:"CB_FAILURE_THRESHOLD"`
	CBResetTimeoutSec   int    `envDefault:"60"    env:"CB_RESET_TIMEOUT_SEC"`
}

// StepDelay is the pause before auto-advancing past a message step.
func (c *ServerConfig) StepDelay() time.Duration {
	return time.Duration(c.StepDelayMs) * time.Millisecond
}

// GreetingDelay is the pause between connect and the first step.
func (c *ServerConfig) GreetingDelay() time.Duration {
	return time.Duration(c.GreetingDelayMs) * time.Millisecond
}

// SessionTTL is how long an idle session survives.
func (c *ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Location is the zone lead timestamps are shown in. Unknown zones fall
// back to UTC.
func (c *ServerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.LeadTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Origins returns the allowed websocket origins. An empty list or "*"
// allows any origin.
func (c *ServerConfig) Origins() []string {
	return splitList(c.AllowedOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
