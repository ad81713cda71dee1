package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNotConfigured is returned when no admin address is set.
var ErrNotConfigured = errors.New("email notifier not configured")

// SampleLead is the lead sent by the test-lead route.
var SampleLead = map[string]string{
	"name":            "João da Silva (TESTE)",
	"phone":           "(11) 99999-9999",
	"email":           "joao.teste@example.com",
	"interesse":       "produtos",
	"horario_contato": "manha",
	"observacoes":     "Este é um teste do sistema de envio de emails. Pode ignorar esta mensagem.",
}

// Email notifies the administrator about each lead by email.
type Email struct {
	Sender   Sender
	Composer Composer
	Now      func() time.Time
}

// Notify implements conversation.Notifier.
func (e *Email) Notify(ctx context.Context, answers map[string]string) error {
	if e.Composer.To == "" {
		return ErrNotConfigured
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	m, err := e.Composer.Compose(answers, now())
	if err != nil {
		return err
	}
	if err := e.Sender.Send(ctx, m); err != nil {
		return err
	}
	slog.InfoContext(ctx, "lead email sent", slog.String("to", m.To), slog.String("subject", m.Subject))
	return nil
}

// Verify checks the mail server is reachable with the configured credentials.
func (e *Email) Verify(ctx context.Context) error {
	return e.Sender.Verify(ctx)
}

// SendSample emails the sample lead.
func (e *Email) SendSample(ctx context.Context) error {
	return e.Notify(ctx, SampleLead)
}
