package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leadchat/leadchat/pkg/conversation"
)

type fakeSender struct {
	sent []Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, m Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSender) Verify(context.Context) error { return f.err }

func testComposer(t *testing.T) Composer {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("tz database unavailable: %v", err)
	}
	return Composer{Company: "Acme", FromEmail: "leads@acme.test", To: "admin@acme.test", Location: loc}
}

func TestComposeLead(t *testing.T) {
	c := testComposer(t)
	at := time.Date(2026, 3, 5, 17, 30, 0, 0, time.UTC)

	m, err := c.Compose(map[string]string{
		"name":            "Maria",
		"interesse":       "produtos",
		"horario_contato": "tarde",
	}, at)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if m.Subject != "🎯 Novo Lead: Maria - produtos" {
		t.Errorf("subject = %q", m.Subject)
	}
	if m.FromName != "Acme - Leads" || m.FromEmail != "leads@acme.test" || m.To != "admin@acme.test" {
		t.Errorf("addresses = %q <%s> -> %s", m.FromName, m.FromEmail, m.To)
	}

	for _, want := range []string{
		"Nome: Maria",
		"Telefone: Não informado",
		"Data/Hora: 05/03/2026 14:30",
		"Melhor horário para contato: Tarde (13h às 18h)",
		"Interesse: produtos",
	} {
		if !strings.Contains(m.Text, want) {
			t.Errorf("text body missing %q:\n%s", want, m.Text)
		}
	}
	if !strings.Contains(m.HTML, "Informações Adicionais") || !strings.Contains(m.HTML, "Novo Lead Capturado - Acme") {
		t.Error("html body missing sections")
	}
}

func TestComposeDefaults(t *testing.T) {
	c := testComposer(t)
	c.FromName = "Equipe Comercial"

	m, err := c.Compose(map[string]string{}, time.Now())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if m.Subject != "🎯 Novo Lead: Cliente Interessado - Contato" {
		t.Errorf("subject = %q", m.Subject)
	}
	if m.FromName != "Equipe Comercial" {
		t.Errorf("from name = %q", m.FromName)
	}
	if strings.Contains(m.HTML, "Informações Adicionais") {
		t.Error("additional section should be omitted without extra answers")
	}
}

func TestComposeEscapesHTML(t *testing.T) {
	c := testComposer(t)
	m, err := c.Compose(map[string]string{"name": "<script>x</script>"}, time.Now())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if strings.Contains(m.HTML, "<script>") {
		t.Error("answers must be escaped in the html body")
	}
}

func TestLabelAndDisplayValue(t *testing.T) {
	tests := []struct {
		key, value     string
		label, display string
	}{
		{"interesse", "suporte", "Interesse", "suporte"},
		{"observacoes", "ok", "Observações", "ok"},
		{"horario_contato", "manha", "Melhor horário para contato", "Manhã (8h às 12h)"},
		{"horario_contato", "madrugada", "Melhor horário para contato", "madrugada"},
		{"empresa", "ACME", "Empresa", "ACME"},
		{"área", "TI", "Área", "TI"},
	}
	for _, tt := range tests {
		if got := Label(tt.key); got != tt.label {
			t.Errorf("Label(%q) = %q, want %q", tt.key, got, tt.label)
		}
		if got := DisplayValue(tt.key, tt.value); got != tt.display {
			t.Errorf("DisplayValue(%q, %q) = %q, want %q", tt.key, tt.value, got, tt.display)
		}
	}
}

func TestEmailNotify(t *testing.T) {
	sender := &fakeSender{}
	e := &Email{
		Sender:   sender,
		Composer: testComposer(t),
		Now:      func() time.Time { return time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC) },
	}

	if err := e.SendSample(context.Background()); err != nil {
		t.Fatalf("SendSample: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].Subject, "João da Silva (TESTE)") {
		t.Errorf("subject = %q", sender.sent[0].Subject)
	}

	sender.err = errors.New("535 auth failed")
	if err := e.Notify(context.Background(), map[string]string{"name": "x"}); err == nil {
		t.Error("expected send error")
	}

	e.Composer.To = ""
	if err := e.Notify(context.Background(), nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestMulti(t *testing.T) {
	var calls []string
	ok := conversation.NotifierFunc(func(context.Context, map[string]string) error {
		calls = append(calls, "ok")
		return nil
	})
	failing := conversation.NotifierFunc(func(context.Context, map[string]string) error {
		calls = append(calls, "fail")
		return errors.New("boom")
	})

	err := Multi{failing, nil, ok}.Notify(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v, want boom", err)
	}
	if strings.Join(calls, ",") != "fail,ok" {
		t.Errorf("calls = %v", calls)
	}

	if err := (Multi{ok}).Notify(context.Background(), nil); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}
