package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const notInformed = "Não informado"

// contactFields are shown in the contact block; every other answer is
// listed as additional information.
var contactFields = []string{"name", "phone", "email"}

var fieldLabels = map[string]string{
	"interesse":       "Interesse",
	"horario_contato": "Melhor horário para contato",
	"observacoes":     "Observações",
}

var contactTimes = map[string]string{
	"manha": "Manhã (8h às 12h)",
	"tarde": "Tarde (13h às 18h)",
	"noite": "Noite (19h às 21h)",
}

// Message is a rendered lead email.
type Message struct {
	FromName  string
	FromEmail string
	To        string
	Subject   string
	Text      string
	HTML      string
}

// Field is one labelled answer.
type Field struct {
	Label string
	Value string
}

// Composer renders lead emails for a company.
type Composer struct {
	Company   string
	FromName  string
	FromEmail string
	To        string
	Location  *time.Location
}

// Compose renders the email for a lead captured at the given time.
func (c Composer) Compose(answers map[string]string, at time.Time) (Message, error) {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}

	fromName := c.FromName
	if fromName == "" {
		fromName = c.Company + " - Leads"
	}

	data := emailData{
		Company:    c.Company,
		Name:       valueOr(answers["name"], notInformed),
		Phone:      valueOr(answers["phone"], notInformed),
		Email:      valueOr(answers["email"], notInformed),
		CapturedAt: at.In(loc).Format("02/01/2006 15:04"),
		Extra:      AdditionalFields(answers),
	}

	var html bytes.Buffer
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}

	return Message{
		FromName:  fromName,
		FromEmail: c.FromEmail,
		To:        c.To,
		Subject: fmt.Sprintf("🎯 Novo Lead: %s - %s",
			valueOr(answers["name"], "Cliente Interessado"),
			valueOr(answers["interesse"], "Contato")),
		Text: renderText(data),
		HTML: html.String(),
	}, nil
}

// AdditionalFields returns the non-contact answers with friendly labels,
// ordered by key.
func AdditionalFields(answers map[string]string) []Field {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		if !slices.Contains(contactFields, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, Field{Label: Label(k), Value: DisplayValue(k, answers[k])})
	}
	return out
}

// Label returns the display label for an answer key.
func Label(key string) string {
	if l, ok := fieldLabels[key]; ok {
		return l
	}
	r, size := utf8.DecodeRuneInString(key)
	if r == utf8.RuneError {
		return key
	}
	return string(unicode.ToUpper(r)) + key[size:]
}

// DisplayValue maps stored answer values to their display form.
func DisplayValue(key, value string) string {
	if key == "horario_contato" {
		if v, ok := contactTimes[value]; ok {
			return v
		}
	}
	return value
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

type emailData struct {
	Company    string
	Name       string
	Phone      string
	Email      string
	CapturedAt string
	Extra      []Field
}

func renderText(d emailData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Novo Lead Capturado - %s\n\n", d.Company)
	fmt.Fprintf(&b, "Nome: %s\n", d.Name)
	fmt.Fprintf(&b, "Telefone: %s\n", d.Phone)
	fmt.Fprintf(&b, "E-mail: %s\n", d.Email)
	fmt.Fprintf(&b, "Data/Hora: %s\n", d.CapturedAt)
	if len(d.Extra) > 0 {
		b.WriteString("\n")
		for _, f := range d.Extra {
			fmt.Fprintf(&b, "%s: %s\n", f.Label, f.Value)
		}
	}
	return b.String()
}

var htmlTemplate = template.Must(template.New("lead").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .header { background: #25D366; color: white; padding: 20px; text-align: center; }
    .content { padding: 20px; }
    .section { margin-bottom: 20px; }
    .data-list { background: #f9f9f9; padding: 15px; border-left: 4px solid #25D366; }
    ul { list-style: none; padding: 0; }
    li { padding: 5px 0; border-bottom: 1px solid #eee; }
    .highlight { color: #25D366; font-weight: bold; }
    .footer { background: #f1f1f1; padding: 15px; text-align: center; font-size: 12px; color: #666; }
  </style>
</head>
<body>
  <div class="header">
    <h2>🎯 Novo Lead Capturado - {{.Company}}</h2>
  </div>
  <div class="content">
    <div class="section">
      <h3>📋 Dados do Cliente:</h3>
      <div class="data-list">
        <ul>
          <li><strong>👤 Nome:</strong> <span class="highlight">{{.Name}}</span></li>
          <li><strong>📱 Telefone:</strong> <span class="highlight">{{.Phone}}</span></li>
          <li><strong>📧 E-mail:</strong> <span class="highlight">{{.Email}}</span></li>
          <li><strong>🕐 Data/Hora:</strong> {{.CapturedAt}}</li>
        </ul>
      </div>
    </div>
{{- if .Extra}}
    <div class="section">
      <h3>💬 Informações Adicionais:</h3>
      <div class="data-list">
        <ul>
{{- range .Extra}}
          <li><strong>{{.Label}}:</strong> {{.Value}}</li>
{{- end}}
        </ul>
      </div>
    </div>
{{- end}}
    <div class="section">
      <p><strong>⚡ Ação Recomendada:</strong> Entre em contato com o cliente o mais breve possível para não perder a oportunidade!</p>
    </div>
  </div>
  <div class="footer">
    <p>Este lead foi capturado através do widget de chat do site {{.Company}}</p>
  </div>
</body>
</html>
`))
