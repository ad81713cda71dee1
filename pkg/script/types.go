package script

import "strings"

// Kind identifies the variant of a Step.
type Kind string

const (
	KindMessage Kind = "message"
	KindInput   Kind = "input"
	KindOptions Kind = "options"
)

// InputKind selects where a free-text reply is stored.
type InputKind string

const (
	InputName  InputKind = "name"
	InputPhone InputKind = "phone"
	InputEmail InputKind = "email"
	InputText  InputKind = "text"
)

func (k InputKind) valid() bool {
	switch k {
	case InputName, InputPhone, InputEmail, InputText:
		return true
	}
	return false
}

// Step is one scripted unit of the conversation. The set of implementations
// is closed: Message, Input and Options.
type Step interface {
	Kind() Kind
	Prompt() string
	isStep()
}

// Message is informational and auto-advances.
type Message struct {
	Text string
}

// Input expects exactly one free-text reply.
type Input struct {
	Text      string
	InputType InputKind
	SaveAs    string
}

// Options expects a reply matching one of Choices.
type Options struct {
	Text    string
	Choices []Option
	SaveAs  string
}

// Option is a selectable (value, label) pair.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Text  string `json:"text"  yaml:"text"`
}

func (Message) Kind() Kind { return KindMessage }
func (Input) Kind() Kind   { return KindInput }
func (Options) Kind() Kind { return KindOptions }

func (m Message) Prompt() string { return m.Text }
func (i Input) Prompt() string   { return i.Text }
func (o Options) Prompt() string { return o.Text }

func (Message) isStep() {}
func (Input) isStep()   {}
func (Options) isStep() {}

// Field returns the answer key a reply to this step is stored under.
func (i Input) Field() string {
	if i.InputType == InputText {
		return i.SaveAs
	}
	return string(i.InputType)
}

// Match returns the first choice whose value or label equals reply,
// ignoring case.
func (o Options) Match(reply string) (Option, bool) {
	for _, c := range o.Choices {
		if strings.EqualFold(c.Value, reply) || strings.EqualFold(c.Text, reply) {
			return c, true
		}
	}
	return Option{}, false
}
