package script

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Conversation is the `conversation` section of the widget document.
type Conversation struct {
	Steps           []StepSpec `json:"steps"            yaml:"steps"`
	ClosingMessage  string     `json:"closing_message"  yaml:"closing_message"`
	RepromptMessage string     `json:"reprompt_message" yaml:"reprompt_message"`
}

// StepSpec is the on-disk form of a Step, discriminated by Type.
type StepSpec struct {
	Type      string   `json:"type"                 yaml:"type"`
	Text      string   `json:"text"                 yaml:"text"`
	InputType string   `json:"input_type,omitempty" yaml:"input_type"`
	SaveAs    string   `json:"save_as,omitempty"    yaml:"save_as"`
	Options   []Option `json:"options,omitempty"    yaml:"options"`
}

type document struct {
	Conversation *Conversation `json:"conversation" yaml:"conversation"`
}

// Build converts the document form into a validated Script.
func (c Conversation) Build() (*Script, error) {
	steps := make([]Step, 0, len(c.Steps))
	for i, sp := range c.Steps {
		switch Kind(strings.ToLower(sp.Type)) {
		case KindMessage:
			steps = append(steps, Message{Text: sp.Text})
		case KindInput:
			steps = append(steps, Input{Text: sp.Text, InputType: InputKind(sp.InputType), SaveAs: sp.SaveAs})
		case KindOptions:
			steps = append(steps, Options{Text: sp.Text, Choices: sp.Options, SaveAs: sp.SaveAs})
		default:
			return nil, fmt.Errorf("%w: step %d: unknown type %q", ErrConfiguration, i, sp.Type)
		}
	}
	return New(steps, c.ClosingMessage, c.RepromptMessage)
}

// Parse decodes a widget document and builds its script. name selects the
// decoder by extension: .yaml and .yml use YAML, anything else JSON.
func Parse(name string, data []byte) (*Script, error) {
	var doc document
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: parse YAML: %v", ErrConfiguration, err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: parse JSON: %v", ErrConfiguration, err)
		}
	}
	if doc.Conversation == nil {
		return nil, fmt.Errorf("%w: missing conversation section", ErrConfiguration)
	}
	return doc.Conversation.Build()
}
