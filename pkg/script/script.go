package script

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultReprompt is sent when a reply matches none of the offered options.
const DefaultReprompt = "Por favor, escolha uma das opções disponíveis."

var (
	// ErrConfiguration marks a malformed or missing script.
	ErrConfiguration = errors.New("invalid conversation script")
	// ErrOutOfRange is returned by StepAt for an index past the last step.
	ErrOutOfRange = errors.New("step index out of range")
)

// Script is the ordered, immutable list of conversation steps. It is safe
// for concurrent use.
type Script struct {
	steps    []Step
	closing  string
	reprompt string
}

// New validates steps and builds a Script.
func New(steps []Step, closing, reprompt string) (*Script, error) {
	if reprompt == "" {
		reprompt = DefaultReprompt
	}
	s := &Script{
		steps:    append([]Step(nil), steps...),
		closing:  closing,
		reprompt: reprompt,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the script invariants.
func (s *Script) Validate() error {
	if len(s.steps) == 0 {
		return fmt.Errorf("%w: conversation has no steps", ErrConfiguration)
	}
	for i, st := range s.steps {
		switch v := st.(type) {
		case Message:
		case Input:
			if !v.InputType.valid() {
				return fmt.Errorf("%w: step %d: unknown input_type %q", ErrConfiguration, i, v.InputType)
			}
			if v.InputType == InputText && strings.TrimSpace(v.SaveAs) == "" {
				return fmt.Errorf("%w: step %d: text input requires save_as", ErrConfiguration, i)
			}
		case Options:
			if len(v.Choices) == 0 {
				return fmt.Errorf("%w: step %d: options step has no options", ErrConfiguration, i)
			}
			for j, c := range v.Choices {
				if c.Value == "" {
					return fmt.Errorf("%w: step %d option %d: value is required", ErrConfiguration, i, j)
				}
			}
		default:
			return fmt.Errorf("%w: step %d: unsupported step %T", ErrConfiguration, i, st)
		}
	}
	return nil
}

// StepAt returns the step at index i.
func (s *Script) StepAt(i int) (Step, error) {
	if i < 0 || i >= len(s.steps) {
		return nil, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(s.steps))
	}
	return s.steps[i], nil
}

// StepCount returns the number of steps.
func (s *Script) StepCount() int { return len(s.steps) }

// ClosingMessage returns the message sent when a conversation completes.
func (s *Script) ClosingMessage() string { return s.closing }

// RepromptMessage returns the message sent for an unmatched option reply.
func (s *Script) RepromptMessage() string { return s.reprompt }
