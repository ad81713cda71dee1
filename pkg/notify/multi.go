package notify

import (
	"context"
	"errors"

	"github.com/leadchat/leadchat/pkg/conversation"
)

// Multi notifies every notifier in order. It fails if any of them fails.
type Multi []conversation.Notifier

// Notify implements conversation.Notifier.
func (m Multi) Notify(ctx context.Context, answers map[string]string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, answers); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
