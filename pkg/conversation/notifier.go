package conversation

import "context"

// Notifier is told about every completed conversation. A nil error means
// the lead was delivered; failures are logged and never retried here.
type Notifier interface {
	Notify(ctx context.Context, answers map[string]string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, answers map[string]string) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, answers map[string]string) error {
	return f(ctx, answers)
}
