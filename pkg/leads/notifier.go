package leads

import (
	"context"
	"log/slog"

	"github.com/leadchat/leadchat/pkg/conversation"
	"github.com/leadchat/leadchat/pkg/events"
)

// RecordingNotifier stores every lead before handing it to the next
// notifier, then records whether that notification succeeded.
type RecordingNotifier struct {
	Repo *Repository
	Next conversation.Notifier
}

// Notify implements conversation.Notifier. Storage failures are logged;
// they never stop the lead from being delivered.
func (n *RecordingNotifier) Notify(ctx context.Context, answers map[string]string) error {
	lead := NewLead(events.SessionIDFrom(ctx), answers)
	saved := true
	if err := n.Repo.Save(ctx, lead); err != nil {
		saved = false
		slog.ErrorContext(ctx, "save lead failed",
			slog.String("session_id", lead.SessionID), slog.String("error", err.Error()))
	}

	var notifyErr error
	if n.Next != nil {
		notifyErr = n.Next.Notify(ctx, answers)
	}

	if saved {
		if err := n.Repo.MarkNotified(ctx, lead.ID, notifyErr); err != nil {
			slog.ErrorContext(ctx, "update lead status failed",
				slog.String("lead_id", lead.ID), slog.String("error", err.Error()))
		}
	}
	return notifyErr
}
