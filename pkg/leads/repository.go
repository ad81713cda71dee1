package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/leadchat/leadchat/pkg/webhook"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// DBPool hands out gorm handles. frame's datastore pool satisfies it.
type DBPool interface {
	DB(ctx context.Context, readOnly bool) *gorm.DB
}

// Repository persists leads and webhook delivery records.
type Repository struct {
	pool DBPool
}

// NewRepository creates a new lead repository.
func NewRepository(pool DBPool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// Migrate creates or updates the tables this repository uses.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db(ctx, false).AutoMigrate(&Lead{}, &webhook.DeliveryAttempt{}, &webhook.DeadLetter{}); err != nil {
		return fmt.Errorf("migrate leads: %w", err)
	}
	return nil
}

// Save persists a new lead.
func (r *Repository) Save(ctx context.Context, l *Lead) error {
	return r.db(ctx, false).Create(l).Error
}

// MarkNotified records the outcome of notifying about a lead. A nil
// notifyErr marks it sent.
func (r *Repository) MarkNotified(ctx context.Context, id string, notifyErr error) error {
	updates := map[string]any{"status": StatusSent, "error": ""}
	if notifyErr != nil {
		updates["status"] = StatusFailed
		updates["error"] = notifyErr.Error()
	} else {
		updates["notified_at"] = time.Now().UTC()
	}

	res := r.db(ctx, false).Model(&Lead{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("lead %q: %w", id, ErrNotFound)
	}
	return nil
}

// Get returns a lead by ID.
func (r *Repository) Get(ctx context.Context, id string) (*Lead, error) {
	var l Lead
	err := r.db(ctx, true).Where("id = ?", id).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lead %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListRecent returns leads newest first.
func (r *Repository) ListRecent(ctx context.Context, limit, offset int) ([]Lead, error) {
	var out []Lead
	q := r.db(ctx, true).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	err := q.Find(&out).Error
	return out, err
}

// RecordDelivery persists a webhook delivery attempt.
func (r *Repository) RecordDelivery(ctx context.Context, da *webhook.DeliveryAttempt) error {
	return r.db(ctx, false).Create(da).Error
}

// ListDeliveries returns delivery attempts, newest first, optionally
// narrowed to one session.
func (r *Repository) ListDeliveries(ctx context.Context, sessionID string, limit int) ([]webhook.DeliveryAttempt, error) {
	var attempts []webhook.DeliveryAttempt
	q := r.db(ctx, true).Order("created_at DESC")
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&attempts).Error
	return attempts, err
}

// CreateDeadLetter persists a dead-lettered event.
func (r *Repository) CreateDeadLetter(ctx context.Context, dl *webhook.DeadLetter) error {
	return r.db(ctx, false).Create(dl).Error
}

// GetDeadLetter returns a single dead letter by its ID.
func (r *Repository) GetDeadLetter(ctx context.Context, id string) (*webhook.DeadLetter, error) {
	var dl webhook.DeadLetter
	err := r.db(ctx, true).Where("id = ?", id).First(&dl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("dead letter %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &dl, nil
}

// ListDeadLetters returns replayable dead letters, newest first.
func (r *Repository) ListDeadLetters(ctx context.Context) ([]webhook.DeadLetter, error) {
	var letters []webhook.DeadLetter
	err := r.db(ctx, true).
		Where("replayable = ?", true).
		Order("created_at DESC").
		Find(&letters).Error
	return letters, err
}

// MarkDeadLetterReplayed marks a dead letter as no longer replayable.
func (r *Repository) MarkDeadLetterReplayed(ctx context.Context, id string) error {
	return r.db(ctx, false).
		Model(&webhook.DeadLetter{}).
		Where("id = ?", id).
		Update("replayable", false).Error
}
