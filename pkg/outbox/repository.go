package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
)

var errNoTx = errors.New("outbox: transaction required")

// Repository reads and settles outbox_events rows. Every method runs on the
// caller's transaction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return tx.Create(&event).Error
}

// ClaimPending locks up to limit of the oldest unpublished rows with attempts
// left. Rows held by another relay are skipped, not waited on.
func (r *Repository) ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	var rows []models.OutboxEvent
	err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}).
		Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Order("created_at, id").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return r.settle(tx, id, map[string]any{
		"published_at":  at,
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// RecordFailure counts a failed attempt; the row stays pending.
func (r *Repository) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.settle(tx, id, map[string]any{
		"last_error":    models.TruncateError(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// Exhaust sets the attempt count to attempts so ClaimPending never returns
// the row again.
func (r *Repository) Exhaust(tx *gorm.DB, id uuid.UUID, cause error, attempts int) error {
	updates := map[string]any{"attempt_count": attempts}
	if cause != nil {
		updates["last_error"] = models.TruncateError(cause)
	}
	return r.settle(tx, id, updates)
}

func (r *Repository) settle(tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(updates).Error
}

// PurgeSettled deletes rows settled before cutoff: published ones, and
// unpublished ones whose attempts reached minAttempts.
func (r *Repository) PurgeSettled(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts int) (int64, error) {
	if tx == nil {
		return 0, errNoTx
	}
	published := gorm.Expr("published_at IS NOT NULL AND published_at < ?", cutoff)
	exhausted := gorm.Expr("published_at IS NULL AND attempt_count >= ? AND created_at < ?", minAttempts, cutoff)
	res := tx.WithContext(ctx).Where("(?) OR (?)", published, exhausted).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}
