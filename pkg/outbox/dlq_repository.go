package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// DLQRepository parks ledger events the relay gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// ParkTx copies row into outbox_dlq with the reason it stopped retrying.
func (r *DLQRepository) ParkTx(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, at time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !reason.IsValid() {
		return errors.New("invalid dlq reason")
	}
	entry := row.DeadLetter(reason, cause, at)
	return tx.Create(&entry).Error
}

// Recent lists the newest parked events, for operators.
func (r *DLQRepository) Recent(ctx context.Context, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OutboxDLQ
	err := r.db.WithContext(ctx).
		Order("failed_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
