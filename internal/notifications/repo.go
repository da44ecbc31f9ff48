package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/pagination"
)

// Repository is the stored inbox.
type Repository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, q inboxQuery) ([]models.Notification, int64, error)
	// MarkRead reports whether the notification exists for userID. Marking an
	// already-read entry keeps its original read_at.
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type inboxQuery struct {
	UserID     uuid.UUID
	Page       pagination.Params
	UnreadOnly bool
}

type inbox struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &inbox{db: db}
}

func (r *inbox) owned(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}

func (r *inbox) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(n).Error
}

// List returns newest first; id breaks ties between entries from one commit.
func (r *inbox) List(ctx context.Context, q inboxQuery) ([]models.Notification, int64, error) {
	base := r.owned(ctx, q.UserID)
	if q.UnreadOnly {
		base = base.Where("read_at IS NULL")
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.Notification{}, 0, nil
	}
	var rows []models.Notification
	err := base.Session(&gorm.Session{}).
		Scopes(q.Page.Scope()).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	return rows, total, err
}

func (r *inbox) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error) {
	res := r.owned(ctx, userID).
		Where("id = ?", notificationID).
		UpdateColumn("read_at", gorm.Expr("COALESCE(read_at, ?)", now))
	return res.RowsAffected > 0, res.Error
}

func (r *inbox) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.owned(ctx, userID).Where("read_at IS NULL").UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

// DeleteOlderThan is the retention sweep; read state does not matter.
func (r *inbox) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
