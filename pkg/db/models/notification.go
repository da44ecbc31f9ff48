package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// MaxNotificationMessageLen bounds the stored message in runes.
const MaxNotificationMessageLen = 500

// Notification is a stored inbox entry delivered by the notification sink.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	Kind      enums.NotificationKind `gorm:"column:kind;type:notification_kind;not null"`
	Message   string                 `gorm:"column:message;type:text;not null"`
	ReadAt    *time.Time             `gorm:"column:read_at;type:timestamptz"`
	CreatedAt time.Time              `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
}

// Unread reports whether the owner has not opened the entry yet.
func (n Notification) Unread() bool { return n.ReadAt == nil }
