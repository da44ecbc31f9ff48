package models

import (
	"time"

	"github.com/google/uuid"
)

// PasswordReset is a single-use activation or reset token.
type PasswordReset struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null"`
	Token     string     `gorm:"column:token;type:text;not null;uniqueIndex"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (p PasswordReset) Active(now time.Time) bool {
	return p.UsedAt == nil && now.Before(p.ExpiresAt)
}
