package models

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// MaxPoints bounds balances and single ledger amounts; the point columns are
// 32-bit integers.
const MaxPoints = math.MaxInt32

// User is a ledger account. Points is only written through the user ledger's
// ApplyDelta inside a unit of work.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Utorid       string     `gorm:"column:utorid;type:text;not null;uniqueIndex"`
	Name         string     `gorm:"column:name;not null"`
	Email        string     `gorm:"column:email;type:text;not null;uniqueIndex"`
	Role         enums.Role `gorm:"column:role;type:user_role;not null;default:regular"`
	Points       int        `gorm:"column:points;not null;default:0"`
	Verified     bool       `gorm:"column:verified;not null;default:false"`
	Suspicious   bool       `gorm:"column:suspicious;not null;default:false"`
	PasswordHash *string    `gorm:"column:password_hash"`
	Birthday     *string    `gorm:"column:birthday"`
	AvatarURL    *string    `gorm:"column:avatar_url"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Activated reports whether the user has logged in at least once.
func (u User) Activated() bool {
	return u.LastLoginAt != nil
}
