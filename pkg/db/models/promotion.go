package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// Promotion is a bonus rule applied to purchases inside [StartTime, EndTime).
type Promotion struct {
	ID          uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string              `gorm:"column:name;not null"`
	Description string              `gorm:"column:description;not null"`
	Type        enums.PromotionType `gorm:"column:type;type:promotion_type;not null"`
	StartTime   time.Time           `gorm:"column:start_time;not null"`
	EndTime     time.Time           `gorm:"column:end_time;not null"`
	MinSpending decimal.NullDecimal `gorm:"column:min_spending;type:numeric(12,2)"`
	Rate        decimal.NullDecimal `gorm:"column:rate;type:numeric(8,4)"`
	Points      *int                `gorm:"column:points"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p Promotion) Started(now time.Time) bool { return !now.Before(p.StartTime) }

func (p Promotion) Ended(now time.Time) bool { return !now.Before(p.EndTime) }

// ActiveAt reports whether now falls inside the validity window.
func (p Promotion) ActiveAt(now time.Time) bool {
	return p.Started(now) && !p.Ended(now)
}

// MeetsMinSpending reports whether spent satisfies the optional threshold.
func (p Promotion) MeetsMinSpending(spent decimal.Decimal) bool {
	if !p.MinSpending.Valid {
		return true
	}
	return spent.GreaterThanOrEqual(p.MinSpending.Decimal)
}

// PromotionUsage links a one-time promotion to a user who has consumed it.
type PromotionUsage struct {
	PromotionID uuid.UUID `gorm:"column:promotion_id;type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	UsedAt      time.Time `gorm:"column:used_at;autoCreateTime"`
}

func (PromotionUsage) TableName() string { return "promotion_usages" }
