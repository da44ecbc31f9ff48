package promotions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// PromotionDTO is the API shape. StartTime is omitted from the customer view.
type PromotionDTO struct {
	ID          uuid.UUID           `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Type        enums.PromotionType `json:"type"`
	StartTime   *time.Time          `json:"startTime,omitempty"`
	EndTime     time.Time           `json:"endTime"`
	MinSpending *decimal.Decimal    `json:"minSpending"`
	Rate        *decimal.Decimal    `json:"rate"`
	Points      *int                `json:"points"`
}

// Viewer identifies who is reading the catalog.
type Viewer struct {
	UserID uuid.UUID
	Role   enums.Role
}

func (v Viewer) isManager() bool { return v.Role.AtLeast(enums.RoleManager) }

type CreateInput struct {
	Name        string
	Description string
	Type        enums.PromotionType
	StartTime   time.Time
	EndTime     time.Time
	MinSpending *decimal.Decimal
	Rate        *decimal.Decimal
	Points      *int
}

// UpdateInput is a partial patch; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string
	Description *string
	Type        *enums.PromotionType
	StartTime   *time.Time
	EndTime     *time.Time
	MinSpending *decimal.Decimal
	Rate        *decimal.Decimal
	Points      *int
}

type ListFilter struct {
	Name    string
	Type    *enums.PromotionType
	Started *bool
	Ended   *bool
	Page    int
	Limit   int
}

func managerView(p *models.Promotion) PromotionDTO {
	dto := customerView(p)
	start := p.StartTime
	dto.StartTime = &start
	return dto
}

func customerView(p *models.Promotion) PromotionDTO {
	dto := PromotionDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Type:        p.Type,
		EndTime:     p.EndTime,
		Points:      p.Points,
	}
	if p.MinSpending.Valid {
		v := p.MinSpending.Decimal
		dto.MinSpending = &v
	}
	if p.Rate.Valid {
		v := p.Rate.Decimal
		dto.Rate = &v
	}
	return dto
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
