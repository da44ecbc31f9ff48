package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// UserDTO is the transport shape that omits credentials. Cashier views leave
// the manager-only fields empty.
type UserDTO struct {
	ID         uuid.UUID          `json:"id"`
	Utorid     string             `json:"utorid"`
	Name       string             `json:"name"`
	Email      string             `json:"email,omitempty"`
	Birthday   *string            `json:"birthday,omitempty"`
	Role       enums.Role         `json:"role,omitempty"`
	Points     int                `json:"points"`
	CreatedAt  *time.Time         `json:"createdAt,omitempty"`
	LastLogin  *time.Time         `json:"lastLogin,omitempty"`
	Verified   bool               `json:"verified"`
	Suspicious *bool              `json:"suspicious,omitempty"`
	AvatarURL  *string            `json:"avatarUrl,omitempty"`
	Promotions []PromotionSummary `json:"promotions,omitempty"`
}

// PromotionSummary lists a one-time promotion the user can still redeem.
type PromotionSummary struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	MinSpending *decimal.Decimal `json:"minSpending"`
	Rate        *decimal.Decimal `json:"rate"`
	Points      *int             `json:"points"`
}

// RegisterInput carries the fields a cashier supplies when enrolling a user.
type RegisterInput struct {
	Utorid string
	Name   string
	Email  string
}

// RegisterResult echoes the new account with its activation token.
type RegisterResult struct {
	ID         uuid.UUID `json:"id"`
	Utorid     string    `json:"utorid"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Verified   bool      `json:"verified"`
	ExpiresAt  time.Time `json:"expiresAt"`
	ResetToken string    `json:"resetToken"`
}

// ListFilter narrows the manager user list.
type ListFilter struct {
	Name      string
	Role      *enums.Role
	Verified  *bool
	Activated *bool
	Page      int
	Limit     int
}

// UpdateInput is the manager patch; nil fields are left unchanged.
type UpdateInput struct {
	Email      *string
	Verified   *bool
	Suspicious *bool
	Role       *enums.Role
}

// ProfileInput is the self-service patch.
type ProfileInput struct {
	Name      *string
	Email     *string
	Birthday  *string
	AvatarURL *string
}

func fullView(u *models.User) *UserDTO {
	createdAt := u.CreatedAt
	suspicious := u.Suspicious
	return &UserDTO{
		ID:         u.ID,
		Utorid:     u.Utorid,
		Name:       u.Name,
		Email:      u.Email,
		Birthday:   u.Birthday,
		Role:       u.Role,
		Points:     u.Points,
		CreatedAt:  &createdAt,
		LastLogin:  u.LastLoginAt,
		Verified:   u.Verified,
		Suspicious: &suspicious,
		AvatarURL:  u.AvatarURL,
	}
}

func cashierView(u *models.User) *UserDTO {
	return &UserDTO{
		ID:       u.ID,
		Utorid:   u.Utorid,
		Name:     u.Name,
		Points:   u.Points,
		Verified: u.Verified,
	}
}

func summarize(promos []models.Promotion) []PromotionSummary {
	out := make([]PromotionSummary, 0, len(promos))
	for _, p := range promos {
		summary := PromotionSummary{ID: p.ID, Name: p.Name, Points: p.Points}
		if p.MinSpending.Valid {
			v := p.MinSpending.Decimal
			summary.MinSpending = &v
		}
		if p.Rate.Valid {
			v := p.Rate.Decimal
			summary.Rate = &v
		}
		out = append(out, summary)
	}
	return out
}
