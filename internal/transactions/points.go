package transactions

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
)

// MaxSpent is the largest purchase the spent column (numeric(12,2)) holds.
var MaxSpent = decimal.RequireFromString("9999999999.99")

var (
	centsPerPoint = decimal.RequireFromString("0.25")
	hundred       = decimal.NewFromInt(100)
	pointCeiling  = decimal.NewFromInt(models.MaxPoints)
)

// basePoints is one point per 25 cents, rounded half away from zero.
func basePoints(spent decimal.Decimal) decimal.Decimal {
	return spent.Div(centsPerPoint).Round(0)
}

// EarnedPoints totals the base rate plus the bonus of every promotion whose
// minimum spending is met. It also returns the promotions that contributed,
// in input order. Totals above models.MaxPoints are rejected.
func EarnedPoints(spent decimal.Decimal, promos []models.Promotion) (int, []models.Promotion, error) {
	earned := basePoints(spent)
	applied := make([]models.Promotion, 0, len(promos))
	for _, promo := range promos {
		if !promo.MeetsMinSpending(spent) {
			continue
		}
		if promo.Rate.Valid {
			earned = earned.Add(spent.Mul(promo.Rate.Decimal).Mul(hundred).Round(0))
		}
		if promo.Points != nil {
			earned = earned.Add(decimal.NewFromInt(int64(*promo.Points)))
		}
		applied = append(applied, promo)
	}
	if earned.GreaterThan(pointCeiling) {
		return 0, nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase earns more points than a balance can hold")
	}
	return int(earned.IntPart()), applied, nil
}

// mergePromotions appends the automatic promotions to the requested ones,
// dropping repeated ids.
func mergePromotions(requested, automatic []models.Promotion) []models.Promotion {
	seen := make(map[uuid.UUID]struct{}, len(requested)+len(automatic))
	out := make([]models.Promotion, 0, len(requested)+len(automatic))
	for _, list := range [][]models.Promotion{requested, automatic} {
		for _, promo := range list {
			if _, ok := seen[promo.ID]; ok {
				continue
			}
			seen[promo.ID] = struct{}{}
			out = append(out, promo)
		}
	}
	return out
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
