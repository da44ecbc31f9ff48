package promotions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/pagination"
)

type promotionRepository interface {
	Create(ctx context.Context, promo *models.Promotion) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Promotion, error)
	HasUsed(ctx context.Context, userID, promotionID uuid.UUID) (bool, error)
	List(ctx context.Context, filter ListFilter, viewer Viewer, now time.Time) ([]models.Promotion, int64, error)
	Updates(ctx context.Context, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service exposes the promotion catalog.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*PromotionDTO, error)
	Get(ctx context.Context, id uuid.UUID, viewer Viewer) (*PromotionDTO, error)
	List(ctx context.Context, filter ListFilter, viewer Viewer) (pagination.Page[PromotionDTO], error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*PromotionDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo promotionRepository
	now  func() time.Time
}

// NewService builds the catalog service. now defaults to time.Now.
func NewService(repo promotionRepository, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promotion repository required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, now: now}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*PromotionDTO, error) {
	now := s.now().UTC()
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Description) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name and description are required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "type must be automatic or one-time")
	}
	if input.StartTime.Before(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start time is in the past")
	}
	if !input.EndTime.After(input.StartTime) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time")
	}
	if err := validateAmounts(input.MinSpending, input.Rate, input.Points); err != nil {
		return nil, err
	}

	promo := &models.Promotion{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Type:        input.Type,
		StartTime:   input.StartTime.UTC(),
		EndTime:     input.EndTime.UTC(),
		MinSpending: nullDecimal(input.MinSpending),
		Rate:        nullDecimal(input.Rate),
		Points:      input.Points,
	}
	if err := s.repo.Create(ctx, promo); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create promotion")
	}
	dto := managerView(promo)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, viewer Viewer) (*PromotionDTO, error) {
	promo, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewer.isManager() {
		dto := managerView(promo)
		return &dto, nil
	}

	if !promo.ActiveAt(s.now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found or is not active")
	}
	if promo.Type.IsOneTime() {
		used, err := s.repo.HasUsed(ctx, viewer.UserID, promo.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check promotion usage")
		}
		if used {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found or is not active")
		}
	}
	dto := customerView(promo)
	return &dto, nil
}

func (s *service) List(ctx context.Context, filter ListFilter, viewer Viewer) (pagination.Page[PromotionDTO], error) {
	if viewer.isManager() && filter.Started != nil && filter.Ended != nil {
		return pagination.Page[PromotionDTO]{}, pkgerrors.New(pkgerrors.CodeValidation, "cannot filter by both started and ended")
	}
	rows, count, err := s.repo.List(ctx, filter, viewer, s.now().UTC())
	if err != nil {
		return pagination.Page[PromotionDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list promotions")
	}
	view := customerView
	if viewer.isManager() {
		view = managerView
	}
	page := pagination.Page[PromotionDTO]{Count: count, Results: make([]PromotionDTO, 0, len(rows))}
	for i := range rows {
		page.Results = append(page.Results, view(&rows[i]))
	}
	return page, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*PromotionDTO, error) {
	promo, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	if promo.Started(now) {
		frozen := []struct {
			field string
			set   bool
		}{
			{"name", input.Name != nil},
			{"description", input.Description != nil},
			{"type", input.Type != nil},
			{"startTime", input.StartTime != nil},
			{"minSpending", input.MinSpending != nil},
			{"rate", input.Rate != nil},
			{"points", input.Points != nil},
		}
		for _, f := range frozen {
			if f.set {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cannot update %s after the promotion has started", f.field))
			}
		}
	}
	if promo.Ended(now) && input.EndTime != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot update endTime after the promotion has ended")
	}
	if (input.StartTime != nil && input.StartTime.Before(now)) || (input.EndTime != nil && input.EndTime.Before(now)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start time or end time is in the past")
	}
	if err := validateAmounts(input.MinSpending, input.Rate, input.Points); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if input.Name != nil {
		fields["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		fields["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Type != nil {
		if !input.Type.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "type must be automatic or one-time")
		}
		fields["type"] = *input.Type
	}
	start, end := promo.StartTime, promo.EndTime
	if input.StartTime != nil {
		start = input.StartTime.UTC()
		fields["start_time"] = start
	}
	if input.EndTime != nil {
		end = input.EndTime.UTC()
		fields["end_time"] = end
	}
	if !end.After(start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time")
	}
	if input.MinSpending != nil {
		fields["min_spending"] = nullDecimal(input.MinSpending)
	}
	if input.Rate != nil {
		fields["rate"] = nullDecimal(input.Rate)
	}
	if input.Points != nil {
		fields["points"] = *input.Points
	}

	if len(fields) > 0 {
		if err := s.repo.Updates(ctx, id, fields); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update promotion")
		}
	}
	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := managerView(updated)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	promo, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if promo.Started(s.now().UTC()) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot delete a promotion that has already started")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete promotion")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Promotion, error) {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load promotion")
	}
	return promo, nil
}

func validateAmounts(minSpending, rate *decimal.Decimal, points *int) error {
	if minSpending != nil && minSpending.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "minSpending must be non-negative")
	}
	if rate != nil && rate.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "rate must be non-negative")
	}
	if points != nil && *points < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "points must be non-negative")
	}
	return nil
}
