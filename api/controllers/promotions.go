package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/campus-loyalty/api/responses"
	"github.com/angelmondragon/campus-loyalty/api/validators"
	"github.com/angelmondragon/campus-loyalty/internal/promotions"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

type createPromotionRequest struct {
	Name        string           `json:"name" validate:"required,max=100"`
	Description string           `json:"description" validate:"max=1000"`
	Type        string           `json:"type" validate:"required"`
	StartTime   time.Time        `json:"startTime" validate:"required"`
	EndTime     time.Time        `json:"endTime" validate:"required"`
	MinSpending *decimal.Decimal `json:"minSpending"`
	Rate        *decimal.Decimal `json:"rate"`
	Points      *int             `json:"points" validate:"omitempty,gte=0"`
}

type updatePromotionRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string          `json:"description" validate:"omitempty,max=1000"`
	Type        *string          `json:"type"`
	StartTime   *time.Time       `json:"startTime"`
	EndTime     *time.Time       `json:"endTime"`
	MinSpending *decimal.Decimal `json:"minSpending"`
	Rate        *decimal.Decimal `json:"rate"`
	Points      *int             `json:"points" validate:"omitempty,gte=0"`
}

func parsePromotionType(raw string) (enums.PromotionType, error) {
	promoType, err := enums.ParsePromotionType(strings.TrimSpace(raw))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "type must be automatic or one-time")
	}
	return promoType, nil
}

func PromotionCreate(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "promotion service")
			return
		}

		var body createPromotionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		promoType, err := parsePromotionType(body.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), promotions.CreateInput{
			Name:        strings.TrimSpace(body.Name),
			Description: strings.TrimSpace(body.Description),
			Type:        promoType,
			StartTime:   body.StartTime,
			EndTime:     body.EndTime,
			MinSpending: body.MinSpending,
			Rate:        body.Rate,
			Points:      body.Points,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// PromotionList shows regular users the active promotions they can still
// use; managers may filter the whole catalog.
func PromotionList(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "promotion service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := promotions.ListFilter{
			Name:  strings.TrimSpace(r.URL.Query().Get("name")),
			Page:  page.Page,
			Limit: page.Limit,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			promoType, err := parsePromotionType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			filter.Type = &promoType
		}
		if filter.Started, err = validators.ParseQueryBool(r, "started"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Ended, err = validators.ParseQueryBool(r, "ended"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), filter, promotions.Viewer{UserID: identity.UserID, Role: identity.Role})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func PromotionGet(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "promotion service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		promotionID, err := validators.PathUUID(r, "promotionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Get(r.Context(), promotionID, promotions.Viewer{UserID: identity.UserID, Role: identity.Role})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func PromotionUpdate(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "promotion service")
			return
		}
		promotionID, err := validators.PathUUID(r, "promotionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updatePromotionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := promotions.UpdateInput{
			Name:        body.Name,
			Description: body.Description,
			StartTime:   body.StartTime,
			EndTime:     body.EndTime,
			MinSpending: body.MinSpending,
			Rate:        body.Rate,
			Points:      body.Points,
		}
		if body.Type != nil {
			promoType, err := parsePromotionType(*body.Type)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.Type = &promoType
		}

		result, err := svc.Update(r.Context(), promotionID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// PromotionDelete removes a promotion that has not started yet.
func PromotionDelete(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "promotion service")
			return
		}
		promotionID, err := validators.PathUUID(r, "promotionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), promotionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
