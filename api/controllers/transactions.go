package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/campus-loyalty/api/middleware"
	"github.com/angelmondragon/campus-loyalty/api/responses"
	"github.com/angelmondragon/campus-loyalty/api/validators"
	"github.com/angelmondragon/campus-loyalty/internal/transactions"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

type createTransactionRequest struct {
	Utorid       string           `json:"utorid" validate:"required"`
	Type         string           `json:"type" validate:"required,oneof=purchase adjustment"`
	Spent        *decimal.Decimal `json:"spent"`
	Amount       *int             `json:"amount"`
	RelatedID    *uuid.UUID       `json:"relatedId"`
	PromotionIDs []uuid.UUID      `json:"promotionIds"`
	Remark       string           `json:"remark" validate:"max=500"`
}

type redemptionRequest struct {
	Type   string `json:"type" validate:"required,eq=redemption"`
	Amount int    `json:"amount" validate:"required,gt=0"`
	Remark string `json:"remark" validate:"max=500"`
}

type transferRequest struct {
	Type   string `json:"type" validate:"required,eq=transfer"`
	Amount int    `json:"amount" validate:"required,gt=0"`
	Remark string `json:"remark" validate:"max=500"`
}

type eventAwardRequest struct {
	Type   string  `json:"type" validate:"required,eq=event"`
	Utorid *string `json:"utorid"`
	Amount int     `json:"amount" validate:"required,gt=0"`
	Remark string  `json:"remark" validate:"max=500"`
}

type suspiciousRequest struct {
	Suspicious *bool `json:"suspicious" validate:"required"`
}

type processedRequest struct {
	Processed *bool `json:"processed" validate:"required"`
}

func actorFrom(identity middleware.Identity) transactions.Actor {
	return transactions.Actor{UserID: identity.UserID, Utorid: identity.Utorid, Role: identity.Role}
}

// TransactionCreate records a purchase (cashier+) or an adjustment (manager+).
func TransactionCreate(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "transaction service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		var body createTransactionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		utorid := strings.ToLower(strings.TrimSpace(body.Utorid))
		remark := validators.CleanText(body.Remark, maxRemarkLen)

		var (
			result *transactions.TransactionDTO
			err    error
		)
		switch enums.TransactionType(body.Type) {
		case enums.TransactionPurchase:
			if body.Spent == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "spent is required for a purchase"))
				return
			}
			result, err = svc.CreatePurchase(r.Context(), actorFrom(identity), transactions.PurchaseInput{
				Utorid:       utorid,
				Spent:        *body.Spent,
				PromotionIDs: body.PromotionIDs,
				Remark:       remark,
			})
		case enums.TransactionAdjustment:
			if !identity.Role.AtLeast(enums.RoleManager) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "adjustments require a manager"))
				return
			}
			if body.Amount == nil || body.RelatedID == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount and relatedId are required for an adjustment"))
				return
			}
			result, err = svc.CreateAdjustment(r.Context(), actorFrom(identity), transactions.AdjustmentInput{
				Utorid:               utorid,
				Amount:               *body.Amount,
				RelatedTransactionID: *body.RelatedID,
				PromotionIDs:         body.PromotionIDs,
				Remark:               remark,
			})
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// TransactionTransfer moves points from the caller to the user in the path.
func TransactionTransfer(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "transaction service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		recipientID, err := validators.PathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body transferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateTransfer(r.Context(), actorFrom(identity), transactions.TransferInput{
			RecipientID: recipientID,
			Amount:      body.Amount,
			Remark:      validators.CleanText(body.Remark, maxRemarkLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// TransactionRedeem opens an unprocessed redemption for the caller.
func TransactionRedeem(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "transaction service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		var body redemptionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateRedemption(r.Context(), actorFrom(identity), transactions.RedemptionInput{
			Amount: body.Amount,
			Remark: validators.CleanText(body.Remark, maxRemarkLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// TransactionProcess completes a redemption and debits its owner.
func TransactionProcess(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "transaction service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		transactionID, err := validators.PathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body processedRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !*body.Processed {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "processed can only be set to true"))
			return
		}

		result, err := svc.ProcessRedemption(r.Context(), actorFrom(identity), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func TransactionSuspicious(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "transaction service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		transactionID, err := validators.PathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body suspiciousRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.UpdateSuspicious(r.Context(), actorFrom(identity), transactionID, *body.Suspicious)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// EventAward credits one guest when a utorid is given, otherwise every guest.
func EventAward(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "transaction service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		eventID, err := validators.PathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body eventAwardRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var utorid *string
		if body.Utorid != nil {
			if trimmed := strings.ToLower(strings.TrimSpace(*body.Utorid)); trimmed != "" {
				utorid = &trimmed
			}
		}

		results, err := svc.CreateEventTransaction(r.Context(), actorFrom(identity), transactions.EventAwardInput{
			EventID: eventID,
			Utorid:  utorid,
			Amount:  body.Amount,
			Remark:  validators.CleanText(body.Remark, maxRemarkLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if utorid != nil && len(results) == 1 {
			responses.WriteSuccessStatus(w, http.StatusCreated, results[0])
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, results)
	}
}

func TransactionGet(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "transaction service")
			return
		}
		transactionID, err := validators.PathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Get(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// TransactionList is the manager-wide ledger listing.
func TransactionList(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "transaction service")
			return
		}

		filter, err := parseTransactionFilter(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// TransactionListMine lists the caller's own ledger rows.
func TransactionListMine(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "transaction service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		filter, err := parseTransactionFilter(r, false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListForUser(r.Context(), identity.UserID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func parseTransactionFilter(r *http.Request, manager bool) (transactions.ListFilter, error) {
	page, err := validators.ParsePage(r)
	if err != nil {
		return transactions.ListFilter{}, err
	}
	query := r.URL.Query()
	filter := transactions.ListFilter{
		Operator: strings.TrimSpace(query.Get("operator")),
		Page:     page.Page,
		Limit:    page.Limit,
	}
	if manager {
		filter.Name = strings.TrimSpace(query.Get("name"))
		filter.CreatedBy = strings.TrimSpace(query.Get("createdBy"))
		if filter.Suspicious, err = validators.ParseQueryBool(r, "suspicious"); err != nil {
			return transactions.ListFilter{}, err
		}
	} else {
		filter.Order = strings.TrimSpace(query.Get("order"))
	}
	if raw := strings.TrimSpace(query.Get("type")); raw != "" {
		txType, err := enums.ParseTransactionType(raw)
		if err != nil {
			return transactions.ListFilter{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction type")
		}
		filter.Type = &txType
	}
	if filter.PromotionID, err = validators.ParseQueryUUID(r, "promotionId"); err != nil {
		return transactions.ListFilter{}, err
	}
	if filter.RelatedID, err = validators.ParseQueryUUID(r, "relatedId"); err != nil {
		return transactions.ListFilter{}, err
	}
	if filter.Amount, err = validators.ParseQueryOptionalInt(r, "amount"); err != nil {
		return transactions.ListFilter{}, err
	}
	return filter, nil
}
