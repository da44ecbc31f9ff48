package transactions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// TransactionDTO is the API shape of a ledger row. Earned is only set on the
// response to a purchase and reports what the customer was credited.
type TransactionDTO struct {
	ID           uuid.UUID             `json:"id"`
	Utorid       string                `json:"utorid"`
	Type         enums.TransactionType `json:"type"`
	Amount       int                   `json:"amount"`
	Spent        *decimal.Decimal      `json:"spent,omitempty"`
	Earned       *int                  `json:"earned,omitempty"`
	RelatedID    *uuid.UUID            `json:"relatedId,omitempty"`
	PromotionIDs []uuid.UUID           `json:"promotionIds"`
	Suspicious   bool                  `json:"suspicious"`
	Processed    *bool                 `json:"processed,omitempty"`
	Remark       string                `json:"remark"`
	CreatedBy    string                `json:"createdBy"`
	CreatedAt    time.Time             `json:"createdAt"`
}

type PurchaseInput struct {
	Utorid       string
	Spent        decimal.Decimal
	PromotionIDs []uuid.UUID
	Remark       string
}

type AdjustmentInput struct {
	Utorid               string
	Amount               int
	RelatedTransactionID uuid.UUID
	PromotionIDs         []uuid.UUID
	Remark               string
}

type TransferInput struct {
	RecipientID uuid.UUID
	Amount      int
	Remark      string
}

type RedemptionInput struct {
	Amount int
	Remark string
}

// EventAwardInput awards Amount to one guest when Utorid is set, otherwise
// to every guest.
type EventAwardInput struct {
	EventID uuid.UUID
	Utorid  *string
	Amount  int
	Remark  string
}

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	UserID uuid.UUID
	Utorid string
	Role   enums.Role
}

type ListFilter struct {
	Name        string
	CreatedBy   string
	Suspicious  *bool
	PromotionID *uuid.UUID
	Type        *enums.TransactionType
	RelatedID   *uuid.UUID
	Amount      *int
	Operator    string
	Order       string
	Page        int
	Limit       int
}

// transactionRow is a transaction joined with the owner and creator utorids.
type transactionRow struct {
	models.Transaction
	OwnerUtorid   string
	CreatorUtorid string
}

func toDTO(tx *models.Transaction, owner, creator string, promotionIDs []uuid.UUID) TransactionDTO {
	if promotionIDs == nil {
		promotionIDs = []uuid.UUID{}
	}
	dto := TransactionDTO{
		ID:           tx.ID,
		Utorid:       owner,
		Type:         tx.Type,
		Amount:       tx.Amount,
		RelatedID:    tx.RelatedID(),
		PromotionIDs: promotionIDs,
		Suspicious:   tx.Suspicious,
		Remark:       tx.Remark,
		CreatedBy:    creator,
		CreatedAt:    tx.CreatedAt,
	}
	switch detail := tx.Detail().(type) {
	case models.PurchaseDetail:
		dto.Spent = &detail.Spent
	case models.RedemptionDetail:
		dto.Processed = &detail.Processed
	}
	return dto
}
