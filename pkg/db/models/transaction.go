package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// Transaction is an append-only ledger entry. Only Suspicious (purchases) and
// Processed/ProcessedByID (redemptions) change after insert.
//
// Cross references live in typed nullable columns; Detail and RelatedID give
// the per-type view.
type Transaction struct {
	ID          uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	CreatedByID uuid.UUID             `gorm:"column:created_by_id;type:uuid;not null"`
	Type        enums.TransactionType `gorm:"column:type;type:transaction_type;not null"`
	Amount      int                   `gorm:"column:amount;not null"`
	Spent       decimal.NullDecimal   `gorm:"column:spent;type:numeric(12,2)"`
	Suspicious  bool                  `gorm:"column:suspicious;not null;default:false"`
	Processed   bool                  `gorm:"column:processed;not null;default:false"`
	Remark      string                `gorm:"column:remark;not null;default:''"`

	CounterpartyID       *uuid.UUID `gorm:"column:counterparty_id;type:uuid"`
	ProcessedByID        *uuid.UUID `gorm:"column:processed_by_id;type:uuid"`
	RelatedTransactionID *uuid.UUID `gorm:"column:related_transaction_id;type:uuid"`
	EventID              *uuid.UUID `gorm:"column:event_id;type:uuid"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TransactionPromotion records a promotion applied to a transaction.
type TransactionPromotion struct {
	TransactionID uuid.UUID `gorm:"column:transaction_id;type:uuid;primaryKey"`
	PromotionID   uuid.UUID `gorm:"column:promotion_id;type:uuid;primaryKey"`
}

func (TransactionPromotion) TableName() string { return "transaction_promotions" }

// TransactionDetail is the per-type variant of a ledger entry. Related is the
// variant's cross reference, nil when it has none.
type TransactionDetail interface {
	Kind() enums.TransactionType
	Related() *uuid.UUID
}

type PurchaseDetail struct {
	Spent      decimal.Decimal
	Suspicious bool
}

type AdjustmentDetail struct {
	RelatedTransactionID uuid.UUID
}

// TransferDetail points at the other side of the transfer: the recipient for
// the sender's debit row and the sender for the recipient's credit row.
type TransferDetail struct {
	CounterpartyID uuid.UUID
}

type RedemptionDetail struct {
	Processed     bool
	ProcessedByID *uuid.UUID
}

type EventDetail struct {
	EventID uuid.UUID
}

func (PurchaseDetail) Kind() enums.TransactionType   { return enums.TransactionPurchase }
func (AdjustmentDetail) Kind() enums.TransactionType { return enums.TransactionAdjustment }
func (TransferDetail) Kind() enums.TransactionType   { return enums.TransactionTransfer }
func (RedemptionDetail) Kind() enums.TransactionType { return enums.TransactionRedemption }
func (EventDetail) Kind() enums.TransactionType      { return enums.TransactionEvent }

func (PurchaseDetail) Related() *uuid.UUID     { return nil }
func (d AdjustmentDetail) Related() *uuid.UUID { return present(d.RelatedTransactionID) }
func (d TransferDetail) Related() *uuid.UUID   { return present(d.CounterpartyID) }
func (d RedemptionDetail) Related() *uuid.UUID { return d.ProcessedByID }
func (d EventDetail) Related() *uuid.UUID      { return present(d.EventID) }

// Detail returns the variant for t.Type, or nil for an unknown type.
func (t Transaction) Detail() TransactionDetail {
	switch t.Type {
	case enums.TransactionPurchase:
		return PurchaseDetail{Spent: t.Spent.Decimal, Suspicious: t.Suspicious}
	case enums.TransactionAdjustment:
		return AdjustmentDetail{RelatedTransactionID: derefUUID(t.RelatedTransactionID)}
	case enums.TransactionTransfer:
		return TransferDetail{CounterpartyID: derefUUID(t.CounterpartyID)}
	case enums.TransactionRedemption:
		return RedemptionDetail{Processed: t.Processed, ProcessedByID: t.ProcessedByID}
	case enums.TransactionEvent:
		return EventDetail{EventID: derefUUID(t.EventID)}
	default:
		return nil
	}
}

// RelatedID is the discriminated cross reference for audit queries: the
// counterparty for transfers, the processing cashier for redemptions, the
// anchor transaction for adjustments and the event for event awards.
func (t Transaction) RelatedID() *uuid.UUID {
	if detail := t.Detail(); detail != nil {
		return detail.Related()
	}
	return nil
}

// RelatedColumn names the column RelatedID reads for the given type.
func RelatedColumn(txType enums.TransactionType) (string, bool) {
	switch txType {
	case enums.TransactionTransfer:
		return "counterparty_id", true
	case enums.TransactionRedemption:
		return "processed_by_id", true
	case enums.TransactionAdjustment:
		return "related_transaction_id", true
	case enums.TransactionEvent:
		return "event_id", true
	default:
		return "", false
	}
}

// AppliedAmount is the effect this entry has had on the owner's balance.
func (t Transaction) AppliedAmount() int {
	switch {
	case t.Type == enums.TransactionRedemption && !t.Processed:
		return 0
	case t.Type == enums.TransactionRedemption:
		return -t.Amount
	case t.Type == enums.TransactionPurchase && t.Suspicious:
		return 0
	default:
		return t.Amount
	}
}

func derefUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func present(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
