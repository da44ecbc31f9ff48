package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// LedgerTransactionEvent describes one ledger row after a committed change.
// Applied is the effect on the owner's balance at the time of the event.
type LedgerTransactionEvent struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	UserID        uuid.UUID             `json:"user_id"`
	Utorid        string                `json:"utorid"`
	CreatedByID   uuid.UUID             `json:"created_by_id"`
	Type          enums.TransactionType `json:"type"`
	Amount        int                   `json:"amount"`
	Applied       int                   `json:"applied"`
	Spent         *string               `json:"spent,omitempty"`
	Suspicious    bool                  `json:"suspicious"`
	Processed     bool                  `json:"processed"`
	RelatedID     *uuid.UUID            `json:"related_id,omitempty"`
	PromotionIDs  []uuid.UUID           `json:"promotion_ids,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

// EventPointsAwardedEvent summarizes one award run against an event budget.
type EventPointsAwardedEvent struct {
	EventID        uuid.UUID   `json:"event_id"`
	AwardedBy      uuid.UUID   `json:"awarded_by"`
	PerGuest       int         `json:"per_guest"`
	Total          int         `json:"total"`
	GuestIDs       []uuid.UUID `json:"guest_ids"`
	PointsAwarded  int         `json:"points_awarded"`
	PointsRemained int         `json:"points_remaining"`
}
