package transactions

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox/payloads"
)

func actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Utorid: actor.Utorid, Role: string(actor.Role)}
}

func transactionPayload(row *models.Transaction, utorid string, promoIDs []uuid.UUID) payloads.LedgerTransactionEvent {
	event := payloads.LedgerTransactionEvent{
		TransactionID: row.ID,
		UserID:        row.UserID,
		Utorid:        utorid,
		CreatedByID:   row.CreatedByID,
		Type:          row.Type,
		Amount:        row.Amount,
		Applied:       row.AppliedAmount(),
		Suspicious:    row.Suspicious,
		Processed:     row.Processed,
		RelatedID:     row.RelatedID(),
		PromotionIDs:  promoIDs,
		CreatedAt:     row.CreatedAt,
	}
	if purchase, ok := row.Detail().(models.PurchaseDetail); ok {
		spent := purchase.Spent.StringFixed(2)
		event.Spent = &spent
	}
	return event
}

func eventAwardPayload(event *models.Event, awardedBy uuid.UUID, perGuest, total int, guests []uuid.UUID) payloads.EventPointsAwardedEvent {
	return payloads.EventPointsAwardedEvent{
		EventID:        event.ID,
		AwardedBy:      awardedBy,
		PerGuest:       perGuest,
		Total:          total,
		GuestIDs:       guests,
		PointsAwarded:  event.PointsAwarded,
		PointsRemained: event.PointsRemaining(),
	}
}
