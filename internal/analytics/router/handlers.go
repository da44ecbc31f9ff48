package router

import (
	"context"
	"fmt"

	"github.com/angelmondragon/campus-loyalty/internal/analytics/types"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox/payloads"
)

type transactionHandler struct {
	writer Writer
}

func (h *transactionHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.LedgerTransactionEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", payload, envelope.EventType)
	}
	row, err := envelope.NewRow()
	if err != nil {
		return err
	}
	row.TransactionID = ptrString(event.TransactionID.String())
	row.UserID = ptrString(event.UserID.String())
	row.Utorid = ptrString(event.Utorid)
	row.Type = ptrString(string(event.Type))
	row.Amount = ptrInt64(int64(event.Amount))
	row.Applied = ptrInt64(int64(event.Applied))
	row.Spent = event.Spent
	row.Suspicious = &event.Suspicious
	row.Processed = &event.Processed
	if event.RelatedID != nil {
		row.RelatedID = ptrString(event.RelatedID.String())
	}
	for _, id := range event.PromotionIDs {
		row.PromotionIDs = append(row.PromotionIDs, id.String())
	}
	return h.writer.InsertLedger(ctx, row)
}

type awardHandler struct {
	writer Writer
}

func (h *awardHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.EventPointsAwardedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", payload, envelope.EventType)
	}
	row, err := envelope.NewRow()
	if err != nil {
		return err
	}
	row.Type = ptrString("event")
	row.Amount = ptrInt64(int64(event.PerGuest))
	row.Applied = ptrInt64(int64(event.Total))
	row.LoyaltyEvent = ptrString(event.EventID.String())
	return h.writer.InsertLedger(ctx, row)
}

func ptrString(v string) *string { return &v }

func ptrInt64(v int64) *int64 { return &v }
