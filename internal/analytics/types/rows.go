package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// LedgerRow mirrors the ledger_transactions BigQuery schema. Award summaries
// share the table with per-transaction rows and leave transaction columns null.
type LedgerRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	TransactionID *string            `bigquery:"transaction_id"`
	UserID        *string            `bigquery:"user_id"`
	Utorid        *string            `bigquery:"utorid"`
	Type          *string            `bigquery:"type"`
	Amount        *int64             `bigquery:"amount"`
	Applied       *int64             `bigquery:"applied"`
	Spent         *string            `bigquery:"spent"`
	Suspicious    *bool              `bigquery:"suspicious"`
	Processed     *bool              `bigquery:"processed"`
	RelatedID     *string            `bigquery:"related_id"`
	PromotionIDs  []string           `bigquery:"promotion_ids"`
	LoyaltyEvent  *string            `bigquery:"loyalty_event_id"`
	ActorID       *string            `bigquery:"actor_id"`
	ActorRole     *string            `bigquery:"actor_role"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}

// LedgerSchema is the table layout LedgerRow inserts into. Only event_id,
// event_type and occurred_at are always present.
func LedgerSchema() cbigquery.Schema {
	nullable := func(name string, typ cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: typ}
	}
	return cbigquery.Schema{
		{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
		{Name: "event_type", Type: cbigquery.StringFieldType, Required: true},
		{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
		nullable("transaction_id", cbigquery.StringFieldType),
		nullable("user_id", cbigquery.StringFieldType),
		nullable("utorid", cbigquery.StringFieldType),
		nullable("type", cbigquery.StringFieldType),
		nullable("amount", cbigquery.IntegerFieldType),
		nullable("applied", cbigquery.IntegerFieldType),
		nullable("spent", cbigquery.StringFieldType),
		nullable("suspicious", cbigquery.BooleanFieldType),
		nullable("processed", cbigquery.BooleanFieldType),
		nullable("related_id", cbigquery.StringFieldType),
		{Name: "promotion_ids", Type: cbigquery.StringFieldType, Repeated: true},
		nullable("loyalty_event_id", cbigquery.StringFieldType),
		nullable("actor_id", cbigquery.StringFieldType),
		nullable("actor_role", cbigquery.StringFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}
