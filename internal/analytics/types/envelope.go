// Package types holds the shapes the analytics consumer moves from Pub/Sub
// into BigQuery.
package types

import (
	"encoding/json"
	"fmt"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox"
)

// Envelope is a delivered ledger event: the envelope the outbox stored plus
// the routing attributes the relay put on the message.
type Envelope struct {
	outbox.PayloadEnvelope
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
}

// NewRow starts a ledger row with the columns every event fills.
func (e Envelope) NewRow() (LedgerRow, error) {
	raw, err := JSONColumn(e.Data)
	if err != nil {
		return LedgerRow{}, err
	}
	row := LedgerRow{
		EventID:    e.EventID,
		EventType:  string(e.EventType),
		OccurredAt: e.OccurredAt,
		Payload:    raw,
	}
	if e.Actor != nil {
		actorID := e.Actor.UserID.String()
		row.ActorID = &actorID
		if e.Actor.Role != "" {
			role := e.Actor.Role
			row.ActorRole = &role
		}
	}
	return row, nil
}

// JSONColumn converts a value into a BigQuery JSON cell. Raw bytes pass
// through untouched; empty input is NULL.
func JSONColumn(value any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("encode json column: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
