package enums

import "fmt"

// TransactionType maps to the transaction_type enum in Postgres.
type TransactionType string

const (
	TransactionPurchase   TransactionType = "purchase"
	TransactionRedemption TransactionType = "redemption"
	TransactionTransfer   TransactionType = "transfer"
	TransactionAdjustment TransactionType = "adjustment"
	TransactionEvent      TransactionType = "event"
)

var validTransactionTypes = []TransactionType{
	TransactionPurchase,
	TransactionRedemption,
	TransactionTransfer,
	TransactionAdjustment,
	TransactionEvent,
}

func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw strings into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
