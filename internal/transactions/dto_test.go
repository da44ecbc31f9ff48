package transactions

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

func TestToDTOShowsOnlyTheVariantFields(t *testing.T) {
	cashier := uuid.New()
	anchor := uuid.New()
	stray := decimal.NewNullDecimal(money("9.99"))

	purchase := toDTO(&models.Transaction{ID: uuid.New(), Type: enums.TransactionPurchase, Amount: 40, Spent: decimal.NewNullDecimal(money("10"))}, "cust0001", "cashier1", nil)
	require.NotNil(t, purchase.Spent)
	assert.True(t, purchase.Spent.Equal(money("10")))
	assert.Nil(t, purchase.Processed)
	assert.Nil(t, purchase.RelatedID)
	assert.Equal(t, []uuid.UUID{}, purchase.PromotionIDs)

	redemption := toDTO(&models.Transaction{ID: uuid.New(), Type: enums.TransactionRedemption, Amount: 30, Processed: true, ProcessedByID: &cashier}, "cust0001", "cust0001", nil)
	require.NotNil(t, redemption.Processed)
	assert.True(t, *redemption.Processed)
	assert.Equal(t, &cashier, redemption.RelatedID)
	assert.Nil(t, redemption.Spent)

	adjustment := toDTO(&models.Transaction{ID: uuid.New(), Type: enums.TransactionAdjustment, Amount: -5, Spent: stray, RelatedTransactionID: &anchor}, "cust0001", "manager1", nil)
	assert.Nil(t, adjustment.Spent)
	assert.Nil(t, adjustment.Processed)
	require.NotNil(t, adjustment.RelatedID)
	assert.Equal(t, anchor, *adjustment.RelatedID)
}

func TestTransactionPayloadCarriesPurchaseSpending(t *testing.T) {
	purchase := &models.Transaction{ID: uuid.New(), Type: enums.TransactionPurchase, Amount: 50, Spent: decimal.NewNullDecimal(money("12.5"))}
	event := transactionPayload(purchase, "cust0001", nil)
	require.NotNil(t, event.Spent)
	assert.Equal(t, "12.50", *event.Spent)
	assert.Equal(t, 50, event.Applied)

	transfer := &models.Transaction{ID: uuid.New(), Type: enums.TransactionTransfer, Amount: -20, Spent: decimal.NewNullDecimal(money("1"))}
	assert.Nil(t, transactionPayload(transfer, "cust0001", nil).Spent)
}
