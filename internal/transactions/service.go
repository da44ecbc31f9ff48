package transactions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/internal/notifications"
	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox"
	"github.com/angelmondragon/campus-loyalty/pkg/pagination"
)

type transactionRepository interface {
	CreateWithTx(tx *gorm.DB, row *models.Transaction) error
	LinkPromotionsWithTx(tx *gorm.DB, transactionID uuid.UUID, promotionIDs []uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	LockByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Transaction, error)
	UpdateFlagsWithTx(tx *gorm.DB, id uuid.UUID, fields map[string]any) error
	PromotionIDsFor(ctx context.Context, transactionIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
	FindRow(ctx context.Context, id uuid.UUID) (*transactionRow, error)
	List(ctx context.Context, filter ListFilter, owner *uuid.UUID) ([]transactionRow, int64, error)
}

type userLedger interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByUtorid(ctx context.Context, utorid string) (*models.User, error)
	LockByID(tx *gorm.DB, id uuid.UUID) (*models.User, error)
	LockByIDs(tx *gorm.DB, ids ...uuid.UUID) (map[uuid.UUID]*models.User, error)
	ApplyDelta(tx *gorm.DB, userID uuid.UUID, delta int) (int, error)
}

type promotionCatalog interface {
	FindByIDsWithTx(tx *gorm.DB, ids []uuid.UUID) ([]models.Promotion, error)
	ListActiveAutomaticWithTx(tx *gorm.DB, now time.Time) ([]models.Promotion, error)
	HasUsedWithTx(tx *gorm.DB, userID, promotionID uuid.UUID) (bool, error)
	RecordUsageWithTx(tx *gorm.DB, promotionID, userID uuid.UUID) error
}

type eventBudgets interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	IsOrganizer(ctx context.Context, eventID, userID uuid.UUID) (bool, error)
	LockByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Event, error)
	IsGuestWithTx(tx *gorm.DB, eventID, userID uuid.UUID) (bool, error)
	ListGuestIDsWithTx(tx *gorm.DB, eventID uuid.UUID) ([]uuid.UUID, error)
	IncrementAwardedWithTx(tx *gorm.DB, eventID uuid.UUID, amount int) error
}

type ledgerMetrics interface {
	RecordTransaction(txType string, applied int)
	RecordRejected(operation, code string)
}

// Service is the transaction engine. Every operation that moves points runs
// as one unit of work and notifies the affected users after commit.
type Service interface {
	CreatePurchase(ctx context.Context, actor Actor, input PurchaseInput) (*TransactionDTO, error)
	CreateAdjustment(ctx context.Context, actor Actor, input AdjustmentInput) (*TransactionDTO, error)
	CreateTransfer(ctx context.Context, actor Actor, input TransferInput) (*TransactionDTO, error)
	CreateRedemption(ctx context.Context, actor Actor, input RedemptionInput) (*TransactionDTO, error)
	ProcessRedemption(ctx context.Context, actor Actor, transactionID uuid.UUID) (*TransactionDTO, error)
	UpdateSuspicious(ctx context.Context, actor Actor, transactionID uuid.UUID, suspicious bool) (*TransactionDTO, error)
	CreateEventTransaction(ctx context.Context, actor Actor, input EventAwardInput) ([]TransactionDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*TransactionDTO, error)
	List(ctx context.Context, filter ListFilter) (pagination.Page[TransactionDTO], error)
	ListForUser(ctx context.Context, userID uuid.UUID, filter ListFilter) (pagination.Page[TransactionDTO], error)
}

type ServiceParams struct {
	Transactions transactionRepository
	Users        userLedger
	Promotions   promotionCatalog
	Events       eventBudgets
	UnitOfWork   db.UnitOfWork
	Outbox       outbox.Emitter
	Sink         notifications.Sink
	Metrics      ledgerMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	transactions transactionRepository
	users        userLedger
	promotions   promotionCatalog
	events       eventBudgets
	uow          db.UnitOfWork
	outbox       outbox.Emitter
	sink         notifications.Sink
	metrics      ledgerMetrics
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Transactions == nil:
		return nil, fmt.Errorf("transaction repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("user ledger required")
	case params.Promotions == nil:
		return nil, fmt.Errorf("promotion catalog required")
	case params.Events == nil:
		return nil, fmt.Errorf("event repository required")
	case params.UnitOfWork == nil:
		return nil, fmt.Errorf("unit of work required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	sink := params.Sink
	if sink == nil {
		sink = notifications.NopSink{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		transactions: params.Transactions,
		users:        params.Users,
		promotions:   params.Promotions,
		events:       params.Events,
		uow:          params.UnitOfWork,
		outbox:       params.Outbox,
		sink:         sink,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          now,
	}, nil
}

func (s *service) CreatePurchase(ctx context.Context, actor Actor, input PurchaseInput) (*TransactionDTO, error) {
	const op = "purchase"
	if !input.Spent.IsPositive() {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeValidation, "spent must be a positive amount"))
	}
	if input.Spent.GreaterThan(MaxSpent) {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeValidation, "spent exceeds "+MaxSpent.StringFixed(2)))
	}
	cashier, err := s.loadUser(ctx, actor.UserID)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	customer, err := s.loadUserByUtorid(ctx, input.Utorid)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	now := s.now().UTC()
	requestedIDs := uniqueIDs(input.PromotionIDs)
	var applied []models.Promotion
	var earned, credited int
	row := &models.Transaction{
		ID:          uuid.New(),
		UserID:      customer.ID,
		CreatedByID: cashier.ID,
		Type:        enums.TransactionPurchase,
		Spent:       decimal.NewNullDecimal(input.Spent),
		Remark:      strings.TrimSpace(input.Remark),
		CreatedAt:   now,
	}

	err = s.uow.RunSteps(ctx,
		db.Step{
			Name: "lock customer and cashier",
			Check: func(tx *gorm.DB) error {
				locked, err := s.users.LockByIDs(tx, customer.ID, cashier.ID)
				if err != nil {
					return err
				}
				row.Suspicious = locked[cashier.ID].Suspicious
				return nil
			},
		},
		db.Step{
			Name: "resolve promotions",
			Check: func(tx *gorm.DB) error {
				requested, err := s.resolveRequested(tx, customer.ID, requestedIDs, now)
				if err != nil {
					return err
				}
				automatic, err := s.promotions.ListActiveAutomaticWithTx(tx, now)
				if err != nil {
					return err
				}
				earned, applied, err = EarnedPoints(input.Spent, mergePromotions(requested, automatic))
				if err != nil {
					return err
				}
				credited = earned
				if row.Suspicious {
					credited = 0
				}
				row.Amount = earned
				return nil
			},
		},
		db.Step{
			Name: "insert purchase",
			Apply: func(tx *gorm.DB) error {
				if err := s.transactions.CreateWithTx(tx, row); err != nil {
					return err
				}
				return s.transactions.LinkPromotionsWithTx(tx, row.ID, promotionIDs(applied))
			},
		},
		db.Step{
			Name: "credit customer",
			Apply: func(tx *gorm.DB) error {
				_, err := s.users.ApplyDelta(tx, customer.ID, credited)
				return err
			},
		},
		db.Step{
			Name: "record one-time usage",
			Apply: func(tx *gorm.DB) error {
				for _, promo := range applied {
					if !promo.Type.IsOneTime() {
						continue
					}
					if err := s.promotions.RecordUsageWithTx(tx, promo.ID, customer.ID); err != nil {
						return err
					}
				}
				return nil
			},
		},
		db.Step{
			Name: "emit ledger event",
			Apply: func(tx *gorm.DB) error {
				return s.emitTransaction(ctx, tx, actor, enums.EventTransactionRecorded, row, customer.Utorid, promotionIDs(applied))
			},
		},
	)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	s.committed(ctx, row, credited)
	s.sink.Notify(ctx, customer.ID, enums.NotificationPurchase, fmt.Sprintf("You earned %d points on a $%s purchase", credited, input.Spent.StringFixed(2)))
	s.sink.Notify(ctx, cashier.ID, enums.NotificationPurchase, fmt.Sprintf("Recorded a purchase for %s", customer.Utorid))
	if row.Suspicious {
		s.sink.Notify(ctx, customer.ID, enums.NotificationSuspicious, "Your purchase is pending review and no points were credited yet")
	}

	dto := toDTO(row, customer.Utorid, cashier.Utorid, promotionIDs(applied))
	dto.Earned = &credited
	return &dto, nil
}

// resolveRequested loads explicitly requested promotions. Each must exist, be
// active and, when one-time, still be unused by the customer.
func (s *service) resolveRequested(tx *gorm.DB, customerID uuid.UUID, ids []uuid.UUID, now time.Time) ([]models.Promotion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.promotions.FindByIDsWithTx(tx, ids)
	if err != nil {
		return nil, err
	}
	if len(found) != len(ids) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "one or more promotion ids are invalid")
	}
	byID := make(map[uuid.UUID]models.Promotion, len(found))
	for _, promo := range found {
		byID[promo.ID] = promo
	}
	ordered := make([]models.Promotion, 0, len(ids))
	for _, id := range ids {
		promo := byID[id]
		if !promo.ActiveAt(now) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("promotion %s is not active", promo.ID))
		}
		if promo.Type.IsOneTime() {
			used, err := s.promotions.HasUsedWithTx(tx, customerID, promo.ID)
			if err != nil {
				return nil, err
			}
			if used {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("promotion %s has already been used", promo.ID))
			}
		}
		ordered = append(ordered, promo)
	}
	return ordered, nil
}

func (s *service) CreateAdjustment(ctx context.Context, actor Actor, input AdjustmentInput) (*TransactionDTO, error) {
	const op = "adjustment"
	if input.Amount == 0 {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-zero"))
	}
	if input.Amount > models.MaxPoints || input.Amount < -models.MaxPoints {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeValidation, "amount is out of range"))
	}
	customer, err := s.loadUserByUtorid(ctx, input.Utorid)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	if _, err := s.transactions.FindByID(ctx, input.RelatedTransactionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeNotFound, "related transaction not found"))
		}
		return nil, s.reject(ctx, op, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load related transaction"))
	}

	related := input.RelatedTransactionID
	promoIDs := uniqueIDs(input.PromotionIDs)
	row := &models.Transaction{
		ID:                   uuid.New(),
		UserID:               customer.ID,
		CreatedByID:          actor.UserID,
		Type:                 enums.TransactionAdjustment,
		Amount:               input.Amount,
		RelatedTransactionID: &related,
		Remark:               strings.TrimSpace(input.Remark),
		CreatedAt:            s.now().UTC(),
	}

	err = s.uow.RunSteps(ctx,
		db.Step{
			Name: "lock customer",
			Check: func(tx *gorm.DB) error {
				if _, err := s.users.LockByID(tx, customer.ID); err != nil {
					return err
				}
				if len(promoIDs) == 0 {
					return nil
				}
				found, err := s.promotions.FindByIDsWithTx(tx, promoIDs)
				if err != nil {
					return err
				}
				if len(found) != len(promoIDs) {
					return pkgerrors.New(pkgerrors.CodeValidation, "one or more promotion ids are invalid")
				}
				return nil
			},
		},
		db.Step{
			Name: "insert adjustment",
			Apply: func(tx *gorm.DB) error {
				if err := s.transactions.CreateWithTx(tx, row); err != nil {
					return err
				}
				return s.transactions.LinkPromotionsWithTx(tx, row.ID, promoIDs)
			},
		},
		db.Step{
			Name: "apply delta",
			Apply: func(tx *gorm.DB) error {
				_, err := s.users.ApplyDelta(tx, customer.ID, input.Amount)
				return err
			},
		},
		db.Step{
			Name: "emit ledger event",
			Apply: func(tx *gorm.DB) error {
				return s.emitTransaction(ctx, tx, actor, enums.EventTransactionRecorded, row, customer.Utorid, promoIDs)
			},
		},
	)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	s.committed(ctx, row, row.Amount)
	s.sink.Notify(ctx, customer.ID, enums.NotificationAdjustment, fmt.Sprintf("Your balance was adjusted by %+d points", input.Amount))

	dto := toDTO(row, customer.Utorid, actor.Utorid, promoIDs)
	return &dto, nil
}

func (s *service) CreateTransfer(ctx context.Context, actor Actor, input TransferInput) (*TransactionDTO, error) {
	const op = "transfer"
	if input.Amount <= 0 {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a positive integer"))
	}
	if input.RecipientID == actor.UserID {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeValidation, "cannot transfer points to yourself"))
	}
	recipient, err := s.loadUser(ctx, input.RecipientID)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	sender, err := s.loadUser(ctx, actor.UserID)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	if !sender.Verified {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeForbidden, "only verified users can transfer points"))
	}

	now := s.now().UTC()
	remark := strings.TrimSpace(input.Remark)
	recipientID, senderID := recipient.ID, sender.ID
	debit := &models.Transaction{
		ID:             uuid.New(),
		UserID:         sender.ID,
		CreatedByID:    sender.ID,
		Type:           enums.TransactionTransfer,
		Amount:         -input.Amount,
		CounterpartyID: &recipientID,
		Remark:         remark,
		CreatedAt:      now,
	}
	credit := &models.Transaction{
		ID:             uuid.New(),
		UserID:         recipient.ID,
		CreatedByID:    sender.ID,
		Type:           enums.TransactionTransfer,
		Amount:         input.Amount,
		CounterpartyID: &senderID,
		Remark:         remark,
		CreatedAt:      now,
	}

	err = s.uow.RunSteps(ctx,
		db.Step{
			Name: "lock users",
			Check: func(tx *gorm.DB) error {
				locked, err := s.users.LockByIDs(tx, sender.ID, recipient.ID)
				if err != nil {
					return err
				}
				if locked[sender.ID].Points < input.Amount {
					return pkgerrors.New(pkgerrors.CodeValidation, "insufficient points")
				}
				return nil
			},
		},
		db.Step{
			Name: "insert transfer",
			Apply: func(tx *gorm.DB) error {
				if err := s.transactions.CreateWithTx(tx, debit); err != nil {
					return err
				}
				return s.transactions.CreateWithTx(tx, credit)
			},
		},
		db.Step{
			Name: "move points",
			Apply: func(tx *gorm.DB) error {
				if _, err := s.users.ApplyDelta(tx, sender.ID, -input.Amount); err != nil {
					return err
				}
				_, err := s.users.ApplyDelta(tx, recipient.ID, input.Amount)
				return err
			},
		},
		db.Step{
			Name: "emit ledger events",
			Apply: func(tx *gorm.DB) error {
				if err := s.emitTransaction(ctx, tx, actor, enums.EventTransactionRecorded, debit, sender.Utorid, nil); err != nil {
					return err
				}
				return s.emitTransaction(ctx, tx, actor, enums.EventTransactionRecorded, credit, recipient.Utorid, nil)
			},
		},
	)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	s.committed(ctx, debit, debit.Amount)
	s.committed(ctx, credit, credit.Amount)
	s.sink.Notify(ctx, sender.ID, enums.NotificationTransfer, fmt.Sprintf("You sent %d points to %s", input.Amount, recipient.Utorid))
	s.sink.Notify(ctx, recipient.ID, enums.NotificationTransfer, fmt.Sprintf("You received %d points from %s", input.Amount, sender.Utorid))

	dto := toDTO(debit, sender.Utorid, sender.Utorid, nil)
	return &dto, nil
}

func (s *service) CreateRedemption(ctx context.Context, actor Actor, input RedemptionInput) (*TransactionDTO, error) {
	const op = "redemption"
	if input.Amount <= 0 {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a positive integer"))
	}
	user, err := s.loadUser(ctx, actor.UserID)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	if !user.Verified {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeForbidden, "only verified users can redeem points"))
	}

	row := &models.Transaction{
		ID:          uuid.New(),
		UserID:      user.ID,
		CreatedByID: user.ID,
		Type:        enums.TransactionRedemption,
		Amount:      input.Amount,
		Remark:      strings.TrimSpace(input.Remark),
		CreatedAt:   s.now().UTC(),
	}
	err = s.uow.RunSteps(ctx,
		db.Step{
			Name: "insert redemption",
			Check: func(tx *gorm.DB) error {
				locked, err := s.users.LockByID(tx, user.ID)
				if err != nil {
					return err
				}
				if input.Amount > locked.Points {
					return pkgerrors.New(pkgerrors.CodeValidation, "insufficient points")
				}
				return nil
			},
			Apply: func(tx *gorm.DB) error { return s.transactions.CreateWithTx(tx, row) },
		},
		db.Step{
			Name: "emit ledger event",
			Apply: func(tx *gorm.DB) error {
				return s.emitTransaction(ctx, tx, actor, enums.EventTransactionRecorded, row, user.Utorid, nil)
			},
		},
	)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	s.committed(ctx, row, 0)
	dto := toDTO(row, user.Utorid, user.Utorid, nil)
	return &dto, nil
}

func (s *service) ProcessRedemption(ctx context.Context, actor Actor, transactionID uuid.UUID) (*TransactionDTO, error) {
	const op = "process_redemption"
	row, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	if row.Type != enums.TransactionRedemption {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeValidation, "transaction is not a redemption"))
	}
	if row.Processed {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeValidation, "redemption has already been processed"))
	}
	owner, err := s.loadUser(ctx, row.UserID)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	cashierID := actor.UserID
	err = s.uow.RunSteps(ctx,
		db.Step{
			Name: "mark processed",
			Check: func(tx *gorm.DB) error {
				locked, err := s.transactions.LockByIDWithTx(tx, row.ID)
				if err != nil {
					return err
				}
				if locked.Processed {
					return pkgerrors.New(pkgerrors.CodeValidation, "redemption has already been processed")
				}
				return nil
			},
			Apply: func(tx *gorm.DB) error {
				return s.transactions.UpdateFlagsWithTx(tx, row.ID, map[string]any{"processed": true, "processed_by_id": cashierID})
			},
		},
		db.Step{
			Name: "debit owner",
			Apply: func(tx *gorm.DB) error {
				_, err := s.users.ApplyDelta(tx, row.UserID, -row.Amount)
				return err
			},
		},
		db.Step{
			Name: "emit ledger event",
			Apply: func(tx *gorm.DB) error {
				row.Processed = true
				row.ProcessedByID = &cashierID
				return s.emitTransaction(ctx, tx, actor, enums.EventRedemptionProcessed, row, owner.Utorid, nil)
			},
		},
	)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	s.committed(ctx, row, -row.Amount)
	s.sink.Notify(ctx, owner.ID, enums.NotificationRedemption, fmt.Sprintf("Your redemption of %d points was processed", row.Amount))
	s.sink.Notify(ctx, cashierID, enums.NotificationRedemption, fmt.Sprintf("Processed a redemption of %d points for %s", row.Amount, owner.Utorid))

	return s.Get(ctx, row.ID)
}

func (s *service) UpdateSuspicious(ctx context.Context, actor Actor, transactionID uuid.UUID, suspicious bool) (*TransactionDTO, error) {
	const op = "update_suspicious"
	row, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	if row.Type != enums.TransactionPurchase {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeValidation, "only purchases can be flagged suspicious"))
	}
	if row.Suspicious == suspicious {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("transaction suspicious flag is already %t", suspicious)))
	}
	owner, err := s.loadUser(ctx, row.UserID)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	delta := row.Amount
	if suspicious {
		delta = -row.Amount
	}
	err = s.uow.RunSteps(ctx,
		db.Step{
			Name: "flip suspicious",
			Check: func(tx *gorm.DB) error {
				locked, err := s.transactions.LockByIDWithTx(tx, row.ID)
				if err != nil {
					return err
				}
				if locked.Suspicious == suspicious {
					return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("transaction suspicious flag is already %t", suspicious))
				}
				return nil
			},
			Apply: func(tx *gorm.DB) error {
				return s.transactions.UpdateFlagsWithTx(tx, row.ID, map[string]any{"suspicious": suspicious})
			},
		},
		db.Step{
			Name: "apply delta",
			Apply: func(tx *gorm.DB) error {
				_, err := s.users.ApplyDelta(tx, row.UserID, delta)
				return err
			},
		},
		db.Step{
			Name: "emit ledger event",
			Apply: func(tx *gorm.DB) error {
				row.Suspicious = suspicious
				return s.emitTransaction(ctx, tx, actor, enums.EventSuspiciousToggled, row, owner.Utorid, nil)
			},
		},
	)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	s.committed(ctx, row, delta)
	message := fmt.Sprintf("A purchase was cleared and %d points were credited", row.Amount)
	if suspicious {
		message = fmt.Sprintf("A purchase was flagged for review and %d points were withheld", row.Amount)
	}
	s.sink.Notify(ctx, owner.ID, enums.NotificationSuspicious, message)

	return s.Get(ctx, row.ID)
}

func (s *service) CreateEventTransaction(ctx context.Context, actor Actor, input EventAwardInput) ([]TransactionDTO, error) {
	const op = "event_award"
	if input.Amount <= 0 {
		return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a positive integer"))
	}
	event, err := s.events.FindByID(ctx, input.EventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeNotFound, "event not found"))
		}
		return nil, s.reject(ctx, op, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load event"))
	}
	if !actor.Role.AtLeast(enums.RoleManager) {
		organizer, err := s.events.IsOrganizer(ctx, event.ID, actor.UserID)
		if err != nil {
			return nil, s.reject(ctx, op, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check organizer"))
		}
		if !organizer {
			return nil, s.reject(ctx, op, pkgerrors.New(pkgerrors.CodeForbidden, "only managers and organizers can award event points"))
		}
	}
	var target *models.User
	if input.Utorid != nil {
		if target, err = s.loadUserByUtorid(ctx, *input.Utorid); err != nil {
			return nil, s.reject(ctx, op, err)
		}
	}

	now := s.now().UTC()
	remark := strings.TrimSpace(input.Remark)
	var guests []uuid.UUID
	var total int
	var locked map[uuid.UUID]*models.User
	var rows []*models.Transaction
	var awarded *models.Event

	err = s.uow.RunSteps(ctx,
		db.Step{
			Name: "check budget",
			Check: func(tx *gorm.DB) error {
				var err error
				if awarded, err = s.events.LockByIDWithTx(tx, event.ID); err != nil {
					return err
				}
				if target != nil {
					guest, err := s.events.IsGuestWithTx(tx, event.ID, target.ID)
					if err != nil {
						return err
					}
					if !guest {
						return pkgerrors.New(pkgerrors.CodeValidation, "user is not a guest of this event")
					}
					guests = []uuid.UUID{target.ID}
				} else if guests, err = s.events.ListGuestIDsWithTx(tx, event.ID); err != nil {
					return err
				}
				if len(guests) == 0 {
					return pkgerrors.New(pkgerrors.CodeValidation, "event has no guests")
				}
				total = input.Amount * len(guests)
				if total > awarded.PointsRemaining() {
					return pkgerrors.New(pkgerrors.CodeValidation, "not enough points remaining in event budget")
				}
				locked, err = s.users.LockByIDs(tx, guests...)
				return err
			},
		},
		db.Step{
			Name: "credit guests",
			Apply: func(tx *gorm.DB) error {
				eventID := event.ID
				for _, guestID := range guests {
					row := &models.Transaction{
						ID:          uuid.New(),
						UserID:      guestID,
						CreatedByID: actor.UserID,
						Type:        enums.TransactionEvent,
						Amount:      input.Amount,
						EventID:     &eventID,
						Remark:      remark,
						CreatedAt:   now,
					}
					if err := s.transactions.CreateWithTx(tx, row); err != nil {
						return err
					}
					if _, err := s.users.ApplyDelta(tx, guestID, input.Amount); err != nil {
						return err
					}
					rows = append(rows, row)
				}
				return nil
			},
		},
		db.Step{
			Name: "consume budget",
			Apply: func(tx *gorm.DB) error {
				if err := s.events.IncrementAwardedWithTx(tx, event.ID, total); err != nil {
					return err
				}
				awarded.PointsAwarded += total
				return nil
			},
		},
		db.Step{
			Name: "emit ledger events",
			Apply: func(tx *gorm.DB) error {
				for _, row := range rows {
					if err := s.emitTransaction(ctx, tx, actor, enums.EventTransactionRecorded, row, locked[row.UserID].Utorid, nil); err != nil {
						return err
					}
				}
				return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventEventPointsAwarded,
					AggregateType: enums.AggregateEvent,
					AggregateID:   event.ID,
					Actor:         actorRef(actor),
					Data:          eventAwardPayload(awarded, actor.UserID, input.Amount, total, guests),
					OccurredAt:    now,
				})
			},
		},
	)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	out := make([]TransactionDTO, 0, len(rows))
	for _, row := range rows {
		s.committed(ctx, row, row.Amount)
		s.sink.Notify(ctx, row.UserID, enums.NotificationEvent, fmt.Sprintf("You were awarded %d points at %s", input.Amount, event.Name))
		out = append(out, toDTO(row, locked[row.UserID].Utorid, actor.Utorid, nil))
	}
	s.sink.Notify(ctx, actor.UserID, enums.NotificationEvent, fmt.Sprintf("Awarded %d points to %d guests of %s", total, len(rows), event.Name))
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*TransactionDTO, error) {
	row, err := s.transactions.FindRow(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction")
	}
	promos, err := s.transactions.PromotionIDsFor(ctx, []uuid.UUID{row.ID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction promotions")
	}
	dto := toDTO(&row.Transaction, row.OwnerUtorid, row.CreatorUtorid, promos[row.ID])
	return &dto, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (pagination.Page[TransactionDTO], error) {
	return s.list(ctx, filter, nil)
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, filter ListFilter) (pagination.Page[TransactionDTO], error) {
	filter.Name = ""
	filter.CreatedBy = ""
	filter.Suspicious = nil
	return s.list(ctx, filter, &userID)
}

func (s *service) list(ctx context.Context, filter ListFilter, owner *uuid.UUID) (pagination.Page[TransactionDTO], error) {
	if err := validateFilter(filter); err != nil {
		return pagination.Page[TransactionDTO]{}, err
	}
	rows, count, err := s.transactions.List(ctx, filter, owner)
	if err != nil {
		return pagination.Page[TransactionDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list transactions")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	promos, err := s.transactions.PromotionIDsFor(ctx, ids)
	if err != nil {
		return pagination.Page[TransactionDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction promotions")
	}

	page := pagination.Page[TransactionDTO]{Count: count, Results: make([]TransactionDTO, 0, len(rows))}
	for i := range rows {
		row := &rows[i]
		page.Results = append(page.Results, toDTO(&row.Transaction, row.OwnerUtorid, row.CreatorUtorid, promos[row.ID]))
	}
	return page, nil
}

func validateFilter(filter ListFilter) error {
	if filter.Type != nil && !filter.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	if filter.RelatedID != nil {
		if filter.Type == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "relatedId requires type")
		}
		if _, ok := models.RelatedColumn(*filter.Type); !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "relatedId is not supported for this type")
		}
	}
	if filter.Amount != nil && filter.Operator != "gte" && filter.Operator != "lte" {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount requires operator gte or lte")
	}
	if filter.Order != "" && filter.Order != "asc" && filter.Order != "desc" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order must be asc or desc")
	}
	return nil
}

func (s *service) emitTransaction(ctx context.Context, tx *gorm.DB, actor Actor, eventType enums.OutboxEventType, row *models.Transaction, utorid string, promoIDs []uuid.UUID) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   row.ID,
		Actor:         actorRef(actor),
		Data:          transactionPayload(row, utorid, promoIDs),
		OccurredAt:    s.now().UTC(),
	})
}

// reject normalizes err to a coded error, counts it and logs unexpected
// failures.
func (s *service) reject(ctx context.Context, op string, err error) error {
	coded := pkgerrors.As(err)
	switch {
	case coded != nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		coded = pkgerrors.New(pkgerrors.CodeNotFound, "record not found")
	default:
		coded = pkgerrors.Wrap(pkgerrors.CodeInternal, err, op+" failed")
	}
	if s.metrics != nil {
		s.metrics.RecordRejected(op, string(coded.Code()))
	}
	if coded.Code() == pkgerrors.CodeInternal {
		s.logg.Error(s.logg.WithField(ctx, "operation", op), "ledger operation failed", err)
	}
	return coded
}

func (s *service) committed(ctx context.Context, row *models.Transaction, applied int) {
	if s.metrics != nil {
		s.metrics.RecordTransaction(string(row.Type), applied)
	}
	logCtx := s.logg.WithTransactionID(ctx, row.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"type": string(row.Type), "amount": row.Amount, "applied": applied})
	s.logg.Info(logCtx, "ledger transaction committed")
}

func (s *service) loadUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}

func (s *service) loadUserByUtorid(ctx context.Context, utorid string) (*models.User, error) {
	user, err := s.users.FindByUtorid(ctx, strings.TrimSpace(utorid))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}

func (s *service) loadTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	row, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction")
	}
	return row, nil
}

func promotionIDs(promos []models.Promotion) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(promos))
	for _, promo := range promos {
		ids = append(ids, promo.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
