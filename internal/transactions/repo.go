package transactions

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/pagination"
)

// Repository persists ledger rows. Rows are append-only apart from the
// suspicious and processed flags.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateWithTx(tx *gorm.DB, row *models.Transaction) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return tx.Create(row).Error
}

func (r *Repository) LinkPromotionsWithTx(tx *gorm.DB, transactionID uuid.UUID, promotionIDs []uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if len(promotionIDs) == 0 {
		return nil
	}
	links := make([]models.TransactionPromotion, 0, len(promotionIDs))
	for _, id := range promotionIDs {
		links = append(links, models.TransactionPromotion{TransactionID: transactionID, PromotionID: id})
	}
	return tx.Create(&links).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var row models.Transaction
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) LockByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Transaction, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var row models.Transaction
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateFlagsWithTx writes the mutable columns of a row.
func (r *Repository) UpdateFlagsWithTx(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.Transaction{}).Where("id = ?", id).UpdateColumns(fields).Error
}

// PromotionIDsFor maps each transaction to its linked promotions.
func (r *Repository) PromotionIDsFor(ctx context.Context, transactionIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	out := make(map[uuid.UUID][]uuid.UUID, len(transactionIDs))
	if len(transactionIDs) == 0 {
		return out, nil
	}
	var links []models.TransactionPromotion
	if err := r.db.WithContext(ctx).
		Where("transaction_id IN ?", transactionIDs).
		Order("promotion_id ASC").
		Find(&links).Error; err != nil {
		return nil, err
	}
	for _, link := range links {
		out[link.TransactionID] = append(out[link.TransactionID], link.PromotionID)
	}
	return out, nil
}

func (r *Repository) FindRow(ctx context.Context, id uuid.UUID) (*transactionRow, error) {
	var rows []transactionRow
	if err := r.joined(ctx).Select(rowColumns).Where("t.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

// List returns a page of rows matching filter. A non-nil owner restricts the
// result to that user's transactions.
func (r *Repository) List(ctx context.Context, filter ListFilter, owner *uuid.UUID) ([]transactionRow, int64, error) {
	query := r.joined(ctx)
	if owner != nil {
		query = query.Where("t.user_id = ?", *owner)
	}
	if name := strings.ToLower(strings.TrimSpace(filter.Name)); name != "" {
		like := "%" + name + "%"
		query = query.Where("(LOWER(u.utorid) LIKE ? OR LOWER(u.name) LIKE ?)", like, like)
	}
	if createdBy := strings.ToLower(strings.TrimSpace(filter.CreatedBy)); createdBy != "" {
		query = query.Where("LOWER(c.utorid) LIKE ?", "%"+createdBy+"%")
	}
	if filter.Suspicious != nil {
		query = query.Where("t.suspicious = ?", *filter.Suspicious)
	}
	if filter.PromotionID != nil {
		query = query.Where("EXISTS (SELECT 1 FROM transaction_promotions tp WHERE tp.transaction_id = t.id AND tp.promotion_id = ?)", *filter.PromotionID)
	}
	if filter.Type != nil {
		query = query.Where("t.type = ?", *filter.Type)
		if filter.RelatedID != nil {
			if column, ok := models.RelatedColumn(*filter.Type); ok {
				query = query.Where("t."+column+" = ?", *filter.RelatedID)
			}
		}
	}
	if filter.Amount != nil {
		switch filter.Operator {
		case "gte":
			query = query.Where("t.amount >= ?", *filter.Amount)
		case "lte":
			query = query.Where("t.amount <= ?", *filter.Amount)
		}
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	direction := "DESC"
	if filter.Order == "asc" {
		direction = "ASC"
	}
	var rows []transactionRow
	page := pagination.Params{Page: filter.Page, Limit: filter.Limit}
	err := query.
		Select(rowColumns).
		Order("t.created_at " + direction + ", t.id " + direction).
		Scopes(page.Scope()).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, count, nil
}

const rowColumns = "t.*, u.utorid AS owner_utorid, c.utorid AS creator_utorid"

func (r *Repository) joined(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("transactions AS t").
		Joins("JOIN users u ON u.id = t.user_id").
		Joins("JOIN users c ON c.id = t.created_by_id")
}
