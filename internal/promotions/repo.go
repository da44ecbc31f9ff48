package promotions

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/pagination"
)

// Repository handles promotion and usedBy persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to promotion operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, promo *models.Promotion) error {
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(promo).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Promotion, error) {
	var promo models.Promotion
	if err := r.db.WithContext(ctx).First(&promo, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

// FindByIDsWithTx loads the requested promotions; missing ids are simply absent.
func (r *Repository) FindByIDsWithTx(tx *gorm.DB, ids []uuid.UUID) ([]models.Promotion, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var promos []models.Promotion
	if err := tx.Where("id IN ?", ids).Find(&promos).Error; err != nil {
		return nil, err
	}
	return promos, nil
}

// ListActiveAutomaticWithTx returns automatic promotions whose window contains now.
func (r *Repository) ListActiveAutomaticWithTx(tx *gorm.DB, now time.Time) ([]models.Promotion, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var promos []models.Promotion
	err := tx.Where("type = ? AND start_time <= ? AND end_time > ?", enums.PromotionAutomatic, now, now).
		Order("start_time ASC").
		Find(&promos).Error
	return promos, err
}

// HasUsedWithTx reports whether the user already consumed the promotion.
func (r *Repository) HasUsedWithTx(tx *gorm.DB, userID, promotionID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, gorm.ErrInvalidTransaction
	}
	var count int64
	err := tx.Model(&models.PromotionUsage{}).
		Where("promotion_id = ? AND user_id = ?", promotionID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) HasUsed(ctx context.Context, userID, promotionID uuid.UUID) (bool, error) {
	return r.HasUsedWithTx(r.db.WithContext(ctx), userID, promotionID)
}

// RecordUsageWithTx links a one-time promotion to the user. The pair key
// rejects a second use.
func (r *Repository) RecordUsageWithTx(tx *gorm.DB, promotionID, userID uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Create(&models.PromotionUsage{PromotionID: promotionID, UserID: userID}).Error
}

// ListAvailableOneTime returns active one-time promotions the user has not used.
func (r *Repository) ListAvailableOneTime(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.Promotion, error) {
	var promos []models.Promotion
	err := r.db.WithContext(ctx).
		Where("type = ? AND start_time <= ? AND end_time > ?", enums.PromotionOneTime, now, now).
		Where("NOT EXISTS (SELECT 1 FROM promotion_usages pu WHERE pu.promotion_id = promotions.id AND pu.user_id = ?)", userID).
		Order("end_time ASC").
		Find(&promos).Error
	return promos, err
}

// List returns one page of the catalog. Non-managers only see active
// promotions, minus one-time promotions they already used.
func (r *Repository) List(ctx context.Context, filter ListFilter, viewer Viewer, now time.Time) ([]models.Promotion, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Promotion{})
	if name := strings.TrimSpace(filter.Name); name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}

	if viewer.isManager() {
		if filter.Started != nil {
			if *filter.Started {
				query = query.Where("start_time <= ?", now)
			} else {
				query = query.Where("start_time > ?", now)
			}
		}
		if filter.Ended != nil {
			if *filter.Ended {
				query = query.Where("end_time <= ?", now)
			} else {
				query = query.Where("end_time > ?", now)
			}
		}
	} else {
		query = query.
			Where("start_time <= ? AND end_time > ?", now, now).
			Where("(type = ? OR NOT EXISTS (SELECT 1 FROM promotion_usages pu WHERE pu.promotion_id = promotions.id AND pu.user_id = ?))",
				enums.PromotionAutomatic, viewer.UserID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Promotion
	page := pagination.Params{Page: filter.Page, Limit: filter.Limit}
	if err := query.Scopes(page.Scope()).Order("start_time ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, count, nil
}

func (r *Repository) Updates(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Promotion{}).Where("id = ?", id).Updates(fields).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Promotion{}, "id = ?", id).Error
}
