package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
)

// ResetRepository stores activation and password reset tokens.
type ResetRepository struct {
	db *gorm.DB
}

func NewResetRepository(db *gorm.DB) *ResetRepository {
	return &ResetRepository{db: db}
}

// IssueWithTx expires every still-active token of the user and stores reset.
func (r *ResetRepository) IssueWithTx(tx *gorm.DB, reset *models.PasswordReset, now time.Time) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if err := tx.Model(&models.PasswordReset{}).
		Where("user_id = ? AND used_at IS NULL AND expires_at > ?", reset.UserID, now).
		UpdateColumn("expires_at", now).Error; err != nil {
		return err
	}
	if reset.ID == uuid.Nil {
		reset.ID = uuid.New()
	}
	return tx.Create(reset).Error
}

// FindByTokenWithTx loads a token row under lock.
func (r *ResetRepository) FindByTokenWithTx(tx *gorm.DB, token string) (*models.PasswordReset, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var reset models.PasswordReset
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("token = ?", token).First(&reset).Error; err != nil {
		return nil, err
	}
	return &reset, nil
}

// MarkUsedWithTx consumes the token.
func (r *ResetRepository) MarkUsedWithTx(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.PasswordReset{}).Where("id = ?", id).UpdateColumn("used_at", at).Error
}

// DeleteInactiveBefore purges tokens that expired or were consumed before cutoff.
func (r *ResetRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ? OR used_at < ?", cutoff, cutoff).
		Delete(&models.PasswordReset{})
	return res.RowsAffected, res.Error
}
