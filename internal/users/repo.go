package users

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/pagination"
)

// Repository exposes user persistence. ApplyDelta is the only writer of
// users.points.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateWithTx inserts a user inside the caller's transaction.
func (r *Repository) CreateWithTx(tx *gorm.DB, user *models.User) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return tx.Create(user).Error
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUtorid retrieves the user with the given handle.
func (r *Repository) FindByUtorid(ctx context.Context, utorid string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("utorid = ?", utorid).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail retrieves the user with the given email, case-insensitively.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// LockByID reads a user with a row lock held until the transaction ends.
func (r *Repository) LockByID(tx *gorm.DB, id uuid.UUID) (*models.User, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// LockByIDs locks several users in ascending id order so concurrent callers
// touching the same pair cannot deadlock. Missing users surface as
// gorm.ErrRecordNotFound.
func (r *Repository) LockByIDs(tx *gorm.DB, ids ...uuid.UUID) (map[uuid.UUID]*models.User, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	ordered := uniqueSorted(ids)
	locked := make(map[uuid.UUID]*models.User, len(ordered))
	for _, id := range ordered {
		user, err := r.LockByID(tx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = user
	}
	return locked, nil
}

// ApplyDelta adds delta to the user's balance and returns the new balance.
// A result below zero or above models.MaxPoints is rejected and nothing is
// written.
func (r *Repository) ApplyDelta(tx *gorm.DB, userID uuid.UUID, delta int) (int, error) {
	user, err := r.LockByID(tx, userID)
	if err != nil {
		return 0, err
	}
	next := user.Points + delta
	if next < 0 {
		return user.Points, pkgerrors.New(pkgerrors.CodeValidation, "insufficient points")
	}
	if next > models.MaxPoints {
		return user.Points, pkgerrors.New(pkgerrors.CodeValidation, "balance would exceed the point limit")
	}
	if delta == 0 {
		return next, nil
	}
	err = tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("points", gorm.Expr("points + ?", delta)).Error
	switch {
	case db.IsCheckViolation(err, ""):
		return user.Points, pkgerrors.New(pkgerrors.CodeValidation, "insufficient points")
	case err != nil:
		return 0, err
	}
	return next, nil
}

// List returns one page of users matching the filter, ordered by creation.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if name := strings.TrimSpace(filter.Name); name != "" {
		like := "%" + strings.ToLower(name) + "%"
		query = query.Where("(LOWER(name) LIKE ? OR LOWER(utorid) LIKE ?)", like, like)
	}
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.Verified != nil {
		query = query.Where("verified = ?", *filter.Verified)
	}
	if filter.Activated != nil {
		if *filter.Activated {
			query = query.Where("last_login_at IS NOT NULL")
		} else {
			query = query.Where("last_login_at IS NULL")
		}
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.User
	page := pagination.Params{Page: filter.Page, Limit: filter.Limit}
	if err := query.Scopes(page.Scope()).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, count, nil
}

// Updates writes the given columns. Points is never accepted here.
func (r *Repository) Updates(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if _, ok := fields["points"]; ok {
		return pkgerrors.New(pkgerrors.CodeInternal, "points can only change through the ledger")
	}
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateLastLogin refreshes the user's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// UpdatePasswordHashWithTx replaces the stored credential.
func (r *Repository) UpdatePasswordHashWithTx(tx *gorm.DB, id uuid.UUID, hash string) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.User{}).Where("id = ?", id).UpdateColumn("password_hash", hash).Error
}

func uniqueSorted(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
