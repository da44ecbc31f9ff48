package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/security"
)

// RequestReset issues a fresh reset token and expires any earlier one.
func (s *service) RequestReset(ctx context.Context, req ResetRequest) (*ResetTicket, error) {
	user, err := s.users.FindByUtorid(ctx, strings.TrimSpace(req.Utorid))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	now := s.now().UTC()
	reset := &models.PasswordReset{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     security.NewResetToken(),
		ExpiresAt: now.Add(s.passwordCfg.ResetTTL),
	}
	err = s.uow.RunSteps(ctx, db.Step{
		Name:  "issue reset token",
		Apply: func(tx *gorm.DB) error { return s.resets.IssueWithTx(tx, reset, now) },
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue reset token")
	}
	return &ResetTicket{ExpiresAt: reset.ExpiresAt, ResetToken: reset.Token}, nil
}

// PerformReset consumes token and sets the new password. The same path
// activates freshly registered accounts.
func (s *service) PerformReset(ctx context.Context, token string, req PerformResetRequest) error {
	if err := security.ValidatePasswordPolicy(req.Password); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	user, err := s.users.FindByUtorid(ctx, strings.TrimSpace(req.Utorid))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	now := s.now().UTC()
	var reset *models.PasswordReset
	err = s.uow.RunSteps(ctx,
		db.Step{
			Name: "consume reset token",
			Check: func(tx *gorm.DB) error {
				var err error
				reset, err = s.resets.FindByTokenWithTx(tx, strings.TrimSpace(token))
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "reset token not found")
				}
				if err != nil {
					return err
				}
				if !reset.Active(now) {
					return pkgerrors.New(pkgerrors.CodeGone, "reset token has expired")
				}
				if user == nil || user.ID != reset.UserID {
					return pkgerrors.New(pkgerrors.CodeUnauthorized, "reset token does not belong to this user")
				}
				return nil
			},
			Apply: func(tx *gorm.DB) error { return s.resets.MarkUsedWithTx(tx, reset.ID, now) },
		},
		db.Step{
			Name:  "set password",
			Apply: func(tx *gorm.DB) error { return s.users.UpdatePasswordHashWithTx(tx, reset.UserID, hash) },
		},
	)
	if err != nil {
		if coded := pkgerrors.As(err); coded != nil {
			return coded
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reset password")
	}
	return nil
}
