package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/angelmondragon/campus-loyalty/pkg/auth"
	"github.com/angelmondragon/campus-loyalty/pkg/auth/session"
	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Logout(ctx context.Context, accessID string) error
	RequestReset(ctx context.Context, req ResetRequest) (*ResetTicket, error)
	PerformReset(ctx context.Context, token string, req PerformResetRequest) error
}

type service struct {
	users       userRepository
	resets      resetRepository
	session     sessionManager
	uow         db.UnitOfWork
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	now         func() time.Time
}

type userRepository interface {
	FindByUtorid(ctx context.Context, utorid string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHashWithTx(tx *gorm.DB, id uuid.UUID, hash string) error
}

type resetRepository interface {
	IssueWithTx(tx *gorm.DB, reset *models.PasswordReset, now time.Time) error
	FindByTokenWithTx(tx *gorm.DB, token string) (*models.PasswordReset, error)
	MarkUsedWithTx(tx *gorm.DB, id uuid.UUID, at time.Time) error
}

type sessionManager interface {
	Generate(ctx context.Context, accessID, userID string) error
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	ResetRepo      resetRepository
	SessionManager sessionManager
	UnitOfWork     db.UnitOfWork
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Now            func() time.Time
}

// NewService constructs the credential service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.ResetRepo == nil {
		return nil, fmt.Errorf("reset repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.UnitOfWork == nil {
		return nil, fmt.Errorf("unit of work is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		users:       params.UserRepo,
		resets:      params.ResetRepo,
		session:     params.SessionManager,
		uow:         params.UnitOfWork,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		now:         now,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.authenticate(ctx, req.Utorid, req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}

	accessID := session.NewAccessID()
	token, expiresAt, err := pkgAuth.Mint(s.jwtCfg, now, pkgAuth.Grant{
		UserID:    user.ID,
		Utorid:    user.Utorid,
		Role:      user.Role,
		SessionID: accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if err := s.session.Generate(ctx, accessID, user.ID.String()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store session")
	}
	return &LoginResponse{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session")
	}
	if err := s.session.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke session")
	}
	return nil
}

func (s *service) authenticate(ctx context.Context, utorid, password string) (*models.User, error) {
	input := strings.TrimSpace(utorid)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByUtorid(ctx, input)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	if user.PasswordHash == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	valid, err := security.VerifyPassword(password, *user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if security.NeedsRehash(*user.PasswordHash, s.passwordCfg) {
		// costs were raised since this hash was written; a failed upgrade
		// leaves the old hash usable, so the login still succeeds
		_ = s.upgradeHash(ctx, user, password)
	}
	return user, nil
}

func (s *service) upgradeHash(ctx context.Context, user *models.User, password string) error {
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err != nil {
		return err
	}
	return s.uow.RunSteps(ctx, db.Step{
		Name:  "upgrade password hash",
		Apply: func(tx *gorm.DB) error { return s.users.UpdatePasswordHashWithTx(tx, user.ID, hash) },
	})
}
