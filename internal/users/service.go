package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/pagination"
	"github.com/angelmondragon/campus-loyalty/pkg/security"
)

type userRepository interface {
	CreateWithTx(tx *gorm.DB, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByUtorid(ctx context.Context, utorid string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, filter ListFilter) ([]models.User, int64, error)
	Updates(ctx context.Context, id uuid.UUID, fields map[string]any) error
	UpdatePasswordHashWithTx(tx *gorm.DB, id uuid.UUID, hash string) error
}

type resetRepository interface {
	IssueWithTx(tx *gorm.DB, reset *models.PasswordReset, now time.Time) error
}

// PromotionLookup reports which one-time promotions a user can still use.
type PromotionLookup interface {
	ListAvailableOneTime(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.Promotion, error)
}

// Service exposes account and profile operations of the user ledger.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*RegisterResult, error)
	List(ctx context.Context, filter ListFilter) (pagination.Page[UserDTO], error)
	Get(ctx context.Context, id uuid.UUID, viewer enums.Role) (*UserDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput, viewer enums.Role) (map[string]any, error)
	Me(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	UpdateMe(ctx context.Context, userID uuid.UUID, input ProfileInput) (*UserDTO, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
}

// ServiceParams wires the user service.
type ServiceParams struct {
	Users       userRepository
	Resets      resetRepository
	Promotions  PromotionLookup
	UnitOfWork  db.UnitOfWork
	PasswordCfg config.PasswordConfig
	Now         func() time.Time
}

type service struct {
	users       userRepository
	resets      resetRepository
	promotions  PromotionLookup
	uow         db.UnitOfWork
	passwordCfg config.PasswordConfig
	now         func() time.Time
}

// NewService builds a user service with the provided repositories.
func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Resets == nil {
		return nil, fmt.Errorf("reset repository required")
	}
	if params.Promotions == nil {
		return nil, fmt.Errorf("promotion lookup required")
	}
	if params.UnitOfWork == nil {
		return nil, fmt.Errorf("unit of work required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		users:       params.Users,
		resets:      params.Resets,
		promotions:  params.Promotions,
		uow:         params.UnitOfWork,
		passwordCfg: params.PasswordCfg,
		now:         now,
	}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	utorid := strings.TrimSpace(input.Utorid)
	email := strings.TrimSpace(input.Email)
	if utorid == "" || strings.TrimSpace(input.Name) == "" || email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "utorid, name and email are required")
	}

	if _, err := s.users.FindByUtorid(ctx, utorid); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "user with that utorid already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup utorid")
	}
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "user with that email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup email")
	}

	now := s.now().UTC()
	user := &models.User{
		ID:     uuid.New(),
		Utorid: utorid,
		Name:   strings.TrimSpace(input.Name),
		Email:  email,
		Role:   enums.RoleRegular,
	}
	reset := &models.PasswordReset{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     security.NewResetToken(),
		ExpiresAt: now.Add(s.passwordCfg.ActivationTTL),
	}

	err := s.uow.RunSteps(ctx,
		db.Step{Name: "create user", Apply: func(tx *gorm.DB) error { return s.users.CreateWithTx(tx, user) }},
		db.Step{Name: "issue activation token", Apply: func(tx *gorm.DB) error { return s.resets.IssueWithTx(tx, reset, now) }},
	)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "user with that utorid or email already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "register user")
	}

	return &RegisterResult{
		ID:         user.ID,
		Utorid:     user.Utorid,
		Name:       user.Name,
		Email:      user.Email,
		Verified:   user.Verified,
		ExpiresAt:  reset.ExpiresAt,
		ResetToken: reset.Token,
	}, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (pagination.Page[UserDTO], error) {
	rows, count, err := s.users.List(ctx, filter)
	if err != nil {
		return pagination.Page[UserDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users")
	}
	page := pagination.Page[UserDTO]{Count: count, Results: make([]UserDTO, 0, len(rows))}
	for i := range rows {
		page.Results = append(page.Results, *fullView(&rows[i]))
	}
	return page, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, viewer enums.Role) (*UserDTO, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := cashierView(user)
	if viewer.AtLeast(enums.RoleManager) {
		view = fullView(user)
	}
	if err := s.attachPromotions(ctx, view); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput, viewer enums.Role) (map[string]any, error) {
	fields := map[string]any{}
	if input.Email != nil {
		email := strings.TrimSpace(*input.Email)
		if email == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "email cannot be empty")
		}
		fields["email"] = email
	}
	if input.Verified != nil {
		if !*input.Verified {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "verified can only be set to true")
		}
		fields["verified"] = true
	}
	if input.Suspicious != nil {
		fields["suspicious"] = *input.Suspicious
	}
	if input.Role != nil {
		role := *input.Role
		if !role.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
		}
		if !viewer.AtLeast(enums.RoleSuperuser) && role != enums.RoleCashier && role != enums.RoleRegular {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "managers can only set roles to cashier or regular")
		}
		fields["role"] = role
		if role == enums.RoleCashier {
			fields["suspicious"] = false
		}
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one field must be provided")
	}

	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	if err := s.users.Updates(ctx, id, fields); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user")
	}
	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"id":     updated.ID,
		"utorid": updated.Utorid,
		"name":   updated.Name,
	}
	if input.Email != nil {
		out["email"] = updated.Email
	}
	if input.Verified != nil {
		out["verified"] = updated.Verified
	}
	if _, ok := fields["suspicious"]; ok {
		out["suspicious"] = updated.Suspicious
	}
	if input.Role != nil {
		out["role"] = updated.Role
	}
	return out, nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := fullView(user)
	if err := s.attachPromotions(ctx, view); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) UpdateMe(ctx context.Context, userID uuid.UUID, input ProfileInput) (*UserDTO, error) {
	fields := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		fields["name"] = name
	}
	if input.Email != nil {
		fields["email"] = strings.TrimSpace(*input.Email)
	}
	if input.Birthday != nil {
		if _, err := time.Parse("2006-01-02", *input.Birthday); err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "birthday must be a valid YYYY-MM-DD date")
		}
		fields["birthday"] = *input.Birthday
	}
	if input.AvatarURL != nil {
		fields["avatar_url"] = *input.AvatarURL
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one field must be provided")
	}

	if _, err := s.load(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.users.Updates(ctx, userID, fields); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update profile")
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return fullView(user), nil
}

func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "old and new passwords are required")
	}
	if err := security.ValidatePasswordPolicy(newPassword); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash == nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "incorrect current password")
	}
	ok, err := security.VerifyPassword(oldPassword, *user.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "incorrect current password")
	}
	hash, err := security.HashPassword(newPassword, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := s.uow.RunSteps(ctx, db.Step{
		Name:  "update password",
		Apply: func(tx *gorm.DB) error { return s.users.UpdatePasswordHashWithTx(tx, userID, hash) },
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update password")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}

func (s *service) attachPromotions(ctx context.Context, view *UserDTO) error {
	promos, err := s.promotions.ListAvailableOneTime(ctx, view.ID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list available promotions")
	}
	view.Promotions = summarize(promos)
	return nil
}
