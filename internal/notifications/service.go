package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/pagination"
)

// Service defines inbox list/read operations.
type Service interface {
	List(ctx context.Context, params ListParams) (pagination.Page[NotificationDTO], error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// ListParams configures pagination for the inbox.
type ListParams struct {
	UserID     uuid.UUID
	Page       int
	Limit      int
	UnreadOnly bool
}

type NotificationDTO struct {
	ID        uuid.UUID  `json:"id"`
	Kind      string     `json:"kind"`
	Message   string     `json:"message"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"readAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (pagination.Page[NotificationDTO], error) {
	if params.UserID == uuid.Nil {
		return pagination.Page[NotificationDTO]{}, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	rows, count, err := s.repo.List(ctx, inboxQuery{
		UserID:     params.UserID,
		Page:       pagination.Params{Page: params.Page, Limit: params.Limit},
		UnreadOnly: params.UnreadOnly,
	})
	if err != nil {
		return pagination.Page[NotificationDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	return pagination.Map(pagination.Page[models.Notification]{Count: count, Results: rows}, toDTO), nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	found, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func toDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{ID: n.ID, Kind: string(n.Kind), Message: n.Message, Read: !n.Unread(), ReadAt: n.ReadAt, CreatedAt: n.CreatedAt}
}
