package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
)

// StoreDeliverer persists notifications into the inbox table.
type StoreDeliverer struct {
	repo Repository
}

func NewStoreDeliverer(repo Repository) *StoreDeliverer {
	return &StoreDeliverer{repo: repo}
}

func (s *StoreDeliverer) Name() string { return "store" }

func (s *StoreDeliverer) Deliver(ctx context.Context, n Notification) error {
	return s.repo.Create(ctx, &models.Notification{
		UserID:    n.UserID,
		Kind:      n.Kind,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	})
}

type publisher interface {
	Publish(ctx context.Context, channel string, payload any) (int64, error)
	NotificationChannel(userID string) string
}

// RedisDeliverer pushes notifications onto a per-user Redis channel for
// connected clients. Nobody listening is not an error.
type RedisDeliverer struct {
	client publisher
}

func NewRedisDeliverer(client publisher) *RedisDeliverer {
	return &RedisDeliverer{client: client}
}

func (r *RedisDeliverer) Name() string { return "redis" }

func (r *RedisDeliverer) Deliver(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, err = r.client.Publish(ctx, r.client.NotificationChannel(n.UserID.String()), payload)
	return err
}
