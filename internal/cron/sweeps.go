package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

const (
	day                       = 24 * time.Hour
	notificationRetentionDays = 30
	outboxRetentionDays       = 30
	outboxMinAttempts         = 5
	resetGracePeriod          = 24 * time.Hour
)

type notificationsCleanupRepo interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type resetPurgeRepo interface {
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	PurgeSettled(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

// sweep deletes rows older than now minus window.
type sweep struct {
	name   string
	logg   *logger.Logger
	window time.Duration
	fields map[string]any
	now    func() time.Time
	purge  func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (s *sweep) Name() string { return s.name }

func (s *sweep) Run(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.window)
	deleted, err := s.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	fields := map[string]any{"cutoff": cutoff, "rows_deleted": deleted}
	for k, v := range s.fields {
		fields[k] = v
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "cron.sweep_done")
	return nil
}

// NewNotificationCleanupJob prunes inbox entries older than retentionDays.
func NewNotificationCleanupJob(logg *logger.Logger, repo notificationsCleanupRepo, retentionDays int) (Job, error) {
	if logg == nil || repo == nil {
		return nil, errors.New("notification cleanup needs a logger and repository")
	}
	if retentionDays <= 0 {
		retentionDays = notificationRetentionDays
	}
	return &sweep{
		name:   "notification-cleanup",
		logg:   logg,
		window: time.Duration(retentionDays) * day,
		fields: map[string]any{"retention_days": retentionDays},
		now:    time.Now,
		purge:  repo.DeleteOlderThan,
	}, nil
}

type OutboxRetentionParams struct {
	DB            txRunner
	Repository    outboxRetentionRepo
	RetentionDays int
	// MinAttempts marks unpublished rows the relay gave up on as removable.
	MinAttempts int
}

// NewOutboxRetentionJob deletes published ledger events, and events that
// exhausted their publish attempts, once they age past the retention window.
func NewOutboxRetentionJob(logg *logger.Logger, p OutboxRetentionParams) (Job, error) {
	if logg == nil || p.DB == nil || p.Repository == nil {
		return nil, errors.New("outbox retention needs a logger, db runner and repository")
	}
	if p.RetentionDays <= 0 {
		p.RetentionDays = outboxRetentionDays
	}
	if p.MinAttempts <= 0 {
		p.MinAttempts = outboxMinAttempts
	}
	return &sweep{
		name:   "outbox-retention",
		logg:   logg,
		window: time.Duration(p.RetentionDays) * day,
		fields: map[string]any{"retention_days": p.RetentionDays, "min_attempts": p.MinAttempts},
		now:    time.Now,
		purge: func(ctx context.Context, cutoff time.Time) (deleted int64, err error) {
			err = p.DB.WithTx(ctx, func(tx *gorm.DB) error {
				deleted, err = p.Repository.PurgeSettled(ctx, tx, cutoff, p.MinAttempts)
				return err
			})
			return deleted, err
		},
	}, nil
}

// NewResetPurgeJob removes activation and reset tokens that expired or were
// consumed more than grace ago.
func NewResetPurgeJob(logg *logger.Logger, repo resetPurgeRepo, grace time.Duration) (Job, error) {
	if logg == nil || repo == nil {
		return nil, errors.New("reset purge needs a logger and repository")
	}
	if grace <= 0 {
		grace = resetGracePeriod
	}
	return &sweep{
		name:   "reset-token-purge",
		logg:   logg,
		window: grace,
		now:    time.Now,
		purge:  repo.DeleteInactiveBefore,
	}, nil
}
