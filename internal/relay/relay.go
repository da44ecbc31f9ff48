// Package relay moves committed ledger events from outbox_events to Pub/Sub.
//
// Each batch is read under FOR UPDATE SKIP LOCKED, published without waiting
// between rows, and then settled row by row inside the same transaction. A
// row that cannot be decoded, or that runs out of attempts, is parked in
// outbox_dlq so the rest of the ledger stream keeps flowing.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	"github.com/angelmondragon/campus-loyalty/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxIdleBackoff     = 10 * time.Second
	maxJitter          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type rowStore interface {
	ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, err error) error
	Exhaust(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	ParkTx(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, at time.Time) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type relayMetrics interface {
	RecordOutcome(eventType, outcome string)
	ObserveBatch(d time.Duration)
	ObservePublishLag(d time.Duration)
}

type Params struct {
	Config      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	Rows        rowStore
	DeadLetters deadLetters
	Registry    resolver
	Topics      Topics
	Metrics     relayMetrics
	Now         func() time.Time
}

type Relay struct {
	logg        *logger.Logger
	db          txRunner
	rows        rowStore
	dlq         deadLetters
	registry    resolver
	topics      Topics
	metrics     relayMetrics
	now         func() time.Time
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Rows == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Topics == nil:
		return nil, errors.New("topic publisher is required")
	}
	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		rows:        p.Rows,
		dlq:         p.DeadLetters,
		registry:    p.Registry,
		topics:      p.Topics,
		metrics:     p.Metrics,
		now:         p.Now,
		batchSize:   p.Config.BatchSize,
		maxAttempts: p.Config.MaxAttempts,
		poll:        time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.metrics == nil {
		r.metrics = nopMetrics{}
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPoll
	}
	return r, nil
}

// Run drains batches until ctx ends. Empty batches sleep one poll interval;
// failed batches back off exponentially up to maxIdleBackoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}

	backoff := r.poll
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := r.Drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox.batch_failed", err)
			backoff = min(backoff*2, maxIdleBackoff)
		case stats.total() > 0:
			backoff = r.poll
			continue
		default:
			backoff = r.poll
		}

		if err := sleep(ctx, backoff+rand.N(maxJitter)); err != nil {
			return err
		}
	}
}

// BatchStats summarizes one Drain call.
type BatchStats struct {
	Published    int
	Retried      int
	DeadLettered int
}

func (s BatchStats) total() int { return s.Published + s.Retried + s.DeadLettered }

// Drain handles one batch and reports what happened to its rows.
func (r *Relay) Drain(ctx context.Context) (BatchStats, error) {
	var stats BatchStats
	started := r.now()

	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.rows.ClaimPending(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox rows: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		inflight := make([]flight, 0, len(rows))
		for _, row := range rows {
			inflight = append(inflight, r.launch(publishCtx, row))
		}
		for _, f := range inflight {
			outcome, err := r.settle(publishCtx, tx, f)
			if err != nil {
				return err
			}
			switch outcome {
			case outcomePublished:
				stats.Published++
			case outcomeRetried:
				stats.Retried++
			case outcomeDeadLettered:
				stats.DeadLettered++
			}
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	if stats.total() > 0 {
		r.metrics.ObserveBatch(r.now().Sub(started))
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"published":     stats.Published,
			"retried":       stats.Retried,
			"dead_lettered": stats.DeadLettered,
		}), "outbox.batch_drained")
	}
	return stats, nil
}

type nopMetrics struct{}

func (nopMetrics) RecordOutcome(string, string)    {}
func (nopMetrics) ObserveBatch(time.Duration)      {}
func (nopMetrics) ObservePublishLag(time.Duration) {}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
