package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

// Notification is one queued delivery.
type Notification struct {
	UserID    uuid.UUID              `json:"userId"`
	Kind      enums.NotificationKind `json:"kind"`
	Message   string                 `json:"message"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Deliverer is one delivery backend.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

type dispatchMetrics interface {
	IncNotificationDropped()
	IncNotificationFailure(backend string)
}

type queued struct {
	ctx context.Context
	n   Notification
}

// Dispatcher is the production Sink. Notify enqueues onto a bounded buffer
// drained by a fixed set of workers; a full buffer drops the notification.
type Dispatcher struct {
	queue      chan queued
	deliverers []Deliverer
	logg       *logger.Logger
	metrics    dispatchMetrics
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts cfg.Workers workers fanning out to deliverers.
func NewDispatcher(cfg config.NotificationsConfig, logg *logger.Logger, metrics dispatchMetrics, deliverers ...Deliverer) (*Dispatcher, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(deliverers) == 0 {
		return nil, fmt.Errorf("at least one deliverer required")
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 256
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	d := &Dispatcher{
		queue:      make(chan queued, size),
		deliverers: deliverers,
		logg:       logg,
		metrics:    metrics,
		now:        time.Now,
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d, nil
}

// Notify never blocks and never fails the caller.
func (d *Dispatcher) Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, message string) {
	item := queued{
		ctx: context.WithoutCancel(ctx),
		n:   Notification{UserID: userID, Kind: kind, Message: clip(message), CreatedAt: d.now().UTC()},
	}
	if userID == uuid.Nil || !kind.IsValid() {
		d.drop(ctx, item.n, "notification rejected")
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, item.n, "dispatcher closed")
		return
	}
	select {
	case d.queue <- item:
	default:
		d.drop(ctx, item.n, "notification buffer full")
	}
}

func clip(message string) string {
	runes := []rune(message)
	if len(runes) <= models.MaxNotificationMessageLen {
		return message
	}
	return string(runes[:models.MaxNotificationMessageLen])
}

func (d *Dispatcher) drop(ctx context.Context, n Notification, reason string) {
	if d.metrics != nil {
		d.metrics.IncNotificationDropped()
	}
	logCtx := d.logg.WithFields(ctx, map[string]any{"user_id": n.UserID.String(), "kind": string(n.Kind)})
	d.logg.Warn(logCtx, reason)
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for item := range d.queue {
		d.deliver(item.ctx, item.n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	var errs error
	for _, deliverer := range d.deliverers {
		if err := deliverer.Deliver(ctx, n); err != nil {
			if d.metrics != nil {
				d.metrics.IncNotificationFailure(deliverer.Name())
			}
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", deliverer.Name(), err))
		}
	}
	if errs != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{"user_id": n.UserID.String(), "kind": string(n.Kind)})
		d.logg.Error(logCtx, "notification delivery failed", errs)
	}
}

// Close stops intake and waits for queued notifications to drain or ctx to
// expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
