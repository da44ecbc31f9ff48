package writer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/campus-loyalty/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/campus-loyalty/pkg/bigquery"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Config controls the analytics writer behavior.
type Config struct {
	LedgerTable string
	BatchSize   int
	RetryPolicy RetryPolicy
}

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter streams ledger rows into BigQuery with retries and optional
// batching. Safe for concurrent use by subscription callbacks.
type BigQueryWriter struct {
	client      tableInserter
	ledgerTable string
	batchSize   int
	retry       RetryPolicy

	mu     sync.Mutex
	buffer []types.LedgerRow
}

// New creates a new BigQueryWriter backed by a shared client.
func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.LedgerTable)
	if table == "" {
		return nil, errors.New("ledger table is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	retry := cfg.RetryPolicy
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = retry.InitialBackoff
	}

	return &BigQueryWriter{
		client:      client,
		ledgerTable: table,
		batchSize:   batchSize,
		retry:       retry,
	}, nil
}

// InsertLedger buffers a ledger row and flushes once the batch is full. When
// the flush fails the row is dropped from the buffer; the caller nacks it and
// Pub/Sub redelivers.
func (w *BigQueryWriter) InsertLedger(ctx context.Context, row types.LedgerRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, row)
	if len(w.buffer) < w.batchSize {
		return nil
	}
	if err := w.flushLocked(ctx); err != nil {
		w.buffer = w.buffer[:len(w.buffer)-1]
		return err
	}
	return nil
}

// Flush writes any buffered rows immediately.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// flushLocked keeps the buffer on failure so the next flush retries it.
func (w *BigQueryWriter) flushLocked(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	rows := make([]any, len(w.buffer))
	for i := range w.buffer {
		rows[i] = &w.buffer[i]
	}
	if err := w.retry.do(ctx, func(ctx context.Context) error {
		return w.client.InsertRows(ctx, w.ledgerTable, rows)
	}); err != nil {
		return err
	}
	w.buffer = w.buffer[:0]
	return nil
}
