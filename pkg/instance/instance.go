// Package instance boots the shared pieces every background worker needs and
// names the running process for logs and lock ownership.
package instance

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	"github.com/angelmondragon/campus-loyalty/pkg/metrics"
	"github.com/angelmondragon/campus-loyalty/pkg/migrate"
)

// ID returns LOYALTY_WORKER_ID, falling back to host and pid.
func ID() string {
	if id := os.Getenv("LOYALTY_WORKER_ID"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Worker carries the resources a worker binary shares across its components.
type Worker struct {
	ID       string
	Kind     string
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	DB       *db.Client
}

// Options tune Boot. WithDB opens Postgres and applies dev migrations.
type Options struct {
	Kind   string
	WithDB bool
}

// Boot loads .env and config, builds the logger and metrics registry, and
// optionally connects the database.
func Boot(ctx context.Context, opts Options) (*Worker, error) {
	logg := logger.New(logger.Options{ServiceName: opts.Kind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = opts.Kind

	w := &Worker{
		ID:     ID(),
		Kind:   opts.Kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: opts.Kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
			Format:      cfg.App.LogFormat,
		}),
		Registry: prometheus.NewRegistry(),
	}
	w.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if !opts.WithDB {
		return w, nil
	}
	w.DB, err = db.New(ctx, cfg.DB, w.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	if err := migrate.AutoRun(ctx, cfg, w.Logger, w.DB); err != nil {
		_ = w.DB.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return w, nil
}

// Context returns a signal-aware root context carrying the worker's log
// fields, and starts the metrics listener on it.
func (w *Worker) Context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = w.Logger.WithFields(ctx, map[string]any{
		"env":         w.Config.App.Env,
		"serviceKind": w.Kind,
		"instance":    w.ID,
	})
	go metrics.Serve(ctx, w.Config.Service.MetricsAddr, w.Registry, w.Logger)
	return ctx, stop
}

// Close releases the database handle if one was opened.
func (w *Worker) Close(ctx context.Context) {
	if w.DB == nil {
		return
	}
	if err := w.DB.Close(); err != nil {
		w.Logger.Error(ctx, "error closing database", err)
	}
}

// Require logs a failed dependency and exits.
func (w *Worker) Require(ctx context.Context, resource string, err error) {
	if err == nil {
		return
	}
	w.Logger.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
