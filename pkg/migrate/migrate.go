// Package migrate applies the ledger schema with goose. The SQL files are
// embedded so every binary carries the schema it was built against.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

// SourceDir is where new migrations are authored, relative to the repo root.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the schema compiled into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source picks the on-disk directory when one is given, the embedded set otherwise.
func Source(dir string) fs.FS {
	if dir == "" {
		return Migrations()
	}
	return os.DirFS(dir)
}

// Commands accepted by Migrator.Apply.
const (
	CmdUp      = "up"
	CmdUpByOne = "up-by-one"
	CmdDown    = "down"
	CmdRedo    = "redo"
	CmdReset   = "reset"
	CmdStatus  = "status"
	CmdVersion = "version"
)

var ErrUnknownCommand = errors.New("unknown migrate command")

type Migrator struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func New(sqlDB *sql.DB, fsys fs.FS, logg *logger.Logger) (*Migrator, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("migrate: sql db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return nil, fmt.Errorf("migrate: goose provider: %w", err)
	}
	return &Migrator{provider: provider, logg: logg}, nil
}

// Apply runs one command. target is only read by CmdVersion, which moves the
// schema up or down until it sits exactly at that version.
func (m *Migrator) Apply(ctx context.Context, command string, target int64) error {
	switch command {
	case CmdUp:
		res, err := m.provider.Up(ctx)
		m.report(ctx, res...)
		return err
	case CmdUpByOne:
		res, err := m.provider.UpByOne(ctx)
		m.report(ctx, res)
		return err
	case CmdDown:
		res, err := m.provider.Down(ctx)
		m.report(ctx, res)
		return err
	case CmdRedo:
		down, err := m.provider.Down(ctx)
		m.report(ctx, down)
		if err != nil {
			return err
		}
		up, err := m.provider.UpByOne(ctx)
		m.report(ctx, up)
		return err
	case CmdReset:
		res, err := m.provider.DownTo(ctx, 0)
		m.report(ctx, res...)
		return err
	case CmdStatus:
		return m.status(ctx)
	case CmdVersion:
		return m.moveTo(ctx, target)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
}

func (m *Migrator) moveTo(ctx context.Context, target int64) error {
	if target < 0 {
		return fmt.Errorf("migrate: invalid target version %d", target)
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("migrate: current version: %w", err)
	}

	var res []*goose.MigrationResult
	switch {
	case current < target:
		res, err = m.provider.UpTo(ctx, target)
	case current > target:
		res, err = m.provider.DownTo(ctx, target)
	}
	m.report(ctx, res...)
	return err
}

func (m *Migrator) status(ctx context.Context) error {
	rows, err := m.provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("migrate: status: %w", err)
	}
	for _, row := range rows {
		fields := map[string]any{
			"version": row.Source.Version,
			"file":    row.Source.Path,
			"state":   string(row.State),
		}
		if !row.AppliedAt.IsZero() {
			fields["applied_at"] = row.AppliedAt
		}
		m.logg.Info(m.logg.WithFields(ctx, fields), "migrate.status")
	}
	return nil
}

func (m *Migrator) report(ctx context.Context, results ...*goose.MigrationResult) {
	if m.logg == nil {
		return
	}
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		c := m.logg.WithFields(ctx, map[string]any{
			"version":     r.Source.Version,
			"file":        r.Source.Path,
			"direction":   r.Direction,
			"duration_ms": r.Duration.Milliseconds(),
		})
		if r.Error != nil {
			m.logg.Error(c, "migrate.failed", r.Error)
			continue
		}
		m.logg.Info(c, "migrate.applied")
	}
}

// AutoRun brings a dev database up to date on boot. Anything other than a dev
// environment with LOYALTY_AUTO_MIGRATE set is left alone.
func AutoRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if client.Driver() != db.DriverPostgres {
		logg.Warn(logg.WithField(ctx, "driver", client.Driver()), "migrate.auto_run_skipped")
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("migrate: sql handle: %w", err)
	}
	m, err := New(sqlDB, Migrations(), logg)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "env", cfg.App.Env), "migrate.auto_run")
	return m.Apply(ctx, CmdUp, 0)
}
