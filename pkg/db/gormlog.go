package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

// gormLogger routes gorm's callbacks into the structured logger. Only failed
// and slow statements are reported; record-not-found is a normal lookup miss.
type gormLogger struct {
	logg *logger.Logger
	slow time.Duration
	mode gormlogger.LogLevel
}

func newGormLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &gormLogger{logg: logg, slow: slow, mode: gormlogger.Warn}
}

func (g *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.mode = level
	return &clone
}

func (g *gormLogger) Info(ctx context.Context, msg string, args ...any) {
	if g.mode >= gormlogger.Info {
		g.logg.Info(g.logg.WithField(ctx, "detail", fmt.Sprintf(msg, args...)), "db.info")
	}
}

func (g *gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if g.mode >= gormlogger.Warn {
		g.logg.Warn(g.logg.WithField(ctx, "detail", fmt.Sprintf(msg, args...)), "db.warn")
	}
}

func (g *gormLogger) Error(ctx context.Context, msg string, args ...any) {
	if g.mode >= gormlogger.Error {
		g.logg.Error(ctx, "db.error", fmt.Errorf(msg, args...))
	}
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.mode <= gormlogger.Silent {
		return
	}
	took := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := g.slow > 0 && took > g.slow
	if !failed && !slow {
		return
	}

	sql, rows := fc()
	c := g.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": took.Milliseconds(),
	})
	if failed && g.mode >= gormlogger.Error {
		g.logg.Error(c, "db.query_failed", err)
		return
	}
	if slow && g.mode >= gormlogger.Warn {
		g.logg.Warn(c, "db.slow_query")
	}
}
