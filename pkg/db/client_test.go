package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

type testBalance struct {
	ID     int
	Utorid string `gorm:"uniqueIndex"`
	Points int
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(&testBalance{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testBalance{Utorid: "alice001"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testBalance{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testBalance{Utorid: "bob00001"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testBalance{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestRunSteps_FailedCheckRollsBackEarlierApply(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)
	if err := db.Create(&testBalance{ID: 1, Utorid: "sender01", Points: 50}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	debit := Step{
		Name: "debit sender",
		Apply: func(tx *gorm.DB) error {
			return tx.Model(&testBalance{}).Where("id = ?", 1).Update("points", gorm.Expr("points - ?", 20)).Error
		},
	}
	rejected := errors.New("recipient missing")
	credit := Step{
		Name:  "credit recipient",
		Check: func(tx *gorm.DB) error { return rejected },
		Apply: func(tx *gorm.DB) error { t.Fatal("apply must not run after failed check"); return nil },
	}

	err := client.RunSteps(context.Background(), debit, credit)
	if !errors.Is(err, rejected) {
		t.Fatalf("expected check error, got %v", err)
	}

	var row testBalance
	if err := db.First(&row, 1).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.Points != 50 {
		t.Fatalf("expected balance untouched at 50, got %d", row.Points)
	}
}

func TestRunSteps_ApplyErrorNamesStep(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	cause := errors.New("disk full")
	err := client.RunSteps(context.Background(), Step{
		Name:  "insert transaction",
		Apply: func(tx *gorm.DB) error { return cause },
	})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if err.Error() != "insert transaction: disk full" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	if err := db.Create(&testBalance{Utorid: "dupe0001"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := db.Create(&testBalance{Utorid: "dupe0001"}).Error
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected sqlite unique violation, got %v", err)
	}
	if !IsUniqueViolation(err, "utorid") {
		t.Fatalf("expected column match, got %v", err)
	}

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	if !IsUniqueViolation(pgErr, "users_email_key") {
		t.Fatalf("expected pg unique violation match")
	}
	if IsUniqueViolation(pgErr, "users_utorid_key") {
		t.Fatalf("unexpected match on other constraint")
	}
	if IsUniqueViolation(errors.New("timeout"), "") {
		t.Fatalf("plain errors are not unique violations")
	}
}

func TestIsCheckViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "users_points_non_negative"}
	if !IsCheckViolation(pgErr, "users_points_non_negative") || !IsCheckViolation(pgErr, "") {
		t.Fatal("expected pg check violation match")
	}
	if IsCheckViolation(&pgconn.PgError{Code: "23505"}, "") {
		t.Fatal("a unique violation is not a check violation")
	}
	if IsUniqueViolation(pgErr, "") {
		t.Fatal("a check violation is not a unique violation")
	}
	sqliteErr := errors.New("CHECK constraint failed: points >= 0")
	if !IsCheckViolation(sqliteErr, "points") {
		t.Fatalf("expected sqlite check violation, got %v", sqliteErr)
	}
}

func TestPing(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestNewOpensSQLiteAndRejectsUnknownDriver(t *testing.T) {
	ctx := context.Background()
	client, err := New(ctx, config.DBConfig{Driver: "SQLite", DSN: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer client.Close()
	if client.Driver() != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %s", client.Driver())
	}
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	if _, err := New(ctx, config.DBConfig{Driver: "mysql", DSN: "x"}, nil); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	if _, err := New(ctx, config.DBConfig{}, nil); err == nil {
		t.Fatal("expected missing dsn error")
	}
}

func TestGormLoggerReportsFailuresAndSlowQueries(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	gl := newGormLogger(logg, 10*time.Millisecond)
	sql := func() (string, int64) { return "SELECT 1", 1 }
	ctx := context.Background()

	gl.Trace(ctx, time.Now(), sql, nil)
	gl.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("fast and not-found queries should be quiet, got %s", buf.String())
	}

	gl.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	if !strings.Contains(buf.String(), "db.slow_query") {
		t.Fatalf("expected slow query warning, got %s", buf.String())
	}

	buf.Reset()
	gl.Trace(ctx, time.Now(), sql, errors.New("relation missing"))
	if !strings.Contains(buf.String(), "db.query_failed") || !strings.Contains(buf.String(), `"sql":"SELECT 1"`) {
		t.Fatalf("expected failure log with sql, got %s", buf.String())
	}

	buf.Reset()
	gl.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), sql, errors.New("x"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode must not log, got %s", buf.String())
	}
}
