package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/angelmondragon/campus-loyalty/pkg/migrate"
)

func TestEmbeddedMigrationsValid(t *testing.T) {
	if err := migrate.Validate(migrate.Migrations()); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
	onDisk, err := fs.Glob(migrate.Source("migrations"), "*.sql")
	if err != nil {
		t.Fatalf("glob source dir: %v", err)
	}
	embedded, _ := fs.Glob(migrate.Migrations(), "*.sql")
	if len(onDisk) != len(embedded) {
		t.Fatalf("embedded set out of sync: disk %d embedded %d", len(onDisk), len(embedded))
	}
}

func TestLedgerMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"*_create_users.sql": {
			"CREATE TABLE IF NOT EXISTS users",
			"CHECK (points >= 0)",
			"CREATE UNIQUE INDEX IF NOT EXISTS users_utorid_key",
			"CREATE TABLE IF NOT EXISTS password_resets",
		},
		"*_create_promotions_and_events.sql": {
			"CREATE TYPE promotion_type AS ENUM ('automatic', 'one-time')",
			"CREATE TABLE IF NOT EXISTS promotion_usages",
			"points_awarded <= points_allocated",
			"PRIMARY KEY (event_id, user_id)",
		},
		"*_create_transactions.sql": {
			"CREATE TABLE IF NOT EXISTS transactions",
			"CREATE TABLE IF NOT EXISTS transaction_promotions",
			"type <> 'redemption' OR amount > 0",
			"DROP TABLE IF EXISTS transactions",
		},
		"*_create_notifications_and_outbox.sql": {
			"CREATE TABLE IF NOT EXISTS notifications",
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
		},
	}

	for pattern, checks := range cases {
		matches, err := fs.Glob(migrate.Migrations(), pattern)
		if err != nil {
			t.Fatalf("glob migrations: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected one migration for %s, got %d", pattern, len(matches))
		}
		data, err := fs.ReadFile(migrate.Migrations(), matches[0])
		if err != nil {
			t.Fatalf("read migration file: %v", err)
		}
		content := string(data)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s missing expected statement %q", matches[0], sub)
			}
		}
	}
}

func TestCreateWritesValidSkeleton(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

	path, err := migrate.Create(dir, "Add Reset Index!", at)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20261001093000_add_reset_index.sql" {
		t.Fatalf("unexpected path %s", path)
	}
	if err := migrate.Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("validate created migration: %v", err)
	}
	if _, err := migrate.Create(dir, "add reset index", at); err == nil {
		t.Fatal("expected clash on identical version and slug")
	}
	if _, err := migrate.Create(dir, "!!!", at); err == nil {
		t.Fatal("expected error for name without usable characters")
	}
}

func TestValidateRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {"create_users.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
		"duplicate version": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"no down": {"20260101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
	}
	for name, fsys := range cases {
		if err := migrate.Validate(fsys); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Add Reset Index!":   "add_reset_index",
		"  promo--usage  ":   "promo_usage",
		"already_snake_case": "already_snake_case",
	}
	for in, want := range cases {
		if got := migrate.Slug(in); got != want {
			t.Errorf("Slug(%q) = %q want %q", in, got, want)
		}
	}
}
