// Package testdb opens an in-memory sqlite database carrying the ledger schema
// for repository and engine tests.
package testdb

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		utorid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL DEFAULT 'regular',
		points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
		verified BOOLEAN NOT NULL DEFAULT false,
		suspicious BOOLEAN NOT NULL DEFAULT false,
		password_hash TEXT,
		birthday TEXT,
		avatar_url TEXT,
		last_login_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE password_resets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		used_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE promotions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		type TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		min_spending TEXT,
		rate TEXT,
		points INTEGER,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE promotion_usages (
		promotion_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		used_at DATETIME,
		PRIMARY KEY (promotion_id, user_id)
	)`,
	`CREATE TABLE events (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		location TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		capacity INTEGER,
		points_allocated INTEGER NOT NULL DEFAULT 0,
		points_awarded INTEGER NOT NULL DEFAULT 0,
		published BOOLEAN NOT NULL DEFAULT false,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE event_organizers (
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at DATETIME,
		PRIMARY KEY (event_id, user_id)
	)`,
	`CREATE TABLE event_guests (
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at DATETIME,
		PRIMARY KEY (event_id, user_id)
	)`,
	`CREATE TABLE transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_by_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		spent TEXT,
		suspicious BOOLEAN NOT NULL DEFAULT false,
		processed BOOLEAN NOT NULL DEFAULT false,
		remark TEXT NOT NULL DEFAULT '',
		counterparty_id TEXT,
		processed_by_id TEXT,
		related_transaction_id TEXT,
		event_id TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE transaction_promotions (
		transaction_id TEXT NOT NULL,
		promotion_id TEXT NOT NULL,
		PRIMARY KEY (transaction_id, promotion_id)
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		read_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// Open returns a private in-memory database for the calling test. The pool is
// pinned to one connection so the database survives for the whole test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return open(t, "file:"+name+"?mode=memory&cache=shared", 1)
}

// OpenPooled returns a file-backed database served by conns connections, for
// tests that race writers against each other. Every transaction begins
// IMMEDIATE so writers queue on the busy timeout instead of failing.
func OpenPooled(t *testing.T, conns int) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	return open(t, "file:"+path+"?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate", conns)
}

func open(t *testing.T, dsn string, conns int) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// UserOption customizes a seeded user.
type UserOption func(*models.User)

func WithRole(role enums.Role) UserOption {
	return func(u *models.User) { u.Role = role }
}

func WithPoints(points int) UserOption {
	return func(u *models.User) { u.Points = points }
}

func Unverified() UserOption {
	return func(u *models.User) { u.Verified = false }
}

func Suspicious() UserOption {
	return func(u *models.User) { u.Suspicious = true }
}

func WithPasswordHash(hash string) UserOption {
	return func(u *models.User) { u.PasswordHash = &hash }
}

// MustCreateUser seeds a verified regular user with the given utorid.
func MustCreateUser(t *testing.T, conn *gorm.DB, utorid string, opts ...UserOption) *models.User {
	t.Helper()
	user := &models.User{
		ID:       uuid.New(),
		Utorid:   utorid,
		Name:     "Test " + utorid,
		Email:    fmt.Sprintf("%s@mail.utoronto.ca", utorid),
		Role:     enums.RoleRegular,
		Verified: true,
	}
	for _, opt := range opts {
		opt(user)
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// MustCreatePromotion seeds a promotion active over [start, end).
func MustCreatePromotion(t *testing.T, conn *gorm.DB, promoType enums.PromotionType, start, end time.Time, mutate func(*models.Promotion)) *models.Promotion {
	t.Helper()
	promo := &models.Promotion{
		ID:          uuid.New(),
		Name:        "promo " + string(promoType),
		Description: "seeded",
		Type:        promoType,
		StartTime:   start.UTC(),
		EndTime:     end.UTC(),
	}
	if mutate != nil {
		mutate(promo)
	}
	if err := conn.Create(promo).Error; err != nil {
		t.Fatalf("create promotion: %v", err)
	}
	return promo
}

// Rate is a shorthand for an optional promotion rate.
func Rate(value string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(value))
}

// MustCreateEvent seeds a published event with the given budget.
func MustCreateEvent(t *testing.T, conn *gorm.DB, allocated, awarded int, mutate func(*models.Event)) *models.Event {
	t.Helper()
	now := time.Now().UTC()
	event := &models.Event{
		ID:              uuid.New(),
		Name:            "Seeded event",
		Description:     "seeded",
		Location:        "BA 1160",
		StartTime:       now.Add(time.Hour),
		EndTime:         now.Add(3 * time.Hour),
		PointsAllocated: allocated,
		PointsAwarded:   awarded,
		Published:       true,
	}
	if mutate != nil {
		mutate(event)
	}
	if err := conn.Create(event).Error; err != nil {
		t.Fatalf("create event: %v", err)
	}
	return event
}

func MustAddGuest(t *testing.T, conn *gorm.DB, eventID, userID uuid.UUID) {
	t.Helper()
	if err := conn.Create(&models.EventGuest{EventID: eventID, UserID: userID}).Error; err != nil {
		t.Fatalf("add guest: %v", err)
	}
}

func MustAddOrganizer(t *testing.T, conn *gorm.DB, eventID, userID uuid.UUID) {
	t.Helper()
	if err := conn.Create(&models.EventOrganizer{EventID: eventID, UserID: userID}).Error; err != nil {
		t.Fatalf("add organizer: %v", err)
	}
}

// Points reloads a user's balance.
func Points(t *testing.T, conn *gorm.DB, userID uuid.UUID) int {
	t.Helper()
	var user models.User
	if err := conn.First(&user, "id = ?", userID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return user.Points
}

// CountTransactions returns how many ledger rows exist.
func CountTransactions(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.Transaction{}).Count(&count).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return count
}
