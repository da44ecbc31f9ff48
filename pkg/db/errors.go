package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// violation pairs a Postgres SQLSTATE with the text sqlite reports for the
// same constraint class.
type violation struct {
	sqlState     string
	sqliteMarker string
}

var (
	uniqueViolation = violation{sqlState: "23505", sqliteMarker: "UNIQUE constraint failed"}
	checkViolation  = violation{sqlState: "23514", sqliteMarker: "CHECK constraint failed"}
)

// IsUniqueViolation reports whether err is a unique constraint failure. A
// non-empty constraint must match the Postgres constraint name, or appear in
// the sqlite message, which lists the columns instead.
func IsUniqueViolation(err error, constraint string) bool {
	return uniqueViolation.matches(err, constraint)
}

// IsCheckViolation reports whether err is a CHECK constraint failure, such as
// users_points_non_negative.
func IsCheckViolation(err error, constraint string) bool {
	return checkViolation.matches(err, constraint)
}

func (v violation) matches(err error, constraint string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == v.sqlState && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	msg := err.Error()
	if !strings.Contains(msg, v.sqliteMarker) && !strings.Contains(msg, "SQLSTATE "+v.sqlState) {
		return false
	}
	return constraint == "" || strings.Contains(msg, constraint)
}
