package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// LogFields flattens err for a log line: the wrap chain, the typed code if
// any, and the Postgres diagnostics when a driver error is in the chain.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	fields := map[string]any{"error_chain": chain}
	if typed := As(err); typed != nil {
		fields["error_code"] = string(typed.Code())
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		addPG(fields, pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.Detail)
	case errors.As(err, &pqErr):
		addPG(fields, string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail)
	}
	return fields
}

func addPG(fields map[string]any, code, constraint, table, detail string) {
	for key, value := range map[string]string{
		"pg_code":       code,
		"pg_constraint": constraint,
		"pg_table":      table,
		"pg_detail":     detail,
	} {
		if value != "" {
			fields[key] = value
		}
	}
}
