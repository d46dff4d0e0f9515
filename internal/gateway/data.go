package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dbwatch/dbwatch/internal/dbwatcherr"
)

// RowCount returns COUNT(*) for schema.table.
func (g *Gateway) RowCount(ctx context.Context, schema, table string) (int64, error) {
	var n int64
	err := g.withRead(func(db *sql.DB) error {
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s", QuoteQualified(schema, table))
		if err := db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "rowCount", err)
		}
		return nil
	})
	return n, err
}

// Rows returns up to limit rows (starting at offset) as row-to-json
// objects, so numeric, temporal and JSON types round-trip through a
// string-keyed object.
func (g *Gateway) Rows(ctx context.Context, schema, table string, limit, offset int64) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := g.withRead(func(db *sql.DB) error {
		q := fmt.Sprintf(
			"SELECT row_to_json(t.*) FROM %s t LIMIT $1 OFFSET $2",
			QuoteQualified(schema, table),
		)
		rows, err := db.QueryContext(ctx, q, limit, offset)
		if err != nil {
			return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "rows", err)
		}
		defer rows.Close()
		for rows.Next() {
			var raw json.RawMessage
			if err := rows.Scan(&raw); err != nil {
				return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "rows scan", err)
			}
			out = append(out, raw)
		}
		return rows.Err()
	})
	return out, err
}

// RawExecute runs an arbitrary statement against the session, outside any
// transaction. The dry-run evaluator does not use it: it runs the user's
// statement inside its own transaction on the handle returned by DB().
func (g *Gateway) RawExecute(ctx context.Context, statement string) (sql.Result, error) {
	var res sql.Result
	err := g.withRead(func(db *sql.DB) error {
		r, err := db.ExecContext(ctx, statement)
		if err != nil {
			return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "rawExecute", err)
		}
		res = r
		return nil
	})
	return res, err
}

// Querier is satisfied by both *sql.DB and *sql.Tx, letting helpers like
// NonSystemTables run against either a plain session or an in-flight
// transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// NonSystemTables returns every (schema, table) pair outside pg_catalog
// and information_schema, as tracked by pg_tables. Used by the dry-run
// evaluator to enumerate what to snapshot.
func NonSystemTables(ctx context.Context, db Querier) ([]struct{ Schema, Table string }, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT schemaname::text, tablename::text
		FROM pg_tables
		WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
		ORDER BY schemaname, tablename
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []struct{ Schema, Table string }
	for rows.Next() {
		var s, t string
		if err := rows.Scan(&s, &t); err != nil {
			return nil, err
		}
		out = append(out, struct{ Schema, Table string }{s, t})
	}
	return out, rows.Err()
}
