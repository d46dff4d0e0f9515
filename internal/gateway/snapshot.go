package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dbwatch/dbwatch/internal/dbwatcherr"
)

// FingerprintRows fetches up to limit rows of schema.table keyed by a
// string fingerprint built from pkCols, alongside the row's row_to_json
// encoding. The fingerprint expression is
// COALESCE(col::text, '') joined by '::' per column, matching the
// original watcher's per-row identity computation so that a changed
// non-key column never changes a row's key. reportedCount is the
// table's true row count (independent of the limit), used to detect
// whether the snapshot was truncated.
func (g *Gateway) FingerprintRows(ctx context.Context, schema, table string, pkCols []string, limit int64) (rows map[string]json.RawMessage, reportedCount int64, truncated bool, err error) {
	err = g.withRead(func(db *sql.DB) error {
		fingerprintExpr := fingerprintExpr(pkCols)
		q := fmt.Sprintf(
			"SELECT %s as __fingerprint, row_to_json(t.*) FROM %s t LIMIT $1",
			fingerprintExpr, QuoteQualified(schema, table),
		)
		r, qErr := db.QueryContext(ctx, q, limit)
		if qErr != nil {
			return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "fingerprintRows", qErr)
		}
		defer r.Close()

		rows = make(map[string]json.RawMessage)
		var n int64
		for r.Next() {
			var fp string
			var raw json.RawMessage
			if scanErr := r.Scan(&fp, &raw); scanErr != nil {
				return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "fingerprintRows scan", scanErr)
			}
			rows[fp] = raw
			n++
		}
		if err := r.Err(); err != nil {
			return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "fingerprintRows rows", err)
		}
		truncated = n == limit

		var total int64
		countQ := fmt.Sprintf("SELECT COUNT(*) FROM %s", QuoteQualified(schema, table))
		if err := db.QueryRowContext(ctx, countQ).Scan(&total); err != nil {
			return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "fingerprintRows count", err)
		}
		reportedCount = total
		truncated = truncated && total > n
		return nil
	})
	return rows, reportedCount, truncated, err
}

// fingerprintExpr builds a COALESCE(col::text,'') chain joined by '::'
// across the primary key columns, grounded in the original watcher's
// snapshot fingerprint construction.
func fingerprintExpr(pkCols []string) string {
	parts := make([]string, len(pkCols))
	for i, col := range pkCols {
		parts[i] = fmt.Sprintf("COALESCE(t.%s::text, '')", QuoteIdent(col))
	}
	return strings.Join(parts, " || '::' || ")
}
