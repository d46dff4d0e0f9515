// Package dryrun implements the dry-run SQL evaluator (spec §4.4): run
// arbitrary SQL inside a transaction that is always rolled back, and
// report what it would have changed.
package dryrun

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dbwatch/dbwatch/internal/dbwatcherr"
	"github.com/dbwatch/dbwatch/internal/gateway"
	"github.com/dbwatch/dbwatch/internal/model"
)

// smallTableRowCap bounds which tables get a full before-image snapshot
// for DELETE detection; larger tables only get a row count comparison.
const smallTableRowCap = 1000

// Evaluator runs dry-run SQL against the gateway's live session.
type Evaluator struct {
	gw  *gateway.Gateway
	log *zap.Logger
}

func New(gw *gateway.Gateway, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{gw: gw, log: log}
}

type tableRef struct{ schema, table string }

func (t tableRef) fullName() string { return t.schema + "." + t.table }

// Run evaluates statement inside a transaction that is always rolled
// back, returning what it would have changed. It returns an error when
// the gateway is not connected, when the transaction cannot be begun, or
// when the tables cannot be enumerated; a rejected or failed statement
// is reported inside the returned DryRunResult instead (spec §4.4).
func (e *Evaluator) Run(ctx context.Context, statement string) (*model.DryRunResult, error) {
	if !e.gw.IsConnected() {
		return nil, dbwatcherr.NotConnected()
	}

	if reason, rejected := rejectTransactionControl(statement); rejected {
		e.auditWithParser(statement, reason)
		return &model.DryRunResult{Success: false, Error: reason}, nil
	}
	e.auditWithParser(statement, "")

	db, err := e.gw.DB()
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbwatcherr.Wrap(dbwatcherr.KindDryRunFailed, "begin", err)
	}

	tables, err := listTables(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, dbwatcherr.Wrap(dbwatcherr.KindDryRunFailed, "enumerate tables", err)
	}

	before, snapshots, err := captureState(ctx, tx, tables)
	if err != nil {
		_ = tx.Rollback()
		return nil, dbwatcherr.Wrap(dbwatcherr.KindDryRunFailed, "capture before state", err)
	}

	var changes []model.DryRunChange
	var execErr error
	if _, err := tx.ExecContext(ctx, statement); err != nil {
		execErr = err
	} else {
		changes, err = detectChanges(ctx, tx, tables, before, snapshots)
		if err != nil {
			execErr = err
		}
	}

	if rbErr := tx.Rollback(); rbErr != nil {
		e.log.Error("dry run rollback failed", zap.Error(rbErr))
		return &model.DryRunResult{
			Success: false,
			Error:   fmt.Sprintf("CRITICAL: rollback failed - %v", rbErr),
		}, nil
	}

	if execErr != nil {
		return &model.DryRunResult{Success: false, Error: execErr.Error()}, nil
	}

	return &model.DryRunResult{
		Success:      true,
		Changes:      changes,
		RowsAffected: len(changes),
	}, nil
}

// rejectTransactionControl is the literal rejection check: a case
// insensitive substring scan for COMMIT, BEGIN or ROLLBACK anywhere in
// the statement. This, not SQL parsing, is the decision the core makes.
func rejectTransactionControl(statement string) (reason string, rejected bool) {
	upper := strings.ToUpper(statement)
	if strings.Contains(upper, "COMMIT") || strings.Contains(upper, "BEGIN") || strings.Contains(upper, "ROLLBACK") {
		return "SQL cannot contain COMMIT, BEGIN, or ROLLBACK statements in dry run mode", true
	}
	return "", false
}

func listTables(ctx context.Context, tx *sql.Tx) ([]tableRef, error) {
	raw, err := gateway.NonSystemTables(ctx, tx)
	if err != nil {
		return nil, err
	}
	out := make([]tableRef, len(raw))
	for i, r := range raw {
		out[i] = tableRef{schema: r.Schema, table: r.Table}
	}
	return out, nil
}

func captureState(ctx context.Context, tx *sql.Tx, tables []tableRef) (map[string]int64, map[string][]snapshotRow, error) {
	before := make(map[string]int64, len(tables))
	snapshots := make(map[string][]snapshotRow)

	for _, t := range tables {
		count, err := rowCount(ctx, tx, t)
		if err != nil {
			continue
		}
		before[t.fullName()] = count

		if count > 0 && count < smallTableRowCap {
			rows, err := snapshotRows(ctx, tx, t)
			if err == nil {
				snapshots[t.fullName()] = rows
			}
		}
	}
	return before, snapshots, nil
}

type snapshotRow struct {
	raw  string
	data json.RawMessage
}

func rowCount(ctx context.Context, tx *sql.Tx, t tableRef) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", gateway.QuoteQualified(t.schema, t.table))
	err := tx.QueryRowContext(ctx, q).Scan(&n)
	return n, err
}

func snapshotRows(ctx context.Context, tx *sql.Tx, t tableRef) ([]snapshotRow, error) {
	q := fmt.Sprintf(
		"SELECT row_to_json(t.*)::text as raw, row_to_json(t.*) as data FROM %s t",
		gateway.QuoteQualified(t.schema, t.table),
	)
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []snapshotRow
	for rows.Next() {
		var raw string
		var data json.RawMessage
		if err := rows.Scan(&raw, &data); err != nil {
			return nil, err
		}
		out = append(out, snapshotRow{raw: raw, data: data})
	}
	return out, rows.Err()
}

// detectChanges compares before/after state per spec §4.4 step 6:
// inserts and deletes from the row-count delta, updates from an xmin
// scan restricted to tables whose row count did not change.
func detectChanges(ctx context.Context, tx *sql.Tx, tables []tableRef, before map[string]int64, snapshots map[string][]snapshotRow) ([]model.DryRunChange, error) {
	var changes []model.DryRunChange

	for _, t := range tables {
		fullName := t.fullName()
		beforeCount := before[fullName]
		afterCount, err := rowCount(ctx, tx, t)
		if err != nil {
			continue
		}
		diff := afterCount - beforeCount

		switch {
		case diff > 0:
			inserted, err := fetchNewest(ctx, tx, t, diff)
			if err != nil {
				continue
			}
			for _, data := range inserted {
				changes = append(changes, model.DryRunChange{Schema: t.schema, Table: t.table, Kind: model.ChangeInsert, After: data})
			}
		case diff < 0:
			deletedCount := int(-diff)
			changes = append(changes, deletedChanges(ctx, tx, t, deletedCount, snapshots[fullName])...)
		}
	}

	for _, t := range tables {
		fullName := t.fullName()
		afterCount, err := rowCount(ctx, tx, t)
		if err != nil {
			continue
		}
		if before[fullName] != afterCount {
			continue
		}
		updated, err := fetchUpdated(ctx, tx, t)
		if err != nil {
			continue
		}
		for _, data := range updated {
			changes = append(changes, model.DryRunChange{Schema: t.schema, Table: t.table, Kind: model.ChangeUpdate, After: data})
		}
	}

	return changes, nil
}

func fetchNewest(ctx context.Context, tx *sql.Tx, t tableRef, n int64) ([]json.RawMessage, error) {
	q := fmt.Sprintf(
		"SELECT row_to_json(t.*) FROM %s t ORDER BY ctid DESC LIMIT %d",
		gateway.QuoteQualified(t.schema, t.table), n,
	)
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var data json.RawMessage
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, rows.Err()
}

func deletedChanges(ctx context.Context, tx *sql.Tx, t tableRef, count int, before []snapshotRow) []model.DryRunChange {
	var out []model.DryRunChange
	if before == nil {
		for i := 0; i < count; i++ {
			out = append(out, model.DryRunChange{Schema: t.schema, Table: t.table, Kind: model.ChangeDelete})
		}
		return out
	}

	afterSet, err := rawRowSet(ctx, tx, t)
	if err != nil {
		for i := 0; i < count; i++ {
			out = append(out, model.DryRunChange{Schema: t.schema, Table: t.table, Kind: model.ChangeDelete})
		}
		return out
	}

	found := 0
	for _, row := range before {
		if found >= count {
			break
		}
		if _, stillPresent := afterSet[row.raw]; !stillPresent {
			out = append(out, model.DryRunChange{Schema: t.schema, Table: t.table, Kind: model.ChangeDelete, Before: row.data})
			found++
		}
	}
	for found < count {
		out = append(out, model.DryRunChange{Schema: t.schema, Table: t.table, Kind: model.ChangeDelete})
		found++
	}
	return out
}

func rawRowSet(ctx context.Context, tx *sql.Tx, t tableRef) (map[string]struct{}, error) {
	q := fmt.Sprintf("SELECT row_to_json(t.*)::text FROM %s t", gateway.QuoteQualified(t.schema, t.table))
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		set[s] = struct{}{}
	}
	return set, rows.Err()
}

// fetchUpdated returns rows whose xmin matches the current transaction,
// i.e. rows this statement modified in place (spec §4.4 step 6's update
// detection; see SPEC_FULL.md §9 for the documented before-image gap).
func fetchUpdated(ctx context.Context, tx *sql.Tx, t tableRef) ([]json.RawMessage, error) {
	q := fmt.Sprintf(
		"SELECT row_to_json(t.*) FROM %s t WHERE xmin = txid_current()::text::xid",
		gateway.QuoteQualified(t.schema, t.table),
	)
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var data json.RawMessage
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, rows.Err()
}
