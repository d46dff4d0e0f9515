// Package gateway implements the DB Gateway (spec §4.1): a single
// long-lived database session exposing catalog queries, row reads, and
// raw statement execution, guarded by a reader/writer lock so the Poller
// can hold a query-scoped read lease while connect/disconnect take the
// write lease (spec §5).
package gateway

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/dbwatch/dbwatch/internal/dbwatcherr"
	"github.com/dbwatch/dbwatch/internal/logutil"
	"github.com/dbwatch/dbwatch/internal/model"
)

// Gateway owns one *sql.DB session and the connection state machine.
type Gateway struct {
	log *zap.Logger

	mu    sync.RWMutex
	db    *sql.DB
	state model.ConnectionState
}

func New(log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{log: log, state: model.Disconnected()}
}

// State returns the current connection state.
func (g *Gateway) State() model.ConnectionState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// IsConnected reports whether the gateway currently holds a live session.
func (g *Gateway) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.Status == model.StatusConnected
}

// Connect opens a session against cfg. On failure, state becomes Error
// and any prior session is released (spec §4.1, invariant P6).
func (g *Gateway) Connect(ctx context.Context, cfg model.PgConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = model.Connecting()
	g.closeLocked()

	db, err := sql.Open("pgx", dsn(cfg))
	if err != nil {
		g.state = model.ErrorState(err.Error())
		return dbwatcherr.Wrap(dbwatcherr.KindConnectionFailed, "open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		g.state = model.ErrorState(err.Error())
		return dbwatcherr.Wrap(dbwatcherr.KindConnectionFailed, "ping", err)
	}

	g.db = db
	g.state = model.Connected()
	g.log.Info("gateway connected", logutil.Values(
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	))
	return nil
}

// Disconnect closes the session, if any. Idempotent.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeLocked()
	g.state = model.Disconnected()
}

func (g *Gateway) closeLocked() {
	if g.db != nil {
		_ = g.db.Close()
		g.db = nil
	}
}

// TestConnection opens a session against cfg, runs a trivial probe, and
// discards the session without mutating the gateway's own state.
func TestConnection(ctx context.Context, cfg model.PgConfig) error {
	db, err := sql.Open("pgx", dsn(cfg))
	if err != nil {
		return dbwatcherr.Wrap(dbwatcherr.KindConnectionFailed, "open", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return dbwatcherr.Wrap(dbwatcherr.KindConnectionFailed, "ping", err)
	}
	if _, err := db.ExecContext(ctx, "SELECT 1"); err != nil {
		return dbwatcherr.Wrap(dbwatcherr.KindConnectionFailed, "probe", err)
	}
	return nil
}

// withRead runs fn with a read lease on the session. The lease is held
// only for the duration of fn — never across an external I/O wait beyond
// the query itself (spec §5).
func (g *Gateway) withRead(fn func(db *sql.DB) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.db == nil {
		return dbwatcherr.NotConnected()
	}
	return fn(g.db)
}

// DB exposes the underlying *sql.DB for components (the dry-run
// evaluator) that manage their own transaction. The read lock is held
// only while the handle is fetched; the caller's queries on it run
// without a read lease, so a concurrent Connect or Disconnect can close
// the handle while they are in flight. Returns dbwatcherr.NotConnected
// if no session is open.
func (g *Gateway) DB() (*sql.DB, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.db == nil {
		return nil, dbwatcherr.NotConnected()
	}
	return g.db, nil
}
