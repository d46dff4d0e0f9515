// Package poller implements the Poller (spec §4.3): a periodic task that
// snapshots each watched table and diffs it against the Snapshot Store to
// produce ChangeEvents.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dbwatch/dbwatch/internal/dbwatcherr"
	"github.com/dbwatch/dbwatch/internal/eventbus"
	"github.com/dbwatch/dbwatch/internal/gateway"
	"github.com/dbwatch/dbwatch/internal/logutil"
	"github.com/dbwatch/dbwatch/internal/model"
	"github.com/dbwatch/dbwatch/internal/snapshot"
)

const (
	DefaultIntervalMS     = 1000
	DefaultMaxRowsPerTable = 10000
)

// Config tunes the poll cycle cadence and per-table sampling cap.
type Config struct {
	IntervalMS     int64
	MaxRowsPerTable int64
}

func DefaultConfig() Config {
	return Config{IntervalMS: DefaultIntervalMS, MaxRowsPerTable: DefaultMaxRowsPerTable}
}

// Poller is the periodic snapshot differ. Exactly one Store belongs to
// one Poller for its lifetime between start and disconnect-triggered
// Clear (spec §3 ownership).
type Poller struct {
	gw    *gateway.Gateway
	store *snapshot.Store
	cfg   Config
	log   *zap.Logger

	mu        sync.Mutex
	running   bool
	changeTx  chan model.ChangeEvent
	truncated map[string]bool
}

func New(gw *gateway.Gateway, cfg Config, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		gw:        gw,
		store:     snapshot.New(),
		cfg:       cfg,
		log:       log,
		truncated: make(map[string]bool),
	}
}

// IsRunning reports whether the poll loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// WatchedTables returns the "schema.table" keys currently watched.
func (p *Poller) WatchedTables() []string {
	return p.store.WatchedTables()
}

// AddTable begins watching schema.table. Fails if the table has no
// primary key or the gateway is not connected. No-op if already watched.
// Acquires an initial snapshot before returning so the first tick
// observes no spurious inserts (invariant I4).
func (p *Poller) AddTable(ctx context.Context, schema, table string) error {
	if p.store.Contains(schema, table) {
		return nil
	}
	if !p.gw.IsConnected() {
		return dbwatcherr.NotConnected()
	}

	pkCols, err := p.gw.PrimaryKeyColumns(ctx, schema, table)
	if err != nil {
		return err
	}
	if len(pkCols) == 0 {
		return dbwatcherr.MissingPrimaryKey(schema, table)
	}

	rows, count, truncated, err := fetchSnapshot(ctx, p.gw, schema, table, pkCols, p.cfg.MaxRowsPerTable)
	if err != nil {
		return err
	}

	p.store.Insert(&snapshot.TableState{
		Schema:    schema,
		Table:     table,
		PKColumns: pkCols,
		Rows:      rows,
		RowCount:  count,
	})
	p.mu.Lock()
	p.truncated[key(schema, table)] = truncated
	p.mu.Unlock()
	return nil
}

// RemoveTable stops watching schema.table. No event is emitted.
func (p *Poller) RemoveTable(schema, table string) {
	p.store.Remove(schema, table)
	p.mu.Lock()
	delete(p.truncated, key(schema, table))
	p.mu.Unlock()
}

// Truncated reports whether the most recent snapshot of schema.table was
// capped by MaxRowsPerTable (open question #3 of spec §9: surfaced
// additively, does not change ChangeEvent's wire shape).
func (p *Poller) Truncated(schema, table string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.truncated[key(schema, table)]
}

// Start begins the poll loop. Idempotent: returns a receiver only on the
// transition from stopped to running, so the boundary never spawns a
// second forwarder (invariant P7).
func (p *Poller) Start(ctx context.Context) <-chan model.ChangeEvent {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	ch := make(chan model.ChangeEvent, eventbus.Capacity)
	p.changeTx = ch
	p.running = true
	p.mu.Unlock()

	go p.run(ctx, ch)
	return ch
}

// Stop marks the loop for exit; it is observed at the next tick boundary
// (cooperative cancellation, spec §5).
func (p *Poller) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

// Clear drops all snapshots (spec invariant I1, entered on Disconnected).
func (p *Poller) Clear() {
	p.store.Clear()
	p.mu.Lock()
	p.truncated = make(map[string]bool)
	p.mu.Unlock()
}

func (p *Poller) run(ctx context.Context, ch chan model.ChangeEvent) {
	ticker := time.NewTicker(time.Duration(p.cfg.IntervalMS) * time.Millisecond)
	defer ticker.Stop()
	defer func() {
		p.mu.Lock()
		p.changeTx = nil
		p.mu.Unlock()
		close(ch)
	}()

	for {
		select {
		case <-ctx.Done():
			p.Stop()
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		running := p.running
		p.mu.Unlock()
		if !running {
			return
		}

		p.tick(ctx, ch)
	}
}

// tick runs one poll cycle across every watched table (spec §4.3).
func (p *Poller) tick(ctx context.Context, ch chan model.ChangeEvent) {
	if !p.gw.IsConnected() {
		return
	}

	tables := p.store.SnapshotList()
	for _, st := range tables {
		if err := p.pollTable(ctx, st, ch); err != nil {
			p.log.Warn("poll table failed",
				logutil.Values(
					zap.String("schema", st.Schema),
					zap.String("table", st.Table),
				),
				zap.Error(err),
			)
		}
	}
}

func (p *Poller) pollTable(ctx context.Context, old *snapshot.TableState, ch chan model.ChangeEvent) error {
	newRows, newCount, truncated, err := fetchSnapshot(ctx, p.gw, old.Schema, old.Table, old.PKColumns, p.cfg.MaxRowsPerTable)
	if err != nil {
		return dbwatcherr.Wrap(dbwatcherr.KindQueryFailed, "poll "+old.Schema+"."+old.Table, err)
	}

	p.mu.Lock()
	p.truncated[key(old.Schema, old.Table)] = truncated
	p.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	var inserts, updates, deletes []model.ChangeEvent

	for pk, newRow := range newRows {
		oldRow, existed := old.Rows[pk]
		if !existed {
			inserts = append(inserts, newChangeEvent(old.Schema, old.Table, model.ChangeInsert, pk, nil, newRow, now))
			continue
		}
		if !jsonEqual(oldRow, newRow) {
			updates = append(updates, newChangeEvent(old.Schema, old.Table, model.ChangeUpdate, pk, oldRow, newRow, now))
		}
	}
	for pk, oldRow := range old.Rows {
		if _, stillPresent := newRows[pk]; !stillPresent {
			deletes = append(deletes, newChangeEvent(old.Schema, old.Table, model.ChangeDelete, pk, oldRow, nil, now))
		}
	}

	changed := len(inserts) > 0 || len(updates) > 0 || len(deletes) > 0
	if changed || old.RowCount != newCount {
		p.store.Replace(old.Schema, old.Table, newRows, newCount)
	}

	// Publish order: INSERT, UPDATE (class order), then DELETE.
	for _, evs := range [][]model.ChangeEvent{inserts, updates, deletes} {
		for _, ev := range evs {
			p.send(ch, ev)
		}
	}
	return nil
}

// send delivers ev on the bus, blocking on a full bus (backpressure). If
// the bus is closed, the send fails, is logged, and the tick continues
// (spec §4.6, error kind SendFailed).
func (p *Poller) send(ch chan model.ChangeEvent, ev model.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("send on closed event bus", zap.Any("recover", r))
		}
	}()
	ch <- ev
}

func newChangeEvent(schema, table string, kind model.ChangeKind, pk string, before, after json.RawMessage, ts string) model.ChangeEvent {
	pkJSON, _ := json.Marshal(map[string]string{"pk": pk})
	return model.ChangeEvent{
		ID:         uuid.NewString(),
		Schema:     schema,
		Table:      table,
		Kind:       kind,
		PrimaryKey: pkJSON,
		Before:     before,
		After:      after,
		Timestamp:  ts,
		Source:     "polling",
	}
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return string(a) == string(b)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return string(a) == string(b)
	}
	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)
	return string(ab) == string(bb)
}

func key(schema, table string) string { return fmt.Sprintf("%s.%s", schema, table) }
