package poller_test

import (
	"context"
	"embed"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/dbwatch/dbwatch/internal/dbwatcherr"
	"github.com/dbwatch/dbwatch/internal/gateway"
	"github.com/dbwatch/dbwatch/internal/model"
	"github.com/dbwatch/dbwatch/internal/poller"
	"github.com/dbwatch/dbwatch/pkg/fixgres"
)

//go:embed testdata/migrations/*.sql
var migrations embed.FS

func TestMain(m *testing.M) {
	sub, _ := fs.Sub(migrations, "testdata/migrations")
	fixgres.BootOnce(&testing.T{},
		fixgres.WithDBName("pollertest"),
		fixgres.WithGooseUp(sub),
	)
	code := m.Run()
	_ = fixgres.ShutdownNow()
	os.Exit(code)
}

func connectedGateway(t *testing.T) *gateway.Gateway {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	host, port, user, password, dbname, err := fixgres.Components(ctx)
	if err != nil {
		t.Fatalf("fixgres.Components: %v", err)
	}

	gw := gateway.New(nil)
	cfg := model.PgConfig{Host: host, Port: port, User: user, Password: password, Database: dbname}
	if err := gw.Connect(ctx, cfg); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(gw.Disconnect)
	return gw
}

func TestAddTable_RequiresPrimaryKey(t *testing.T) {
	gw := connectedGateway(t)
	p := poller.New(gw, poller.DefaultConfig(), nil)

	ctx := context.Background()
	err := p.AddTable(ctx, "public", "unkeyed")
	if err == nil {
		t.Fatal("expected MissingPrimaryKey error")
	}
	var dbErr *dbwatcherr.Error
	if !asDBErr(err, &dbErr) {
		t.Fatalf("expected *dbwatcherr.Error, got %T: %v", err, err)
	}
	if dbErr.Kind != dbwatcherr.KindMissingPrimaryKey {
		t.Fatalf("expected KindMissingPrimaryKey, got %s", dbErr.Kind)
	}
}

func TestPoller_DetectsInsertUpdateDelete(t *testing.T) {
	gw := connectedGateway(t)
	ctx := context.Background()

	if _, err := gw.RawExecute(ctx, "DELETE FROM items"); err != nil {
		t.Fatalf("reset items: %v", err)
	}

	cfg := poller.DefaultConfig()
	cfg.IntervalMS = 50
	p := poller.New(gw, cfg, nil)

	if err := p.AddTable(ctx, "public", "items"); err != nil {
		t.Fatalf("addTable: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := p.Start(runCtx)
	if events == nil {
		t.Fatal("expected non-nil channel on first Start")
	}

	if _, err := gw.RawExecute(ctx, "INSERT INTO items (name, qty) VALUES ('widget', 1)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ev := waitForKind(t, events, model.ChangeInsert, 5*time.Second)
	if ev.Schema != "public" || ev.Table != "items" {
		t.Fatalf("unexpected event table: %+v", ev)
	}

	if _, err := gw.RawExecute(ctx, "UPDATE items SET qty = 2 WHERE name = 'widget'"); err != nil {
		t.Fatalf("update: %v", err)
	}
	waitForKind(t, events, model.ChangeUpdate, 5*time.Second)

	if _, err := gw.RawExecute(ctx, "DELETE FROM items WHERE name = 'widget'"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	waitForKind(t, events, model.ChangeDelete, 5*time.Second)
}

func TestPoller_StartIsIdempotent(t *testing.T) {
	gw := connectedGateway(t)
	p := poller.New(gw, poller.DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := p.Start(ctx)
	if first == nil {
		t.Fatal("expected channel on first Start")
	}
	second := p.Start(ctx)
	if second != nil {
		t.Fatal("expected nil channel on second Start while already running")
	}
}

func waitForKind(t *testing.T, events <-chan model.ChangeEvent, kind model.ChangeKind, timeout time.Duration) model.ChangeEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func asDBErr(err error, target **dbwatcherr.Error) bool {
	if e, ok := err.(*dbwatcherr.Error); ok {
		*target = e
		return true
	}
	return false
}
