package dryrun_test

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"os"
	"testing"
	"time"

	faker "github.com/go-faker/faker/v4"

	"github.com/dbwatch/dbwatch/internal/dryrun"
	"github.com/dbwatch/dbwatch/internal/gateway"
	"github.com/dbwatch/dbwatch/internal/model"
	"github.com/dbwatch/dbwatch/pkg/fixgres"
)

//go:embed testdata/migrations/*.sql
var migrations embed.FS

type widgetFixture struct {
	Name string `faker:"word"`
}

func TestMain(m *testing.M) {
	sub, _ := fs.Sub(migrations, "testdata/migrations")
	fixgres.BootOnce(&testing.T{},
		fixgres.WithDBName("dryruntest"),
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

func resetWidgets(t *testing.T, gw *gateway.Gateway) {
	t.Helper()
	if _, err := gw.RawExecute(context.Background(), "DELETE FROM widgets"); err != nil {
		t.Fatalf("reset widgets: %v", err)
	}
}

func TestDryRun_RejectsTransactionControl(t *testing.T) {
	gw := connectedGateway(t)
	ev := dryrun.New(gw, nil)

	result, err := ev.Run(context.Background(), "BEGIN; SELECT 1; COMMIT;")
	if err != nil {
		t.Fatalf("Run returned error, want a failed result: %v", err)
	}
	if result.Success {
		t.Fatalf("expected success=false, got %+v", result)
	}
	if result.Error == "" {
		t.Fatal("expected a rejection reason")
	}
	if len(result.Changes) != 0 || result.RowsAffected != 0 {
		t.Fatalf("expected no changes on rejection, got %+v", result)
	}
}

func TestDryRun_Insert(t *testing.T) {
	gw := connectedGateway(t)
	resetWidgets(t, gw)
	ev := dryrun.New(gw, nil)

	var fx widgetFixture
	if err := faker.FakeData(&fx); err != nil {
		t.Fatalf("faker: %v", err)
	}

	stmt := "INSERT INTO widgets (name, qty) VALUES ('" + fx.Name + "', 3)"
	result, err := ev.Run(context.Background(), stmt)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if result.RowsAffected != 1 || len(result.Changes) != 1 {
		t.Fatalf("expected exactly one change, got %+v", result)
	}
	ch := result.Changes[0]
	if ch.Kind != model.ChangeInsert || ch.Schema != "public" || ch.Table != "widgets" {
		t.Fatalf("unexpected change: %+v", ch)
	}
	if ch.After == nil {
		t.Fatal("expected After to be populated on an insert change")
	}

	count, err := gw.RowCount(context.Background(), "public", "widgets")
	if err != nil {
		t.Fatalf("rowCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("dry run must leave persisted state untouched, got rowCount=%d", count)
	}
}

func TestDryRun_Delete(t *testing.T) {
	gw := connectedGateway(t)
	resetWidgets(t, gw)
	ctx := context.Background()

	if _, err := gw.RawExecute(ctx, "INSERT INTO widgets (name, qty) VALUES ('pre-existing', 1)"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ev := dryrun.New(gw, nil)
	result, err := ev.Run(ctx, "DELETE FROM widgets WHERE name = 'pre-existing'")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if len(result.Changes) != 1 {
		t.Fatalf("expected exactly one delete change, got %+v", result)
	}
	ch := result.Changes[0]
	if ch.Kind != model.ChangeDelete {
		t.Fatalf("expected DELETE, got %+v", ch)
	}
	if ch.Before == nil {
		t.Fatal("expected Before populated: table was small enough for a before-snapshot")
	}
	var before map[string]json.RawMessage
	if err := json.Unmarshal(ch.Before, &before); err != nil {
		t.Fatalf("unmarshal before: %v", err)
	}

	count, err := gw.RowCount(ctx, "public", "widgets")
	if err != nil {
		t.Fatalf("rowCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("dry run must leave persisted state untouched, got rowCount=%d", count)
	}
}

func TestDryRun_UpdateDetectedByXmin(t *testing.T) {
	gw := connectedGateway(t)
	resetWidgets(t, gw)
	ctx := context.Background()

	if _, err := gw.RawExecute(ctx, "INSERT INTO widgets (name, qty) VALUES ('steady', 1)"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ev := dryrun.New(gw, nil)
	result, err := ev.Run(ctx, "UPDATE widgets SET qty = 99 WHERE name = 'steady'")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if len(result.Changes) != 1 {
		t.Fatalf("expected exactly one update change, got %+v", result)
	}
	ch := result.Changes[0]
	if ch.Kind != model.ChangeUpdate {
		t.Fatalf("expected UPDATE, got %+v", ch)
	}
	if ch.Before != nil {
		t.Fatal("xmin-scan updates never recover a before image (documented gap)")
	}
	if ch.After == nil {
		t.Fatal("expected After populated")
	}
}

func TestDryRun_FailedStatementStillRollsBack(t *testing.T) {
	gw := connectedGateway(t)
	resetWidgets(t, gw)
	ev := dryrun.New(gw, nil)

	result, err := ev.Run(context.Background(), "INSERT INTO widgets (name, qty) VALUES ('x', 'not-a-number')")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Fatalf("expected success=false for a failing statement, got %+v", result)
	}
	if result.Error == "" {
		t.Fatal("expected a diagnostic message")
	}
	if len(result.Changes) != 0 {
		t.Fatalf("expected no changes reported for a failed statement, got %+v", result)
	}

	count, err := gw.RowCount(context.Background(), "public", "widgets")
	if err != nil {
		t.Fatalf("rowCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("rollback must leave the table untouched, got rowCount=%d", count)
	}
}

func TestDryRun_PureSelectProducesNoChanges(t *testing.T) {
	gw := connectedGateway(t)
	resetWidgets(t, gw)
	ev := dryrun.New(gw, nil)

	result, err := ev.Run(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if len(result.Changes) != 0 || result.RowsAffected != 0 {
		t.Fatalf("expected no changes for a pure SELECT, got %+v", result)
	}
}
