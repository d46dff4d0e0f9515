package snapshot

import (
	"encoding/json"
	"testing"
)

func row(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestStore_InsertContainsRemove(t *testing.T) {
	s := New()
	if s.Contains("public", "users") {
		t.Fatal("expected empty store to not contain public.users")
	}

	s.Insert(&TableState{Schema: "public", Table: "users", PKColumns: []string{"id"}, Rows: map[string]json.RawMessage{}})
	if !s.Contains("public", "users") {
		t.Fatal("expected store to contain public.users after Insert")
	}

	s.Remove("public", "users")
	if s.Contains("public", "users") {
		t.Fatal("expected store to not contain public.users after Remove")
	}
}

func TestStore_ClearDropsEverything(t *testing.T) {
	s := New()
	s.Insert(&TableState{Schema: "public", Table: "a", PKColumns: []string{"id"}})
	s.Insert(&TableState{Schema: "public", Table: "b", PKColumns: []string{"id"}})

	s.Clear()

	if len(s.WatchedTables()) != 0 {
		t.Fatalf("expected no watched tables after Clear, got %v", s.WatchedTables())
	}
}

func TestStore_ReplaceIsNoopIfRemoved(t *testing.T) {
	s := New()
	s.Insert(&TableState{Schema: "public", Table: "users", PKColumns: []string{"id"}, RowCount: 0})
	s.Remove("public", "users")

	// Replace on a table no longer watched must not resurrect it.
	s.Replace("public", "users", map[string]json.RawMessage{"1": row(t, map[string]string{"id": "1"})}, 1)
	if s.Contains("public", "users") {
		t.Fatal("Replace must not re-add a removed table")
	}
}

func TestStore_SnapshotListIsIndependentCopy(t *testing.T) {
	s := New()
	s.Insert(&TableState{
		Schema:    "public",
		Table:     "users",
		PKColumns: []string{"id"},
		Rows:      map[string]json.RawMessage{"1": row(t, map[string]string{"id": "1"})},
		RowCount:  1,
	})

	snap := s.SnapshotList()
	if len(snap) != 1 {
		t.Fatalf("expected one table in snapshot, got %d", len(snap))
	}

	// Mutating the cloned rows map must not affect the store's own state.
	snap[0].Rows["2"] = row(t, map[string]string{"id": "2"})

	st, ok := s.Get("public", "users")
	if !ok {
		t.Fatal("expected public.users still in store")
	}
	if _, present := st.Rows["2"]; present {
		t.Fatal("SnapshotList must return a copy, not a live view into the store")
	}
}

func TestStore_WatchedTablesKeyFormat(t *testing.T) {
	s := New()
	s.Insert(&TableState{Schema: "public", Table: "users", PKColumns: []string{"id"}})

	tables := s.WatchedTables()
	if len(tables) != 1 || tables[0] != "public.users" {
		t.Fatalf("expected key %q, got %v", "public.users", tables)
	}
}
