package realtime

import (
	"encoding/json"
	"testing"

	"github.com/dbwatch/dbwatch/internal/model"
)

func TestRealtimeURL(t *testing.T) {
	cfg := model.SupabaseConfig{URL: "https://abc.supabase.co", AnonKey: "key123"}
	got := realtimeURL(cfg)
	want := "wss://abc.supabase.co/realtime/v1/websocket?apikey=key123&vsn=1.0.0"
	if got != want {
		t.Errorf("realtimeURL = %q, want %q", got, want)
	}
}

func TestBuildPostgresChangesConfig_NoTables(t *testing.T) {
	cfg := model.SupabaseConfig{Schemas: []string{"public", "audit"}}
	got := buildPostgresChangesConfig(cfg)
	if len(got) != 2 {
		t.Fatalf("expected one subscription per schema, got %d", len(got))
	}
	if _, hasTable := got[0]["table"]; hasTable {
		t.Fatal("expected no table key when no tables configured")
	}
}

func TestBuildPostgresChangesConfig_CrossProduct(t *testing.T) {
	cfg := model.SupabaseConfig{Schemas: []string{"public", "audit"}, Tables: []string{"users", "orders"}}
	got := buildPostgresChangesConfig(cfg)
	if len(got) != 4 {
		t.Fatalf("expected 2x2=4 subscriptions, got %d", len(got))
	}
}

func TestParseChangeEvent_Insert(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"schema":           "public",
		"table":            "users",
		"eventType":        "INSERT",
		"commit_timestamp": "2026-01-01T00:00:00Z",
		"new":              map[string]any{"id": 5, "name": "ada"},
	})
	msg := phoenixMessage{Topic: "realtime:*", Event: "postgres_changes", Payload: payload}
	data, _ := json.Marshal(msg)

	ev, ok := parseChangeEvent(data)
	if !ok {
		t.Fatal("expected event to parse")
	}
	if ev.Kind != model.ChangeInsert || ev.Schema != "public" || ev.Table != "users" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Source != "supabase" {
		t.Fatalf("expected source=supabase, got %q", ev.Source)
	}
	if ev.After == nil {
		t.Fatal("expected After populated for INSERT")
	}
	var pk map[string]json.RawMessage
	if err := json.Unmarshal(ev.PrimaryKey, &pk); err != nil {
		t.Fatalf("unmarshal primary key: %v", err)
	}
	if _, ok := pk["id"]; !ok {
		t.Fatalf("expected primaryKey.id extracted from new record, got %s", ev.PrimaryKey)
	}
}

func TestParseChangeEvent_IgnoresOtherEvents(t *testing.T) {
	msg := phoenixMessage{Topic: "phoenix", Event: "phx_reply", Payload: json.RawMessage("{}")}
	data, _ := json.Marshal(msg)
	if _, ok := parseChangeEvent(data); ok {
		t.Fatal("expected non-postgres_changes events to be dropped")
	}
}

func TestParseChangeEvent_DropsMissingTableOrEventType(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{"schema": "public"})
	msg := phoenixMessage{Event: "postgres_changes", Payload: payload}
	data, _ := json.Marshal(msg)
	if _, ok := parseChangeEvent(data); ok {
		t.Fatal("expected event missing table/eventType to be dropped")
	}
}

func TestParseChangeEvent_DropsUnknownEventType(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{"table": "users", "eventType": "TRUNCATE"})
	msg := phoenixMessage{Event: "postgres_changes", Payload: payload}
	data, _ := json.Marshal(msg)
	if _, ok := parseChangeEvent(data); ok {
		t.Fatal("expected unknown eventType to be dropped")
	}
}

func TestParseChangeEvent_DefaultsSchemaToPublic(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"table":     "users",
		"eventType": "DELETE",
		"old":       map[string]any{"id": 1},
	})
	msg := phoenixMessage{Event: "postgres_changes", Payload: payload}
	data, _ := json.Marshal(msg)

	ev, ok := parseChangeEvent(data)
	if !ok {
		t.Fatal("expected event to parse")
	}
	if ev.Schema != "public" {
		t.Fatalf("expected default schema public, got %q", ev.Schema)
	}
	if ev.Before == nil {
		t.Fatal("expected Before populated for DELETE")
	}
	if ev.After != nil {
		t.Fatal("expected After absent for DELETE")
	}
}
