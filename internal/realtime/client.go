// Package realtime implements the Supabase Realtime client (spec §4.5):
// a Phoenix-channel WebSocket subscriber that turns postgres_changes
// events into ChangeEvents.
//
// The original client shared nothing between its heartbeat task and its
// WebSocket write half, so the 30s heartbeat was built but never sent
// (SPEC_FULL.md §9, Open Question 1). Here a single writer goroutine
// owns the connection's write side; the join message, the heartbeat
// ticker, and any future outbound control frame all go through one
// command channel instead of touching the socket directly.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dbwatch/dbwatch/internal/dbwatcherr"
	"github.com/dbwatch/dbwatch/internal/eventbus"
	"github.com/dbwatch/dbwatch/internal/model"
)

const heartbeatInterval = 30 * time.Second

// Client is the outbound Supabase Realtime subscriber. One Client
// handles one connection at a time; Connect after a prior Connect
// replaces the session.
type Client struct {
	log *zap.Logger

	mu     sync.RWMutex
	cfg    model.SupabaseConfig
	state  model.ConnectionState
	conn   *websocket.Conn
	write  chan []byte
	cancel context.CancelFunc
}

func New(log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{log: log, state: model.Disconnected()}
}

func (c *Client) State() model.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Status == model.StatusConnected
}

// Connect dials the project's Realtime endpoint, joins the configured
// postgres_changes subscription, and starts the writer/heartbeat/reader
// goroutines. The returned channel carries ChangeEvents until the
// connection closes, errors, or Disconnect is called.
func (c *Client) Connect(ctx context.Context, cfg model.SupabaseConfig) (<-chan model.ChangeEvent, error) {
	c.mu.Lock()
	c.cfg = cfg
	c.state = model.Connecting()
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, realtimeURL(cfg), nil)
	if err != nil {
		c.mu.Lock()
		c.state = model.ErrorState(err.Error())
		c.mu.Unlock()
		return nil, dbwatcherr.Wrap(dbwatcherr.KindWebSocketFailed, "dial", err)
	}

	innerCtx, cancel := context.WithCancel(context.Background())
	writeCh := make(chan []byte, 16)
	events := make(chan model.ChangeEvent, eventbus.Capacity)

	c.mu.Lock()
	c.conn = conn
	c.write = writeCh
	c.cancel = cancel
	c.state = model.Connected()
	c.mu.Unlock()

	go c.writer(innerCtx, conn, writeCh)
	go c.heartbeat(innerCtx, writeCh)
	go c.reader(innerCtx, conn, events, cancel)

	if err := c.sendJoin(cfg, writeCh); err != nil {
		c.log.Warn("failed to enqueue join message", zap.Error(err))
	}

	c.log.Info("supabase realtime connected", zap.String("url", cfg.URL))
	return events, nil
}

// Disconnect tears down the active session, if any. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.cancel = nil
	c.conn = nil
	c.state = model.Disconnected()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) sendJoin(cfg model.SupabaseConfig, writeCh chan []byte) error {
	payload, err := json.Marshal(map[string]any{
		"config": map[string]any{
			"postgres_changes": buildPostgresChangesConfig(cfg),
		},
	})
	if err != nil {
		return err
	}
	ref := "1"
	msg := phoenixMessage{Topic: "realtime:*", Event: "phx_join", Payload: payload, Reference: &ref}
	return enqueue(writeCh, msg)
}

func enqueue(writeCh chan []byte, msg phoenixMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case writeCh <- data:
		return nil
	default:
		return fmt.Errorf("write channel full")
	}
}

// buildPostgresChangesConfig mirrors the original subscription builder:
// watch every schema when no tables are named, otherwise the cartesian
// product of tables x schemas.
func buildPostgresChangesConfig(cfg model.SupabaseConfig) []map[string]any {
	var out []map[string]any
	if len(cfg.Tables) == 0 {
		for _, schema := range cfg.Schemas {
			out = append(out, map[string]any{"event": "*", "schema": schema})
		}
		return out
	}
	for _, table := range cfg.Tables {
		for _, schema := range cfg.Schemas {
			out = append(out, map[string]any{"event": "*", "schema": schema, "table": table})
		}
	}
	return out
}

// writer owns the connection's write half exclusively; every outbound
// frame — join, heartbeat, and any future control message — flows
// through writeCh instead of calling conn.WriteMessage directly.
func (c *Client) writer(ctx context.Context, conn *websocket.Conn, writeCh chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-writeCh:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) heartbeat(ctx context.Context, writeCh chan []byte) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := phoenixMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage("{}")}
			if err := enqueue(writeCh, msg); err != nil {
				c.log.Warn("heartbeat send skipped", zap.Error(err))
			}
		}
	}
}

func (c *Client) reader(ctx context.Context, conn *websocket.Conn, events chan model.ChangeEvent, cancel context.CancelFunc) {
	defer cancel()
	defer close(events)
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("supabase realtime closed by server")
			} else {
				c.log.Error("supabase realtime read error", zap.Error(err))
				c.mu.Lock()
				c.state = model.ErrorState(err.Error())
				c.mu.Unlock()
				return
			}
			break
		}

		ev, ok := parseChangeEvent(data)
		if !ok {
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}

	c.mu.Lock()
	if c.state.Status != model.StatusError {
		c.state = model.Disconnected()
	}
	c.mu.Unlock()
}

// parseChangeEvent decodes a postgres_changes Phoenix frame into a
// ChangeEvent. Any other event type, or a payload missing table/eventType,
// is ignored.
func parseChangeEvent(data []byte) (model.ChangeEvent, bool) {
	var msg phoenixMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.ChangeEvent{}, false
	}
	if msg.Event != "postgres_changes" {
		return model.ChangeEvent{}, false
	}

	var payload realtimePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return model.ChangeEvent{}, false
	}
	if payload.Table == nil || payload.EventType == nil {
		return model.ChangeEvent{}, false
	}

	var kind model.ChangeKind
	switch *payload.EventType {
	case "INSERT":
		kind = model.ChangeInsert
	case "UPDATE":
		kind = model.ChangeUpdate
	case "DELETE":
		kind = model.ChangeDelete
	default:
		return model.ChangeEvent{}, false
	}

	schema := "public"
	if payload.Schema != nil {
		schema = *payload.Schema
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	if payload.CommitTimestamp != nil {
		timestamp = *payload.CommitTimestamp
	}

	pk := extractPrimaryKey(payload.New, payload.Old)

	return model.ChangeEvent{
		ID:         uuid.NewString(),
		Schema:     schema,
		Table:      *payload.Table,
		Kind:       kind,
		PrimaryKey: pk,
		Before:     nonEmptyObject(payload.Old),
		After:      nonEmptyObject(payload.New),
		Timestamp:  timestamp,
		Source:     "supabase",
	}, true
}

// extractPrimaryKey pulls the "id" field from the new record, falling
// back to the old record, matching the original's single-column
// assumption for Realtime-sourced events.
func extractPrimaryKey(newRecord, oldRecord json.RawMessage) json.RawMessage {
	for _, rec := range [][]byte{newRecord, oldRecord} {
		if len(rec) == 0 {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(rec, &obj); err != nil {
			continue
		}
		if id, ok := obj["id"]; ok {
			out, _ := json.Marshal(map[string]json.RawMessage{"id": id})
			return out
		}
	}
	return nil
}

func nonEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
