package realtime

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/dbwatch/dbwatch/internal/dbwatcherr"
	"github.com/dbwatch/dbwatch/internal/model"
)

// TestConnection dials the project's Realtime endpoint and immediately
// closes it. It performs no phx_join handshake and does not wait for a
// phx_reply (SPEC_FULL.md §9, Open Question 2): success here means the
// socket opened, nothing more.
func TestConnection(ctx context.Context, cfg model.SupabaseConfig) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, realtimeURL(cfg), nil)
	if err != nil {
		return dbwatcherr.Wrap(dbwatcherr.KindWebSocketFailed, "dial", err)
	}
	return conn.Close()
}
