package boundary

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dbwatch/dbwatch/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection and forwards the session's merged
// change stream to it, one JSON frame per event, until the client
// disconnects or the stream ends (spec §6: the boundary subscribes to
// the event receiver exactly once per session).
func (s *Session) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := s.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(wsEnvelope(ev)); err != nil {
				s.log.Warn("ws write failed", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}

func wsEnvelope(ev model.ChangeEvent) map[string]any {
	return map[string]any{"topic": "db-change", "data": ev}
}
