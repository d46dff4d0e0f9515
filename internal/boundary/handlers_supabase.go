package boundary

import (
	"net/http"

	"github.com/dbwatch/dbwatch/internal/model"
	"github.com/dbwatch/dbwatch/internal/realtime"
)

// handleTestSupabaseConnection opens and immediately discards a socket
// to the project's Realtime endpoint. Per spec §9's open question, this
// succeeds on socket-open alone; it performs no join handshake.
func (s *Session) handleTestSupabaseConnection(w http.ResponseWriter, r *http.Request) {
	var cfg model.SupabaseConfig
	if err := readJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := realtime.TestConnection(r.Context(), cfg); err != nil {
		writeJSON(w, http.StatusOK, statusResponse{Status: model.StatusError, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: model.StatusConnected})
}

func (s *Session) handleConnectSupabase(w http.ResponseWriter, r *http.Request) {
	var cfg model.SupabaseConfig
	if err := readJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	state, err := s.ConnectSupabase(r.Context(), cfg)
	if err != nil {
		writeJSON(w, http.StatusOK, statusOf(state))
		return
	}
	writeJSON(w, http.StatusOK, statusOf(state))
}

func (s *Session) handleDisconnectSupabase(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusOf(s.DisconnectSupabase()))
}

func (s *Session) handleGetSupabaseStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusOf(s.SupabaseStatus()))
}
