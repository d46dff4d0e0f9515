package boundary

import (
	"net/http"
	"strconv"

	"github.com/dbwatch/dbwatch/internal/gateway"
	"github.com/dbwatch/dbwatch/internal/model"
)

type statusResponse struct {
	Status  model.ConnStatus `json:"status"`
	Message string           `json:"message,omitempty"`
}

func statusOf(state model.ConnectionState) statusResponse {
	return statusResponse{Status: state.Status, Message: state.Message}
}

func (s *Session) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var cfg model.PgConfig
	if err := readJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := gateway.TestConnection(r.Context(), cfg); err != nil {
		writeJSON(w, http.StatusOK, statusResponse{Status: model.StatusError, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: model.StatusConnected})
}

func (s *Session) handleConnect(w http.ResponseWriter, r *http.Request) {
	var cfg model.PgConfig
	if err := readJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOf(s.Connect(r.Context(), cfg)))
}

func (s *Session) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusOf(s.Disconnect()))
}

func (s *Session) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusOf(s.ConnectionStatus()))
}

func (s *Session) handleGetTables(w http.ResponseWriter, r *http.Request) {
	out, err := s.gw.ListTables(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Session) handleGetForeignKeys(w http.ResponseWriter, r *http.Request) {
	out, err := s.gw.ListForeignKeys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Session) handleGetTableStats(w http.ResponseWriter, r *http.Request) {
	out, err := s.gw.TableStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Session) handleGetColumns(w http.ResponseWriter, r *http.Request) {
	schema, table := r.URL.Query().Get("schema"), r.URL.Query().Get("table")
	out, err := s.gw.ListColumns(r.Context(), schema, table)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Session) handleGetRowCount(w http.ResponseWriter, r *http.Request) {
	schema, table := r.URL.Query().Get("schema"), r.URL.Query().Get("table")
	n, err := s.gw.RowCount(r.Context(), schema, table)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"rowCount": n})
}

func (s *Session) handleGetRows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	schema, table := q.Get("schema"), q.Get("table")
	limit := parseIntOr(q.Get("limit"), 100)
	offset := parseIntOr(q.Get("offset"), 0)

	out, err := s.gw.Rows(r.Context(), schema, table, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Session) handleDryRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SQL string `json:"sql"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.DryRun(r.Context(), req.SQL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type tableRequest struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

func (s *Session) handleStartWatching(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.StartWatching(r.Context(), req.Schema, req.Table); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Session) handleStopWatching(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.StopWatching(req.Schema, req.Table)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Session) handleStopAllWatching(w http.ResponseWriter, r *http.Request) {
	s.StopAllWatching()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Session) handleGetWatchedTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.WatchedTables())
}

func parseIntOr(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
