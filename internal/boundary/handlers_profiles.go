package boundary

import (
	"net/http"

	"github.com/dbwatch/dbwatch/internal/model"
)

func (s *Session) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.profiles.List())
}

func (s *Session) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var req model.ConnectionProfile
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	saved := s.profiles.Save(req)
	writeJSON(w, http.StatusOK, saved)
}

func (s *Session) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	s.profiles.Delete(id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
