package boundary

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dbwatch/dbwatch/internal/model"
)

// ProfileStore is the supplemented connection-profile container (spec
// SPEC_FULL.md §Supplemented Features), an in-memory stand-in for the
// external collaborator's own persistence.
type ProfileStore struct {
	mu   sync.Mutex
	data map[string]model.ConnectionProfile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{data: make(map[string]model.ConnectionProfile)}
}

func (s *ProfileStore) List() []model.ConnectionProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ConnectionProfile, 0, len(s.data))
	for _, p := range s.data {
		out = append(out, p)
	}
	return out
}

// Save inserts or updates a profile. A profile with no ID is assigned
// a fresh one.
func (s *ProfileStore) Save(p model.ConnectionProfile) model.ConnectionProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.data[p.ID] = p
	return p
}

func (s *ProfileStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
}
