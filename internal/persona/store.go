package persona

import "github.com/gmarchetti/consultsim/internal/sim"

// Store exposes persona retrieval for run construction and HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store over a fixed slice.
type MemoryStore struct {
	items []Persona
}

func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// DefaultFor returns the first seeded persona for the given role, used when a
// run request leaves a persona unspecified.
func (s *MemoryStore) DefaultFor(role sim.Role) (Persona, bool) {
	for _, item := range s.items {
		if item.Role == role {
			return item, true
		}
	}
	return Persona{}, false
}
