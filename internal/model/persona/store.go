package persona

// Store exposes persona retrieval for controllers and HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
	First() (Persona, bool)
}

// MemoryStore implements Store with an immutable in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the catalog in declaration order.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// First returns the first persona in the catalog; the default selection.
func (s *MemoryStore) First() (Persona, bool) {
	if len(s.items) == 0 {
		return Persona{}, false
	}
	return s.items[0], true
}
