package game

import (
	"sync"

	"github.com/google/uuid"
)

// Store keeps the live engines of the practice server. The engines themselves
// are not locked here; each is driven by the connection that owns it.
type Store struct {
	mu      sync.Mutex
	engines map[uuid.UUID]*Engine
}

func NewStore() *Store {
	return &Store{
		engines: make(map[uuid.UUID]*Engine),
	}
}

func (s *Store) Add(e *Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[e.ID] = e
}

func (s *Store) Get(id uuid.UUID) (*Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists := s.engines[id]
	return e, exists
}

func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.engines, id)
}

// Len is the number of live engines.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.engines)
}

// FindBySeat returns the live engine in which userID holds a seat, or nil.
func (s *Store) FindBySeat(userID uuid.UUID) *Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.engines {
		if e.Seat(SidePlayer).ID == userID || e.Seat(SideOpponent).ID == userID {
			return e
		}
	}
	return nil
}
