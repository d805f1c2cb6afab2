// internal/room/store.go
package room

import (
	"sync"

	"github.com/google/uuid"
)

// Store is the authoritative in-memory collection of rooms. Its lock only
// guards the map; per-room state is guarded by each room's own mutex so
// unrelated rooms never serialize.
type Store struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
}

// NewStore returns an empty in-memory room store.
func NewStore() *Store {
	return &Store{rooms: make(map[uuid.UUID]*Room)}
}

// Add stores the room. Adding an id twice is a programming error and is
// ignored rather than overwriting live state.
func (s *Store) Add(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[r.ID]; exists {
		return
	}
	s.rooms[r.ID] = r
}

// Delete removes the room with id, if present.
func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
}

// Get retrieves a room by id.
func (s *Store) Get(id uuid.UUID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// Rooms returns a snapshot slice of all rooms. Callers lock each room before
// reading its state.
func (s *Store) Rooms() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// Len reports the number of live rooms.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
