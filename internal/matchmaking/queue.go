// internal/matchmaking/queue.go
package matchmaking

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitchside/pitchside/internal/models"
)

// Ticket is one indivisible queue entry: a solo player or a whole party.
// Parties never split across teams.
type Ticket struct {
	ID         uuid.UUID
	PartyID    uuid.UUID // uuid.Nil for solo entries
	Players    []models.Player
	Mode       string
	EnqueuedAt time.Time
}

// Size is the number of seats the ticket occupies on one team.
func (t *Ticket) Size() int { return len(t.Players) }

// Holds reports whether the ticket contains playerID.
func (t *Ticket) Holds(playerID uuid.UUID) bool {
	for _, p := range t.Players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// Queue is the FIFO ticket list for one mode. Each mode's queue carries its
// own lock, so queues for different modes never serialize against each
// other.
type Queue struct {
	mode string

	mu      sync.Mutex
	tickets []*Ticket
	queued  map[uuid.UUID]struct{} // player ids currently in a ticket
}

func NewQueue(mode string) *Queue {
	return &Queue{mode: mode, queued: make(map[uuid.UUID]struct{})}
}

// Enqueue appends the ticket, rejecting it if any of its players is already
// queued. Returns false on rejection.
func (q *Queue) Enqueue(t *Ticket) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range t.Players {
		if _, dup := q.queued[p.ID]; dup {
			return false
		}
	}
	t.EnqueuedAt = time.Now()
	q.tickets = append(q.tickets, t)
	for _, p := range t.Players {
		q.queued[p.ID] = struct{}{}
	}
	return true
}

// PushFront re-inserts tickets at the head of the queue, preserving the
// given order. A ticket whose player re-enqueued in the meantime is dropped
// rather than doubled. Used when a cancelled proposal returns innocent
// entries ahead of everyone who queued later.
func (q *Queue) PushFront(tickets []*Ticket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var kept []*Ticket
	for _, t := range tickets {
		dup := false
		for _, p := range t.Players {
			if _, ok := q.queued[p.ID]; ok {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, t)
		for _, p := range t.Players {
			q.queued[p.ID] = struct{}{}
		}
	}
	q.tickets = append(kept, q.tickets...)
}

// RemovePlayer pulls the ticket containing playerID out of the queue and
// returns it, or nil if the player is not queued.
func (q *Queue) RemovePlayer(playerID uuid.UUID) *Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.tickets {
		if t.Holds(playerID) {
			q.tickets = append(q.tickets[:i], q.tickets[i+1:]...)
			for _, p := range t.Players {
				delete(q.queued, p.ID)
			}
			return t
		}
	}
	return nil
}

// Contains reports whether playerID is currently queued.
func (q *Queue) Contains(playerID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.queued[playerID]
	return ok
}

// Len reports the number of queued tickets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tickets)
}

// TakeMatch tries to fill two teams of perTeam seats from the head of the
// queue. Tickets are considered strictly FIFO; each is placed whole on the
// side with more open seats, and one that fits neither side is passed over.
// On success the chosen tickets leave the queue and are returned as the two
// sides; otherwise the queue is untouched and both slices are nil.
func (q *Queue) TakeMatch(perTeam int) (red, blue []*Ticket) {
	q.mu.Lock()
	defer q.mu.Unlock()

	redSeats, blueSeats := perTeam, perTeam
	var redPick, bluePick []*Ticket
	chosen := make(map[*Ticket]bool)

	for _, t := range q.tickets {
		if redSeats == 0 && blueSeats == 0 {
			break
		}
		// Prefer the emptier side to keep the split even.
		if redSeats >= blueSeats && t.Size() <= redSeats {
			redPick = append(redPick, t)
			redSeats -= t.Size()
			chosen[t] = true
		} else if t.Size() <= blueSeats {
			bluePick = append(bluePick, t)
			blueSeats -= t.Size()
			chosen[t] = true
		}
	}
	if redSeats != 0 || blueSeats != 0 {
		return nil, nil
	}

	remaining := q.tickets[:0]
	for _, t := range q.tickets {
		if !chosen[t] {
			remaining = append(remaining, t)
		}
	}
	q.tickets = remaining
	for t := range chosen {
		for _, p := range t.Players {
			delete(q.queued, p.ID)
		}
	}
	return redPick, bluePick
}
