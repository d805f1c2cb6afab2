// internal/matchmaking/proposal.go
package matchmaking

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitchside/pitchside/internal/models"
)

// Response is a participant's tri-state answer to a proposal.
type Response int

const (
	ResponsePending Response = iota
	ResponseAccepted
	ResponseDeclined
)

// Proposal is a tentative match awaiting unanimous acceptance. It resolves
// at most once: either every participant accepts before the deadline, or the
// first decline or the deadline cancels it. The resolved flag makes a
// late-firing deadline timer a no-op even if the timer could not be stopped
// in time.
type Proposal struct {
	ID       uuid.UUID
	Mode     Mode
	Deadline time.Time
	Red      []*Ticket
	Blue     []*Ticket

	mu        sync.Mutex
	responses map[uuid.UUID]Response
	resolved  bool
	timer     *time.Timer
}

func newProposal(mode Mode, red, blue []*Ticket, deadline time.Time) *Proposal {
	p := &Proposal{
		ID:        uuid.New(),
		Mode:      mode,
		Deadline:  deadline,
		Red:       red,
		Blue:      blue,
		responses: make(map[uuid.UUID]Response),
	}
	for _, pl := range p.Participants() {
		p.responses[pl.ID] = ResponsePending
	}
	return p
}

// Participants lists every player on both sides.
func (p *Proposal) Participants() []models.Player {
	var out []models.Player
	for _, t := range p.Red {
		out = append(out, t.Players...)
	}
	for _, t := range p.Blue {
		out = append(out, t.Players...)
	}
	return out
}

// Tickets lists both sides' tickets in FIFO order of their enqueue times.
func (p *Proposal) Tickets() []*Ticket {
	all := append(append([]*Ticket{}, p.Red...), p.Blue...)
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].EnqueuedAt.Before(all[j-1].EnqueuedAt); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	return all
}

// isParticipant reports whether playerID is part of the proposal. Assumes
// p.mu is held.
func (p *Proposal) isParticipant(playerID uuid.UUID) bool {
	_, ok := p.responses[playerID]
	return ok
}

// allAccepted reports unanimous acceptance. Assumes p.mu is held.
func (p *Proposal) allAccepted() bool {
	for _, r := range p.responses {
		if r != ResponseAccepted {
			return false
		}
	}
	return true
}

// resolveUnsafe flips the resolved flag and stops the deadline timer.
// Returns false if the proposal was already resolved. Assumes p.mu is held.
func (p *Proposal) resolveUnsafe() bool {
	if p.resolved {
		return false
	}
	p.resolved = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return true
}

// Resolved reports whether the proposal has reached its terminal state.
func (p *Proposal) Resolved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolved
}
