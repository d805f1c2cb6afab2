// internal/matchmaking/party.go
package matchmaking

import (
	"sync"

	"github.com/google/uuid"

	"github.com/pitchside/pitchside/internal/engine"
	"github.com/pitchside/pitchside/internal/models"
)

// Party is a group of players who queue together and land on the same team.
type Party struct {
	ID       uuid.UUID
	LeaderID uuid.UUID
	Members  []models.Player // ordered, leader first
}

// Size is the number of players in the party.
func (p *Party) Size() int { return len(p.Members) }

// PartyRegistry tracks live parties and which party each player belongs to.
type PartyRegistry struct {
	mu       sync.Mutex
	parties  map[uuid.UUID]*Party
	byPlayer map[uuid.UUID]uuid.UUID
}

func NewPartyRegistry() *PartyRegistry {
	return &PartyRegistry{
		parties:  make(map[uuid.UUID]*Party),
		byPlayer: make(map[uuid.UUID]uuid.UUID),
	}
}

// PartyOf returns the party containing playerID, or nil.
func (pr *PartyRegistry) PartyOf(playerID uuid.UUID) *Party {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pid, ok := pr.byPlayer[playerID]; ok {
		return pr.parties[pid]
	}
	return nil
}

// Add puts invitee into leader's party, creating the party on first use.
// The leader of an existing party is the only member who can grow it.
func (pr *PartyRegistry) Add(leader, invitee models.Player) (*Party, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if leader.ID == invitee.ID {
		return nil, engine.Validationf("cannot invite yourself")
	}
	if _, taken := pr.byPlayer[invitee.ID]; taken {
		return nil, engine.Conflictf("%s is already in a party", invitee.Nickname)
	}

	var p *Party
	if pid, ok := pr.byPlayer[leader.ID]; ok {
		p = pr.parties[pid]
		if p.LeaderID != leader.ID {
			return nil, engine.Authorizationf("only the party leader can invite")
		}
	} else {
		p = &Party{ID: uuid.New(), LeaderID: leader.ID, Members: []models.Player{leader}}
		pr.parties[p.ID] = p
		pr.byPlayer[leader.ID] = p.ID
	}

	if p.Size() >= MaxPartySize {
		return nil, engine.Conflictf("party is full")
	}
	p.Members = append(p.Members, invitee)
	pr.byPlayer[invitee.ID] = p.ID
	return p, nil
}

// Remove takes playerID out of their party. A departing leader disbands the
// party. Returns the affected party (post-mutation) and whether it was
// disbanded; (nil, false) if the player was not in one.
func (pr *PartyRegistry) Remove(playerID uuid.UUID) (*Party, bool) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	pid, ok := pr.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	p := pr.parties[pid]
	delete(pr.byPlayer, playerID)

	if p.LeaderID == playerID || p.Size() <= 2 {
		for _, m := range p.Members {
			delete(pr.byPlayer, m.ID)
		}
		delete(pr.parties, pid)
		return p, true
	}

	members := p.Members[:0]
	for _, m := range p.Members {
		if m.ID != playerID {
			members = append(members, m)
		}
	}
	p.Members = members
	return p, false
}
