// internal/matchmaking/service.go
package matchmaking

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pitchside/pitchside/internal/broadcast"
	"github.com/pitchside/pitchside/internal/config"
	"github.com/pitchside/pitchside/internal/engine"
	"github.com/pitchside/pitchside/internal/events"
	"github.com/pitchside/pitchside/internal/models"
	"github.com/pitchside/pitchside/internal/room"
)

// RoomCreator is the lifecycle-controller hook a resolved proposal hands its
// team split to.
type RoomCreator interface {
	CreateRanked(mode string, settings room.Settings, red, blue []models.Player) (*room.Room, error)
}

// Service runs the ranked queues and the propose/accept/decline protocol.
type Service struct {
	cfg   config.Engine
	bus   broadcast.Bus
	rooms RoomCreator
	log   *logrus.Logger

	// Parties is the shared party registry; invites and leaves go through
	// the service so queue membership stays atomic with party membership.
	Parties *PartyRegistry

	mu        sync.Mutex // guards the queue and proposal registries only
	queues    map[string]*Queue
	proposals map[uuid.UUID]*Proposal

	done chan struct{}
}

func NewService(cfg config.Engine, bus broadcast.Bus, rooms RoomCreator, log *logrus.Logger) *Service {
	return &Service{
		cfg:       cfg,
		bus:       bus,
		rooms:     rooms,
		log:       log,
		Parties:   NewPartyRegistry(),
		queues:    make(map[string]*Queue),
		proposals: make(map[uuid.UUID]*Proposal),
		done:      make(chan struct{}),
	}
}

// Start launches the periodic matcher. Matching is also attempted eagerly on
// every enqueue, so the ticker only mops up after cancellations.
func (s *Service) Start() { go s.matchLoop() }

// Stop shuts the matcher down.
func (s *Service) Stop() { close(s.done) }

func (s *Service) queue(mode string) *Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[mode]
	if !ok {
		q = NewQueue(mode)
		s.queues[mode] = q
	}
	return q
}

func (s *Service) allQueues() []*Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Queue, 0, len(s.queues))
	for _, q := range s.queues {
		out = append(out, q)
	}
	return out
}

// inPendingProposal reports whether playerID is a participant of any
// unresolved proposal.
func (s *Service) inPendingProposal(playerID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.proposals {
		p.mu.Lock()
		pending := !p.resolved && p.isParticipant(playerID)
		p.mu.Unlock()
		if pending {
			return true
		}
	}
	return false
}

// Enqueue puts requester — or their whole party, if they lead one — into the
// mode's queue and immediately tries to form a match.
func (s *Service) Enqueue(requester models.Player, modeName string) error {
	m, err := LookupMode(modeName)
	if err != nil {
		return err
	}
	if s.inPendingProposal(requester.ID) {
		return engine.Conflictf("respond to your pending match first")
	}

	ticket := &Ticket{ID: uuid.New(), Players: []models.Player{requester}, Mode: m.Name}
	if party := s.Parties.PartyOf(requester.ID); party != nil {
		if party.LeaderID != requester.ID {
			return engine.Authorizationf("only the party leader can queue the party")
		}
		if party.Size() > m.PerTeam {
			return engine.Validationf("party of %d does not fit a %s team", party.Size(), m.Name)
		}
		ticket.PartyID = party.ID
		ticket.Players = append([]models.Player{}, party.Members...)
	}

	if !s.queue(m.Name).Enqueue(ticket) {
		return engine.Conflictf("already in the %s queue", m.Name)
	}
	s.log.Infof("queue %s: ticket %s enqueued (%d player(s))", m.Name, ticket.ID, ticket.Size())

	for _, p := range ticket.Players {
		s.bus.Publish(broadcast.PlayerTopic(p.ID), events.Payload{
			"type": events.TypeQueueJoined,
			"mode": m.Name,
		})
	}
	s.tryMatch(m)
	return nil
}

// Cancel removes the requester's ticket — the whole party, if they queued as
// one — from whichever queue holds it.
func (s *Service) Cancel(playerID uuid.UUID) error {
	for _, q := range s.allQueues() {
		if ticket := q.RemovePlayer(playerID); ticket != nil {
			s.notifyQueueLeft(ticket)
			return nil
		}
	}
	return engine.NotFoundf("not in any queue")
}

func (s *Service) notifyQueueLeft(t *Ticket) {
	for _, p := range t.Players {
		s.bus.Publish(broadcast.PlayerTopic(p.ID), events.Payload{
			"type": events.TypeQueueLeft,
			"mode": t.Mode,
		})
	}
}

// tryMatch forms at most one proposal per call for the mode.
func (s *Service) tryMatch(m Mode) {
	q := s.queue(m.Name)
	red, blue := q.TakeMatch(m.PerTeam)
	if red == nil {
		return
	}

	deadline := time.Now().Add(s.cfg.AcceptWindow)
	p := newProposal(m, red, blue, deadline)

	s.mu.Lock()
	s.proposals[p.ID] = p
	s.mu.Unlock()

	// The deadline timer is cancelled on early resolution; the resolved
	// flag covers the window where it fires anyway.
	p.mu.Lock()
	p.timer = time.AfterFunc(s.cfg.AcceptWindow, func() { s.expire(p) })
	p.mu.Unlock()

	participants := p.Participants()
	names := make([]string, len(participants))
	for i, pl := range participants {
		names[i] = pl.Nickname
	}
	s.log.Infof("proposal %s formed for %s with %d players", p.ID, m.Name, len(participants))
	for _, pl := range participants {
		s.bus.Publish(broadcast.PlayerTopic(pl.ID), events.MatchFound(p.ID, m.Name, names, deadline))
	}
}

func (s *Service) proposal(id uuid.UUID) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, engine.NotFoundf("proposal %s not found", id)
	}
	return p, nil
}

func (s *Service) dropProposal(id uuid.UUID) {
	s.mu.Lock()
	delete(s.proposals, id)
	s.mu.Unlock()
}

// Accept records playerID's acceptance. Unanimous acceptance resolves the
// proposal into a ranked room.
func (s *Service) Accept(playerID, proposalID uuid.UUID) error {
	p, err := s.proposal(proposalID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return engine.NotFoundf("proposal %s already resolved", proposalID)
	}
	if !p.isParticipant(playerID) {
		p.mu.Unlock()
		return engine.NotFoundf("proposal %s not found", proposalID)
	}
	if p.responses[playerID] == ResponseAccepted {
		p.mu.Unlock()
		return nil
	}
	p.responses[playerID] = ResponseAccepted
	complete := p.allAccepted()
	if complete {
		p.resolveUnsafe()
	}
	p.mu.Unlock()

	for _, pl := range p.Participants() {
		s.bus.Publish(broadcast.PlayerTopic(pl.ID), events.MatchResponse(events.TypeMatchAccepted, p.ID, playerID))
	}
	if complete {
		s.launch(p)
	}
	return nil
}

// Decline cancels the whole proposal: the decliner's ticket goes back to
// Idle, everyone else returns to the front of the queue.
func (s *Service) Decline(playerID, proposalID uuid.UUID) error {
	p, err := s.proposal(proposalID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return engine.NotFoundf("proposal %s already resolved", proposalID)
	}
	if !p.isParticipant(playerID) {
		p.mu.Unlock()
		return engine.NotFoundf("proposal %s not found", proposalID)
	}
	p.responses[playerID] = ResponseDeclined
	p.resolveUnsafe()
	p.mu.Unlock()

	for _, pl := range p.Participants() {
		s.bus.Publish(broadcast.PlayerTopic(pl.ID), events.MatchResponse(events.TypeMatchDeclined, p.ID, playerID))
	}
	s.cancel(p, "declined", func(t *Ticket) bool { return !t.Holds(playerID) })
	return nil
}

// expire is the deadline timer handler. It checks the resolved flag first so
// a race with cancellation stays idempotent.
func (s *Service) expire(p *Proposal) {
	p.mu.Lock()
	if !p.resolveUnsafe() {
		p.mu.Unlock()
		return
	}
	// Non-responders go back to Idle; a ticket survives only if every one
	// of its players had accepted.
	innocent := func(t *Ticket) bool {
		for _, pl := range t.Players {
			if p.responses[pl.ID] != ResponseAccepted {
				return false
			}
		}
		return true
	}
	p.mu.Unlock()

	s.log.Infof("proposal %s timed out", p.ID)
	s.cancel(p, "timeout", innocent)
}

// cancel finishes a failed proposal: it broadcasts the single terminal
// match_cancelled event and re-enqueues the innocent tickets at the front of
// their queue in their original FIFO order.
func (s *Service) cancel(p *Proposal, reason string, innocent func(*Ticket) bool) {
	s.dropProposal(p.ID)

	for _, pl := range p.Participants() {
		s.bus.Publish(broadcast.PlayerTopic(pl.ID), events.MatchCancelled(p.ID, reason))
	}

	var requeue []*Ticket
	for _, t := range p.Tickets() {
		if innocent(t) {
			requeue = append(requeue, t)
		}
	}
	if len(requeue) > 0 {
		s.queue(p.Mode.Name).PushFront(requeue)
		s.tryMatch(p.Mode)
	}
}

// launch materializes the ranked room for a unanimously accepted proposal.
func (s *Service) launch(p *Proposal) {
	s.dropProposal(p.ID)

	var red, blue []models.Player
	for _, t := range p.Red {
		red = append(red, t.Players...)
	}
	for _, t := range p.Blue {
		blue = append(blue, t.Players...)
	}

	r, err := s.rooms.CreateRanked(p.Mode.Name, p.Mode.Settings, red, blue)
	if err != nil {
		// Should not happen with a well-formed proposal; send everyone back
		// to the front of the queue rather than stranding them.
		s.log.Errorf("proposal %s: ranked room creation failed: %v", p.ID, err)
		s.cancel(p, "internal error", func(*Ticket) bool { return true })
		return
	}

	s.log.Infof("proposal %s resolved into room %s", p.ID, r.ID)
	for _, pl := range p.Participants() {
		s.bus.Publish(broadcast.PlayerTopic(pl.ID), events.Payload{
			"type":        events.TypeMatchStarted,
			"proposal_id": p.ID.String(),
			"room_id":     r.ID.String(),
			"mode":        p.Mode.Name,
		})
	}
}

// InviteToParty adds invitee to the leader's party. If the party is queued,
// the grown party atomically replaces its old ticket with a fresh enqueue —
// or leaves the queue entirely if it no longer fits the mode.
func (s *Service) InviteToParty(leader, invitee models.Player) (*Party, error) {
	party, err := s.Parties.Add(leader, invitee)
	if err != nil {
		return nil, err
	}

	// A solo-queued invitee leaves their own queue on joining; queue
	// membership never drifts from party membership.
	for _, q := range s.allQueues() {
		if old := q.RemovePlayer(invitee.ID); old != nil {
			s.notifyQueueLeft(old)
			break
		}
	}

	for _, q := range s.allQueues() {
		if old := q.RemovePlayer(leader.ID); old != nil {
			m, _ := LookupMode(old.Mode)
			if party.Size() > m.PerTeam {
				s.notifyQueueLeft(old)
				break
			}
			fresh := &Ticket{
				ID:      uuid.New(),
				PartyID: party.ID,
				Players: append([]models.Player{}, party.Members...),
				Mode:    old.Mode,
			}
			q.Enqueue(fresh)
			break
		}
	}

	for _, m := range party.Members {
		s.bus.Publish(broadcast.PlayerTopic(m.ID), events.Payload{
			"type":      events.TypePartyMemberJoined,
			"party_id":  party.ID.String(),
			"player_id": invitee.ID.String(),
			"nickname":  invitee.Nickname,
		})
	}
	return party, nil
}

// LeaveParty removes playerID from their party, dequeuing the whole party
// first so queue membership never drifts from party membership.
func (s *Service) LeaveParty(playerID uuid.UUID) error {
	if s.Parties.PartyOf(playerID) == nil {
		return engine.NotFoundf("not in a party")
	}

	for _, q := range s.allQueues() {
		if ticket := q.RemovePlayer(playerID); ticket != nil {
			s.notifyQueueLeft(ticket)
			break
		}
	}

	party, disbanded := s.Parties.Remove(playerID)
	notified := map[uuid.UUID]bool{}
	fanout := events.Payload{
		"type":      events.TypePartyMemberLeft,
		"party_id":  party.ID.String(),
		"player_id": playerID.String(),
		"disbanded": disbanded,
	}
	for _, m := range append(party.Members, models.Player{ID: playerID}) {
		if notified[m.ID] {
			continue
		}
		notified[m.ID] = true
		s.bus.Publish(broadcast.PlayerTopic(m.ID), fanout)
	}
	return nil
}

func (s *Service) matchLoop() {
	ticker := time.NewTicker(s.cfg.MatcherInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			for _, m := range modes {
				s.tryMatch(m)
			}
		}
	}
}
