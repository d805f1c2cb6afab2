// internal/handlers/server.go
package handlers

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pitchside/pitchside/internal/broadcast"
	"github.com/pitchside/pitchside/internal/matchmaking"
	"github.com/pitchside/pitchside/internal/models"
	"github.com/pitchside/pitchside/internal/room"
)

// Server holds the engine's inbound surface: it wires the gateway and the
// room/matchmaking services to HTTP and WebSocket handlers and tracks which
// players currently hold a live session.
type Server struct {
	log     *logrus.Logger
	gateway *broadcast.Gateway
	rooms   *room.Service
	matches *matchmaking.Service

	mu         sync.Mutex
	sessions   map[uuid.UUID]models.Player
	byNickname map[string]uuid.UUID
}

func NewServer(log *logrus.Logger, gateway *broadcast.Gateway, rooms *room.Service, matches *matchmaking.Service) *Server {
	return &Server{
		log:        log,
		gateway:    gateway,
		rooms:      rooms,
		matches:    matches,
		sessions:   make(map[uuid.UUID]models.Player),
		byNickname: make(map[string]uuid.UUID),
	}
}

// registerSession records a connected player so invites can resolve
// nicknames to ids. A reconnect under the same id replaces the old entry.
func (s *Server) registerSession(p models.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sessions[p.ID]; ok {
		delete(s.byNickname, prev.Nickname)
	}
	s.sessions[p.ID] = p
	s.byNickname[p.Nickname] = p.ID
}

func (s *Server) dropSession(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.sessions[id]; ok {
		delete(s.byNickname, p.Nickname)
		delete(s.sessions, id)
	}
}

// playerByNickname resolves a connected player by display name.
func (s *Server) playerByNickname(nickname string) (models.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byNickname[nickname]
	if !ok {
		return models.Player{}, false
	}
	return s.sessions[id], true
}

// cleanupDisconnect unwinds everything a vanished connection held: room
// membership, queue tickets, party membership, and its gateway presence.
func (s *Server) cleanupDisconnect(playerID uuid.UUID) {
	for _, r := range s.rooms.Store().Rooms() {
		r.Mu.Lock()
		isMember := r.MemberUnsafe(playerID) != nil
		r.Mu.Unlock()
		if isMember {
			if err := s.rooms.LeaveRoom(r.ID, playerID); err != nil {
				s.log.Warnf("disconnect cleanup: leave room %s for %s: %v", r.ID, playerID, err)
			}
		}
	}
	_ = s.matches.Cancel(playerID)
	if s.matches.Parties.PartyOf(playerID) != nil {
		_ = s.matches.LeaveParty(playerID)
	}
	s.gateway.Drop(playerID)
	s.dropSession(playerID)
}
