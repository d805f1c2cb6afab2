// internal/room/service.go
package room

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pitchside/pitchside/internal/auth"
	"github.com/pitchside/pitchside/internal/broadcast"
	"github.com/pitchside/pitchside/internal/config"
	"github.com/pitchside/pitchside/internal/engine"
	"github.com/pitchside/pitchside/internal/events"
	"github.com/pitchside/pitchside/internal/models"
	"github.com/pitchside/pitchside/internal/rating"
)

// Close reasons reported in room_closed events.
const (
	CloseReasonHostLeft   = "host left"
	CloseReasonEmpty      = "empty"
	CloseReasonInactivity = "inactivity"
)

// Recorder receives terminal events for the analytics pipeline. Calls are
// fire-and-forget; a failing recorder never blocks a room operation.
type Recorder interface {
	RoomClosed(roomID uuid.UUID, roomType Type, reason string)
	GameEnded(roomID uuid.UUID, roomType Type, reason string)
}

// MatchResult is the persistent record of one finished ranked game.
type MatchResult struct {
	RoomID  uuid.UUID
	Mode    string
	Winner  Team
	Reason  string
	Ratings map[uuid.UUID]int // post-match ladder ratings
}

// RatingStore persists ranked results and the moved ladder ratings.
type RatingStore interface {
	RecordResult(ctx context.Context, res MatchResult) error
}

// Service is the room lifecycle controller: it owns every mutation of the
// room store and is the only code that publishes room events.
type Service struct {
	cfg   config.Engine
	store *Store
	bus   broadcast.Bus
	log   *logrus.Logger

	// Recorder and Ratings are optional collaborators; nil disables them.
	Recorder Recorder
	Ratings  RatingStore

	done chan struct{}
}

// NewService builds the controller. Call Start to run the inactivity sweep
// and the room list ticker.
func NewService(cfg config.Engine, store *Store, bus broadcast.Bus, log *logrus.Logger) *Service {
	return &Service{
		cfg:   cfg,
		store: store,
		bus:   bus,
		log:   log,
		done:  make(chan struct{}),
	}
}

// Start launches the background tickers.
func (s *Service) Start() {
	go s.sweepLoop()
	go s.listLoop()
}

// Stop shuts the background tickers down.
func (s *Service) Stop() { close(s.done) }

// Store exposes the underlying room store.
func (s *Service) Store() *Store { return s.store }

// CreateConfig is the client-supplied room creation request.
type CreateConfig struct {
	Name       string         `json:"name"`
	Password   string         `json:"password,omitempty"`
	MaxPlayers int            `json:"maxPlayers"`
	Type       string         `json:"type"`
	Settings   *SettingsPatch `json:"settings,omitempty"`
}

// CreateRoom validates cfg and materializes a new room with requester as
// host, seated as a spectator.
func (s *Service) CreateRoom(requester models.Player, cfg CreateConfig) (*Room, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" || len(name) > 40 {
		return nil, engine.Validationf("room name must be 1-40 characters")
	}
	if cfg.MaxPlayers < 2 || cfg.MaxPlayers > 20 {
		return nil, engine.Validationf("maxPlayers must be between 2 and 20")
	}
	roomType := Type(cfg.Type)
	if cfg.Type == "" {
		roomType = TypeNormal
	}
	if roomType != TypeNormal && roomType != TypeRanked {
		return nil, engine.Validationf("unsupported room type %q", cfg.Type)
	}

	settings := DefaultSettings()
	if cfg.Settings != nil {
		if err := applyPatch(&settings, *cfg.Settings); err != nil {
			return nil, err
		}
	}

	var passwordHash string
	if cfg.Password != "" {
		hash, err := auth.HashSecret(cfg.Password)
		if err != nil {
			return nil, engine.Validationf("unusable password")
		}
		passwordHash = hash
	}

	now := time.Now()
	r := &Room{
		ID:           uuid.New(),
		Name:         name,
		PasswordHash: passwordHash,
		Capacity:     cfg.MaxPlayers,
		Type:         roomType,
		HostID:       requester.ID,
		Members:      make(map[uuid.UUID]*Member),
		Settings:     settings,
		CreatedAt:    now,
		LastActivity: now,
	}
	r.addMemberUnsafe(requester)
	s.store.Add(r)

	s.log.Infof("room %s (%q) created by %s", r.ID, r.Name, requester.ID)

	s.bus.SubscribePlayer(requester.ID, broadcast.RoomTopic(r.ID))
	r.Mu.Lock()
	created := events.Payload{"type": events.TypeRoomCreated, "room": r.SnapshotUnsafe()}
	r.Mu.Unlock()
	s.bus.Publish(broadcast.PlayerTopic(requester.ID), created)
	s.publishRoomList()
	return r, nil
}

// JoinRoom seats requester in the room as a spectator.
func (s *Service) JoinRoom(roomID uuid.UUID, requester models.Player, password string) (*Room, error) {
	r, err := s.getRoom(roomID)
	if err != nil {
		return nil, err
	}

	if r.PasswordHash != "" {
		ok, verr := auth.VerifySecret(password, r.PasswordHash)
		if verr != nil || !ok {
			return nil, engine.Conflictf("wrong password")
		}
	}

	r.Mu.Lock()
	if r.closed {
		r.Mu.Unlock()
		return nil, engine.NotFoundf("room %s not found", roomID)
	}
	if r.MemberUnsafe(requester.ID) != nil {
		r.Mu.Unlock()
		return nil, engine.Conflictf("already in this room")
	}
	if len(r.Members) >= r.Capacity {
		r.Mu.Unlock()
		return nil, engine.Conflictf("room is full")
	}
	r.addMemberUnsafe(requester)
	r.TouchUnsafe()
	joined := events.Payload{"type": events.TypeRoomJoined, "room": r.SnapshotUnsafe()}
	fanout := events.Payload{
		"type":      events.TypePlayerJoined,
		"room_id":   r.ID.String(),
		"player_id": requester.ID.String(),
		"nickname":  requester.Nickname,
	}
	r.Mu.Unlock()

	s.bus.SubscribePlayer(requester.ID, broadcast.RoomTopic(r.ID))
	s.bus.Publish(broadcast.RoomTopic(r.ID), fanout)
	s.bus.Publish(broadcast.PlayerTopic(requester.ID), joined)
	return r, nil
}

// LeaveRoom removes requester from whichever partition holds them. A host
// departure closes the room outright; there is no host election.
func (s *Service) LeaveRoom(roomID, requesterID uuid.UUID) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}

	r.Mu.Lock()
	if r.closed {
		r.Mu.Unlock()
		return engine.NotFoundf("room %s not found", roomID)
	}
	m := r.MemberUnsafe(requesterID)
	if m == nil {
		r.Mu.Unlock()
		return engine.Conflictf("not a member of this room")
	}
	leftTeam := m.Team
	delete(r.Members, requesterID)
	r.TouchUnsafe()

	wasHost := requesterID == r.HostID
	isEmpty := len(r.Members) == 0

	// A mid-game departure that leaves a side empty ends the game.
	var endedReason string
	if r.GameInProgress && (leftTeam == TeamRed || leftTeam == TeamBlue) && r.TeamCountUnsafe(leftTeam) == 0 {
		r.GameInProgress = false
		r.cancelStartTimerUnsafe()
		endedReason = "player left"
	}

	fanout := events.Payload{
		"type":      events.TypePlayerLeft,
		"room_id":   r.ID.String(),
		"player_id": requesterID.String(),
	}
	r.Mu.Unlock()

	s.bus.UnsubscribePlayer(requesterID, broadcast.RoomTopic(r.ID))

	switch {
	case wasHost:
		s.closeRoom(r, CloseReasonHostLeft)
	case isEmpty:
		s.closeRoom(r, CloseReasonEmpty)
	default:
		s.bus.Publish(broadcast.RoomTopic(r.ID), fanout)
		if endedReason != "" {
			s.bus.Publish(broadcast.RoomTopic(r.ID), events.GameEnded(r.ID, endedReason))
			if s.Recorder != nil {
				s.Recorder.GameEnded(r.ID, r.Type, endedReason)
			}
		}
	}
	return nil
}

// ChangeTeam moves requester onto target after the balancer approves.
func (s *Service) ChangeTeam(roomID, requesterID uuid.UUID, target Team) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}

	r.Mu.Lock()
	if r.closed {
		r.Mu.Unlock()
		return engine.NotFoundf("room %s not found", roomID)
	}
	hostAuthority := requesterID == r.HostID
	if err := CanAssignUnsafe(r, requesterID, target, s.cfg.TeamBalanceThreshold, hostAuthority); err != nil {
		r.Mu.Unlock()
		return err
	}
	r.Members[requesterID].Team = target
	r.TouchUnsafe()
	fanout := events.Payload{
		"type":      events.TypeTeamChanged,
		"room_id":   r.ID.String(),
		"player_id": requesterID.String(),
		"team":      string(target),
	}
	r.Mu.Unlock()

	s.bus.Publish(broadcast.RoomTopic(r.ID), fanout)
	return nil
}

// StartGame begins a match: host only, both sides seated, not already
// running. gameInProgress flips immediately; game_started follows the
// countdown broadcast.
func (s *Service) StartGame(roomID, requesterID uuid.UUID) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}

	r.Mu.Lock()
	if r.closed {
		r.Mu.Unlock()
		return engine.NotFoundf("room %s not found", roomID)
	}
	if requesterID != r.HostID {
		r.Mu.Unlock()
		return engine.Authorizationf("only the host can start the game")
	}
	if r.GameInProgress {
		r.Mu.Unlock()
		return engine.Conflictf("game already in progress")
	}
	if r.TeamCountUnsafe(TeamRed) == 0 || r.TeamCountUnsafe(TeamBlue) == 0 {
		r.Mu.Unlock()
		return engine.Conflictf("both teams need at least one player")
	}

	r.GameInProgress = true
	r.TouchUnsafe()
	countdown := s.cfg.StartCountdownSec
	s.scheduleGameStartedUnsafe(r)
	r.Mu.Unlock()

	s.bus.Publish(broadcast.RoomTopic(r.ID), events.GameStarting(r.ID, countdown))
	return nil
}

// scheduleGameStartedUnsafe arms the countdown timer. Assumes the room lock
// is held. The handler re-checks it is still the current timer and the game
// is still running, so a cancelled or superseded timer is a no-op.
func (s *Service) scheduleGameStartedUnsafe(r *Room) {
	var timer *time.Timer
	timer = time.AfterFunc(time.Duration(s.cfg.StartCountdownSec)*time.Second, func() {
		r.Mu.Lock()
		if r.startTimer != timer || r.closed || !r.GameInProgress {
			r.Mu.Unlock()
			return
		}
		r.startTimer = nil
		r.Mu.Unlock()
		s.bus.Publish(broadcast.RoomTopic(r.ID), events.Payload{
			"type":    events.TypeGameStarted,
			"room_id": r.ID.String(),
		})
	})
	r.startTimer = timer
}

// StopGame is the host-initiated endGame.
func (s *Service) StopGame(roomID, requesterID uuid.UUID) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}
	r.Mu.Lock()
	isHost := requesterID == r.HostID
	r.Mu.Unlock()
	if !isHost {
		return engine.Authorizationf("only the host can stop the game")
	}
	return s.EndGame(roomID, "host stopped")
}

// EndGame stops an in-progress game. Callable internally (a player leaving
// mid-game) or on behalf of the host via StopGame.
func (s *Service) EndGame(roomID uuid.UUID, reason string) error {
	return s.endGame(roomID, reason, "")
}

// EndGameWithResult is the hook gameplay uses to report a finished match.
// For ranked rooms the winning side's ratings move up and the losers' down,
// persisted best-effort.
func (s *Service) EndGameWithResult(roomID uuid.UUID, reason string, winner Team) error {
	return s.endGame(roomID, reason, winner)
}

func (s *Service) endGame(roomID uuid.UUID, reason string, winner Team) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}

	r.Mu.Lock()
	if r.closed {
		r.Mu.Unlock()
		return engine.NotFoundf("room %s not found", roomID)
	}
	if !r.GameInProgress {
		r.Mu.Unlock()
		return engine.Conflictf("no game in progress")
	}
	r.GameInProgress = false
	r.cancelStartTimerUnsafe()
	r.TouchUnsafe()

	var result *MatchResult
	if r.Type == TypeRanked && (winner == TeamRed || winner == TeamBlue) {
		if updated := s.applyRatingsUnsafe(r, winner); updated != nil {
			result = &MatchResult{
				RoomID:  r.ID,
				Mode:    r.Mode,
				Winner:  winner,
				Reason:  reason,
				Ratings: updated,
			}
		}
	}
	r.Mu.Unlock()

	fanout := events.GameEnded(r.ID, reason)
	if winner != "" {
		fanout["winner"] = string(winner)
	}
	s.bus.Publish(broadcast.RoomTopic(r.ID), fanout)
	if s.Recorder != nil {
		s.Recorder.GameEnded(r.ID, r.Type, reason)
	}
	if result != nil && s.Ratings != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Ratings.RecordResult(ctx, *result); err != nil {
				s.log.Warnf("room %s: failed to persist ranked result: %v", r.ID, err)
			}
		}()
	}
	return nil
}

// applyRatingsUnsafe moves each member's rating and returns the new values.
// Assumes the room lock is held.
func (s *Service) applyRatingsUnsafe(r *Room, winner Team) map[uuid.UUID]int {
	loser := TeamBlue
	if winner == TeamBlue {
		loser = TeamRed
	}
	var winners, losers []*Member
	for _, m := range r.Members {
		switch m.Team {
		case winner:
			winners = append(winners, m)
		case loser:
			losers = append(losers, m)
		}
	}
	if len(winners) == 0 || len(losers) == 0 {
		return nil
	}

	winRatings := make([]int, len(winners))
	for i, m := range winners {
		winRatings[i] = m.Player.Rating
	}
	loseRatings := make([]int, len(losers))
	for i, m := range losers {
		loseRatings[i] = m.Player.Rating
	}

	newWin, newLose := rating.ApplyTeamResult(winRatings, loseRatings)
	updated := make(map[uuid.UUID]int, len(winners)+len(losers))
	for i, m := range winners {
		m.Player.Rating = newWin[i]
		updated[m.Player.ID] = newWin[i]
	}
	for i, m := range losers {
		m.Player.Rating = newLose[i]
		updated[m.Player.ID] = newLose[i]
	}
	return updated
}

// SettingsPatch is a partial settings update; nil fields are untouched.
type SettingsPatch struct {
	ScoreLimit      *int    `json:"scoreLimit,omitempty"`
	TimeLimit       *int    `json:"timeLimit,omitempty"`
	Field           *string `json:"field,omitempty"`
	TeamLock        *bool   `json:"teamLock,omitempty"`
	AllowSpectators *bool   `json:"allowSpectators,omitempty"`
}

func applyPatch(st *Settings, p SettingsPatch) error {
	if p.ScoreLimit != nil {
		if *p.ScoreLimit < 1 || *p.ScoreLimit > 10 {
			return engine.Validationf("scoreLimit must be between 1 and 10")
		}
		st.ScoreLimit = *p.ScoreLimit
	}
	if p.TimeLimit != nil {
		if *p.TimeLimit < 1 || *p.TimeLimit > 30 {
			return engine.Validationf("timeLimit must be between 1 and 30")
		}
		st.TimeLimit = *p.TimeLimit
	}
	if p.Field != nil {
		f := FieldSize(*p.Field)
		if !validField(f) {
			return engine.Validationf("unknown field size %q", *p.Field)
		}
		st.Field = f
	}
	if p.TeamLock != nil {
		st.TeamLock = *p.TeamLock
	}
	if p.AllowSpectators != nil {
		st.AllowSpectators = *p.AllowSpectators
	}
	return nil
}

// UpdateSettings applies a host-issued settings patch outside of a game.
func (s *Service) UpdateSettings(roomID, requesterID uuid.UUID, patch SettingsPatch) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}

	r.Mu.Lock()
	if r.closed {
		r.Mu.Unlock()
		return engine.NotFoundf("room %s not found", roomID)
	}
	if requesterID != r.HostID {
		r.Mu.Unlock()
		return engine.Authorizationf("only the host can change settings")
	}
	if r.GameInProgress {
		r.Mu.Unlock()
		return engine.Conflictf("cannot change settings while the game is in progress")
	}
	if err := applyPatch(&r.Settings, patch); err != nil {
		r.Mu.Unlock()
		return err
	}
	r.TouchUnsafe()
	fanout := events.Payload{"type": events.TypeRoomUpdated, "room": r.SnapshotUnsafe()}
	r.Mu.Unlock()

	s.bus.Publish(broadcast.RoomTopic(r.ID), fanout)
	return nil
}

// CreateRanked materializes a ranked room from a resolved match proposal.
// Teams arrive exactly as proposed, settings come from the mode table, and
// the game is in progress from birth. The first red player gets host
// authority so the one-host invariant holds immediately.
func (s *Service) CreateRanked(mode string, settings Settings, red, blue []models.Player) (*Room, error) {
	if len(red) == 0 || len(blue) == 0 {
		return nil, engine.Validationf("ranked rooms need both teams populated")
	}

	now := time.Now()
	r := &Room{
		ID:           uuid.New(),
		Name:         "Ranked " + mode,
		Capacity:     len(red) + len(blue),
		Type:         TypeRanked,
		HostID:       red[0].ID,
		Mode:         mode,
		Members:      make(map[uuid.UUID]*Member),
		Settings:     settings,
		CreatedAt:    now,
		LastActivity: now,
	}
	for _, p := range red {
		r.Members[p.ID] = &Member{Player: p, Team: TeamRed, JoinedAt: now}
	}
	for _, p := range blue {
		r.Members[p.ID] = &Member{Player: p, Team: TeamBlue, JoinedAt: now}
	}
	r.GameInProgress = true
	s.store.Add(r)

	for id := range r.Members {
		s.bus.SubscribePlayer(id, broadcast.RoomTopic(r.ID))
	}
	s.bus.Publish(broadcast.RoomTopic(r.ID), events.Payload{
		"type":    events.TypeHostChanged,
		"room_id": r.ID.String(),
		"host_id": r.HostID.String(),
	})
	s.publishRoomList()
	s.log.Infof("ranked room %s materialized for mode %s", r.ID, mode)
	return r, nil
}

// RoomListPayload renders the global room list snapshot.
func (s *Service) RoomListPayload() events.Payload {
	rooms := []events.Payload{}
	for _, r := range s.store.Rooms() {
		r.Mu.Lock()
		if !r.closed {
			rooms = append(rooms, r.SnapshotUnsafe())
		}
		r.Mu.Unlock()
	}
	return events.Payload{"type": events.TypeRoomList, "rooms": rooms}
}

func (s *Service) publishRoomList() {
	s.bus.Publish(broadcast.TopicRoomList, s.RoomListPayload())
}

// getRoom resolves roomID or reports NotFound.
func (s *Service) getRoom(roomID uuid.UUID) (*Room, error) {
	r, ok := s.store.Get(roomID)
	if !ok {
		return nil, engine.NotFoundf("room %s not found", roomID)
	}
	return r, nil
}

// closeRoom marks the room closed under its lock, removes it from the store,
// notifies every remaining member, and records the terminal event. A non-nil
// precondition is re-evaluated under the lock and aborts the close when it
// no longer holds, so the sweep cannot clobber an in-flight join.
func (s *Service) closeRoom(r *Room, reason string) { s.closeRoomIf(r, reason, nil) }

func (s *Service) closeRoomIf(r *Room, reason string, precondition func(*Room) bool) bool {
	r.Mu.Lock()
	if r.closed || (precondition != nil && !precondition(r)) {
		r.Mu.Unlock()
		return false
	}
	r.closed = true
	r.cancelStartTimerUnsafe()
	memberIDs := make([]uuid.UUID, 0, len(r.Members))
	for id := range r.Members {
		memberIDs = append(memberIDs, id)
	}
	r.Mu.Unlock()

	s.store.Delete(r.ID)
	s.log.Infof("room %s closed: %s", r.ID, reason)

	s.bus.Publish(broadcast.RoomTopic(r.ID), events.RoomClosed(r.ID, reason))
	for _, id := range memberIDs {
		s.bus.UnsubscribePlayer(id, broadcast.RoomTopic(r.ID))
	}
	s.publishRoomList()
	if s.Recorder != nil {
		s.Recorder.RoomClosed(r.ID, r.Type, reason)
	}
	return true
}

// CloseRoom force-closes a room by id, e.g. when its host disconnects.
func (s *Service) CloseRoom(roomID uuid.UUID, reason string) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}
	s.closeRoom(r, reason)
	return nil
}

// Sweep scans the store once and force-closes every room idle for longer
// than the inactivity timeout. Exposed for tests; the sweep loop calls it on
// a ticker.
func (s *Service) Sweep() int {
	closed := 0
	isIdle := func(r *Room) bool {
		return time.Since(r.LastActivity) > s.cfg.InactivityTimeout
	}
	for _, r := range s.store.Rooms() {
		r.Mu.Lock()
		idle := !r.closed && isIdle(r)
		r.Mu.Unlock()
		if idle && s.closeRoomIf(r, CloseReasonInactivity, isIdle) {
			closed++
		}
	}
	if closed > 0 {
		s.log.Infof("inactivity sweep closed %d room(s)", closed)
	}
	return closed
}

func (s *Service) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Service) listLoop() {
	ticker := time.NewTicker(s.cfg.RoomListInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.publishRoomList()
		}
	}
}
