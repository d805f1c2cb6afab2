// internal/room/service_test.go
package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/pitchside/internal/broadcast"
	"github.com/pitchside/pitchside/internal/config"
	"github.com/pitchside/pitchside/internal/engine"
	"github.com/pitchside/pitchside/internal/events"
	"github.com/pitchside/pitchside/internal/models"
)

// mockBus records every published payload per topic.
type mockBus struct {
	mu     sync.Mutex
	topics map[string][]events.Payload
}

func newMockBus() *mockBus { return &mockBus{topics: make(map[string][]events.Payload)} }

func (b *mockBus) Publish(topic string, msg events.Payload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = append(b.topics[topic], msg)
}

func (b *mockBus) SubscribePlayer(uuid.UUID, string)   {}
func (b *mockBus) UnsubscribePlayer(uuid.UUID, string) {}

func (b *mockBus) byType(topic, typ string) []events.Payload {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Payload
	for _, msg := range b.topics[topic] {
		if msg["type"] == typ {
			out = append(out, msg)
		}
	}
	return out
}

// mockRecorder captures terminal events handed to the analytics sink.
type mockRecorder struct {
	mu          sync.Mutex
	roomsClosed []string
	gamesEnded  []string
}

func (m *mockRecorder) RoomClosed(_ uuid.UUID, _ Type, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomsClosed = append(m.roomsClosed, reason)
}

func (m *mockRecorder) GameEnded(_ uuid.UUID, _ Type, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gamesEnded = append(m.gamesEnded, reason)
}

// mockRatings captures the async ranked-result persistence call.
type mockRatings struct {
	mu  sync.Mutex
	got *MatchResult
}

func (m *mockRatings) RecordResult(_ context.Context, res MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = &res
	return nil
}

func (m *mockRatings) received() *MatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.got
}

func testConfig() config.Engine {
	return config.Engine{
		InactivityTimeout:    30 * time.Minute,
		SweepInterval:        time.Minute,
		RoomListInterval:     time.Minute,
		StartCountdownSec:    0,
		TeamBalanceThreshold: 1,
	}
}

func newTestService(cfg config.Engine) (*Service, *mockBus) {
	bus := newMockBus()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewService(cfg, NewStore(), bus, log), bus
}

func testPlayer(nick string) models.Player {
	return models.Player{ID: uuid.New(), Nickname: nick, Rating: models.DefaultRating}
}

func TestCreateRoomValidation(t *testing.T) {
	svc, _ := newTestService(testConfig())
	host := testPlayer("host")

	cases := []CreateConfig{
		{Name: "", MaxPlayers: 4},
		{Name: "   ", MaxPlayers: 4},
		{Name: "this name is way past the forty character ceiling", MaxPlayers: 4},
		{Name: "ok", MaxPlayers: 1},
		{Name: "ok", MaxPlayers: 21},
		{Name: "ok", MaxPlayers: 4, Type: "tournament"},
	}
	for _, cfg := range cases {
		_, err := svc.CreateRoom(host, cfg)
		assert.True(t, engine.IsValidation(err), "config %+v must be rejected", cfg)
	}

	bad := 0
	_, err := svc.CreateRoom(host, CreateConfig{
		Name: "ok", MaxPlayers: 4,
		Settings: &SettingsPatch{ScoreLimit: &bad},
	})
	assert.True(t, engine.IsValidation(err))
	assert.Equal(t, 0, svc.Store().Len())
}

func TestCreateRoomSeatsHostAsSpectator(t *testing.T) {
	svc, bus := newTestService(testConfig())
	host := testPlayer("host")

	r, err := svc.CreateRoom(host, CreateConfig{Name: "kickabout", MaxPlayers: 4})
	require.NoError(t, err)

	r.Mu.Lock()
	m := r.MemberUnsafe(host.ID)
	require.NotNil(t, m)
	assert.Equal(t, TeamSpectators, m.Team)
	assert.Equal(t, host.ID, r.HostID)
	assert.Equal(t, TypeNormal, r.Type)
	assert.False(t, r.GameInProgress)
	r.Mu.Unlock()

	assert.Len(t, bus.byType(broadcast.PlayerTopic(host.ID), events.TypeRoomCreated), 1)
	assert.Len(t, bus.byType(broadcast.TopicRoomList, events.TypeRoomList), 1)
	assert.Equal(t, 1, svc.Store().Len())
}

func TestJoinRoomPasswordCapacityAndDuplicates(t *testing.T) {
	svc, bus := newTestService(testConfig())
	host := testPlayer("host")
	r, err := svc.CreateRoom(host, CreateConfig{Name: "private", MaxPlayers: 2, Password: "s3cret"})
	require.NoError(t, err)

	guest := testPlayer("guest")
	_, err = svc.JoinRoom(r.ID, guest, "wrong")
	assert.True(t, engine.IsConflict(err))

	_, err = svc.JoinRoom(r.ID, guest, "s3cret")
	require.NoError(t, err)
	assert.Len(t, bus.byType(broadcast.RoomTopic(r.ID), events.TypePlayerJoined), 1)
	assert.Len(t, bus.byType(broadcast.PlayerTopic(guest.ID), events.TypeRoomJoined), 1)

	_, err = svc.JoinRoom(r.ID, guest, "s3cret")
	assert.True(t, engine.IsConflict(err), "double join")

	_, err = svc.JoinRoom(r.ID, testPlayer("late"), "s3cret")
	assert.True(t, engine.IsConflict(err), "room at capacity")

	_, err = svc.JoinRoom(uuid.New(), guest, "")
	assert.True(t, engine.IsNotFound(err))
}

func TestHostLeavingClosesRoom(t *testing.T) {
	svc, bus := newTestService(testConfig())
	rec := &mockRecorder{}
	svc.Recorder = rec
	host, guest := testPlayer("host"), testPlayer("guest")

	r, err := svc.CreateRoom(host, CreateConfig{Name: "doomed", MaxPlayers: 4})
	require.NoError(t, err)
	_, err = svc.JoinRoom(r.ID, guest, "")
	require.NoError(t, err)

	require.NoError(t, svc.LeaveRoom(r.ID, host.ID))

	closedEvs := bus.byType(broadcast.RoomTopic(r.ID), events.TypeRoomClosed)
	require.Len(t, closedEvs, 1)
	assert.Equal(t, CloseReasonHostLeft, closedEvs[0]["reason"])
	assert.Equal(t, 0, svc.Store().Len())
	assert.Equal(t, []string{CloseReasonHostLeft}, rec.roomsClosed)

	// Operations on the dead room resolve to NotFound.
	assert.True(t, engine.IsNotFound(svc.LeaveRoom(r.ID, guest.ID)))
}

func TestGuestLeavingKeepsRoomOpen(t *testing.T) {
	svc, bus := newTestService(testConfig())
	host, guest := testPlayer("host"), testPlayer("guest")

	r, err := svc.CreateRoom(host, CreateConfig{Name: "sticky", MaxPlayers: 4})
	require.NoError(t, err)
	_, err = svc.JoinRoom(r.ID, guest, "")
	require.NoError(t, err)

	require.NoError(t, svc.LeaveRoom(r.ID, guest.ID))
	assert.Len(t, bus.byType(broadcast.RoomTopic(r.ID), events.TypePlayerLeft), 1)
	assert.Empty(t, bus.byType(broadcast.RoomTopic(r.ID), events.TypeRoomClosed))
	assert.Equal(t, 1, svc.Store().Len())

	assert.True(t, engine.IsConflict(svc.LeaveRoom(r.ID, guest.ID)), "leaving twice")
}

func TestChangeTeamRejectionLeavesCompositionUnchanged(t *testing.T) {
	svc, bus := newTestService(testConfig())
	host, g1 := testPlayer("host"), testPlayer("g1")

	r, err := svc.CreateRoom(host, CreateConfig{Name: "pitch", MaxPlayers: 6})
	require.NoError(t, err)
	_, err = svc.JoinRoom(r.ID, g1, "")
	require.NoError(t, err)

	require.NoError(t, svc.ChangeTeam(r.ID, host.ID, TeamRed))

	// 2v0 exceeds the threshold for a non-host move.
	err = svc.ChangeTeam(r.ID, g1.ID, TeamRed)
	assert.True(t, engine.IsConflict(err))
	r.Mu.Lock()
	assert.Equal(t, TeamSpectators, r.MemberUnsafe(g1.ID).Team)
	r.Mu.Unlock()

	require.NoError(t, svc.ChangeTeam(r.ID, g1.ID, TeamBlue))
	evs := bus.byType(broadcast.RoomTopic(r.ID), events.TypeTeamChanged)
	require.Len(t, evs, 2, "one fan-out per successful move only")
	assert.Equal(t, string(TeamBlue), evs[1]["team"])
}

func TestStartGameAuthorityAndPreconditions(t *testing.T) {
	svc, bus := newTestService(testConfig())
	host, guest := testPlayer("host"), testPlayer("guest")

	r, err := svc.CreateRoom(host, CreateConfig{Name: "pitch", MaxPlayers: 4})
	require.NoError(t, err)
	_, err = svc.JoinRoom(r.ID, guest, "")
	require.NoError(t, err)

	assert.True(t, engine.IsAuthorization(svc.StartGame(r.ID, guest.ID)))
	assert.True(t, engine.IsConflict(svc.StartGame(r.ID, host.ID)), "both sides must be seated")

	require.NoError(t, svc.ChangeTeam(r.ID, host.ID, TeamRed))
	require.NoError(t, svc.ChangeTeam(r.ID, guest.ID, TeamBlue))
	require.NoError(t, svc.StartGame(r.ID, host.ID))

	r.Mu.Lock()
	assert.True(t, r.GameInProgress)
	r.Mu.Unlock()

	starting := bus.byType(broadcast.RoomTopic(r.ID), events.TypeGameStarting)
	require.Len(t, starting, 1)
	require.Eventually(t, func() bool {
		return len(bus.byType(broadcast.RoomTopic(r.ID), events.TypeGameStarted)) == 1
	}, time.Second, 5*time.Millisecond, "game_started follows the countdown")

	assert.True(t, engine.IsConflict(svc.StartGame(r.ID, host.ID)), "already running")
}

func TestTeamLockBindsGuestsDuringGame(t *testing.T) {
	svc, _ := newTestService(testConfig())
	host, g1, g2 := testPlayer("host"), testPlayer("g1"), testPlayer("g2")

	lock := true
	r, err := svc.CreateRoom(host, CreateConfig{
		Name: "locked", MaxPlayers: 6,
		Settings: &SettingsPatch{TeamLock: &lock},
	})
	require.NoError(t, err)
	for _, g := range []models.Player{g1, g2} {
		_, err = svc.JoinRoom(r.ID, g, "")
		require.NoError(t, err)
	}
	require.NoError(t, svc.ChangeTeam(r.ID, host.ID, TeamRed))
	require.NoError(t, svc.ChangeTeam(r.ID, g1.ID, TeamBlue))
	require.NoError(t, svc.StartGame(r.ID, host.ID))

	assert.True(t, engine.IsConflict(svc.ChangeTeam(r.ID, g2.ID, TeamBlue)))
	assert.NoError(t, svc.ChangeTeam(r.ID, host.ID, TeamBlue), "host authority bypasses the lock")
}

func TestStopGameAndEndGame(t *testing.T) {
	svc, bus := newTestService(testConfig())
	rec := &mockRecorder{}
	svc.Recorder = rec
	host, guest := testPlayer("host"), testPlayer("guest")

	r, err := svc.CreateRoom(host, CreateConfig{Name: "pitch", MaxPlayers: 4})
	require.NoError(t, err)
	_, err = svc.JoinRoom(r.ID, guest, "")
	require.NoError(t, err)

	assert.True(t, engine.IsConflict(svc.EndGame(r.ID, "whatever")), "no game running yet")

	require.NoError(t, svc.ChangeTeam(r.ID, host.ID, TeamRed))
	require.NoError(t, svc.ChangeTeam(r.ID, guest.ID, TeamBlue))
	require.NoError(t, svc.StartGame(r.ID, host.ID))

	assert.True(t, engine.IsAuthorization(svc.StopGame(r.ID, guest.ID)))
	require.NoError(t, svc.StopGame(r.ID, host.ID))

	ended := bus.byType(broadcast.RoomTopic(r.ID), events.TypeGameEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "host stopped", ended[0]["reason"])
	assert.Equal(t, []string{"host stopped"}, rec.gamesEnded)

	r.Mu.Lock()
	assert.False(t, r.GameInProgress)
	r.Mu.Unlock()
}

func TestLeaverEmptyingASideEndsGame(t *testing.T) {
	svc, bus := newTestService(testConfig())
	host, g1, g2 := testPlayer("host"), testPlayer("g1"), testPlayer("g2")

	r, err := svc.CreateRoom(host, CreateConfig{Name: "pitch", MaxPlayers: 6})
	require.NoError(t, err)
	for _, g := range []models.Player{g1, g2} {
		_, err = svc.JoinRoom(r.ID, g, "")
		require.NoError(t, err)
	}
	require.NoError(t, svc.ChangeTeam(r.ID, host.ID, TeamRed))
	require.NoError(t, svc.ChangeTeam(r.ID, g1.ID, TeamBlue))
	require.NoError(t, svc.StartGame(r.ID, host.ID))

	require.NoError(t, svc.LeaveRoom(r.ID, g1.ID))

	ended := bus.byType(broadcast.RoomTopic(r.ID), events.TypeGameEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "player left", ended[0]["reason"])
	r.Mu.Lock()
	assert.False(t, r.GameInProgress)
	r.Mu.Unlock()
	assert.Equal(t, 1, svc.Store().Len(), "room survives the aborted game")
}

func TestUpdateSettingsHostOnlyOutsideGame(t *testing.T) {
	svc, bus := newTestService(testConfig())
	host, guest := testPlayer("host"), testPlayer("guest")

	r, err := svc.CreateRoom(host, CreateConfig{Name: "pitch", MaxPlayers: 4})
	require.NoError(t, err)
	_, err = svc.JoinRoom(r.ID, guest, "")
	require.NoError(t, err)

	score := 7
	assert.True(t, engine.IsAuthorization(svc.UpdateSettings(r.ID, guest.ID, SettingsPatch{ScoreLimit: &score})))

	tooLong := 45
	assert.True(t, engine.IsValidation(svc.UpdateSettings(r.ID, host.ID, SettingsPatch{TimeLimit: &tooLong})))

	field := string(FieldLarge)
	require.NoError(t, svc.UpdateSettings(r.ID, host.ID, SettingsPatch{ScoreLimit: &score, Field: &field}))
	r.Mu.Lock()
	assert.Equal(t, 7, r.Settings.ScoreLimit)
	assert.Equal(t, FieldLarge, r.Settings.Field)
	r.Mu.Unlock()
	assert.Len(t, bus.byType(broadcast.RoomTopic(r.ID), events.TypeRoomUpdated), 1)

	require.NoError(t, svc.ChangeTeam(r.ID, host.ID, TeamRed))
	require.NoError(t, svc.ChangeTeam(r.ID, guest.ID, TeamBlue))
	require.NoError(t, svc.StartGame(r.ID, host.ID))
	assert.True(t, engine.IsConflict(svc.UpdateSettings(r.ID, host.ID, SettingsPatch{ScoreLimit: &score})))
}

func TestCreateRankedSeatsTeamsAsProposed(t *testing.T) {
	svc, bus := newTestService(testConfig())
	a, b := testPlayer("ada"), testPlayer("bob")

	settings := Settings{ScoreLimit: 3, TimeLimit: 5, Field: FieldSmall, TeamLock: true}
	r, err := svc.CreateRanked("1v1", settings, []models.Player{a}, []models.Player{b})
	require.NoError(t, err)

	r.Mu.Lock()
	assert.Equal(t, TypeRanked, r.Type)
	assert.Equal(t, "1v1", r.Mode)
	assert.Equal(t, a.ID, r.HostID, "first red player takes host authority")
	assert.True(t, r.GameInProgress, "ranked rooms are live from birth")
	assert.Equal(t, TeamRed, r.MemberUnsafe(a.ID).Team)
	assert.Equal(t, TeamBlue, r.MemberUnsafe(b.ID).Team)
	r.Mu.Unlock()

	hostEvs := bus.byType(broadcast.RoomTopic(r.ID), events.TypeHostChanged)
	require.Len(t, hostEvs, 1)
	assert.Equal(t, a.ID.String(), hostEvs[0]["host_id"])

	_, err = svc.CreateRanked("1v1", settings, nil, []models.Player{b})
	assert.True(t, engine.IsValidation(err))
}

func TestEndGameWithResultMovesRankedRatings(t *testing.T) {
	svc, bus := newTestService(testConfig())
	ratings := &mockRatings{}
	svc.Ratings = ratings
	a, b := testPlayer("ada"), testPlayer("bob")

	settings := Settings{ScoreLimit: 3, TimeLimit: 5, Field: FieldSmall, TeamLock: true}
	r, err := svc.CreateRanked("1v1", settings, []models.Player{a}, []models.Player{b})
	require.NoError(t, err)

	require.NoError(t, svc.EndGameWithResult(r.ID, "score limit", TeamRed))

	// Equal ratings move symmetrically by half the K factor.
	r.Mu.Lock()
	assert.Equal(t, models.DefaultRating+16, r.MemberUnsafe(a.ID).Player.Rating)
	assert.Equal(t, models.DefaultRating-16, r.MemberUnsafe(b.ID).Player.Rating)
	r.Mu.Unlock()

	ended := bus.byType(broadcast.RoomTopic(r.ID), events.TypeGameEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, string(TeamRed), ended[0]["winner"])

	require.Eventually(t, func() bool { return ratings.received() != nil }, time.Second, 5*time.Millisecond)
	res := ratings.received()
	assert.Equal(t, "1v1", res.Mode)
	assert.Equal(t, TeamRed, res.Winner)
	assert.Equal(t, models.DefaultRating+16, res.Ratings[a.ID])
}

func TestSweepClosesOnlyIdleRooms(t *testing.T) {
	svc, bus := newTestService(testConfig())
	rec := &mockRecorder{}
	svc.Recorder = rec

	idle, err := svc.CreateRoom(testPlayer("h1"), CreateConfig{Name: "idle", MaxPlayers: 4})
	require.NoError(t, err)
	_, err = svc.CreateRoom(testPlayer("h2"), CreateConfig{Name: "busy", MaxPlayers: 4})
	require.NoError(t, err)

	idle.Mu.Lock()
	idle.LastActivity = time.Now().Add(-time.Hour)
	idle.Mu.Unlock()

	assert.Equal(t, 1, svc.Sweep())
	assert.Equal(t, 1, svc.Store().Len())

	closedEvs := bus.byType(broadcast.RoomTopic(idle.ID), events.TypeRoomClosed)
	require.Len(t, closedEvs, 1)
	assert.Equal(t, CloseReasonInactivity, closedEvs[0]["reason"])
	assert.Equal(t, []string{CloseReasonInactivity}, rec.roomsClosed)

	assert.Equal(t, 0, svc.Sweep(), "second pass finds nothing")
}

func TestActivityDefeatsSweep(t *testing.T) {
	svc, _ := newTestService(testConfig())
	host, guest := testPlayer("host"), testPlayer("guest")

	r, err := svc.CreateRoom(host, CreateConfig{Name: "alive", MaxPlayers: 4})
	require.NoError(t, err)

	r.Mu.Lock()
	r.LastActivity = time.Now().Add(-time.Hour)
	r.Mu.Unlock()

	// A join refreshes the activity clock before the sweep runs.
	_, err = svc.JoinRoom(r.ID, guest, "")
	require.NoError(t, err)

	assert.Equal(t, 0, svc.Sweep())
	assert.Equal(t, 1, svc.Store().Len())
}
