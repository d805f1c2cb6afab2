// internal/room/room.go
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitchside/pitchside/internal/engine"
	"github.com/pitchside/pitchside/internal/events"
	"github.com/pitchside/pitchside/internal/models"
)

// Team is the partition a member occupies. Every member is on exactly one.
type Team string

const (
	TeamRed        Team = "red"
	TeamBlue       Team = "blue"
	TeamSpectators Team = "spectators"
)

// ParseTeam validates a client-supplied team name.
func ParseTeam(s string) (Team, error) {
	switch Team(s) {
	case TeamRed, TeamBlue, TeamSpectators:
		return Team(s), nil
	}
	return "", engine.Validationf("unknown team %q", s)
}

// Type distinguishes host-managed rooms from matchmaker-created ones.
type Type string

const (
	TypeNormal Type = "normal"
	TypeRanked Type = "ranked"
)

// FieldSize is the pitch size a room plays on.
type FieldSize string

const (
	FieldSmall    FieldSize = "small"
	FieldStandard FieldSize = "standard"
	FieldLarge    FieldSize = "large"
	FieldXL       FieldSize = "xl"
)

func validField(f FieldSize) bool {
	switch f {
	case FieldSmall, FieldStandard, FieldLarge, FieldXL:
		return true
	}
	return false
}

// Settings are the host-tunable match parameters.
type Settings struct {
	ScoreLimit      int       `json:"scoreLimit"`
	TimeLimit       int       `json:"timeLimit"`
	Field           FieldSize `json:"field"`
	TeamLock        bool      `json:"teamLock"`
	AllowSpectators bool      `json:"allowSpectators"`
}

// DefaultSettings are applied to new normal rooms unless the creator
// overrides them.
func DefaultSettings() Settings {
	return Settings{
		ScoreLimit:      3,
		TimeLimit:       5,
		Field:           FieldStandard,
		TeamLock:        false,
		AllowSpectators: true,
	}
}

// Member is one player's membership in a room.
type Member struct {
	Player   models.Player
	Team     Team
	JoinedAt time.Time
}

// Room is the authoritative aggregate for one lobby/match session. All
// mutation goes through the Service while holding Mu; the ...Unsafe methods
// assume the caller holds it. Rooms on different ids never share a lock, so
// unrelated rooms do not serialize against each other.
type Room struct {
	ID           uuid.UUID
	Name         string
	PasswordHash string // argon2id encoded, empty for open rooms
	Capacity     int
	Type         Type
	HostID       uuid.UUID
	Mode         string // ranked mode label, empty for normal rooms

	Members  map[uuid.UUID]*Member
	Settings Settings

	GameInProgress bool
	CreatedAt      time.Time
	LastActivity   time.Time

	// startTimer drives the gameStarting -> gameStarted countdown. Guarded
	// by Mu; a stale timer checks it still owns the slot before firing.
	startTimer *time.Timer

	// closed flips under Mu when the room is destroyed. Operations that
	// grabbed the pointer before deletion check it after locking, so the
	// sweep never races an in-flight join.
	closed bool

	Mu sync.Mutex
}

// TouchUnsafe refreshes the inactivity clock.
func (r *Room) TouchUnsafe() { r.LastActivity = time.Now() }

// MemberUnsafe returns the membership for id, or nil.
func (r *Room) MemberUnsafe(id uuid.UUID) *Member { return r.Members[id] }

// TeamCountUnsafe counts members on team.
func (r *Room) TeamCountUnsafe(team Team) int {
	n := 0
	for _, m := range r.Members {
		if m.Team == team {
			n++
		}
	}
	return n
}

// TeamUnsafe lists the player ids on team.
func (r *Room) TeamUnsafe(team Team) []uuid.UUID {
	var ids []uuid.UUID
	for id, m := range r.Members {
		if m.Team == team {
			ids = append(ids, id)
		}
	}
	return ids
}

// maxPerTeam is the hard per-side cap implied by room capacity. The host
// override never bypasses it.
func (r *Room) maxPerTeam() int { return (r.Capacity + 1) / 2 }

// addMemberUnsafe places p in the room as a spectator.
func (r *Room) addMemberUnsafe(p models.Player) {
	r.Members[p.ID] = &Member{Player: p, Team: TeamSpectators, JoinedAt: time.Now()}
}

// cancelStartTimerUnsafe stops a pending gameStarted countdown, if any.
func (r *Room) cancelStartTimerUnsafe() {
	if r.startTimer != nil {
		r.startTimer.Stop()
		r.startTimer = nil
	}
}

// SnapshotUnsafe renders the room for list entries and room_updated events.
func (r *Room) SnapshotUnsafe() events.Payload {
	teams := map[string][]events.Payload{
		string(TeamRed):        {},
		string(TeamBlue):       {},
		string(TeamSpectators): {},
	}
	for _, m := range r.Members {
		teams[string(m.Team)] = append(teams[string(m.Team)], events.Payload{
			"id":       m.Player.ID.String(),
			"nickname": m.Player.Nickname,
		})
	}
	return events.Payload{
		"id":               r.ID.String(),
		"name":             r.Name,
		"type":             string(r.Type),
		"has_password":     r.PasswordHash != "",
		"capacity":         r.Capacity,
		"player_count":     len(r.Members),
		"host_id":          r.HostID.String(),
		"teams":            teams,
		"settings":         r.Settings,
		"game_in_progress": r.GameInProgress,
	}
}
