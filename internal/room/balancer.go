// internal/room/balancer.go
package room

import (
	"github.com/google/uuid"

	"github.com/pitchside/pitchside/internal/engine"
)

// CanAssignUnsafe decides whether playerID may be moved onto target. It is a
// pure predicate over the current partition: a nil return means the move is
// legal, otherwise the returned error explains the rejection and no state
// changes. Assumes the room lock is held.
//
// hostAuthority marks moves issued under host authority: those skip the
// balance and team-lock checks but never the capacity check.
func CanAssignUnsafe(r *Room, playerID uuid.UUID, target Team, threshold int, hostAuthority bool) error {
	m := r.MemberUnsafe(playerID)
	if m == nil {
		return engine.Conflictf("player is not a member of this room")
	}
	if m.Team == target {
		return engine.Conflictf("already on team %s", target)
	}

	if target == TeamSpectators {
		if !r.Settings.AllowSpectators {
			return engine.Conflictf("spectators are not allowed in this room")
		}
		return nil
	}

	// Moving onto red or blue.
	if r.TeamCountUnsafe(target)+1 > r.maxPerTeam() {
		return engine.Conflictf("team %s is full", target)
	}

	if hostAuthority {
		return nil
	}

	if r.Settings.TeamLock && r.GameInProgress {
		return engine.Conflictf("teams are locked while the game is in progress")
	}

	red := r.TeamCountUnsafe(TeamRed)
	blue := r.TeamCountUnsafe(TeamBlue)
	switch m.Team {
	case TeamRed:
		red--
	case TeamBlue:
		blue--
	}
	switch target {
	case TeamRed:
		red++
	case TeamBlue:
		blue++
	}
	if diff := red - blue; diff > threshold || -diff > threshold {
		return engine.Conflictf("move would unbalance teams (%d vs %d)", red, blue)
	}
	return nil
}
