// internal/events/events.go
package events

import (
	"time"

	"github.com/google/uuid"
)

// Payload is the wire shape for every outbound event: a JSON object with a
// "type" discriminator, matching what clients already parse.
type Payload = map[string]interface{}

// Outbound event types. Room-scoped events go to the room topic, queue and
// proposal events to the per-player topic, list snapshots to the list topic.
const (
	TypeError = "error"

	TypeRoomCreated  = "room_created"
	TypeRoomJoined   = "room_joined"
	TypeRoomUpdated  = "room_updated"
	TypePlayerJoined = "player_joined"
	TypePlayerLeft   = "player_left"
	TypeTeamChanged  = "team_changed"
	TypeHostChanged  = "host_changed"
	TypeGameStarting = "game_starting"
	TypeGameStarted  = "game_started"
	TypeGameEnded    = "game_ended"
	TypeRoomClosed   = "room_closed"
	TypeRoomList     = "room_list"

	TypeMatchFound     = "match_found"
	TypeMatchAccepted  = "match_accepted"
	TypeMatchDeclined  = "match_declined"
	TypeMatchCancelled = "match_cancelled"
	TypeMatchStarted   = "match_started"
	TypeQueueJoined    = "queue_joined"
	TypeQueueLeft      = "queue_left"

	TypePartyMemberJoined = "party_member_joined"
	TypePartyMemberLeft   = "party_member_left"
)

// Error builds the synchronous rejection payload sent only to the offender.
func Error(code string, msg string) Payload {
	return Payload{"type": TypeError, "code": code, "message": msg}
}

// RoomClosed builds the terminal room event. Reason is one of "host left",
// "inactivity", or "empty".
func RoomClosed(roomID uuid.UUID, reason string) Payload {
	return Payload{"type": TypeRoomClosed, "room_id": roomID.String(), "reason": reason}
}

// GameStarting carries the pre-game countdown in seconds.
func GameStarting(roomID uuid.UUID, countdown int) Payload {
	return Payload{"type": TypeGameStarting, "room_id": roomID.String(), "countdown": countdown}
}

// GameEnded carries the reason the game stopped ("host stopped",
// "player left", "score limit", ...).
func GameEnded(roomID uuid.UUID, reason string) Payload {
	return Payload{"type": TypeGameEnded, "room_id": roomID.String(), "reason": reason}
}

// MatchFound notifies a proposal participant that a match is waiting for
// their response.
func MatchFound(proposalID uuid.UUID, mode string, players []string, deadline time.Time) Payload {
	return Payload{
		"type":            TypeMatchFound,
		"proposal_id":     proposalID.String(),
		"mode":            mode,
		"players":         players,
		"accept_deadline": deadline.Unix(),
	}
}

// MatchResponse reports one participant's accept/decline to the others.
func MatchResponse(typ string, proposalID, playerID uuid.UUID) Payload {
	return Payload{"type": typ, "proposal_id": proposalID.String(), "player_id": playerID.String()}
}

// MatchCancelled is the single terminal event for a proposal that did not
// reach unanimous acceptance.
func MatchCancelled(proposalID uuid.UUID, reason string) Payload {
	return Payload{"type": TypeMatchCancelled, "proposal_id": proposalID.String(), "reason": reason}
}
