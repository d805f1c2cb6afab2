// internal/matchmaking/mode.go
package matchmaking

import (
	"github.com/pitchside/pitchside/internal/engine"
	"github.com/pitchside/pitchside/internal/room"
)

// Mode describes one ranked queue: its team size and the canonical settings
// the synthesized room plays with. Ranked rooms always lock teams and refuse
// spectators.
type Mode struct {
	Name     string
	PerTeam  int
	Settings room.Settings
}

var modes = map[string]Mode{
	"1v1": {Name: "1v1", PerTeam: 1, Settings: rankedSettings(3, 5, room.FieldSmall)},
	"2v2": {Name: "2v2", PerTeam: 2, Settings: rankedSettings(5, 7, room.FieldStandard)},
	"3v3": {Name: "3v3", PerTeam: 3, Settings: rankedSettings(5, 7, room.FieldStandard)},
	"4v4": {Name: "4v4", PerTeam: 4, Settings: rankedSettings(7, 10, room.FieldLarge)},
	"5v5": {Name: "5v5", PerTeam: 5, Settings: rankedSettings(7, 10, room.FieldXL)},
}

func rankedSettings(scoreLimit, timeLimit int, field room.FieldSize) room.Settings {
	return room.Settings{
		ScoreLimit:      scoreLimit,
		TimeLimit:       timeLimit,
		Field:           field,
		TeamLock:        true,
		AllowSpectators: false,
	}
}

// LookupMode resolves a client-supplied mode name.
func LookupMode(name string) (Mode, error) {
	m, ok := modes[name]
	if !ok {
		return Mode{}, engine.Validationf("unknown mode %q", name)
	}
	return m, nil
}

// MaxPartySize is the largest party any mode can seat on one team.
const MaxPartySize = 5
