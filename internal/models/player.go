// internal/models/player.go
package models

import "github.com/google/uuid"

// Player is the identity the rest of the engine sees: a stable id and a
// display name per connection. Guests are minted on the fly and flagged
// ephemeral.
type Player struct {
	ID          uuid.UUID `json:"id"`
	Nickname    string    `json:"nickname"`
	IsEphemeral bool      `json:"is_ephemeral"`

	// Rating is the ranked ladder rating. New players start at DefaultRating.
	Rating int `json:"rating"`
}

// DefaultRating is the starting ladder rating for a fresh player.
const DefaultRating = 1200
