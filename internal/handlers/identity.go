// internal/handlers/identity.go
package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pitchside/pitchside/internal/auth"
	"github.com/pitchside/pitchside/internal/database"
	"github.com/pitchside/pitchside/internal/models"
)

// EnsureEphemeralPlayer resolves the requester's identity from the
// auth_token cookie. A missing or invalid token mints a fresh guest and sets
// a new cookie, so every connection ends up with a stable player id.
func EnsureEphemeralPlayer(w http.ResponseWriter, r *http.Request) (models.Player, error) {
	cookieHeader := r.Header.Get("Cookie")
	if strings.Contains(cookieHeader, "auth_token=") {
		token := extractCookieToken(cookieHeader, "auth_token")
		if idStr, nickname, err := auth.VerifyToken(token); err == nil {
			id, parseErr := uuid.Parse(idStr)
			if parseErr != nil {
				return models.Player{}, fmt.Errorf("invalid player id in token: %w", parseErr)
			}
			p := models.Player{ID: id, Nickname: nickname, IsEphemeral: true, Rating: models.DefaultRating}
			if database.DB != nil {
				if stored, dbErr := database.GetPlayerByID(r.Context(), id); dbErr == nil {
					p = *stored
				}
			}
			return p, nil
		}
		// Invalid or expired token; fall through and mint a guest.
	}
	return mintGuest(w, r.Context())
}

func mintGuest(w http.ResponseWriter, ctx context.Context) (models.Player, error) {
	id := uuid.New()
	p := models.Player{
		ID:          id,
		Nickname:    "Guest-" + id.String()[:8],
		IsEphemeral: true,
		Rating:      models.DefaultRating,
	}
	if database.DB != nil {
		if err := database.EnsurePlayer(ctx, &p); err != nil {
			// The guest still works in memory; persistence catches up later.
			log.Printf("failed to persist guest %s: %v", p.ID, err)
		}
	}

	token, err := auth.CreateToken(p.ID.String(), p.Nickname)
	if err != nil {
		return models.Player{}, fmt.Errorf("failed to sign guest token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return p, nil
}
