// internal/database/player.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pitchside/pitchside/internal/models"
)

// EnsurePlayer upserts the player row, keeping the stored nickname in sync
// with the connection's. Ratings are never clobbered by a reconnect.
func EnsurePlayer(ctx context.Context, p *models.Player) error {
	if p.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate player id: %w", err)
		}
		p.ID = id
	}
	if p.Rating == 0 {
		p.Rating = models.DefaultRating
	}

	q := `INSERT INTO players (id, nickname, is_ephemeral, rating)
	      VALUES ($1, $2, $3, $4)
	      ON CONFLICT (id) DO UPDATE SET nickname = EXCLUDED.nickname`

	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, p.ID, p.Nickname, p.IsEphemeral, p.Rating)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to upsert player: %w", err)
	}
	return nil
}

// GetPlayerByID loads one player row.
func GetPlayerByID(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	var p models.Player
	q := `SELECT id, nickname, is_ephemeral, rating FROM players WHERE id=$1`
	err := DB.QueryRow(ctx, q, id).Scan(&p.ID, &p.Nickname, &p.IsEphemeral, &p.Rating)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
