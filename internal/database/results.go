// internal/database/results.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pitchside/pitchside/internal/room"
)

// Results adapts the pool to the room service's RatingStore hook.
type Results struct{}

// RecordResult writes the match_results row and the moved ladder ratings in
// one transaction, so a crash never leaves a result without its ratings.
func (Results) RecordResult(ctx context.Context, res room.MatchResult) error {
	insertResult := `INSERT INTO match_results (room_id, mode, winner, reason)
	                 VALUES ($1, $2, $3, $4)`
	updateRating := `UPDATE players SET rating=$1 WHERE id=$2`

	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertResult, res.RoomID, res.Mode, string(res.Winner), res.Reason); err != nil {
			return err
		}
		for id, r := range res.Ratings {
			if _, err := tx.Exec(ctx, updateRating, r, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record match result: %w", err)
	}
	return nil
}
