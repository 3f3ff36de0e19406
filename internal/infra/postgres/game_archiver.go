package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"trivia-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
)

// GameArchiver persists finished game results as JSONB rows.
type GameArchiver struct {
	pool *pgxpool.Pool
}

func NewGameArchiver(pool *pgxpool.Pool) *GameArchiver {
	return &GameArchiver{pool: pool}
}

func (a *GameArchiver) Archive(ctx context.Context, result domain.GameResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal game result: %w", err)
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO game_results (id, session_id, channel_id, ended_at, data) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), result.SessionID, result.ChannelID, result.EndedAt, data,
	)
	if err != nil {
		return fmt.Errorf("insert game result: %w", err)
	}
	return nil
}
