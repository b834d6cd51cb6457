package game

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tmcgame/platform/internal/models"
	"github.com/tmcgame/platform/internal/sqlutil"
)

type Repository struct {
	db sqlutil.DBTX
}

func NewRepository(db sqlutil.DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

const gameColumns = `id, title, status, current_round, total_rounds, join_code, created_at, updated_at`

func (r *Repository) CreateGame(ctx context.Context, req CreateGameRequest) (*models.Game, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO games (id, title, status, current_round, total_rounds, join_code)
		VALUES ($1, $2, 'waiting', 0, $3, $4)
		RETURNING `+gameColumns,
		req.ID, req.Title, req.TotalRounds, req.JoinCode,
	)
	game, err := scanGame(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return game, nil
}

func (r *Repository) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	game, err := scanGame(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return game, nil
}

func (r *Repository) GetGameByJoinCode(ctx context.Context, joinCode string) (*models.Game, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE upper(join_code) = upper($1)`, joinCode)
	game, err := scanGame(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by join code: %w", err)
	}
	return game, nil
}

// UpdateGameStatus moves a game forward through its lifecycle. The WHERE
// clause encodes the legal forward transitions so a concurrent or repeated
// request can never move a game backward.
func (r *Repository) UpdateGameStatus(ctx context.Context, id uuid.UUID, status models.GameStatus) (*models.Game, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE games
		SET status = $2, updated_at = now()
		WHERE id = $1
		  AND (
			($2 = 'started' AND status = 'waiting') OR
			($2 = 'finished' AND status IN ('waiting', 'started'))
		  )
		RETURNING `+gameColumns,
		id, status,
	)
	game, err := scanGame(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update game status: %w", err)
	}
	return game, nil
}

// AdvanceRound increments current_round by one, bounded by total_rounds.
func (r *Repository) AdvanceRound(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE games
		SET current_round = current_round + 1, updated_at = now()
		WHERE id = $1 AND current_round < total_rounds
		RETURNING `+gameColumns,
		id,
	)
	game, err := scanGame(row)
	if err != nil {
		return nil, fmt.Errorf("failed to advance round: %w", err)
	}
	return game, nil
}

func scanGame(row *sql.Row) (*models.Game, error) {
	var g models.Game
	var createdAt, updatedAt time.Time
	if err := row.Scan(&g.ID, &g.Title, &g.Status, &g.CurrentRound, &g.TotalRounds, &g.JoinCode, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	g.CreatedAt = createdAt
	g.UpdatedAt = updatedAt
	return &g, nil
}
