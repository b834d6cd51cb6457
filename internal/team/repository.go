package team

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

const teamColumns = `id, game_id, team_name, score, bracket, created_at, updated_at`

func (r *Repository) CreateTeam(ctx context.Context, req CreateTeamRequest) (*models.Team, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO teams (id, game_id, team_name, score)
		VALUES ($1, $2, $3, 0)
		RETURNING `+teamColumns,
		req.ID, req.GameID, req.TeamName,
	)
	team, err := scanTeamRow(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}
	return team, nil
}

func (r *Repository) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id)
	team, err := scanTeamRow(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

func (r *Repository) ListTeamsByGame(ctx context.Context, gameID uuid.UUID) ([]models.Team, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+teamColumns+` FROM teams WHERE game_id = $1 ORDER BY created_at`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []models.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, *team)
	}
	return teams, rows.Err()
}

// AdjustScore is the manual scoreboard path: a single atomic increment or
// decrement clamped at zero. The score-steal transfer deliberately does not
// clamp; see scoresteal.Repository.ExecuteSteal.
func (r *Repository) AdjustScore(ctx context.Context, id uuid.UUID, delta int) (*models.Team, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE teams
		SET score = GREATEST(0, score + $2), updated_at = now()
		WHERE id = $1
		RETURNING `+teamColumns,
		id, delta,
	)
	team, err := scanTeamRow(row)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust score: %w", err)
	}
	return team, nil
}

func (r *Repository) UpdateBracket(ctx context.Context, id uuid.UUID, bracket models.Bracket) (*models.Team, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE teams SET bracket = $2, updated_at = now() WHERE id = $1
		RETURNING `+teamColumns,
		id, bracket,
	)
	team, err := scanTeamRow(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update bracket: %w", err)
	}
	return team, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTeamRow(row *sql.Row) (*models.Team, error) {
	return scanTeam(row)
}

func scanTeam(row rowScanner) (*models.Team, error) {
	var t models.Team
	var bracket sql.NullString
	var createdAt, updatedAt time.Time
	if err := row.Scan(&t.ID, &t.GameID, &t.TeamName, &t.Score, &bracket, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if bracket.Valid {
		b := models.Bracket(bracket.String)
		t.Bracket = &b
	}
	t.CreatedAt = createdAt
	t.UpdatedAt = updatedAt
	return &t, nil
}
