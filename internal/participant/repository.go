package participant

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

const participantColumns = `id, game_id, team_id, nickname, created_at`

func (r *Repository) CreateParticipant(ctx context.Context, req CreateParticipantRequest) (*models.Participant, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO participants (id, game_id, nickname)
		VALUES ($1, $2, $3)
		RETURNING `+participantColumns,
		req.ID, req.GameID, req.Nickname,
	)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}
	return p, nil
}

func (r *Repository) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

func (r *Repository) AssignToTeam(ctx context.Context, id, teamID uuid.UUID) (*models.Participant, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE participants SET team_id = $2 WHERE id = $1
		RETURNING `+participantColumns,
		id, teamID,
	)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, fmt.Errorf("failed to assign participant to team: %w", err)
	}
	return p, nil
}

func (r *Repository) ListByGame(ctx context.Context, gameID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+participantColumns+` FROM participants WHERE game_id = $1 ORDER BY created_at`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		var teamID uuid.NullUUID
		var createdAt time.Time
		if err := rows.Scan(&p.ID, &p.GameID, &teamID, &p.Nickname, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.TeamID = sqlutil.FromNullUUID(teamID)
		p.CreatedAt = createdAt
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *Repository) NicknameTaken(ctx context.Context, gameID uuid.UUID, nickname string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM participants WHERE game_id = $1 AND lower(nickname) = lower($2)
		)`, gameID, nickname).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check nickname: %w", err)
	}
	return exists, nil
}

// ResetRoster removes every participant of a game.
func (r *Repository) ResetRoster(ctx context.Context, gameID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE game_id = $1`, gameID); err != nil {
		return fmt.Errorf("failed to reset roster: %w", err)
	}
	return nil
}

func scanParticipant(row *sql.Row) (*models.Participant, error) {
	var p models.Participant
	var teamID uuid.NullUUID
	var createdAt time.Time
	if err := row.Scan(&p.ID, &p.GameID, &teamID, &p.Nickname, &createdAt); err != nil {
		return nil, err
	}
	p.TeamID = sqlutil.FromNullUUID(teamID)
	p.CreatedAt = createdAt
	return &p, nil
}
