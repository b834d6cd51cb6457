package relayquiz

import (
	"context"
	"database/sql"
	"fmt"

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

const sessionColumns = `id, game_id, round_number, status, total_steps, created_at, updated_at`

func (r *Repository) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.RelayQuizSession, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO relay_quiz_sessions (id, game_id, round_number, status, total_steps)
		VALUES ($1, $2, $3, 'waiting', $4)
		RETURNING `+sessionColumns,
		req.ID, req.GameID, req.RoundNumber, req.TotalSteps,
	)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create relay session: %w", err)
	}
	return session, nil
}

func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.RelayQuizSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM relay_quiz_sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get relay session: %w", err)
	}
	return session, nil
}

func (r *Repository) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) (*models.RelayQuizSession, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE relay_quiz_sessions SET status = $2, updated_at = now() WHERE id = $1
		RETURNING `+sessionColumns,
		id, status,
	)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update relay session status: %w", err)
	}
	return session, nil
}

// EnsureProgress creates the zeroed progress row for a team, keeping the
// existing row if one is already there.
func (r *Repository) EnsureProgress(ctx context.Context, sessionID, teamID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO relay_team_progress (id, session_id, team_id, current_question_order)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (session_id, team_id) DO NOTHING`,
		uuid.New(), sessionID, teamID,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure team progress: %w", err)
	}
	return nil
}

func (r *Repository) GetProgress(ctx context.Context, sessionID, teamID uuid.UUID) (*models.TeamProgress, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, team_id, current_question_order, completed_at, updated_at
		FROM relay_team_progress
		WHERE session_id = $1 AND team_id = $2`,
		sessionID, teamID)
	progress, err := scanProgress(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get team progress: %w", err)
	}
	return progress, nil
}

// AdvanceProgress bumps a team's question pointer only when the expected
// order still matches, which is the atomic gate against two teammates
// answering the same step concurrently. Returns false when the gate lost.
func (r *Repository) AdvanceProgress(ctx context.Context, sessionID, teamID uuid.UUID, fromOrder int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE relay_team_progress
		SET current_question_order = current_question_order + 1, updated_at = now()
		WHERE session_id = $1 AND team_id = $2 AND current_question_order = $3`,
		sessionID, teamID, fromOrder)
	if err != nil {
		return false, fmt.Errorf("failed to advance progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repository) MarkCompleted(ctx context.Context, sessionID, teamID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE relay_team_progress
		SET completed_at = now(), updated_at = now()
		WHERE session_id = $1 AND team_id = $2 AND completed_at IS NULL`,
		sessionID, teamID)
	if err != nil {
		return fmt.Errorf("failed to mark relay completed: %w", err)
	}
	return nil
}

func (r *Repository) InsertAttempt(ctx context.Context, req InsertAttemptRequest) (*models.RelayAttempt, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO relay_attempts (id, session_id, team_id, participant_id, question_order, answer, is_correct)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, session_id, team_id, participant_id, question_order, answer, is_correct, created_at`,
		req.ID, req.SessionID, req.TeamID, req.ParticipantID, req.QuestionOrder, req.Answer, req.IsCorrect,
	)
	var a models.RelayAttempt
	if err := row.Scan(&a.ID, &a.SessionID, &a.TeamID, &a.ParticipantID, &a.QuestionOrder, &a.Answer, &a.IsCorrect, &a.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert relay attempt: %w", err)
	}
	return &a, nil
}

func (r *Repository) ListProgress(ctx context.Context, sessionID uuid.UUID) ([]models.TeamProgress, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, team_id, current_question_order, completed_at, updated_at
		FROM relay_team_progress
		WHERE session_id = $1
		ORDER BY current_question_order DESC, updated_at`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team progress: %w", err)
	}
	defer rows.Close()

	var progress []models.TeamProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team progress: %w", err)
		}
		progress = append(progress, *p)
	}
	return progress, rows.Err()
}

func (r *Repository) ListAttempts(ctx context.Context, sessionID uuid.UUID, limit int32) ([]models.RelayAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, team_id, participant_id, question_order, answer, is_correct, created_at
		FROM relay_attempts
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list relay attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.RelayAttempt
	for rows.Next() {
		var a models.RelayAttempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.TeamID, &a.ParticipantID, &a.QuestionOrder, &a.Answer, &a.IsCorrect, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan relay attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.RelayQuizSession, error) {
	var s models.RelayQuizSession
	if err := row.Scan(&s.ID, &s.GameID, &s.RoundNumber, &s.Status, &s.TotalSteps, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanProgress(row rowScanner) (*models.TeamProgress, error) {
	var p models.TeamProgress
	var completedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.SessionID, &p.TeamID, &p.CurrentQuestionOrder, &completedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CompletedAt = sqlutil.FromSqlTime(completedAt)
	return &p, nil
}
