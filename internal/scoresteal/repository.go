package scoresteal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tmcgame/platform/internal/models"
	"github.com/tmcgame/platform/internal/outbox"
	"github.com/tmcgame/platform/internal/sqlutil"
)

// Repository is the Postgres-backed Store. The race-deciding operations are
// single conditional updates or single transactions; the database, not
// arrival order at the API layer, is authoritative.
type Repository struct {
	db     *sql.DB
	outbox *outbox.Repository
}

func NewRepository(db *sql.DB, outboxRepo *outbox.Repository) *Repository {
	return &Repository{db: db, outbox: outboxRepo}
}

var _ Store = (*Repository)(nil)

const sessionColumns = `id, game_id, round_number, status, phase, current_question_id, question_broadcast_at, winner_team_id, created_at, updated_at`

func (r *Repository) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.ScoreStealSession, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO score_steal_sessions (id, game_id, round_number, status, phase)
		VALUES ($1, $2, $3, 'waiting', 'waiting')
		RETURNING `+sessionColumns,
		req.ID, req.GameID, req.RoundNumber,
	)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create score steal session: %w", err)
	}
	return session, nil
}

func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.ScoreStealSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM score_steal_sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get score steal session: %w", err)
	}
	return session, nil
}

func (r *Repository) GetSessionByGameRound(ctx context.Context, gameID uuid.UUID, round int) (*models.ScoreStealSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM score_steal_sessions
		WHERE game_id = $1 AND round_number = $2`, gameID, round)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get score steal session by round: %w", err)
	}
	return session, nil
}

func (r *Repository) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) (*models.ScoreStealSession, error) {
	var session *models.ScoreStealSession
	eventType := outbox.EventSessionStarted
	if status == models.SessionStatusFinished {
		eventType = outbox.EventSessionEnded
	}
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE score_steal_sessions SET status = $2, updated_at = now() WHERE id = $1
			RETURNING `+sessionColumns,
			id, status,
		)
		var err error
		session, err = scanSession(row)
		if err != nil {
			return fmt.Errorf("failed to update session status: %w", err)
		}
		return r.emit(ctx, tx, eventType, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// BroadcastQuestion starts a question cycle. The WHERE clause refuses any
// phase other than waiting/completed, and the protection cleanup keeps only
// rows granted during the cycle that just completed, which is exactly the
// set immune for the new cycle.
func (r *Repository) BroadcastQuestion(ctx context.Context, sessionID, questionID uuid.UUID, broadcastAt time.Time) (*models.ScoreStealSession, error) {
	var session *models.ScoreStealSession
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM score_steal_protections
			WHERE session_id = $1
			  AND question_id IS DISTINCT FROM (
				SELECT current_question_id FROM score_steal_sessions WHERE id = $1
			  )`, sessionID)
		if err != nil {
			return fmt.Errorf("failed to clear stale protections: %w", err)
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE score_steal_sessions
			SET current_question_id = $2,
			    question_broadcast_at = $3,
			    winner_team_id = NULL,
			    phase = 'question_active',
			    updated_at = now()
			WHERE id = $1
			  AND status = 'active'
			  AND phase IN ('waiting', 'completed')
			RETURNING `+sessionColumns,
			sessionID, questionID, broadcastAt,
		)
		session, err = scanSession(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrBroadcastForbidden
			}
			return fmt.Errorf("failed to broadcast question: %w", err)
		}
		return r.emit(ctx, tx, outbox.EventQuestionBroadcast, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// InsertAttempt persists one answer. The guarded INSERT only fires while the
// submitted question's cycle is still open, so a submission racing the steal
// that completes the cycle is rejected by the database rather than by the
// phase the engine read earlier. Answers landing after the winner claim still
// persist with is_winner false.
func (r *Repository) InsertAttempt(ctx context.Context, req InsertAttemptRequest) (*models.ScoreStealAttempt, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO score_steal_attempts
			(id, session_id, team_id, question_id, answer, is_correct, response_time_ms, is_winner)
		SELECT $1, $2, $3, $4, $5, $6, $7, false
		WHERE EXISTS (
			SELECT 1 FROM score_steal_sessions
			WHERE id = $2
			  AND phase IN ('question_active', 'waiting_for_target')
			  AND current_question_id = $4
		)
		RETURNING id, session_id, team_id, question_id, answer, is_correct, response_time_ms, is_winner, created_at`,
		req.ID, req.SessionID, req.TeamID, req.QuestionID, req.Answer, req.IsCorrect, req.ResponseTimeMs,
	)
	var a models.ScoreStealAttempt
	err := row.Scan(&a.ID, &a.SessionID, &a.TeamID, &a.QuestionID, &a.Answer, &a.IsCorrect, &a.ResponseTimeMs, &a.IsWinner, &a.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		// 23505: unique violation on (session_id, team_id, question_id)
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrAlreadyAnswered
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotActive
		}
		return nil, fmt.Errorf("failed to insert attempt: %w", err)
	}
	return &a, nil
}

// ClaimWin is the race decider. The guarded UPDATE can only succeed for one
// attempt per question: whoever flips winner_team_id from NULL wins, every
// concurrent correct answer sees zero rows affected.
func (r *Repository) ClaimWin(ctx context.Context, sessionID, attemptID, teamID uuid.UUID) (bool, error) {
	claimed := false
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE score_steal_sessions
			SET winner_team_id = $2, phase = 'waiting_for_target', updated_at = now()
			WHERE id = $1
			  AND phase = 'question_active'
			  AND winner_team_id IS NULL`,
			sessionID, teamID,
		)
		if err != nil {
			return fmt.Errorf("failed to claim win: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		claimed = true

		if _, err := tx.ExecContext(ctx, `
			UPDATE score_steal_attempts SET is_winner = true WHERE id = $1`, attemptID); err != nil {
			return fmt.Errorf("failed to mark winning attempt: %w", err)
		}

		row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM score_steal_sessions WHERE id = $1`, sessionID)
		session, err := scanSession(row)
		if err != nil {
			return err
		}
		return r.emit(ctx, tx, outbox.EventWinnerDeclared, session)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// ExecuteSteal moves points in one transaction: debit target, credit winner,
// grant protection, complete the phase. The steal path intentionally has no
// zero floor, unlike the manual scoreboard adjustment, so the pairing
// invariant (loss == gain) always holds.
func (r *Repository) ExecuteSteal(ctx context.Context, req ExecuteStealRequest) (*StealOutcome, error) {
	var outcome StealOutcome
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		target, err := adjustTeamScore(ctx, tx, req.TargetTeamID, -req.Points)
		if err != nil {
			return fmt.Errorf("failed to debit target team: %w", err)
		}
		winner, err := adjustTeamScore(ctx, tx, req.WinnerTeamID, req.Points)
		if err != nil {
			return fmt.Errorf("failed to credit winner team: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO score_steal_protections (session_id, team_id, question_id, was_stolen_from)
			VALUES ($1, $2, $3, true)
			ON CONFLICT (session_id, team_id) DO UPDATE
			SET question_id = EXCLUDED.question_id, was_stolen_from = true, created_at = now()`,
			req.SessionID, req.TargetTeamID, req.QuestionID,
		); err != nil {
			return fmt.Errorf("failed to grant protection: %w", err)
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE score_steal_sessions
			SET phase = 'completed', updated_at = now()
			WHERE id = $1 AND phase = 'waiting_for_target'
			RETURNING `+sessionColumns,
			req.SessionID,
		)
		session, err := scanSession(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoTargetSelection
			}
			return fmt.Errorf("failed to complete steal phase: %w", err)
		}

		outcome = StealOutcome{
			Session:    session,
			WinnerTeam: *winner,
			TargetTeam: *target,
			Points:     req.Points,
		}
		payload, err := json.Marshal(outcome)
		if err != nil {
			return fmt.Errorf("failed to marshal steal payload: %w", err)
		}
		return r.outbox.WithTx(tx).InsertEvent(ctx, outbox.InsertEventRequest{
			ID:        uuid.New(),
			GameID:    session.GameID,
			EventType: outbox.EventScoreStealExecuted,
			Payload:   payload,
		})
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (r *Repository) ListAttempts(ctx context.Context, sessionID, questionID uuid.UUID) ([]models.ScoreStealAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, team_id, question_id, answer, is_correct, response_time_ms, is_winner, created_at
		FROM score_steal_attempts
		WHERE session_id = $1 AND question_id = $2
		ORDER BY response_time_ms, created_at`,
		sessionID, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.ScoreStealAttempt
	for rows.Next() {
		var a models.ScoreStealAttempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.TeamID, &a.QuestionID, &a.Answer, &a.IsCorrect, &a.ResponseTimeMs, &a.IsWinner, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListProtectedTeams returns teams immune during the current cycle, i.e.
// protection rows not granted by the live question. BroadcastQuestion has
// already removed anything older than one cycle.
func (r *Repository) ListProtectedTeams(ctx context.Context, sessionID, currentQuestionID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT team_id FROM score_steal_protections
		WHERE session_id = $1 AND was_stolen_from AND question_id IS DISTINCT FROM $2`,
		sessionID, currentQuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list protected teams: %w", err)
	}
	defer rows.Close()

	var teamIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan protected team: %w", err)
		}
		teamIDs = append(teamIDs, id)
	}
	return teamIDs, rows.Err()
}

func (r *Repository) emit(ctx context.Context, tx *sql.Tx, eventType string, session *models.ScoreStealSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session payload: %w", err)
	}
	return r.outbox.WithTx(tx).InsertEvent(ctx, outbox.InsertEventRequest{
		ID:        uuid.New(),
		GameID:    session.GameID,
		EventType: eventType,
		Payload:   payload,
	})
}

func adjustTeamScore(ctx context.Context, tx *sql.Tx, teamID uuid.UUID, delta int) (*models.Team, error) {
	var t models.Team
	var bracket sql.NullString
	err := tx.QueryRowContext(ctx, `
		UPDATE teams SET score = score + $2, updated_at = now() WHERE id = $1
		RETURNING id, game_id, team_name, score, bracket, created_at, updated_at`,
		teamID, delta,
	).Scan(&t.ID, &t.GameID, &t.TeamName, &t.Score, &bracket, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if bracket.Valid {
		b := models.Bracket(bracket.String)
		t.Bracket = &b
	}
	return &t, nil
}

type sessionScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row sessionScanner) (*models.ScoreStealSession, error) {
	var s models.ScoreStealSession
	var questionID, winnerID uuid.NullUUID
	var broadcastAt sql.NullTime
	if err := row.Scan(&s.ID, &s.GameID, &s.RoundNumber, &s.Status, &s.Phase, &questionID, &broadcastAt, &winnerID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.CurrentQuestionID = sqlutil.FromNullUUID(questionID)
	s.QuestionBroadcastAt = sqlutil.FromSqlTime(broadcastAt)
	s.WinnerTeamID = sqlutil.FromNullUUID(winnerID)
	return &s, nil
}
