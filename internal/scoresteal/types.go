package scoresteal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tmcgame/platform/internal/models"
)

// Rejection reasons for player/admin actions. Every failed action maps to
// exactly one of these so clients can show a specific message instead of a
// generic error.
var (
	ErrSessionInactive    = errors.New("session is not active")
	ErrQuestionNotActive  = errors.New("no question is currently accepting answers")
	ErrQuestionMismatch   = errors.New("submission is for a question that is no longer live")
	ErrAlreadyAnswered    = errors.New("team has already answered this question")
	ErrNotWinner          = errors.New("only the winning team may select a target")
	ErrNoTargetSelection  = errors.New("session is not waiting for a target selection")
	ErrTargetIsWinner     = errors.New("winning team cannot target itself")
	ErrTargetProtected    = errors.New("target team is protected this cycle")
	ErrBroadcastForbidden = errors.New("a question is already in progress")
)

// Store is the persistence boundary of the buzzer race engine. Methods that
// decide races (ClaimWin) or move points (ExecuteSteal) must be atomic: the
// SQL implementation uses conditional updates and single transactions, and
// any other implementation has to provide the same guarantee.
type Store interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*models.ScoreStealSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.ScoreStealSession, error)
	GetSessionByGameRound(ctx context.Context, gameID uuid.UUID, round int) (*models.ScoreStealSession, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) (*models.ScoreStealSession, error)

	// BroadcastQuestion atomically starts a question cycle: requires phase
	// waiting or completed, clears protections from cycles before the one
	// just completed, clears the winner, stamps broadcastAt and flips the
	// phase to question_active.
	BroadcastQuestion(ctx context.Context, sessionID, questionID uuid.UUID, broadcastAt time.Time) (*models.ScoreStealSession, error)

	// InsertAttempt persists one immutable attempt. A second attempt by the
	// same team for the same question returns ErrAlreadyAnswered.
	InsertAttempt(ctx context.Context, req InsertAttemptRequest) (*models.ScoreStealAttempt, error)

	// ClaimWin marks the attempt as the winner if and only if the session is
	// still in question_active with no winner. Returns false when another
	// attempt won the race.
	ClaimWin(ctx context.Context, sessionID, attemptID, teamID uuid.UUID) (bool, error)

	// ExecuteSteal atomically transfers points from target to winner, grants
	// the target protection for the next cycle and completes the phase.
	ExecuteSteal(ctx context.Context, req ExecuteStealRequest) (*StealOutcome, error)

	ListAttempts(ctx context.Context, sessionID, questionID uuid.UUID) ([]models.ScoreStealAttempt, error)

	// ListProtectedTeams returns teams protected during the cycle of the
	// given current question, i.e. teams stolen from in the previous cycle.
	ListProtectedTeams(ctx context.Context, sessionID, currentQuestionID uuid.UUID) ([]uuid.UUID, error)
}

// QuestionBank is the read-only question lookup owned by the
// question-management subsystem.
type QuestionBank interface {
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
}

// TeamDirectory lists the teams competing in a game.
type TeamDirectory interface {
	ListTeamsByGame(ctx context.Context, gameID uuid.UUID) ([]models.Team, error)
}

type CreateSessionRequest struct {
	ID          uuid.UUID
	GameID      uuid.UUID
	RoundNumber int
}

type InsertAttemptRequest struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	TeamID         uuid.UUID
	QuestionID     uuid.UUID
	Answer         string
	IsCorrect      bool
	ResponseTimeMs int64
}

type ExecuteStealRequest struct {
	SessionID    uuid.UUID
	WinnerTeamID uuid.UUID
	TargetTeamID uuid.UUID
	QuestionID   uuid.UUID
	Points       int
}

// SubmitResult reports what happened to one answer submission.
type SubmitResult struct {
	Attempt  models.ScoreStealAttempt `json:"attempt"`
	IsWinner bool                     `json:"is_winner"`
}

// StealOutcome reports both sides of a completed point transfer. Both scores
// come from the same transaction, so no caller can ever observe only one
// side of the move.
type StealOutcome struct {
	Session    *models.ScoreStealSession `json:"session"`
	WinnerTeam models.Team               `json:"winner_team"`
	TargetTeam models.Team               `json:"target_team"`
	Points     int                       `json:"points"`
}

// Snapshot is the full relay payload for one session: the session row plus
// every attempt of the live question.
type Snapshot struct {
	Session  *models.ScoreStealSession  `json:"session"`
	Attempts []models.ScoreStealAttempt `json:"attempts"`
}
