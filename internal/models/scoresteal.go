package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus tracks whether a per-round session is accepting play.
type SessionStatus string

const (
	SessionStatusWaiting  SessionStatus = "waiting"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusFinished SessionStatus = "finished"
)

// StealPhase is the buzzer-race state machine variable. Within one question
// cycle it only moves forward:
// waiting -> question_active -> waiting_for_target -> completed.
// Broadcasting the next question resets completed back to question_active.
type StealPhase string

const (
	PhaseWaiting          StealPhase = "waiting"
	PhaseQuestionActive   StealPhase = "question_active"
	PhaseWaitingForTarget StealPhase = "waiting_for_target"
	PhaseCompleted        StealPhase = "completed"
)

// ScoreStealSession governs one round of the Score Steal game for a game.
// QuestionBroadcastAt is the race clock origin: all response times are
// measured server-side against it, never against client clocks.
type ScoreStealSession struct {
	ID                  uuid.UUID     `json:"id"`
	GameID              uuid.UUID     `json:"game_id"`
	RoundNumber         int           `json:"round_number"`
	Status              SessionStatus `json:"status"`
	Phase               StealPhase    `json:"phase"`
	CurrentQuestionID   *uuid.UUID    `json:"current_question_id,omitempty"`
	QuestionBroadcastAt *time.Time    `json:"question_broadcast_at,omitempty"`
	WinnerTeamID        *uuid.UUID    `json:"winner_team_id,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// ScoreStealAttempt is an immutable record of one team's answer to one
// broadcast question. At most one attempt exists per
// (session_id, team_id, question_id), and exactly one attempt per question
// carries IsWinner.
type ScoreStealAttempt struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"session_id"`
	TeamID         uuid.UUID `json:"team_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	Answer         string    `json:"answer"`
	IsCorrect      bool      `json:"is_correct"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	IsWinner       bool      `json:"is_winner"`
	CreatedAt      time.Time `json:"created_at"`
}

// ScoreStealProtection marks a team immune from being targeted during the
// question cycle that immediately follows the one in which it was stolen
// from. QuestionID records the cycle that granted the protection; rows from
// older cycles are cleared when a new question is broadcast.
type ScoreStealProtection struct {
	SessionID     uuid.UUID `json:"session_id"`
	TeamID        uuid.UUID `json:"team_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	WasStolenFrom bool      `json:"was_stolen_from"`
	CreatedAt     time.Time `json:"created_at"`
}
