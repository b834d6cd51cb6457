package relayquiz

import (
	"errors"

	"github.com/google/uuid"

	"github.com/tmcgame/platform/internal/models"
)

var (
	ErrSessionInactive   = errors.New("relay session is not active")
	ErrWrongOrder        = errors.New("answer submitted out of question order")
	ErrRelayCompleted    = errors.New("team has already completed the relay")
	ErrParticipantOnTeam = errors.New("participant does not belong to the answering team")
)

type CreateSessionRequest struct {
	ID          uuid.UUID
	GameID      uuid.UUID
	RoundNumber int
	TotalSteps  int
}

type InsertAttemptRequest struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	TeamID        uuid.UUID
	ParticipantID uuid.UUID
	QuestionOrder int
	Answer        string
	IsCorrect     bool
}

// SubmitResult reports a relay submission and the team's progress after it.
type SubmitResult struct {
	Attempt   models.RelayAttempt `json:"attempt"`
	Progress  models.TeamProgress `json:"progress"`
	Completed bool                `json:"completed"`
}

// Snapshot is the relay payload for one session: session row plus per-team
// progress and recent attempts.
type Snapshot struct {
	Session  *models.RelayQuizSession `json:"session"`
	Progress []models.TeamProgress    `json:"progress"`
	Attempts []models.RelayAttempt    `json:"attempts"`
}
