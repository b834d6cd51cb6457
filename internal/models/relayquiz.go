package models

import (
	"time"

	"github.com/google/uuid"
)

// RelayQuizSession governs one round of the cooperative relay game.
type RelayQuizSession struct {
	ID          uuid.UUID     `json:"id"`
	GameID      uuid.UUID     `json:"game_id"`
	RoundNumber int           `json:"round_number"`
	Status      SessionStatus `json:"status"`
	TotalSteps  int           `json:"total_steps"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TeamProgress tracks how far a team has advanced through the relay.
// CurrentQuestionOrder increases monotonically and gates which question the
// team may answer next; no participant can answer out of order.
type TeamProgress struct {
	ID                   uuid.UUID  `json:"id"`
	SessionID            uuid.UUID  `json:"session_id"`
	TeamID               uuid.UUID  `json:"team_id"`
	CurrentQuestionOrder int        `json:"current_question_order"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// RelayAttempt records one relay answer submission.
type RelayAttempt struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	TeamID        uuid.UUID `json:"team_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	QuestionOrder int       `json:"question_order"`
	Answer        string    `json:"answer"`
	IsCorrect     bool      `json:"is_correct"`
	CreatedAt     time.Time `json:"created_at"`
}
