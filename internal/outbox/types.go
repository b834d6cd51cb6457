package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the platform. Consumers deduplicate on event id, so
// every state change is published exactly once per channel even though
// delivery is at-least-once.
const (
	EventGameStarted         = "GameStarted"
	EventGameFinished        = "GameFinished"
	EventRoundAdvanced       = "RoundAdvanced"
	EventTeamScoreChanged    = "TeamScoreChanged"
	EventQuestionBroadcast   = "QuestionBroadcast"
	EventAnswerSubmitted     = "AnswerSubmitted"
	EventWinnerDeclared      = "WinnerDeclared"
	EventScoreStealExecuted  = "ScoreStealExecuted"
	EventSessionStarted      = "SessionStarted"
	EventSessionEnded        = "SessionEnded"
	EventRelayProgressMoved  = "RelayProgressMoved"
	EventRelaySessionStarted = "RelaySessionStarted"
)

// Event is an outbox row for the application layer.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	GameID    uuid.UUID       `json:"game_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

type InsertEventRequest struct {
	ID        uuid.UUID
	GameID    uuid.UUID
	EventType string
	Payload   json.RawMessage
}
