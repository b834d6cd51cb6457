package models

import (
	"time"

	"github.com/google/uuid"
)

// Bracket splits teams into scoring tiers after the first round.
type Bracket string

const (
	BracketHigher Bracket = "higher"
	BracketLower  Bracket = "lower"
)

// Team is a scoring unit within a game. Score is only ever mutated through
// atomic increments/decrements; the manual adjustment path clamps at zero
// while the score-steal transfer does not.
type Team struct {
	ID        uuid.UUID `json:"id"`
	GameID    uuid.UUID `json:"game_id"`
	TeamName  string    `json:"team_name"`
	Score     int       `json:"score"`
	Bracket   *Bracket  `json:"bracket,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
