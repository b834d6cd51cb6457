package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a student who joined a game. TeamID stays nil until the
// admin assigns them to a team.
type Participant struct {
	ID        uuid.UUID  `json:"id"`
	GameID    uuid.UUID  `json:"game_id"`
	TeamID    *uuid.UUID `json:"team_id,omitempty"`
	Nickname  string     `json:"nickname"`
	CreatedAt time.Time  `json:"created_at"`
}
