package models

import (
	"time"

	"github.com/google/uuid"
)

// GameStatus tracks the lifecycle of a game. Transitions only move forward:
// waiting -> started -> finished.
type GameStatus string

const (
	GameStatusWaiting  GameStatus = "waiting"
	GameStatusStarted  GameStatus = "started"
	GameStatusFinished GameStatus = "finished"
)

// Game is one classroom play-through spanning several rounds of mini-games.
type Game struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Status       GameStatus `json:"status"`
	CurrentRound int        `json:"current_round"`
	TotalRounds  int        `json:"total_rounds"`
	JoinCode     string     `json:"join_code"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
