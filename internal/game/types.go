package game

import (
	"errors"

	"github.com/google/uuid"
)

type CreateGameRequest struct {
	ID          uuid.UUID
	Title       string
	TotalRounds int
	JoinCode    string
}

var (
	// ErrInvalidTransition is returned when a status change would move a
	// game backward or the game no longer exists.
	ErrInvalidTransition = errors.New("game status transition not allowed")

	// ErrNoMoreRounds is returned when advancing past the final round.
	ErrNoMoreRounds = errors.New("game has no more rounds")
)
