package team

import (
	"github.com/google/uuid"
)

type CreateTeamRequest struct {
	ID       uuid.UUID
	GameID   uuid.UUID
	TeamName string
}
