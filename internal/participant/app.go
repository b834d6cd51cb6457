package participant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tmcgame/platform/internal/models"
)

// ErrNicknameTaken is returned when a joining player picks a nickname that
// already exists in the game.
var ErrNicknameTaken = errors.New("nickname already taken in this game")

type CreateParticipantRequest struct {
	ID       uuid.UUID
	GameID   uuid.UUID
	Nickname string
}

type App struct {
	repo *Repository
}

func NewApp(repo *Repository) *App {
	return &App{repo: repo}
}

// Join creates a participant for a game. Nicknames are unique per game,
// case-insensitively.
func (a *App) Join(ctx context.Context, gameID uuid.UUID, nickname string) (*models.Participant, error) {
	if nickname == "" {
		return nil, fmt.Errorf("nickname is required")
	}
	taken, err := a.repo.NicknameTaken(ctx, gameID, nickname)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrNicknameTaken
	}

	p, err := a.repo.CreateParticipant(ctx, CreateParticipantRequest{
		ID:       uuid.New(),
		GameID:   gameID,
		Nickname: nickname,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("participant_id", p.ID.String()).Str("game_id", gameID.String()).Msg("participant joined")
	return p, nil
}

func (a *App) AssignToTeam(ctx context.Context, id, teamID uuid.UUID) (*models.Participant, error) {
	return a.repo.AssignToTeam(ctx, id, teamID)
}

func (a *App) ListByGame(ctx context.Context, gameID uuid.UUID) ([]models.Participant, error) {
	return a.repo.ListByGame(ctx, gameID)
}

func (a *App) ResetRoster(ctx context.Context, gameID uuid.UUID) error {
	return a.repo.ResetRoster(ctx, gameID)
}
