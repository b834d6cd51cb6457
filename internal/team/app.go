package team

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tmcgame/platform/internal/models"
	"github.com/tmcgame/platform/internal/outbox"
	"github.com/tmcgame/platform/internal/sqlutil"
)

type App struct {
	db     *sql.DB
	repo   *Repository
	outbox *outbox.Repository
}

func NewApp(db *sql.DB, repo *Repository, outboxRepo *outbox.Repository) *App {
	return &App{db: db, repo: repo, outbox: outboxRepo}
}

func (a *App) CreateTeam(ctx context.Context, gameID uuid.UUID, teamName string) (*models.Team, error) {
	if teamName == "" {
		return nil, fmt.Errorf("team name is required")
	}
	team, err := a.repo.CreateTeam(ctx, CreateTeamRequest{
		ID:       uuid.New(),
		GameID:   gameID,
		TeamName: teamName,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("team_id", team.ID.String()).Str("game_id", gameID.String()).Msg("team created")
	return team, nil
}

func (a *App) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	return a.repo.GetTeam(ctx, id)
}

func (a *App) ListTeamsByGame(ctx context.Context, gameID uuid.UUID) ([]models.Team, error) {
	return a.repo.ListTeamsByGame(ctx, gameID)
}

// AdjustScore applies a manual scoreboard correction (clamped at zero) and
// emits a TeamScoreChanged event in the same transaction.
func (a *App) AdjustScore(ctx context.Context, id uuid.UUID, delta int) (*models.Team, error) {
	var team *models.Team
	err := sqlutil.Run(ctx, a.db, func(tx *sql.Tx) error {
		var err error
		team, err = a.repo.WithTx(tx).AdjustScore(ctx, id, delta)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(team)
		if err != nil {
			return fmt.Errorf("failed to marshal team payload: %w", err)
		}
		return a.outbox.WithTx(tx).InsertEvent(ctx, outbox.InsertEventRequest{
			ID:        uuid.New(),
			GameID:    team.GameID,
			EventType: outbox.EventTeamScoreChanged,
			Payload:   payload,
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("team_id", id.String()).Int("delta", delta).Int("score", team.Score).Msg("score adjusted")
	return team, nil
}

func (a *App) UpdateBracket(ctx context.Context, id uuid.UUID, bracket models.Bracket) (*models.Team, error) {
	return a.repo.UpdateBracket(ctx, id, bracket)
}
