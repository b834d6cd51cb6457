package game

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tmcgame/platform/internal/models"
	"github.com/tmcgame/platform/internal/outbox"
	"github.com/tmcgame/platform/internal/sqlutil"
)

// App wraps the repository with game lifecycle rules and emits outbox events
// for every committed mutation so the change feed and relay observe the same
// facts.
type App struct {
	db     *sql.DB
	repo   *Repository
	outbox *outbox.Repository
}

func NewApp(db *sql.DB, repo *Repository, outboxRepo *outbox.Repository) *App {
	return &App{db: db, repo: repo, outbox: outboxRepo}
}

func (a *App) CreateGame(ctx context.Context, title string, totalRounds int) (*models.Game, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if totalRounds < 1 {
		return nil, fmt.Errorf("total rounds must be at least 1")
	}

	joinCode, err := generateJoinCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate join code: %w", err)
	}

	game, err := a.repo.CreateGame(ctx, CreateGameRequest{
		ID:          uuid.New(),
		Title:       title,
		TotalRounds: totalRounds,
		JoinCode:    joinCode,
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("game_id", game.ID.String()).Str("join_code", game.JoinCode).Msg("game created")
	return game, nil
}

func (a *App) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	return a.repo.GetGame(ctx, id)
}

func (a *App) GetGameByJoinCode(ctx context.Context, joinCode string) (*models.Game, error) {
	return a.repo.GetGameByJoinCode(ctx, joinCode)
}

// StartGame moves waiting -> started and emits GameStarted.
func (a *App) StartGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	return a.transition(ctx, id, models.GameStatusStarted, outbox.EventGameStarted)
}

// FinishGame moves the game to finished and emits GameFinished.
func (a *App) FinishGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	return a.transition(ctx, id, models.GameStatusFinished, outbox.EventGameFinished)
}

func (a *App) transition(ctx context.Context, id uuid.UUID, status models.GameStatus, eventType string) (*models.Game, error) {
	var game *models.Game
	err := sqlutil.Run(ctx, a.db, func(tx *sql.Tx) error {
		var err error
		game, err = a.repo.WithTx(tx).UpdateGameStatus(ctx, id, status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInvalidTransition
			}
			return err
		}
		return a.emit(ctx, tx, eventType, game)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("game_id", id.String()).Str("status", string(status)).Msg("game status updated")
	return game, nil
}

// AdvanceRound bumps current_round monotonically and emits RoundAdvanced.
func (a *App) AdvanceRound(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	var game *models.Game
	err := sqlutil.Run(ctx, a.db, func(tx *sql.Tx) error {
		var err error
		game, err = a.repo.WithTx(tx).AdvanceRound(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoMoreRounds
			}
			return err
		}
		return a.emit(ctx, tx, outbox.EventRoundAdvanced, game)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("game_id", id.String()).Int("round", game.CurrentRound).Msg("round advanced")
	return game, nil
}

func (a *App) emit(ctx context.Context, tx *sql.Tx, eventType string, game *models.Game) error {
	payload, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game payload: %w", err)
	}
	return a.outbox.WithTx(tx).InsertEvent(ctx, outbox.InsertEventRequest{
		ID:        uuid.New(),
		GameID:    game.ID,
		EventType: eventType,
		Payload:   payload,
	})
}

const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateJoinCode() (string, error) {
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(joinCodeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
