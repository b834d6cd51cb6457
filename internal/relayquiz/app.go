package relayquiz

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tmcgame/platform/internal/models"
)

// QuestionSource provides the ordered question list for a relay session.
type QuestionSource interface {
	ListByOrder(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error)
}

// Roster resolves participants so submissions can be checked against team
// membership.
type Roster interface {
	GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error)
}

// ProgressStore is the persistence boundary for the relay game. The
// AdvanceProgress gate must be atomic so two participants of the same team
// can never advance past the same step twice.
type ProgressStore interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*models.RelayQuizSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.RelayQuizSession, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) (*models.RelayQuizSession, error)
	EnsureProgress(ctx context.Context, sessionID, teamID uuid.UUID) error
	GetProgress(ctx context.Context, sessionID, teamID uuid.UUID) (*models.TeamProgress, error)
	AdvanceProgress(ctx context.Context, sessionID, teamID uuid.UUID, fromOrder int) (bool, error)
	MarkCompleted(ctx context.Context, sessionID, teamID uuid.UUID) error
	InsertAttempt(ctx context.Context, req InsertAttemptRequest) (*models.RelayAttempt, error)
	ListProgress(ctx context.Context, sessionID uuid.UUID) ([]models.TeamProgress, error)
	ListAttempts(ctx context.Context, sessionID uuid.UUID, limit int32) ([]models.RelayAttempt, error)
}

// App runs the cooperative relay game: each team works through the same
// ordered question list, and a team's pointer only ever moves forward one
// step at a time.
type App struct {
	store     ProgressStore
	questions QuestionSource
	roster    Roster
}

func NewApp(store ProgressStore, questions QuestionSource, roster Roster) *App {
	return &App{store: store, questions: questions, roster: roster}
}

func (a *App) CreateSession(ctx context.Context, gameID uuid.UUID, round, totalSteps int) (*models.RelayQuizSession, error) {
	session, err := a.store.CreateSession(ctx, CreateSessionRequest{
		ID:          uuid.New(),
		GameID:      gameID,
		RoundNumber: round,
		TotalSteps:  totalSteps,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("session_id", session.ID.String()).Int("steps", totalSteps).Msg("relay session created")
	return session, nil
}

func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*models.RelayQuizSession, error) {
	return a.store.GetSession(ctx, id)
}

func (a *App) StartSession(ctx context.Context, id uuid.UUID) (*models.RelayQuizSession, error) {
	return a.store.UpdateSessionStatus(ctx, id, models.SessionStatusActive)
}

func (a *App) EndSession(ctx context.Context, id uuid.UUID) (*models.RelayQuizSession, error) {
	return a.store.UpdateSessionStatus(ctx, id, models.SessionStatusFinished)
}

func (a *App) RegisterTeam(ctx context.Context, sessionID, teamID uuid.UUID) error {
	return a.store.EnsureProgress(ctx, sessionID, teamID)
}

// SubmitAnswer processes one relay answer. questionOrder must equal the
// team's current pointer or the submission is rejected as out of order; a
// correct answer advances the pointer through the atomic gate.
func (a *App) SubmitAnswer(ctx context.Context, sessionID, teamID, participantID uuid.UUID, questionOrder int, answer string) (*SubmitResult, error) {
	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, ErrSessionInactive
	}

	player, err := a.roster.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if player.TeamID == nil || *player.TeamID != teamID {
		return nil, ErrParticipantOnTeam
	}

	progress, err := a.store.GetProgress(ctx, sessionID, teamID)
	if err != nil {
		return nil, err
	}
	if progress.CompletedAt != nil {
		return nil, ErrRelayCompleted
	}
	if progress.CurrentQuestionOrder != questionOrder {
		return nil, ErrWrongOrder
	}

	questions, err := a.questions.ListByOrder(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if questionOrder >= len(questions) {
		return nil, ErrWrongOrder
	}
	correct := strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(questions[questionOrder].CorrectAnswer))

	attempt, err := a.store.InsertAttempt(ctx, InsertAttemptRequest{
		ID:            uuid.New(),
		SessionID:     sessionID,
		TeamID:        teamID,
		ParticipantID: participantID,
		QuestionOrder: questionOrder,
		Answer:        answer,
		IsCorrect:     correct,
	})
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{Attempt: *attempt, Progress: *progress}
	if !correct {
		return result, nil
	}

	advanced, err := a.store.AdvanceProgress(ctx, sessionID, teamID, questionOrder)
	if err != nil {
		return nil, err
	}
	if !advanced {
		// A teammate advanced the pointer first; the answer still counts as
		// recorded but this submission loses the step.
		return nil, ErrWrongOrder
	}

	updated, err := a.store.GetProgress(ctx, sessionID, teamID)
	if err != nil {
		return nil, err
	}
	result.Progress = *updated

	if updated.CurrentQuestionOrder >= session.TotalSteps {
		if err := a.store.MarkCompleted(ctx, sessionID, teamID); err != nil {
			return nil, err
		}
		result.Completed = true
		log.Info().Str("session_id", sessionID.String()).Str("team_id", teamID.String()).Msg("team completed relay")
	}
	return result, nil
}

// Snapshot assembles the relay broadcast payload.
func (a *App) Snapshot(ctx context.Context, sessionID uuid.UUID) (*Snapshot, error) {
	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	progress, err := a.store.ListProgress(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	attempts, err := a.store.ListAttempts(ctx, sessionID, 50)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Session: session, Progress: progress, Attempts: attempts}, nil
}
