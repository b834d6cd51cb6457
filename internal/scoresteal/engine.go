package scoresteal

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tmcgame/platform/internal/models"
)

// Engine is the buzzer-race state machine for one Score Steal round:
// broadcast -> race submissions -> winner -> target selection -> transfer.
// It owns every phase transition; clients only render the phase they are
// told. The response clock is the server-side broadcast timestamp, so
// client clock skew cannot influence the race.
type Engine struct {
	store     Store
	questions QuestionBank
	teams     TeamDirectory
	clock     clockwork.Clock
}

func NewEngine(store Store, questions QuestionBank, teams TeamDirectory, clock clockwork.Clock) *Engine {
	return &Engine{
		store:     store,
		questions: questions,
		teams:     teams,
		clock:     clock,
	}
}

// CreateSession provisions the one session allowed per (game, round).
func (e *Engine) CreateSession(ctx context.Context, gameID uuid.UUID, round int) (*models.ScoreStealSession, error) {
	session, err := e.store.CreateSession(ctx, CreateSessionRequest{
		ID:          uuid.New(),
		GameID:      gameID,
		RoundNumber: round,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("session_id", session.ID.String()).Str("game_id", gameID.String()).Int("round", round).Msg("score steal session created")
	return session, nil
}

func (e *Engine) GetSession(ctx context.Context, id uuid.UUID) (*models.ScoreStealSession, error) {
	return e.store.GetSession(ctx, id)
}

func (e *Engine) StartSession(ctx context.Context, id uuid.UUID) (*models.ScoreStealSession, error) {
	return e.store.UpdateSessionStatus(ctx, id, models.SessionStatusActive)
}

func (e *Engine) EndSession(ctx context.Context, id uuid.UUID) (*models.ScoreStealSession, error) {
	return e.store.UpdateSessionStatus(ctx, id, models.SessionStatusFinished)
}

// BroadcastQuestion opens a race. Admin-only; the store refuses it unless
// the phase is waiting or completed.
func (e *Engine) BroadcastQuestion(ctx context.Context, sessionID, questionID uuid.UUID) (*models.ScoreStealSession, error) {
	if _, err := e.questions.GetQuestion(ctx, questionID); err != nil {
		return nil, fmt.Errorf("question lookup failed: %w", err)
	}
	session, err := e.store.BroadcastQuestion(ctx, sessionID, questionID, e.clock.Now())
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("session_id", sessionID.String()).
		Str("question_id", questionID.String()).
		Msg("question broadcast")
	return session, nil
}

// SubmitAnswer records one team's answer to the live question. The first
// correct submission wins the race; the store's conditional update makes
// that decision atomic even when two correct answers land in the same
// millisecond. Answers stay recordable until the cycle completes, so a
// slower correct answer still persists with is_winner false after the race
// is decided.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID, teamID, questionID uuid.UUID, answer string) (*SubmitResult, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, ErrSessionInactive
	}
	if session.Phase != models.PhaseQuestionActive && session.Phase != models.PhaseWaitingForTarget {
		return nil, ErrQuestionNotActive
	}
	if session.QuestionBroadcastAt == nil || session.CurrentQuestionID == nil {
		return nil, ErrQuestionNotActive
	}
	if *session.CurrentQuestionID != questionID {
		return nil, ErrQuestionMismatch
	}

	question, err := e.questions.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("question lookup failed: %w", err)
	}

	responseTime := e.clock.Now().Sub(*session.QuestionBroadcastAt).Milliseconds()
	if responseTime < 0 {
		responseTime = 0
	}
	correct := answersMatch(answer, question.CorrectAnswer)

	attempt, err := e.store.InsertAttempt(ctx, InsertAttemptRequest{
		ID:             uuid.New(),
		SessionID:      sessionID,
		TeamID:         teamID,
		QuestionID:     questionID,
		Answer:         answer,
		IsCorrect:      correct,
		ResponseTimeMs: responseTime,
	})
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{Attempt: *attempt}
	if correct {
		claimed, err := e.store.ClaimWin(ctx, sessionID, attempt.ID, teamID)
		if err != nil {
			return nil, err
		}
		if claimed {
			result.IsWinner = true
			result.Attempt.IsWinner = true
			log.Info().
				Str("session_id", sessionID.String()).
				Str("team_id", teamID.String()).
				Int64("response_time_ms", responseTime).
				Msg("winner declared")
		}
	}
	return result, nil
}

// EligibleTargets returns the teams the winner may steal from: every team in
// the game except the winner and except teams protected this cycle. When
// protection would leave no target at all, it is waived for the cycle so the
// winner is never denied the reward.
func (e *Engine) EligibleTargets(ctx context.Context, sessionID uuid.UUID) ([]models.Team, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase != models.PhaseWaitingForTarget || session.WinnerTeamID == nil || session.CurrentQuestionID == nil {
		return nil, ErrNoTargetSelection
	}

	teams, err := e.teams.ListTeamsByGame(ctx, session.GameID)
	if err != nil {
		return nil, err
	}
	protectedIDs, err := e.store.ListProtectedTeams(ctx, sessionID, *session.CurrentQuestionID)
	if err != nil {
		return nil, err
	}
	protected := make(map[uuid.UUID]bool, len(protectedIDs))
	for _, id := range protectedIDs {
		protected[id] = true
	}

	var eligible, fallback []models.Team
	for _, t := range teams {
		if t.ID == *session.WinnerTeamID {
			continue
		}
		fallback = append(fallback, t)
		if !protected[t.ID] {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		return fallback, nil
	}
	return eligible, nil
}

// ExecuteSteal transfers the live question's points from the chosen target
// to the winner. requestingTeamID must be the winner; the transfer itself is
// one transaction in the store.
func (e *Engine) ExecuteSteal(ctx context.Context, sessionID, requestingTeamID, targetTeamID uuid.UUID) (*StealOutcome, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase != models.PhaseWaitingForTarget || session.WinnerTeamID == nil || session.CurrentQuestionID == nil {
		return nil, ErrNoTargetSelection
	}
	if *session.WinnerTeamID != requestingTeamID {
		return nil, ErrNotWinner
	}
	if targetTeamID == *session.WinnerTeamID {
		return nil, ErrTargetIsWinner
	}

	eligible, err := e.EligibleTargets(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, t := range eligible {
		if t.ID == targetTeamID {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrTargetProtected
	}

	question, err := e.questions.GetQuestion(ctx, *session.CurrentQuestionID)
	if err != nil {
		return nil, fmt.Errorf("question lookup failed: %w", err)
	}

	outcome, err := e.store.ExecuteSteal(ctx, ExecuteStealRequest{
		SessionID:    sessionID,
		WinnerTeamID: *session.WinnerTeamID,
		TargetTeamID: targetTeamID,
		QuestionID:   *session.CurrentQuestionID,
		Points:       question.Points,
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("session_id", sessionID.String()).
		Str("winner_team_id", session.WinnerTeamID.String()).
		Str("target_team_id", targetTeamID.String()).
		Int("points", question.Points).
		Msg("score steal executed")
	return outcome, nil
}

// Snapshot assembles the relay payload: session state plus the attempts of
// the live question.
func (e *Engine) Snapshot(ctx context.Context, sessionID uuid.UUID) (*Snapshot, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Session: session}
	if session.CurrentQuestionID != nil {
		attempts, err := e.store.ListAttempts(ctx, sessionID, *session.CurrentQuestionID)
		if err != nil {
			return nil, err
		}
		snap.Attempts = attempts
	}
	return snap, nil
}

// answersMatch compares answers by case-insensitive trimmed equality.
func answersMatch(submitted, correct string) bool {
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(correct))
}
