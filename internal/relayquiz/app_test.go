package relayquiz

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmcgame/platform/internal/models"
)

type progressKey struct {
	session uuid.UUID
	team    uuid.UUID
}

// fakeProgressStore reproduces the conditional-update advance gate in
// memory: the pointer only moves when fromOrder still matches.
type fakeProgressStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.RelayQuizSession
	progress map[progressKey]*models.TeamProgress
	attempts []models.RelayAttempt

	// beforeAdvance lets a test interleave a competing advance.
	beforeAdvance func()
}

func newFakeProgressStore() *fakeProgressStore {
	return &fakeProgressStore{
		sessions: make(map[uuid.UUID]*models.RelayQuizSession),
		progress: make(map[progressKey]*models.TeamProgress),
	}
}

func (s *fakeProgressStore) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.RelayQuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := &models.RelayQuizSession{
		ID:          req.ID,
		GameID:      req.GameID,
		RoundNumber: req.RoundNumber,
		Status:      models.SessionStatusWaiting,
		TotalSteps:  req.TotalSteps,
	}
	s.sessions[req.ID] = session
	return session, nil
}

func (s *fakeProgressStore) GetSession(ctx context.Context, id uuid.UUID) (*models.RelayQuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *session
	return &copied, nil
}

func (s *fakeProgressStore) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) (*models.RelayQuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	session.Status = status
	copied := *session
	return &copied, nil
}

func (s *fakeProgressStore) EnsureProgress(ctx context.Context, sessionID, teamID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey{sessionID, teamID}
	if _, ok := s.progress[key]; !ok {
		s.progress[key] = &models.TeamProgress{
			ID:        uuid.New(),
			SessionID: sessionID,
			TeamID:    teamID,
		}
	}
	return nil
}

func (s *fakeProgressStore) GetProgress(ctx context.Context, sessionID, teamID uuid.UUID) (*models.TeamProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	progress, ok := s.progress[progressKey{sessionID, teamID}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *progress
	return &copied, nil
}

func (s *fakeProgressStore) AdvanceProgress(ctx context.Context, sessionID, teamID uuid.UUID, fromOrder int) (bool, error) {
	if s.beforeAdvance != nil {
		s.beforeAdvance()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	progress, ok := s.progress[progressKey{sessionID, teamID}]
	if !ok || progress.CurrentQuestionOrder != fromOrder {
		return false, nil
	}
	progress.CurrentQuestionOrder++
	return true, nil
}

func (s *fakeProgressStore) MarkCompleted(ctx context.Context, sessionID, teamID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	progress, ok := s.progress[progressKey{sessionID, teamID}]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now()
	progress.CompletedAt = &now
	return nil
}

func (s *fakeProgressStore) InsertAttempt(ctx context.Context, req InsertAttemptRequest) (*models.RelayAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt := models.RelayAttempt{
		ID:            req.ID,
		SessionID:     req.SessionID,
		TeamID:        req.TeamID,
		ParticipantID: req.ParticipantID,
		QuestionOrder: req.QuestionOrder,
		Answer:        req.Answer,
		IsCorrect:     req.IsCorrect,
	}
	s.attempts = append(s.attempts, attempt)
	return &attempt, nil
}

func (s *fakeProgressStore) ListProgress(ctx context.Context, sessionID uuid.UUID) ([]models.TeamProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TeamProgress
	for key, progress := range s.progress {
		if key.session == sessionID {
			out = append(out, *progress)
		}
	}
	return out, nil
}

func (s *fakeProgressStore) ListAttempts(ctx context.Context, sessionID uuid.UUID, limit int32) ([]models.RelayAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RelayAttempt
	for _, a := range s.attempts {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeQuestionSource struct {
	questions []models.Question
}

func (f *fakeQuestionSource) ListByOrder(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error) {
	return f.questions, nil
}

type fakeRoster struct {
	participants map[uuid.UUID]*models.Participant
}

func (f *fakeRoster) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	p, ok := f.participants[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

type relayFixture struct {
	app     *App
	store   *fakeProgressStore
	roster  *fakeRoster
	session *models.RelayQuizSession
	teamID  uuid.UUID
	player  uuid.UUID
}

func newRelayFixture(t *testing.T, totalSteps int) *relayFixture {
	t.Helper()
	ctx := context.Background()

	store := newFakeProgressStore()
	questions := make([]models.Question, totalSteps)
	answers := []string{"red", "green", "blue", "cyan", "magenta"}
	for i := range questions {
		questions[i] = models.Question{ID: uuid.New(), CorrectAnswer: answers[i%len(answers)]}
	}

	teamID := uuid.New()
	playerID := uuid.New()
	roster := &fakeRoster{participants: map[uuid.UUID]*models.Participant{
		playerID: {ID: playerID, TeamID: &teamID, Nickname: "sam"},
	}}
	app := NewApp(store, &fakeQuestionSource{questions: questions}, roster)

	session, err := app.CreateSession(ctx, uuid.New(), 2, totalSteps)
	require.NoError(t, err)
	_, err = app.StartSession(ctx, session.ID)
	require.NoError(t, err)

	require.NoError(t, app.RegisterTeam(ctx, session.ID, teamID))

	return &relayFixture{
		app:     app,
		store:   store,
		roster:  roster,
		session: session,
		teamID:  teamID,
		player:  playerID,
	}
}

func TestCorrectAnswerAdvancesPointer(t *testing.T) {
	f := newRelayFixture(t, 3)

	result, err := f.app.SubmitAnswer(context.Background(), f.session.ID, f.teamID, f.player, 0, "Red")
	require.NoError(t, err)

	assert.True(t, result.Attempt.IsCorrect)
	assert.Equal(t, 1, result.Progress.CurrentQuestionOrder)
	assert.False(t, result.Completed)
}

func TestIncorrectAnswerKeepsPointer(t *testing.T) {
	f := newRelayFixture(t, 3)

	result, err := f.app.SubmitAnswer(context.Background(), f.session.ID, f.teamID, f.player, 0, "yellow")
	require.NoError(t, err)

	assert.False(t, result.Attempt.IsCorrect)
	assert.Equal(t, 0, result.Progress.CurrentQuestionOrder)

	// The team may retry the same step.
	result, err = f.app.SubmitAnswer(context.Background(), f.session.ID, f.teamID, f.player, 0, "red")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Progress.CurrentQuestionOrder)
}

func TestOutOfOrderSubmissionRejected(t *testing.T) {
	f := newRelayFixture(t, 3)
	ctx := context.Background()

	_, err := f.app.SubmitAnswer(ctx, f.session.ID, f.teamID, f.player, 1, "green")
	assert.ErrorIs(t, err, ErrWrongOrder)

	// Answering the current step again after it was passed is also stale.
	_, err = f.app.SubmitAnswer(ctx, f.session.ID, f.teamID, f.player, 0, "red")
	require.NoError(t, err)
	_, err = f.app.SubmitAnswer(ctx, f.session.ID, f.teamID, f.player, 0, "red")
	assert.ErrorIs(t, err, ErrWrongOrder)
}

func TestTeamCompletesRelayOnLastStep(t *testing.T) {
	f := newRelayFixture(t, 2)
	ctx := context.Background()

	result, err := f.app.SubmitAnswer(ctx, f.session.ID, f.teamID, f.player, 0, "red")
	require.NoError(t, err)
	assert.False(t, result.Completed)

	result, err = f.app.SubmitAnswer(ctx, f.session.ID, f.teamID, f.player, 1, "green")
	require.NoError(t, err)
	assert.True(t, result.Completed)

	_, err = f.app.SubmitAnswer(ctx, f.session.ID, f.teamID, f.player, 2, "blue")
	assert.ErrorIs(t, err, ErrRelayCompleted)
}

func TestTeammateRaceOnlyAdvancesOnce(t *testing.T) {
	f := newRelayFixture(t, 3)
	ctx := context.Background()

	// A teammate's correct answer lands between this submission's order
	// check and its advance.
	raced := false
	f.store.beforeAdvance = func() {
		if raced {
			return
		}
		raced = true
		advanced, err := f.store.AdvanceProgress(ctx, f.session.ID, f.teamID, 0)
		require.NoError(t, err)
		require.True(t, advanced)
	}

	_, err := f.app.SubmitAnswer(ctx, f.session.ID, f.teamID, f.player, 0, "red")
	assert.ErrorIs(t, err, ErrWrongOrder)

	progress, err := f.store.GetProgress(ctx, f.session.ID, f.teamID)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.CurrentQuestionOrder)
}

func TestSubmitRejectsParticipantFromAnotherTeam(t *testing.T) {
	f := newRelayFixture(t, 3)
	ctx := context.Background()

	otherTeam := uuid.New()
	outsider := uuid.New()
	f.roster.participants[outsider] = &models.Participant{ID: outsider, TeamID: &otherTeam, Nickname: "alex"}

	_, err := f.app.SubmitAnswer(ctx, f.session.ID, f.teamID, outsider, 0, "red")
	assert.ErrorIs(t, err, ErrParticipantOnTeam)

	unassigned := uuid.New()
	f.roster.participants[unassigned] = &models.Participant{ID: unassigned, Nickname: "casey"}
	_, err = f.app.SubmitAnswer(ctx, f.session.ID, f.teamID, unassigned, 0, "red")
	assert.ErrorIs(t, err, ErrParticipantOnTeam)
}

func TestSubmitRejectsInactiveRelaySession(t *testing.T) {
	f := newRelayFixture(t, 3)
	ctx := context.Background()

	_, err := f.app.EndSession(ctx, f.session.ID)
	require.NoError(t, err)

	_, err = f.app.SubmitAnswer(ctx, f.session.ID, f.teamID, f.player, 0, "red")
	assert.ErrorIs(t, err, ErrSessionInactive)
}

func TestSnapshotListsProgressAndAttempts(t *testing.T) {
	f := newRelayFixture(t, 3)
	ctx := context.Background()

	otherTeam := uuid.New()
	require.NoError(t, f.app.RegisterTeam(ctx, f.session.ID, otherTeam))

	_, err := f.app.SubmitAnswer(ctx, f.session.ID, f.teamID, f.player, 0, "red")
	require.NoError(t, err)

	snap, err := f.app.Snapshot(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Progress, 2)
	assert.Len(t, snap.Attempts, 1)
	assert.Equal(t, f.session.ID, snap.Session.ID)
}
