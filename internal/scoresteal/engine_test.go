package scoresteal

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmcgame/platform/internal/models"
)

type attemptKey struct {
	session  uuid.UUID
	team     uuid.UUID
	question uuid.UUID
}

// fakeStore mirrors the SQL repository's guarantees in memory: attempt
// uniqueness, the conditional winner claim and the single-transaction steal.
type fakeStore struct {
	mu          sync.Mutex
	sessions    map[uuid.UUID]*models.ScoreStealSession
	attempts    []models.ScoreStealAttempt
	attemptKeys map[attemptKey]bool
	// teamID -> question cycle that granted the protection
	protections map[uuid.UUID]uuid.UUID
	stealCalls  []ExecuteStealRequest
	// beforeInsert runs once ahead of the next InsertAttempt, outside the
	// lock, so a test can interleave a competing state change between the
	// engine's phase read and its insert.
	beforeInsert func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:    make(map[uuid.UUID]*models.ScoreStealSession),
		attemptKeys: make(map[attemptKey]bool),
		protections: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *fakeStore) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.ScoreStealSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := &models.ScoreStealSession{
		ID:          req.ID,
		GameID:      req.GameID,
		RoundNumber: req.RoundNumber,
		Status:      models.SessionStatusWaiting,
		Phase:       models.PhaseWaiting,
	}
	s.sessions[req.ID] = session
	return session, nil
}

func (s *fakeStore) GetSession(ctx context.Context, id uuid.UUID) (*models.ScoreStealSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *session
	return &copied, nil
}

func (s *fakeStore) GetSessionByGameRound(ctx context.Context, gameID uuid.UUID, round int) (*models.ScoreStealSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.GameID == gameID && session.RoundNumber == round {
			copied := *session
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fakeStore) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) (*models.ScoreStealSession, error) {
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

func (s *fakeStore) BroadcastQuestion(ctx context.Context, sessionID, questionID uuid.UUID, broadcastAt time.Time) (*models.ScoreStealSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if session.Status != models.SessionStatusActive ||
		(session.Phase != models.PhaseWaiting && session.Phase != models.PhaseCompleted) {
		return nil, ErrBroadcastForbidden
	}
	for teamID, grantedBy := range s.protections {
		if session.CurrentQuestionID == nil || grantedBy != *session.CurrentQuestionID {
			delete(s.protections, teamID)
		}
	}
	qid := questionID
	at := broadcastAt
	session.CurrentQuestionID = &qid
	session.QuestionBroadcastAt = &at
	session.WinnerTeamID = nil
	session.Phase = models.PhaseQuestionActive
	copied := *session
	return &copied, nil
}

func (s *fakeStore) InsertAttempt(ctx context.Context, req InsertAttemptRequest) (*models.ScoreStealAttempt, error) {
	s.mu.Lock()
	hook := s.beforeInsert
	s.beforeInsert = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[req.SessionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	// Same guard as the SQL INSERT: the row only lands while the submitted
	// question's cycle is still open.
	if (session.Phase != models.PhaseQuestionActive && session.Phase != models.PhaseWaitingForTarget) ||
		session.CurrentQuestionID == nil || *session.CurrentQuestionID != req.QuestionID {
		return nil, ErrQuestionNotActive
	}
	key := attemptKey{req.SessionID, req.TeamID, req.QuestionID}
	if s.attemptKeys[key] {
		return nil, ErrAlreadyAnswered
	}
	s.attemptKeys[key] = true
	attempt := models.ScoreStealAttempt{
		ID:             req.ID,
		SessionID:      req.SessionID,
		TeamID:         req.TeamID,
		QuestionID:     req.QuestionID,
		Answer:         req.Answer,
		IsCorrect:      req.IsCorrect,
		ResponseTimeMs: req.ResponseTimeMs,
	}
	s.attempts = append(s.attempts, attempt)
	return &attempt, nil
}

func (s *fakeStore) ClaimWin(ctx context.Context, sessionID, attemptID, teamID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, sql.ErrNoRows
	}
	if session.Phase != models.PhaseQuestionActive || session.WinnerTeamID != nil {
		return false, nil
	}
	winner := teamID
	session.WinnerTeamID = &winner
	session.Phase = models.PhaseWaitingForTarget
	for i := range s.attempts {
		if s.attempts[i].ID == attemptID {
			s.attempts[i].IsWinner = true
		}
	}
	return true, nil
}

func (s *fakeStore) ExecuteSteal(ctx context.Context, req ExecuteStealRequest) (*StealOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[req.SessionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	s.stealCalls = append(s.stealCalls, req)
	s.protections[req.TargetTeamID] = req.QuestionID
	session.Phase = models.PhaseCompleted
	copied := *session
	return &StealOutcome{
		Session:    &copied,
		WinnerTeam: models.Team{ID: req.WinnerTeamID},
		TargetTeam: models.Team{ID: req.TargetTeamID},
		Points:     req.Points,
	}, nil
}

func (s *fakeStore) ListAttempts(ctx context.Context, sessionID, questionID uuid.UUID) ([]models.ScoreStealAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScoreStealAttempt
	for _, a := range s.attempts {
		if a.SessionID == sessionID && a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) ListProtectedTeams(ctx context.Context, sessionID, currentQuestionID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for teamID, grantedBy := range s.protections {
		if grantedBy != currentQuestionID {
			out = append(out, teamID)
		}
	}
	return out, nil
}

type fakeQuestions struct {
	questions map[uuid.UUID]*models.Question
}

func (f *fakeQuestions) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	q, ok := f.questions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return q, nil
}

type fakeTeams struct {
	teams []models.Team
}

func (f *fakeTeams) ListTeamsByGame(ctx context.Context, gameID uuid.UUID) ([]models.Team, error) {
	return f.teams, nil
}

type engineFixture struct {
	engine  *Engine
	store   *fakeStore
	clock   *clockwork.FakeClock
	session *models.ScoreStealSession
	// one question per broadcast cycle; protection bookkeeping keys on them
	questions []*models.Question
	question  *models.Question
	teamA     uuid.UUID
	teamB     uuid.UUID
	teamC     uuid.UUID
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	ctx := context.Background()

	gameID := uuid.New()
	teamA, teamB, teamC := uuid.New(), uuid.New(), uuid.New()
	questions := []*models.Question{
		{ID: uuid.New(), Text: "capital of France?", CorrectAnswer: "Paris", Points: 30},
		{ID: uuid.New(), Text: "capital of Italy?", CorrectAnswer: "Rome", Points: 20},
		{ID: uuid.New(), Text: "capital of Spain?", CorrectAnswer: "Madrid", Points: 10},
	}
	bank := make(map[uuid.UUID]*models.Question, len(questions))
	for _, q := range questions {
		bank[q.ID] = q
	}

	store := newFakeStore()
	clock := clockwork.NewFakeClock()
	engine := NewEngine(store,
		&fakeQuestions{questions: bank},
		&fakeTeams{teams: []models.Team{
			{ID: teamA, GameID: gameID, TeamName: "alpha"},
			{ID: teamB, GameID: gameID, TeamName: "bravo"},
			{ID: teamC, GameID: gameID, TeamName: "charlie"},
		}},
		clock,
	)

	session, err := engine.CreateSession(ctx, gameID, 1)
	require.NoError(t, err)
	_, err = engine.StartSession(ctx, session.ID)
	require.NoError(t, err)

	return &engineFixture{
		engine:    engine,
		store:     store,
		clock:     clock,
		session:   session,
		questions: questions,
		question:  questions[0],
		teamA:     teamA,
		teamB:     teamB,
		teamC:     teamC,
	}
}

func (f *engineFixture) broadcast(t *testing.T) {
	t.Helper()
	f.broadcastCycle(t, 0)
}

func (f *engineFixture) broadcastCycle(t *testing.T, cycle int) {
	t.Helper()
	f.question = f.questions[cycle]
	_, err := f.engine.BroadcastQuestion(context.Background(), f.session.ID, f.question.ID)
	require.NoError(t, err)
}

func TestSubmitAnswerMeasuresServerSideResponseTime(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)
	f.clock.Advance(1234 * time.Millisecond)

	result, err := f.engine.SubmitAnswer(context.Background(), f.session.ID, f.teamA, f.question.ID, "paris  ")
	require.NoError(t, err)

	assert.True(t, result.IsWinner)
	assert.True(t, result.Attempt.IsCorrect)
	assert.Equal(t, int64(1234), result.Attempt.ResponseTimeMs)
}

func TestFirstCorrectAnswerWinsTheRace(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)
	ctx := context.Background()

	first, err := f.engine.SubmitAnswer(ctx, f.session.ID, f.teamB, f.question.ID, "Paris")
	require.NoError(t, err)
	second, err := f.engine.SubmitAnswer(ctx, f.session.ID, f.teamC, f.question.ID, "Paris")
	require.NoError(t, err)

	assert.True(t, first.IsWinner)
	assert.True(t, second.Attempt.IsCorrect)
	assert.False(t, second.IsWinner)

	session, err := f.engine.GetSession(ctx, f.session.ID)
	require.NoError(t, err)
	require.NotNil(t, session.WinnerTeamID)
	assert.Equal(t, f.teamB, *session.WinnerTeamID)
	assert.Equal(t, models.PhaseWaitingForTarget, session.Phase)
}

func TestConcurrentCorrectAnswersProduceOneWinner(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)
	ctx := context.Background()

	teams := []uuid.UUID{f.teamA, f.teamB, f.teamC}
	results := make([]*SubmitResult, len(teams))
	errs := make([]error, len(teams))

	var wg sync.WaitGroup
	for i, teamID := range teams {
		wg.Add(1)
		go func(i int, teamID uuid.UUID) {
			defer wg.Done()
			results[i], errs[i] = f.engine.SubmitAnswer(ctx, f.session.ID, teamID, f.question.ID, "Paris")
		}(i, teamID)
	}
	wg.Wait()

	winners := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].IsWinner {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestIncorrectAnswerNeverWins(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)

	result, err := f.engine.SubmitAnswer(context.Background(), f.session.ID, f.teamA, f.question.ID, "London")
	require.NoError(t, err)

	assert.False(t, result.IsWinner)
	assert.False(t, result.Attempt.IsCorrect)

	session, err := f.engine.GetSession(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Nil(t, session.WinnerTeamID)
	assert.Equal(t, models.PhaseQuestionActive, session.Phase)
}

func TestSubmitRejectsWhenNoQuestionIsLive(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.SubmitAnswer(context.Background(), f.session.ID, f.teamA, f.question.ID, "Paris")
	assert.ErrorIs(t, err, ErrQuestionNotActive)
}

func TestSubmitRejectsStaleQuestion(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)

	_, err := f.engine.SubmitAnswer(context.Background(), f.session.ID, f.teamA, uuid.New(), "Paris")
	assert.ErrorIs(t, err, ErrQuestionMismatch)
}

func TestSubmitRejectsInactiveSession(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)
	_, err := f.engine.EndSession(context.Background(), f.session.ID)
	require.NoError(t, err)

	_, err = f.engine.SubmitAnswer(context.Background(), f.session.ID, f.teamA, f.question.ID, "Paris")
	assert.ErrorIs(t, err, ErrSessionInactive)
}

func TestSecondAttemptBySameTeamRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)
	ctx := context.Background()

	_, err := f.engine.SubmitAnswer(ctx, f.session.ID, f.teamA, f.question.ID, "London")
	require.NoError(t, err)
	_, err = f.engine.SubmitAnswer(ctx, f.session.ID, f.teamA, f.question.ID, "Paris")
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
}

func TestLateCorrectAnswerRecordedAsLoser(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)
	ctx := context.Background()

	_, err := f.engine.SubmitAnswer(ctx, f.session.ID, f.teamB, f.question.ID, "Paris")
	require.NoError(t, err)

	// Team A answers after the race is decided. The attempt persists for the
	// record, but the winner claim is gone.
	late, err := f.engine.SubmitAnswer(ctx, f.session.ID, f.teamA, f.question.ID, "Paris")
	require.NoError(t, err)
	assert.True(t, late.Attempt.IsCorrect)
	assert.False(t, late.IsWinner)

	attempts, err := f.store.ListAttempts(ctx, f.session.ID, f.question.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
}

func TestSubmissionRacingCycleCompletionRejectedAtStore(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)
	ctx := context.Background()

	// Between team C's phase read and its insert, team A wins the race and
	// completes the steal. The store's guard, not the stale read, decides.
	f.store.beforeInsert = func() {
		_, err := f.engine.SubmitAnswer(ctx, f.session.ID, f.teamA, f.question.ID, "Paris")
		require.NoError(t, err)
		_, err = f.engine.ExecuteSteal(ctx, f.session.ID, f.teamA, f.teamB)
		require.NoError(t, err)
	}

	_, err := f.engine.SubmitAnswer(ctx, f.session.ID, f.teamC, f.question.ID, "Paris")
	assert.ErrorIs(t, err, ErrQuestionNotActive)

	attempts, err := f.store.ListAttempts(ctx, f.session.ID, f.question.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, f.teamA, attempts[0].TeamID)
}

func TestBroadcastRejectedWhileQuestionActive(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)

	_, err := f.engine.BroadcastQuestion(context.Background(), f.session.ID, f.question.ID)
	assert.ErrorIs(t, err, ErrBroadcastForbidden)
}

func TestEligibleTargetsExcludesWinner(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)
	ctx := context.Background()

	_, err := f.engine.SubmitAnswer(ctx, f.session.ID, f.teamA, f.question.ID, "Paris")
	require.NoError(t, err)

	targets, err := f.engine.EligibleTargets(ctx, f.session.ID)
	require.NoError(t, err)

	ids := make(map[uuid.UUID]bool)
	for _, team := range targets {
		ids[team.ID] = true
	}
	assert.False(t, ids[f.teamA])
	assert.True(t, ids[f.teamB])
	assert.True(t, ids[f.teamC])
}

func TestStolenTeamProtectedNextCycleOnly(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// Cycle 1: team A wins and steals from team B.
	f.broadcastCycle(t, 0)
	_, err := f.engine.SubmitAnswer(ctx, f.session.ID, f.teamA, f.question.ID, "Paris")
	require.NoError(t, err)
	_, err = f.engine.ExecuteSteal(ctx, f.session.ID, f.teamA, f.teamB)
	require.NoError(t, err)

	// Cycle 2: team B is off the target list.
	f.broadcastCycle(t, 1)
	_, err = f.engine.SubmitAnswer(ctx, f.session.ID, f.teamA, f.question.ID, "Rome")
	require.NoError(t, err)

	targets, err := f.engine.EligibleTargets(ctx, f.session.ID)
	require.NoError(t, err)
	for _, team := range targets {
		assert.NotEqual(t, f.teamB, team.ID)
	}

	_, err = f.engine.ExecuteSteal(ctx, f.session.ID, f.teamA, f.teamB)
	assert.ErrorIs(t, err, ErrTargetProtected)

	_, err = f.engine.ExecuteSteal(ctx, f.session.ID, f.teamA, f.teamC)
	require.NoError(t, err)

	// Cycle 3: team B's protection has expired.
	f.broadcastCycle(t, 2)
	_, err = f.engine.SubmitAnswer(ctx, f.session.ID, f.teamA, f.question.ID, "Madrid")
	require.NoError(t, err)

	targets, err = f.engine.EligibleTargets(ctx, f.session.ID)
	require.NoError(t, err)
	ids := make(map[uuid.UUID]bool)
	for _, team := range targets {
		ids[team.ID] = true
	}
	assert.True(t, ids[f.teamB])
}

func TestProtectionWaivedWhenNoOtherTarget(t *testing.T) {
	ctx := context.Background()
	gameID := uuid.New()
	teamA, teamB := uuid.New(), uuid.New()
	q1 := &models.Question{ID: uuid.New(), CorrectAnswer: "42", Points: 10}
	q2 := &models.Question{ID: uuid.New(), CorrectAnswer: "42", Points: 10}

	store := newFakeStore()
	engine := NewEngine(store,
		&fakeQuestions{questions: map[uuid.UUID]*models.Question{q1.ID: q1, q2.ID: q2}},
		&fakeTeams{teams: []models.Team{
			{ID: teamA, GameID: gameID},
			{ID: teamB, GameID: gameID},
		}},
		clockwork.NewFakeClock(),
	)

	session, err := engine.CreateSession(ctx, gameID, 1)
	require.NoError(t, err)
	_, err = engine.StartSession(ctx, session.ID)
	require.NoError(t, err)

	// Cycle 1: A steals from B, granting B protection.
	_, err = engine.BroadcastQuestion(ctx, session.ID, q1.ID)
	require.NoError(t, err)
	_, err = engine.SubmitAnswer(ctx, session.ID, teamA, q1.ID, "42")
	require.NoError(t, err)
	_, err = engine.ExecuteSteal(ctx, session.ID, teamA, teamB)
	require.NoError(t, err)

	// Cycle 2: B is the only possible target, so protection is waived.
	_, err = engine.BroadcastQuestion(ctx, session.ID, q2.ID)
	require.NoError(t, err)
	_, err = engine.SubmitAnswer(ctx, session.ID, teamA, q2.ID, "42")
	require.NoError(t, err)

	targets, err := engine.EligibleTargets(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, teamB, targets[0].ID)

	_, err = engine.ExecuteSteal(ctx, session.ID, teamA, teamB)
	require.NoError(t, err)
}

func TestExecuteStealRequiresWinner(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)
	ctx := context.Background()

	_, err := f.engine.SubmitAnswer(ctx, f.session.ID, f.teamA, f.question.ID, "Paris")
	require.NoError(t, err)

	_, err = f.engine.ExecuteSteal(ctx, f.session.ID, f.teamB, f.teamC)
	assert.ErrorIs(t, err, ErrNotWinner)

	_, err = f.engine.ExecuteSteal(ctx, f.session.ID, f.teamA, f.teamA)
	assert.ErrorIs(t, err, ErrTargetIsWinner)
}

func TestExecuteStealTransfersQuestionPoints(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)
	ctx := context.Background()

	_, err := f.engine.SubmitAnswer(ctx, f.session.ID, f.teamA, f.question.ID, "Paris")
	require.NoError(t, err)

	outcome, err := f.engine.ExecuteSteal(ctx, f.session.ID, f.teamA, f.teamB)
	require.NoError(t, err)

	assert.Equal(t, f.question.Points, outcome.Points)
	require.Len(t, f.store.stealCalls, 1)
	call := f.store.stealCalls[0]
	assert.Equal(t, f.teamA, call.WinnerTeamID)
	assert.Equal(t, f.teamB, call.TargetTeamID)
	assert.Equal(t, f.question.Points, call.Points)
	assert.Equal(t, models.PhaseCompleted, outcome.Session.Phase)
}

func TestExecuteStealRejectedOutsideTargetPhase(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)

	_, err := f.engine.ExecuteSteal(context.Background(), f.session.ID, f.teamA, f.teamB)
	assert.ErrorIs(t, err, ErrNoTargetSelection)
}

func TestSnapshotIncludesLiveQuestionAttempts(t *testing.T) {
	f := newEngineFixture(t)
	f.broadcast(t)
	ctx := context.Background()

	_, err := f.engine.SubmitAnswer(ctx, f.session.ID, f.teamA, f.question.ID, "London")
	require.NoError(t, err)
	_, err = f.engine.SubmitAnswer(ctx, f.session.ID, f.teamB, f.question.ID, "Paris")
	require.NoError(t, err)

	snap, err := f.engine.Snapshot(ctx, f.session.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.Session)
	assert.Len(t, snap.Attempts, 2)
}
