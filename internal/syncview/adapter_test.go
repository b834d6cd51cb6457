package syncview

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmcgame/platform/internal/changefeed"
	"github.com/tmcgame/platform/internal/models"
	"github.com/tmcgame/platform/internal/scoresteal"
)

type fakeFetcher struct {
	mu    sync.Mutex
	snap  *scoresteal.Snapshot
	calls int
}

func (f *fakeFetcher) Snapshot(ctx context.Context, sessionID uuid.UUID) (*scoresteal.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.snap, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) set(snap *scoresteal.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

// openTransport hands out streams that stay silent and healthy.
type openTransport struct{}

func (openTransport) Listen(ctx context.Context, channel string) (changefeed.Stream, error) {
	return &openStream{events: make(chan changefeed.Notification)}, nil
}

type openStream struct {
	events    chan changefeed.Notification
	closeOnce sync.Once
}

func (s *openStream) Events() <-chan changefeed.Notification { return s.events }
func (s *openStream) Err() error                             { return nil }
func (s *openStream) Close() error {
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}

func newTestAdapter(sessionID uuid.UUID, fetcher Fetcher, clock clockwork.Clock) *Adapter {
	return NewAdapter(sessionID, fetcher, openTransport{}, clock, DefaultConfig())
}

func TestRefreshMergesSnapshot(t *testing.T) {
	sessionID := uuid.New()
	questionID := uuid.New()
	fetcher := &fakeFetcher{snap: &scoresteal.Snapshot{
		Session: sessionRow(sessionID, models.PhaseQuestionActive, &questionID),
		Attempts: []models.ScoreStealAttempt{
			{ID: uuid.New(), SessionID: sessionID, QuestionID: questionID},
		},
	}}

	a := newTestAdapter(sessionID, fetcher, clockwork.NewFakeClock())
	require.NoError(t, a.Refresh(context.Background()))

	require.NotNil(t, a.View().Session())
	assert.Equal(t, models.PhaseQuestionActive, a.View().Session().Phase)
	assert.Len(t, a.View().Attempts(), 1)
}

func TestRelayFramesFeedTheView(t *testing.T) {
	sessionID := uuid.New()
	questionID := uuid.New()
	a := newTestAdapter(sessionID, &fakeFetcher{}, clockwork.NewFakeClock())

	session := sessionRow(sessionID, models.PhaseQuestionActive, &questionID)
	sessionJSON, err := json.Marshal(session)
	require.NoError(t, err)
	a.ApplyRelayFrame("score-steal:session-update", sessionJSON)

	attemptsJSON, err := json.Marshal([]models.ScoreStealAttempt{
		{ID: uuid.New(), SessionID: sessionID, QuestionID: questionID},
	})
	require.NoError(t, err)
	a.ApplyRelayFrame("score-steal:attempts-update", attemptsJSON)

	// Frames for other room kinds pass through without effect.
	a.ApplyRelayFrame("relay-quiz:session-update", []byte(`{"bogus":true}`))

	require.NotNil(t, a.View().Session())
	assert.Len(t, a.View().Attempts(), 1)
}

func TestChangeFeedRowsFeedTheView(t *testing.T) {
	sessionID := uuid.New()
	questionID := uuid.New()
	a := newTestAdapter(sessionID, &fakeFetcher{}, clockwork.NewFakeClock())

	sessionJSON, err := json.Marshal(sessionRow(sessionID, models.PhaseQuestionActive, &questionID))
	require.NoError(t, err)
	a.onSessionRow(changefeed.Event{Type: changefeed.EventUpdate, New: sessionJSON})

	attemptJSON, err := json.Marshal(models.ScoreStealAttempt{
		ID: uuid.New(), SessionID: sessionID, QuestionID: questionID,
	})
	require.NoError(t, err)
	a.onAttemptRow(changefeed.Event{Type: changefeed.EventInsert, New: attemptJSON})

	require.NotNil(t, a.View().Session())
	assert.Len(t, a.View().Attempts(), 1)
}

func TestFallbackPollRefreshesPeriodically(t *testing.T) {
	sessionID := uuid.New()
	fetcher := &fakeFetcher{snap: &scoresteal.Snapshot{
		Session: sessionRow(sessionID, models.PhaseWaiting, nil),
	}}
	clock := clockwork.NewFakeClock()
	a := newTestAdapter(sessionID, fetcher, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	defer a.Close()

	// Start primes the view with one immediate fetch.
	require.Equal(t, 1, fetcher.callCount())

	questionID := uuid.New()
	fetcher.set(&scoresteal.Snapshot{
		Session: sessionRow(sessionID, models.PhaseQuestionActive, &questionID),
	})

	clock.BlockUntil(1)
	clock.Advance(DefaultConfig().PollInterval)

	require.Eventually(t, func() bool {
		session := a.View().Session()
		return session != nil && session.Phase == models.PhaseQuestionActive
	}, time.Second, 5*time.Millisecond)
}

func TestDoubleRefreshFetchesTwice(t *testing.T) {
	sessionID := uuid.New()
	fetcher := &fakeFetcher{snap: &scoresteal.Snapshot{
		Session: sessionRow(sessionID, models.PhaseWaiting, nil),
	}}
	clock := clockwork.NewFakeClock()
	a := newTestAdapter(sessionID, fetcher, clock)

	require.NoError(t, a.DoubleRefresh(context.Background()))
	assert.Equal(t, 1, fetcher.callCount())

	clock.BlockUntil(1)
	clock.Advance(DefaultConfig().RefreshDelay)

	require.Eventually(t, func() bool {
		return fetcher.callCount() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestFeedStatusReportsBothSubscriptions(t *testing.T) {
	a := newTestAdapter(uuid.New(), &fakeFetcher{snap: &scoresteal.Snapshot{}}, clockwork.NewFakeClock())

	status := a.FeedStatus()
	assert.Equal(t, changefeed.StatusPending, status.Sessions)
	assert.Equal(t, changefeed.StatusPending, status.Attempts)
	assert.True(t, a.Degraded())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	defer a.Close()

	require.Eventually(t, func() bool {
		return !a.Degraded()
	}, time.Second, 5*time.Millisecond)
}
