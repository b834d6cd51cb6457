package syncview

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tmcgame/platform/internal/changefeed"
	"github.com/tmcgame/platform/internal/models"
	"github.com/tmcgame/platform/internal/scoresteal"
)

// Fetcher is the poll source of truth. The score steal engine satisfies it.
type Fetcher interface {
	Snapshot(ctx context.Context, sessionID uuid.UUID) (*scoresteal.Snapshot, error)
}

// Config tunes the adapter's fallback behavior.
type Config struct {
	// PollInterval is the fallback poll cadence. Polling runs even while the
	// change feed is healthy; it is cheap and guarantees convergence.
	PollInterval time.Duration
	// RefreshDelay is the gap before the second fetch of DoubleRefresh.
	RefreshDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 3 * time.Second,
		RefreshDelay: time.Second,
	}
}

// Adapter keeps a View current by merging three channels: change feed
// callbacks on the session and attempt tables, relay frames handed in by the
// caller, and its own fallback poll. Any channel may fail without the view
// going stale; the others keep feeding it.
type Adapter struct {
	view    *View
	fetcher Fetcher
	clock   clockwork.Clock
	cfg     Config

	sessionBridge *changefeed.Bridge
	attemptBridge *changefeed.Bridge

	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

func NewAdapter(sessionID uuid.UUID, fetcher Fetcher, transport changefeed.Transport, clock clockwork.Clock, cfg Config) *Adapter {
	a := &Adapter{
		view:    NewView(sessionID),
		fetcher: fetcher,
		clock:   clock,
		cfg:     cfg,
		done:    make(chan struct{}),
	}

	sessionCfg := changefeed.DefaultConfig("score_steal_sessions")
	sessionCfg.Types = []changefeed.EventType{changefeed.EventUpdate}
	sessionCfg.Filter = &changefeed.Filter{Column: "id", Value: sessionID.String()}
	a.sessionBridge = changefeed.NewBridge(transport, sessionCfg, changefeed.Callbacks{
		OnUpdate: a.onSessionRow,
	}, clock)

	attemptCfg := changefeed.DefaultConfig("score_steal_attempts")
	attemptCfg.Types = []changefeed.EventType{changefeed.EventInsert}
	attemptCfg.Filter = &changefeed.Filter{Column: "session_id", Value: sessionID.String()}
	a.attemptBridge = changefeed.NewBridge(transport, attemptCfg, changefeed.Callbacks{
		OnInsert: a.onAttemptRow,
	}, clock)

	return a
}

// View exposes the merged state for rendering.
func (a *Adapter) View() *View {
	return a.view
}

// Start opens both change feed subscriptions, primes the view with one fetch
// and begins the fallback poll loop.
func (a *Adapter) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.sessionBridge.Start(ctx)
	a.attemptBridge.Start(ctx)

	if err := a.Refresh(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", a.view.SessionID().String()).Msg("initial sync fetch failed")
	}
	go a.pollLoop(ctx)
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer close(a.done)
	ticker := a.clock.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := a.Refresh(ctx); err != nil {
				log.Warn().Err(err).Str("session_id", a.view.SessionID().String()).Msg("fallback poll failed")
			}
		}
	}
}

// Refresh fetches the full snapshot once and merges it in.
func (a *Adapter) Refresh(ctx context.Context) error {
	snap, err := a.fetcher.Snapshot(ctx, a.view.SessionID())
	if err != nil {
		return err
	}
	a.view.ApplySession(snap.Session)
	a.view.ApplyAttempts(snap.Attempts)
	return nil
}

// DoubleRefresh fetches immediately and once more after a short delay.
// Used after admin actions: the second fetch picks up writes that commit
// just after the first one read.
func (a *Adapter) DoubleRefresh(ctx context.Context) error {
	if err := a.Refresh(ctx); err != nil {
		return err
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-a.clock.After(a.cfg.RefreshDelay):
			if err := a.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("delayed refresh failed")
			}
		}
	}()
	return nil
}

// ApplyRelayFrame feeds a relay WebSocket frame into the view. Unknown
// events are ignored so callers can pass every frame through.
func (a *Adapter) ApplyRelayFrame(event string, payload json.RawMessage) {
	switch event {
	case "score-steal:session-update":
		var session models.ScoreStealSession
		if err := json.Unmarshal(payload, &session); err != nil {
			log.Warn().Err(err).Msg("malformed relay session frame")
			return
		}
		a.view.ApplySession(&session)
	case "score-steal:attempts-update":
		var attempts []models.ScoreStealAttempt
		if err := json.Unmarshal(payload, &attempts); err != nil {
			log.Warn().Err(err).Msg("malformed relay attempts frame")
			return
		}
		a.view.ApplyAttempts(attempts)
	}
}

func (a *Adapter) onSessionRow(event changefeed.Event) {
	var session models.ScoreStealSession
	if err := json.Unmarshal(event.New, &session); err != nil {
		log.Warn().Err(err).Msg("malformed session change row")
		return
	}
	a.view.ApplySession(&session)
}

func (a *Adapter) onAttemptRow(event changefeed.Event) {
	var attempt models.ScoreStealAttempt
	if err := json.Unmarshal(event.New, &attempt); err != nil {
		log.Warn().Err(err).Msg("malformed attempt change row")
		return
	}
	a.view.ApplyAttempt(attempt)
}

// FeedStatus reports the health of both change feed subscriptions.
type FeedStatus struct {
	Sessions changefeed.Status `json:"sessions"`
	Attempts changefeed.Status `json:"attempts"`
}

func (a *Adapter) FeedStatus() FeedStatus {
	return FeedStatus{
		Sessions: a.sessionBridge.Status(),
		Attempts: a.attemptBridge.Status(),
	}
}

// Degraded reports whether the push path is down and the view is riding on
// the fallback poll alone.
func (a *Adapter) Degraded() bool {
	status := a.FeedStatus()
	return status.Sessions != changefeed.StatusSubscribed ||
		status.Attempts != changefeed.StatusSubscribed
}

// Close stops the poll loop and both subscriptions. Safe to call twice.
func (a *Adapter) Close() {
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
			<-a.done
		}
		a.sessionBridge.Close()
		a.attemptBridge.Close()
	})
}
