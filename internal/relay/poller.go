package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// PollIntervals sets how often each room kind is refreshed. The buzzer race
// polls fastest so winner resolution reaches spectators quickly.
type PollIntervals struct {
	ScoreSteal  time.Duration
	RelayQuiz   time.Duration
	GameWaiting time.Duration
}

func DefaultPollIntervals() PollIntervals {
	return PollIntervals{
		ScoreSteal:  500 * time.Millisecond,
		RelayQuiz:   time.Second,
		GameWaiting: time.Second,
	}
}

// Poller drives the relay's fan-out: on every tick it fetches a fresh
// snapshot for each active room of a kind and broadcasts it verbatim to the
// room's members. There is no diffing; clients reconcile state themselves.
type Poller struct {
	rooms     *Manager
	provider  SnapshotProvider
	clock     clockwork.Clock
	intervals PollIntervals
}

func NewPoller(rooms *Manager, provider SnapshotProvider, clock clockwork.Clock, intervals PollIntervals) *Poller {
	return &Poller{
		rooms:     rooms,
		provider:  provider,
		clock:     clock,
		intervals: intervals,
	}
}

// Start launches one poll loop per room kind. The loops stop when ctx is
// canceled.
func (p *Poller) Start(ctx context.Context) {
	go p.loop(ctx, RoomScoreSteal, p.intervals.ScoreSteal)
	go p.loop(ctx, RoomRelayQuiz, p.intervals.RelayQuiz)
	go p.loop(ctx, RoomGameWaiting, p.intervals.GameWaiting)
	log.Info().Msg("relay poller started")
}

func (p *Poller) loop(ctx context.Context, kind RoomKind, interval time.Duration) {
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.pollKind(ctx, kind)
		}
	}
}

func (p *Poller) pollKind(ctx context.Context, kind RoomKind) {
	for _, id := range p.rooms.ActiveRooms(kind) {
		key := RoomKey{Kind: kind, ID: id}
		snap, err := p.provider.Snapshot(ctx, kind, id)
		if err != nil {
			log.Warn().
				Err(err).
				Str("kind", string(kind)).
				Str("room_id", id.String()).
				Msg("room snapshot failed")
			continue
		}
		broadcastSnapshot(p.rooms, key, snap)
	}
}

// broadcastSnapshot fans the snapshot's frames out to the whole room.
func broadcastSnapshot(rooms *Manager, key RoomKey, snap *Snapshot) {
	if snap.Session != nil {
		rooms.Broadcast(key, encodeFrame(sessionUpdateEvent(key.Kind), snap.Session))
	}
	if snap.Attempts != nil {
		rooms.Broadcast(key, encodeFrame(attemptsUpdateEvent(key.Kind), snap.Attempts))
	}
}

func encodeFrame(event string, payload json.RawMessage) []byte {
	data, err := json.Marshal(ServerMessage{Event: event, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal relay frame")
		return nil
	}
	return data
}
