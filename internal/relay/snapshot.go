package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tmcgame/platform/internal/game"
	"github.com/tmcgame/platform/internal/models"
	"github.com/tmcgame/platform/internal/participant"
	"github.com/tmcgame/platform/internal/relayquiz"
	"github.com/tmcgame/platform/internal/scoresteal"
	"github.com/tmcgame/platform/internal/team"
)

// Snapshot bundles the broadcast payloads for one room. Attempts is nil for
// kinds that only push session state.
type Snapshot struct {
	Session  json.RawMessage
	Attempts json.RawMessage
}

// SnapshotProvider produces the current state of a room. The poller calls it
// every tick and on every join, and broadcasts the result verbatim.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, kind RoomKind, id uuid.UUID) (*Snapshot, error)
}

// AppProvider assembles snapshots from the game apps. Waiting room payloads
// go through a short-lived Redis cache so many lobbies polling the same game
// do not each hit Postgres.
type AppProvider struct {
	scoreSteal   *scoresteal.Engine
	relayQuiz    *relayquiz.App
	games        *game.App
	teams        *team.App
	participants *participant.App

	cache    *redis.Client
	cacheTTL time.Duration
}

func NewAppProvider(
	scoreSteal *scoresteal.Engine,
	relayQuiz *relayquiz.App,
	games *game.App,
	teams *team.App,
	participants *participant.App,
	cache *redis.Client,
) *AppProvider {
	return &AppProvider{
		scoreSteal:   scoreSteal,
		relayQuiz:    relayQuiz,
		games:        games,
		teams:        teams,
		participants: participants,
		cache:        cache,
		cacheTTL:     2 * time.Second,
	}
}

var _ SnapshotProvider = (*AppProvider)(nil)

func (p *AppProvider) Snapshot(ctx context.Context, kind RoomKind, id uuid.UUID) (*Snapshot, error) {
	switch kind {
	case RoomScoreSteal:
		return p.scoreStealSnapshot(ctx, id)
	case RoomRelayQuiz:
		return p.relayQuizSnapshot(ctx, id)
	case RoomGameWaiting:
		return p.waitingSnapshot(ctx, id)
	default:
		return nil, fmt.Errorf("unknown room kind %q", kind)
	}
}

func (p *AppProvider) scoreStealSnapshot(ctx context.Context, sessionID uuid.UUID) (*Snapshot, error) {
	snap, err := p.scoreSteal.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session, err := json.Marshal(snap.Session)
	if err != nil {
		return nil, err
	}
	attempts, err := json.Marshal(snap.Attempts)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Session: session, Attempts: attempts}, nil
}

func (p *AppProvider) relayQuizSnapshot(ctx context.Context, sessionID uuid.UUID) (*Snapshot, error) {
	snap, err := p.relayQuiz.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session, err := json.Marshal(struct {
		Session  *models.RelayQuizSession `json:"session"`
		Progress []models.TeamProgress    `json:"progress"`
	}{snap.Session, snap.Progress})
	if err != nil {
		return nil, err
	}
	attempts, err := json.Marshal(snap.Attempts)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Session: session, Attempts: attempts}, nil
}

type waitingPayload struct {
	Game         *models.Game         `json:"game"`
	Teams        []models.Team        `json:"teams"`
	Participants []models.Participant `json:"participants"`
}

func (p *AppProvider) waitingSnapshot(ctx context.Context, gameID uuid.UUID) (*Snapshot, error) {
	cacheKey := "waiting:" + gameID.String()

	if p.cache != nil {
		cached, err := p.cache.Get(ctx, cacheKey).Bytes()
		if err == nil {
			return &Snapshot{Session: cached}, nil
		}
		if err != redis.Nil {
			log.Warn().Err(err).Str("game_id", gameID.String()).Msg("waiting room cache read failed")
		}
	}

	g, err := p.games.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	teams, err := p.teams.ListTeamsByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	participants, err := p.participants.ListByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(waitingPayload{Game: g, Teams: teams, Participants: participants})
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, cacheKey, payload, p.cacheTTL).Err(); err != nil {
			log.Warn().Err(err).Str("game_id", gameID.String()).Msg("waiting room cache write failed")
		}
	}
	return &Snapshot{Session: payload}, nil
}
