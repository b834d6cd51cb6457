package main

import (
	"database/sql"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/tmcgame/platform/internal/api"
	"github.com/tmcgame/platform/internal/changefeed"
	"github.com/tmcgame/platform/internal/game"
	"github.com/tmcgame/platform/internal/outbox"
	"github.com/tmcgame/platform/internal/participant"
	"github.com/tmcgame/platform/internal/question"
	"github.com/tmcgame/platform/internal/relay"
	"github.com/tmcgame/platform/internal/relayquiz"
	"github.com/tmcgame/platform/internal/scoresteal"
	"github.com/tmcgame/platform/internal/syncview"
	"github.com/tmcgame/platform/internal/team"
)

type Services struct {
	Games        *game.App
	Teams        *team.App
	Participants *participant.App
	ScoreSteal   *scoresteal.Engine
	RelayQuiz    *relayquiz.App

	API   *api.Handler
	Rooms *relay.Manager
	Relay *relay.Service
	Views *syncview.Registry
}

// setupServices wires the dependency chain: repositories own SQL, apps own
// rules, and every constructed dependency is injected rather than looked up.
func setupServices(database *sql.DB, dsn string, cache *redis.Client, intervals relay.PollIntervals) (*Services, *relay.Poller) {
	clock := clockwork.NewRealClock()

	outboxRepo := outbox.NewRepository(database)

	gameRepo := game.NewRepository(database)
	gameApp := game.NewApp(database, gameRepo, outboxRepo)

	teamRepo := team.NewRepository(database)
	teamApp := team.NewApp(database, teamRepo, outboxRepo)

	participantRepo := participant.NewRepository(database)
	participantApp := participant.NewApp(participantRepo)

	questionRepo := question.NewRepository(database)

	stealStore := scoresteal.NewRepository(database, outboxRepo)
	stealEngine := scoresteal.NewEngine(stealStore, questionRepo, teamRepo, clock)

	relayStore := relayquiz.NewRepository(database)
	relayApp := relayquiz.NewApp(relayStore, questionRepo, participantRepo)

	views := syncview.NewRegistry(stealEngine, changefeed.NewPqTransport(dsn), clock, syncview.DefaultConfig())

	apiHandler := api.NewHandler(gameApp, teamApp, participantApp, stealEngine, relayApp, views)

	rooms := relay.NewManager()
	provider := relay.NewAppProvider(stealEngine, relayApp, gameApp, teamApp, participantApp, cache)
	relayService := relay.NewService(rooms, provider, relay.DefaultConnectionConfig())
	poller := relay.NewPoller(rooms, provider, clock, intervals)

	return &Services{
		Games:        gameApp,
		Teams:        teamApp,
		Participants: participantApp,
		ScoreSteal:   stealEngine,
		RelayQuiz:    relayApp,
		API:          apiHandler,
		Rooms:        rooms,
		Relay:        relayService,
		Views:        views,
	}, poller
}
