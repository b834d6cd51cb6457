package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tmcgame/platform/internal/game"
	"github.com/tmcgame/platform/internal/outbox"
	"github.com/tmcgame/platform/internal/participant"
	"github.com/tmcgame/platform/internal/question"
	"github.com/tmcgame/platform/internal/relay"
	"github.com/tmcgame/platform/internal/relayquiz"
	"github.com/tmcgame/platform/internal/scoresteal"
	"github.com/tmcgame/platform/internal/team"
)

// Standalone relay process. Runs only the WebSocket fan-out so it can be
// scaled independently of the action API during large events.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	port := getEnv("RELAY_PORT", "8081")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "tmcgame"),
		getEnv("DB_SSLMODE", "disable"),
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	var cache *redis.Client
	if addr := getEnv("REDIS_ADDR", ""); addr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: getEnv("REDIS_PASSWORD", ""),
		})
		defer cache.Close()
	}

	provider := setupProvider(db, cache)

	rooms := relay.NewManager()
	relayService := relay.NewService(rooms, provider, relay.DefaultConnectionConfig())
	poller := relay.NewPoller(rooms, provider, clockwork.NewRealClock(), relay.DefaultPollIntervals())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", relayService.HandleWS)
	mux.HandleFunc("GET /relay/stats", relayService.HandleStats)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("relay server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("relay server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("relay server shutdown failed")
	}
	cancel()

	log.Info().Msg("relay shutdown complete")
}

func setupProvider(db *sql.DB, cache *redis.Client) *relay.AppProvider {
	clock := clockwork.NewRealClock()

	outboxRepo := outbox.NewRepository(db)
	gameApp := game.NewApp(db, game.NewRepository(db), outboxRepo)
	teamRepo := team.NewRepository(db)
	teamApp := team.NewApp(db, teamRepo, outboxRepo)
	participantRepo := participant.NewRepository(db)
	participantApp := participant.NewApp(participantRepo)
	questionRepo := question.NewRepository(db)

	stealEngine := scoresteal.NewEngine(scoresteal.NewRepository(db, outboxRepo), questionRepo, teamRepo, clock)
	relayApp := relayquiz.NewApp(relayquiz.NewRepository(db), questionRepo, participantRepo)

	return relay.NewAppProvider(stealEngine, relayApp, gameApp, teamApp, participantApp, cache)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
