package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tmcgame/platform/internal/outbox"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	dbConfig := loadDatabaseConfig()
	database, err := setupDatabase(dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up database")
	}
	defer database.Close()

	cache := setupRedis()
	if cache != nil {
		defer cache.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, poller := setupServices(database, dbConfig.DSN(), cache, pollIntervals(config))
	defer services.Views.CloseAll()
	poller.Start(ctx)

	startOutboxPipeline(ctx, database, dbConfig.DSN())

	server := setupServer(services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

// startOutboxPipeline connects the committed-event stream to NATS. Without a
// broker the platform still serves HTTP and relay traffic; only the external
// event stream is missing.
func startOutboxPipeline(ctx context.Context, database *sql.DB, dsn string) {
	natsURL := getEnv("NATS_URL", "")
	if natsURL == "" {
		log.Info().Msg("NATS_URL not set, outbox publishing disabled")
		return
	}

	jsConfig := outbox.DefaultJetStreamConfig()
	jsConfig.URL = natsURL
	publisher, err := outbox.NewJetStreamPublisher(jsConfig)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to NATS, outbox publishing disabled")
		return
	}

	listenerConfig := outbox.DefaultListenerConfig()
	listenerConfig.DatabaseURL = dsn
	listener, err := outbox.NewListener(database, publisher, listenerConfig)
	if err != nil {
		log.Error().Err(err).Msg("failed to start outbox listener, outbox publishing disabled")
		return
	}

	go func() {
		if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("outbox listener stopped")
		}
	}()
}
