package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/disaster-tracker-be/internal/api"
	"github.com/isdelr/disaster-tracker-be/internal/config"
	"github.com/isdelr/disaster-tracker-be/internal/ingest"
	"github.com/isdelr/disaster-tracker-be/internal/kafka"
	"github.com/isdelr/disaster-tracker-be/internal/logger"
	"github.com/isdelr/disaster-tracker-be/internal/observability"
	"github.com/isdelr/disaster-tracker-be/internal/sources"
	"github.com/isdelr/disaster-tracker-be/internal/store"
	"github.com/isdelr/disaster-tracker-be/internal/websocket"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up storage
	st := openStore(cfg, clock)
	defer st.Close()

	// Set up WebSocket Hub
	hub := websocket.NewHub(metrics)
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	notifiers := ingest.Notifiers{hub}
	var publisher *kafka.Publisher
	if cfg.Kafka.Enabled() {
		publisher = kafka.NewPublisher(cfg.Kafka, metrics)
		notifiers = append(notifiers, publisher)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Publishing new events to Kafka")
	}

	// Set up feed adapters
	client := sources.NewHTTPClient(sources.HTTPClientConfig{
		Timeout:   cfg.Feeds.Timeout.Duration,
		Retries:   cfg.Feeds.Retries,
		UserAgent: cfg.Feeds.UserAgent,
	})
	adapters := []sources.Adapter{
		sources.NewUSGS(client, cfg.Feeds.USGSURL),
		sources.NewGDACS(client, cfg.Feeds.GDACSURL, clock),
		sources.NewNWS(client, cfg.Feeds.NWSURL, clock),
	}

	upserter := ingest.NewUpserter(st, clock)

	// Set up and run the ingestion scheduler
	scheduler := ingest.NewScheduler(adapters, upserter, notifiers, metrics, clock, cfg.RefreshInterval.Duration)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start ingestion scheduler")
	}

	// Set up and run the lifecycle sweeper
	sweeper := ingest.NewSweeper(st, clock, cfg.SweepInterval.Duration, metrics)
	sweeperDone := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(sweeperDone)
	}()

	// Set up router
	router := api.NewRouter(api.Dependencies{
		Store:       st,
		Submitter:   upserter,
		Notifier:    notifiers,
		Refresher:   scheduler,
		Readiness:   scheduler,
		Hub:         hub,
		CORSOrigins: cfg.CORSOrigins,
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	scheduler.Stop() // Stop the ingestion cycles
	<-sweeperDone

	stopHub()
	<-hubDone

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to flush Kafka publisher")
		}
	}

	log.Info().Msg("Server exiting")
}

// openStore returns the configured store. A SQLite database that cannot be
// opened falls back to the in-memory store so the service still runs.
func openStore(cfg *config.Config, clock clockwork.Clock) store.Store {
	if cfg.StoreDriver == "memory" {
		log.Info().Msg("Using in-memory event store")
		return store.NewMemoryStore(clock)
	}

	st, err := store.OpenSQLite(cfg.DatabasePath, clock)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to open SQLite database, falling back to in-memory store")
		return store.NewMemoryStore(clock)
	}
	log.Info().Str("path", cfg.DatabasePath).Msg("Using SQLite event store")
	return st
}
