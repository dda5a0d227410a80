package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/merchantd/platform/internal/dbconfig"
	"github.com/merchantd/platform/internal/outbox"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	dbCfg := dbconfig.NewConfigFromEnv()
	db, err := dbCfg.Open()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = getEnv("NATS_URL", jsCfg.URL)

	publisher, err := outbox.NewJetStreamPublisher(jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream publisher")
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := outbox.NewInMemoryMetrics()
	worker := outbox.NewWorker(db, outbox.NewMetricPublisher(publisher, metrics), workerConfigFromEnv(),
		log.With().Str("component", "outbox-worker").Logger()).
		WithMetrics(metrics)
	if err := worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start outbox worker")
	}

	// Wake the worker on insert notifications instead of waiting out
	// the poll interval.
	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = dbCfg.DSN()
	listener, err := outbox.NewListener(worker, listenerCfg)
	if err != nil {
		log.Warn().Err(err).Msg("notify listener unavailable, relying on poll loop")
	} else {
		go func() {
			if err := listener.Start(ctx); err != nil {
				log.Error().Err(err).Msg("notify listener stopped")
			}
		}()
	}

	checker := outbox.NewWorkerHealthChecker(worker, db, publisher.Conn(), 5*time.Minute).
		WithMetrics(metrics)
	healthServer := &http.Server{
		Addr:    ":" + getEnv("HEALTH_PORT", "8081"),
		Handler: healthMux(checker),
	}
	go func() {
		log.Info().Str("addr", healthServer.Addr).Msg("health endpoint listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("health server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if err := worker.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop outbox worker")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown failed")
	}
}

func healthMux(checker *outbox.WorkerHealthChecker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", checker.Handler())
	return mux
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func workerConfigFromEnv() outbox.Config {
	cfg := outbox.DefaultConfig()
	if interval := os.Getenv("OUTBOX_POLL_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.PollInterval = d
		}
	}
	return cfg
}
