package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/merchantd/platform/internal/accounts"
	"github.com/merchantd/platform/internal/cart"
	"github.com/merchantd/platform/internal/dbconfig"
	"github.com/merchantd/platform/internal/gateway"
	"github.com/merchantd/platform/internal/license"
	"github.com/merchantd/platform/internal/outbox"
	"github.com/merchantd/platform/internal/payments"
	"github.com/merchantd/platform/internal/plugins"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal().Msg("JWT_SECRET environment variable is required")
	}

	dbCfg := dbconfig.NewConfigFromEnv()
	db, err := dbCfg.Open()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvAsInt("REDIS_DB", 0),
	})
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared outbox emitter; events are written inside the same
	// transaction as the state change that caused them.
	outboxRepo := outbox.NewRepository(db)
	outboxApp := outbox.NewApp(outboxRepo)

	licenseApp := license.NewApp(db, license.NewRepository(db), outboxApp, license.DefaultConfig())
	pluginsApp := plugins.NewApp(db, plugins.NewRepository(db), licenseApp, outboxApp)
	paymentsApp := payments.NewApp(db, payments.NewRepository(db), outboxApp, config.Commissions).
		WithProviders(config.Payments.EnabledProviders)
	accountsApp := accounts.NewApp(accounts.NewRepository(db))

	cartCache := cart.NewCacheStore(redisClient, cart.DefaultCacheConfig())
	cartApp := cart.NewApp(db, cart.NewRepository(db), cartCache, pluginsApp, paymentsApp, outboxApp)

	var health http.HandlerFunc
	if config.Outbox.Embedded {
		health = startEmbeddedWorker(ctx, db, config)
	} else {
		health = pingHealth(db)
	}

	auth := gateway.NewAuthenticator(jwtSecret, 24*time.Hour)
	handlers := gateway.NewHandlers(accountsApp, pluginsApp, cartApp, licenseApp, paymentsApp, auth)

	ws := startEventFeed(ctx)

	server := gateway.NewServer(gateway.ServerConfig{Port: config.Server.Port}, handlers, ws, health)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// startEmbeddedWorker runs the outbox dispatch loop inside the API
// process. Deployments that scale the worker separately disable this
// and run the standalone binary instead.
func startEmbeddedWorker(ctx context.Context, db *sql.DB, config *Config) http.HandlerFunc {
	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = getEnv("NATS_URL", jsCfg.URL)

	publisher, err := outbox.NewJetStreamPublisher(jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream publisher")
	}

	workerCfg := outbox.DefaultConfig()
	if config.Outbox.PollInterval > 0 {
		workerCfg.PollInterval = config.Outbox.PollInterval
	}
	if config.Outbox.BatchSize > 0 {
		workerCfg.BatchSize = config.Outbox.BatchSize
	}
	if config.Outbox.MaxAttempts > 0 {
		workerCfg.MaxAttempts = config.Outbox.MaxAttempts
	}

	metrics := outbox.NewInMemoryMetrics()
	worker := outbox.NewWorker(db, outbox.NewMetricPublisher(publisher, metrics), workerCfg,
		log.With().Str("component", "outbox-worker").Logger()).
		WithMetrics(metrics)
	if err := worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start outbox worker")
	}

	go func() {
		<-ctx.Done()
		if err := worker.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop outbox worker")
		}
		publisher.Close()
	}()

	checker := outbox.NewWorkerHealthChecker(worker, db, publisher.Conn(), 5*time.Minute).
		WithMetrics(metrics)
	return checker.Handler()
}

func pingHealth(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// startEventFeed wires the WebSocket fan-out backed by the JetStream
// consumer. The feed is optional; without NATS the gateway still serves
// its REST surface.
func startEventFeed(ctx context.Context) *gateway.WebSocketHandler {
	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	go cm.Start(ctx)

	consumerCfg := gateway.DefaultEventConsumerConfig()
	consumerCfg.URL = getEnv("NATS_URL", consumerCfg.URL)

	consumer, err := gateway.NewEventConsumer(cm, consumerCfg)
	if err != nil {
		log.Warn().Err(err).Msg("event feed disabled, JetStream consumer unavailable")
		return gateway.NewWebSocketHandler(cm)
	}

	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer stopped")
		}
		consumer.Close()
	}()

	return gateway.NewWebSocketHandler(cm)
}
