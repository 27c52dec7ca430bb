package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"example.com/eventrelay/internal/broker"
	"example.com/eventrelay/internal/config"
	"example.com/eventrelay/internal/logging"
	"example.com/eventrelay/internal/outbox"
)

const cleanupTimeout = 10 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName, cfg.ServiceVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres not reachable")
	}

	store := outbox.NewPgStore(pool)

	kafka := broker.NewKafka(cfg.KafkaBrokers, cfg.OutboxSendTimeout)
	defer func() {
		if err := kafka.Close(); err != nil {
			log.Error().Err(err).Msg("kafka client close failed")
		}
	}()

	relay := outbox.NewRelay(store, kafka, outbox.RelayConfig{
		Topic:             cfg.Topic,
		PollInterval:      cfg.OutboxPollInterval,
		SendTimeout:       cfg.OutboxSendTimeout,
		MaxRetries:        cfg.OutboxMaxRetries,
		BatchSize:         cfg.OutboxBatchSize,
		BatchMin:          cfg.OutboxBatchMin,
		BatchMax:          cfg.OutboxBatchMax,
		DynamicBatching:   cfg.DynamicBatching,
		BreakerEnabled:    cfg.CircuitBreaker,
		BreakerWindow:     cfg.BreakerWindow,
		BreakerThreshold:  cfg.BreakerThreshold,
		BreakerMinSamples: cfg.BreakerMinSamples,
		BreakerCooldown:   cfg.BreakerCooldown,
		ShutdownGrace:     cfg.ShutdownGrace,
	}, log)

	if cfg.OutboxEnabled {
		go relay.Run(ctx)
	} else {
		log.Warn().Msg("outbox relay disabled by configuration")
	}

	var cleanupCron *cron.Cron
	if cfg.CleanupEnabled {
		cleaner := outbox.NewCleaner(store, cfg.RetentionDays, log)
		cleanupCron = cron.New()
		if _, err := cleaner.Register(cleanupCron, cfg.CleanupSchedule, cleanupTimeout); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.CleanupSchedule).Msg("invalid cleanup schedule")
		}
		cleanupCron.Start()
		log.Info().Str("schedule", cfg.CleanupSchedule).Int("retention_days", cfg.RetentionDays).Msg("cleanup job scheduled")
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		log.Info().Str("address", cfg.MetricsAddress).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	cancel()
	if cfg.OutboxEnabled {
		relay.Wait()
	}
	if cleanupCron != nil {
		<-cleanupCron.Stop().Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown error")
	}
	log.Info().Msg("shutdown complete")
}
