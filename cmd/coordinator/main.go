package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maumercado/ptc/internal/api"
	"github.com/maumercado/ptc/internal/config"
	"github.com/maumercado/ptc/internal/events"
	"github.com/maumercado/ptc/internal/logger"
	"github.com/maumercado/ptc/internal/ptc/coordinator"
	"github.com/maumercado/ptc/internal/ptc/retry"
	"github.com/maumercado/ptc/internal/ptc/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("Starting PTC coordinator...")

	s, err := store.Open(cfg.Coordinator.StoragePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	publisher := events.NewRedisPubSub(redisClient)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	backoffSchedule := make([]time.Duration, len(cfg.Coordinator.RetryBackoffMS))
	for i, ms := range cfg.Coordinator.RetryBackoffMS {
		backoffSchedule[i] = time.Duration(ms) * time.Millisecond
	}

	coordCfg := coordinator.Config{
		Name:              cfg.Coordinator.Name,
		HeartbeatInterval: time.Duration(cfg.Coordinator.HeartbeatIntervalMS) * time.Millisecond,
		StaleThreshold:    time.Duration(cfg.Coordinator.StaleThresholdMS) * time.Millisecond,
		PollInterval:      time.Duration(cfg.Coordinator.PollIntervalMS) * time.Millisecond,
		AckTimeout:        time.Duration(cfg.Coordinator.AckTimeoutMS) * time.Millisecond,
		RetryPolicy: retry.Policy{
			MaxAttempts:     cfg.Coordinator.RetryMaxAttempts,
			BackoffSchedule: backoffSchedule,
			MaxBackoff:      time.Duration(cfg.Coordinator.RetryMaxBackoffMS) * time.Millisecond,
			JitterFactor:    cfg.Coordinator.RetryJitterFactor,
		},
		DeadLetterEnabled: cfg.Coordinator.DeadLetterEnabled,
		MaxTasksPerWorker: cfg.Coordinator.MaxTasksPerWorker,
		ReadyTaskCommand:  cfg.Coordinator.ReadyTaskCommand,
	}

	coord := coordinator.New(coordCfg, s, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coord.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start coordinator")
	}
	defer coord.Stop()

	server := api.NewServer(cfg, coord, s, publisher)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	server.Start(ctx)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down coordinator...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	server.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Coordinator stopped")
}
