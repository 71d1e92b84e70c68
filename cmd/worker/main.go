package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maumercado/ptc/internal/config"
	"github.com/maumercado/ptc/internal/logger"
	"github.com/maumercado/ptc/internal/ptc/claim"
	"github.com/maumercado/ptc/internal/ptc/heartbeat"
	"github.com/maumercado/ptc/internal/ptc/idgen"
	"github.com/maumercado/ptc/internal/ptc/store"
	"github.com/maumercado/ptc/internal/ptc/worker"
	runtimeworker "github.com/maumercado/ptc/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("Starting worker...")

	s, err := store.Open(cfg.Coordinator.StoragePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	executor := runtimeworker.NewExecutor(map[string]runtimeworker.TaskHandler{
		"echo":    echoHandler,
		"sleep":   sleepHandler,
		"compute": computeHandler,
		"fail":    failHandler,
	})

	workerID := idgen.NewMessageID(idgen.Options{Prefix: "worker"})
	self := &worker.Worker{
		ID:           workerID,
		Name:         fmt.Sprintf("worker-%d", os.Getpid()),
		PID:          os.Getpid(),
		Capabilities: executor.HandlerTypes(),
		Status:       worker.StatusActive,
	}
	if err := s.RegisterWorker(self); err != nil {
		log.Fatal().Err(err).Msg("Failed to register worker")
	}

	hbInterval := time.Duration(cfg.Coordinator.HeartbeatIntervalMS) * time.Millisecond
	heartbeats := heartbeat.New(s, hbInterval)
	heartbeats.StartHeartbeat(workerID)
	defer heartbeats.StopAll()

	source := claim.ReadyTaskSource{Command: cfg.Coordinator.ReadyTaskCommand}
	claims := claim.New(s, source, cfg.Coordinator.MaxTasksPerWorker)
	if err := claims.Initialize(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize claim cache")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pollInterval := time.Duration(cfg.Coordinator.PollIntervalMS) * time.Millisecond
	done := make(chan struct{})
	go runClaimLoop(ctx, claims, workerID, pollInterval, executor, done)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")
	cancel()
	<-done

	if err := s.UnregisterWorker(workerID); err != nil {
		log.Error().Err(err).Msg("Failed to unregister worker")
	}

	log.Info().Msg("Worker stopped")
}

func runClaimLoop(ctx context.Context, claims *claim.Manager, workerID string, interval time.Duration, executor *runtimeworker.Executor, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c, err := claims.Claim(ctx, workerID, nil)
			if err != nil {
				continue
			}

			logger.Info().Str("task_id", c.TaskID).Msg("executing claimed task")
			if err := executor.Execute(ctx, c.TaskID); err != nil {
				logger.Error().Err(err).Str("task_id", c.TaskID).Msg("task execution failed")
				if err := claims.MarkForReassignment(c.TaskID); err != nil {
					logger.Error().Err(err).Str("task_id", c.TaskID).Msg("failed to mark for reassignment")
				}
				continue
			}

			if err := claims.Release(c.TaskID, workerID); err != nil {
				logger.Error().Err(err).Str("task_id", c.TaskID).Msg("failed to release claim")
			}
		}
	}
}

// Example task handlers.

func echoHandler(ctx context.Context, taskID string) error {
	logger.Info().Str("task_id", taskID).Msg("echo handler processing task")
	return nil
}

func sleepHandler(ctx context.Context, taskID string) error {
	select {
	case <-time.After(1 * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func computeHandler(ctx context.Context, taskID string) error {
	sum := 0
	for i := 0; i < 1000000; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			sum += i
		}
	}
	return nil
}

func failHandler(ctx context.Context, taskID string) error {
	return fmt.Errorf("intentional failure for testing")
}
