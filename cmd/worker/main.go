// Package main is the entry point for the farmapos background worker.
// It relays settlement events out of the transactional outbox and
// cleans up expired idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"farmapos/internal/config"
	"farmapos/internal/infrastructure/storage/postgres"
	"farmapos/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log = log.WithComponent("worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting farmapos worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	relay := postgres.NewOutboxRelay(pool.Unwrap(), cfg.OutboxBatchSize, &logHandler{log: log})
	idempotency := postgres.NewIdempotencyStore(pool, txManager, cfg.IdempotencyTTL)

	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, cfg, log, relay, idempotency)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	<-done
	log.Info("worker stopped")
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger, relay *postgres.OutboxRelay, idempotency *postgres.IdempotencyStore) {
	relayTicker := time.NewTicker(cfg.OutboxInterval)
	defer relayTicker.Stop()

	cleanupTicker := time.NewTicker(1 * time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-relayTicker.C:
			if !cfg.OutboxEnabled {
				continue
			}
			processed, err := relay.ProcessBatch(ctx)
			if err != nil {
				log.Errorw("outbox batch failed", "error", err)
				continue
			}
			if processed > 0 {
				log.Debugw("processed outbox batch", "count", processed)
			}

		case <-cleanupTicker.C:
			if moved, err := relay.MoveToDLQ(ctx); err != nil {
				log.Errorw("outbox DLQ sweep failed", "error", err)
			} else if moved > 0 {
				log.Warnw("moved exhausted outbox messages to DLQ", "count", moved)
			}

			if removed, err := idempotency.CleanupExpired(ctx); err != nil {
				log.Errorw("idempotency cleanup failed", "error", err)
			} else if removed > 0 {
				log.Infow("cleaned up idempotency keys", "count", removed)
			}
		}
	}
}

// logHandler is the default outbox handler: it logs each event. A real
// deployment swaps this for a message broker publisher.
type logHandler struct {
	log *logger.Logger
}

func (h *logHandler) Handle(_ context.Context, msg *postgres.OutboxMessage) error {
	h.log.Infow("event published",
		"event_type", msg.EventType,
		"aggregate_type", msg.AggregateType,
		"aggregate_id", msg.AggregateID,
	)
	return nil
}
