// Package main is the entry point for the farmapos API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"farmapos/internal/config"
	"farmapos/internal/domain/auth"
	"farmapos/internal/domain/pricing"
	v1 "farmapos/internal/infrastructure/http/v1"
	"farmapos/internal/infrastructure/numerator"
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

	ctx := context.Background()
	log.Info("starting farmapos server")

	// --- Database ---
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- JWT Service ---
	jwtService := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.JWTSecret,
		Issuer:         "farmapos",
		AccessTokenTTL: cfg.AccessTokenTTL,
		TerminalSecret: cfg.TerminalSecret,
	})

	// --- Numerator ---
	numeratorService := numerator.New(pool)

	// --- Pricing rules ---
	rules, err := pricing.LoadRules(cfg.PricingRulesPath)
	if err != nil {
		log.Fatalw("failed to load pricing rules", "error", err)
	}
	evaluator, err := pricing.NewEvaluator(rules)
	if err != nil {
		log.Fatalw("failed to compile pricing rules", "error", err)
	}
	log.Infow("pricing rules compiled", "count", len(rules))

	// --- Audit trail ---
	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	// --- Outbox ---
	var outbox *postgres.OutboxPublisher
	if cfg.OutboxEnabled {
		outbox = postgres.NewOutboxPublisher(txManager)
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:               pool,
		TxManager:          txManager,
		Logger:             log,
		JWT:                jwtService,
		Numerator:          numeratorService,
		Pricing:            evaluator,
		Audit:              auditService,
		Outbox:             outbox,
		IdempotencyEnabled: cfg.IdempotencyEnabled,
		IdempotencyTTL:     cfg.IdempotencyTTL,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
