package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dailybudget/internal/amqp"
	"dailybudget/internal/config"
	"dailybudget/internal/core"
	"dailybudget/internal/services"
	"dailybudget/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting recalc-worker")

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Initialize SQLite repository
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	zones, err := core.NewZoneResolver(cfg.DefaultTimezone)
	if err != nil {
		logger.Error("Failed to load default timezone", "error", err, "timezone", cfg.DefaultTimezone)
		os.Exit(1)
	}

	// Initialize AMQP client for publishing closed-day accruals. The
	// ledger-worker consumes these and appends them to the spreadsheet.
	var publisher services.AccrualPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without accrual events", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized - accruals will sync via ledger-worker")
		}
	} else {
		logger.Info("AMQP disabled - closed days will not be published")
	}

	processor := services.NewRecalcProcessor(repo, zones, publisher, cfg.RecalcConcurrency)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Balance recalculation configured",
		"interval", cfg.RecalcInterval,
		"concurrency", cfg.RecalcConcurrency,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.RecalcInterval)
	defer ticker.Stop()

	// Run initial sweep on startup
	logger.Info("Running initial balance recalculation...")
	if count, err := processor.RecalculateAll(ctx, time.Now()); err != nil {
		logger.Error("Initial recalculation failed", "error", err)
	} else {
		logger.Info("Initial recalculation complete", "users_advanced", count)
	}

	// Start periodic sweeps
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				count, err := processor.RecalculateAll(ctx, now)
				if err != nil {
					logger.Error("Periodic recalculation failed", "error", err)
				} else {
					logger.Info("Periodic recalculation complete",
						"users_advanced", count,
						"next_check", now.Add(cfg.RecalcInterval).Format("15:04:05"))
				}
			}
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Recalc worker stopped gracefully")
}
