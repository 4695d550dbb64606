package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/segyhp/loan-origination/internal/app"
	"github.com/segyhp/loan-origination/internal/config"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting workflow scheduler...")
	if cfg.Storage.Backend == "memory" {
		logger.Warn("in-memory storage is per process; the server runs these jobs itself")
	}

	// the server owns migrations
	application, err := app.New(context.Background(), cfg, logger, false)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	c, err := app.NewScheduler(cfg, application.Workflow, logger)
	if err != nil {
		logger.Fatal("Failed to schedule jobs", zap.Error(err))
	}

	// Start the scheduler
	c.Start()
	logger.Info("Scheduler started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler...")
	<-c.Stop().Done()
	logger.Info("Scheduler stopped")
}
