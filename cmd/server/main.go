package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/segyhp/loan-origination/internal/app"
	"github.com/segyhp/loan-origination/internal/config"
	"github.com/segyhp/loan-origination/internal/handler"
	"github.com/segyhp/loan-origination/pkg/response"
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

	application, err := app.New(context.Background(), cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	// in-memory state is invisible to a separate scheduler process
	var scheduler *cron.Cron
	if cfg.Storage.Backend == "memory" {
		scheduler, err = app.NewScheduler(cfg, application.Workflow, logger)
		if err != nil {
			logger.Fatal("Failed to schedule jobs", zap.Error(err))
		}
		scheduler.Start()
	}

	workflowHandler := handler.NewWorkflowHandler(application.Workflow, logger)
	healthHandler := handler.NewHealthHandler(application.DB, application.Redis, cfg.GetHealthTimeout())

	// Setup routes
	router := setupRoutes(workflowHandler, healthHandler, logger)

	// Start server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", zap.String("addr", server.Addr), zap.String("storage", cfg.Storage.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	// in-flight bookings report back before the stores close
	application.Close()
	logger.Info("Server exited")
}

func setupRoutes(workflowHandler *handler.WorkflowHandler, healthHandler *handler.HealthHandler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.NewLoggingMiddleware(logger))
	router.Use(response.CORSMiddleware)

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods("GET")

	/// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	workflowHandler.RegisterRoutes(api)

	return router
}
