package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segyhp/loan-origination/internal/config"
	"github.com/segyhp/loan-origination/internal/disbursement"
	"github.com/segyhp/loan-origination/internal/external/corebanking"
	"github.com/segyhp/loan-origination/internal/external/party"
	"github.com/segyhp/loan-origination/internal/lock"
	"github.com/segyhp/loan-origination/internal/repository"
	"github.com/segyhp/loan-origination/internal/service"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired workflow and the connections it owns
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	DB         *sqlx.DB
	Redis      *redis.Client
	Workflow   *service.Workflow
	Dispatcher *service.BookingDispatcher
}

// New connects the configured backends and builds the workflow. When
// applyMigrations is set, pending schema migrations run first on postgres.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, applyMigrations bool) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if needsRedis(cfg) {
		client, err := initRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Redis = client
	}

	var repos repository.Repositories
	switch cfg.Storage.Backend {
	case "postgres":
		db, err := initDB(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.DB = db
		if applyMigrations {
			if err := runMigrations(db, cfg.Storage.MigrationsPath, logger); err != nil {
				a.Close()
				return nil, err
			}
		}
		repos = repository.NewPostgresRepositories(db, repository.NewRedisAllocationStore(a.Redis, cfg.GetAllocationTTL()))
	default:
		repos = repository.NewMemoryRepositories()
		if a.Redis != nil {
			repos.Allocations = repository.NewRedisAllocationStore(a.Redis, cfg.GetAllocationTTL())
		}
		logger.Warn("using in-memory storage; state is lost on restart")
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Lock.Backend == "redis" {
		locker = lock.NewRedisLocker(a.Redis, cfg.GetLockTTL(), logger)
	}

	var parties service.PartyDirectory = party.AcceptAll{}
	if cfg.External.PartyServiceURL != "" {
		parties = party.NewClient(cfg.External.PartyServiceURL, cfg.GetExternalTimeout(), logger)
	} else {
		logger.Warn("PARTY_SERVICE_URL not set; every party id is accepted")
	}

	if cfg.External.CoreBankingURL != "" {
		gateway := corebanking.NewClient(cfg.External.CoreBankingURL, cfg.GetExternalTimeout(), logger)
		a.Dispatcher = service.NewBookingDispatcher(gateway, cfg.GetExternalTimeout(), logger)
	} else {
		logger.Info("CORE_BANKING_URL not set; booking results are expected on the callback route")
	}

	a.Workflow = service.NewWorkflow(service.WorkflowDeps{
		Repositories:  repos,
		Allocator:     disbursement.NewAllocator(cfg.GetDisbursementTolerance()),
		Parties:       parties,
		Booking:       a.Dispatcher,
		Locker:        locker,
		Conditions:    service.StaticConditionPolicy{Types: cfg.GetOfferConditions()},
		OfferValidity: cfg.GetOfferValidity(),
		SLAThresholds: cfg.SLAThresholds(),
		LockWait:      cfg.GetLockWaitTimeout(),
		Logger:        logger,
	})

	return a, nil
}

// Close waits for in-flight bookings and closes the connections
func (a *App) Close() {
	if a.Dispatcher != nil {
		a.Dispatcher.Wait()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error("failed to close database", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("failed to close redis", zap.Error(err))
		}
	}
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Lock.Backend == "redis" || cfg.Storage.Backend == "postgres" || cfg.Redis.URL != ""
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	if cfg.Redis.URL != "" {
		parsed, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.GetHealthTimeout())
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func runMigrations(db *sqlx.DB, path string, logger *zap.Logger) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	if !strings.Contains(path, "://") {
		path = "file://" + path
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	logger.Info("database migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
