package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/segyhp/loan-origination/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application. Sections are squashed
// so every key stays a flat environment variable name.
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Storage   StorageConfig   `mapstructure:",squash"`
	Lock      LockConfig      `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	Workflow  WorkflowConfig  `mapstructure:",squash"`
	SLA       SLAConfig       `mapstructure:",squash"`
	External  ExternalConfig  `mapstructure:",squash"`
	Health    HealthConfig    `mapstructure:",squash"`
}

type ServerConfig struct {
	Port            string `mapstructure:"SERVER_PORT"`
	Host            string `mapstructure:"SERVER_HOST"`
	Env             string `mapstructure:"ENV"`
	ReadTimeout     string `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout    string `mapstructure:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout string `mapstructure:"SERVER_SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	URL          string `mapstructure:"DATABASE_URL"`
	Host         string `mapstructure:"DATABASE_HOST"`
	Port         string `mapstructure:"DATABASE_PORT"`
	Name         string `mapstructure:"DATABASE_NAME"`
	User         string `mapstructure:"DATABASE_USER"`
	Password     string `mapstructure:"DATABASE_PASSWORD"`
	SSLMode      string `mapstructure:"DATABASE_SSLMODE"`
	MaxOpenConns int    `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
}

type RedisConfig struct {
	URL      string `mapstructure:"REDIS_URL"`
	Host     string `mapstructure:"REDIS_HOST"`
	Port     string `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type StorageConfig struct {
	Backend        string `mapstructure:"STORAGE_BACKEND"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`
	AllocationTTL  string `mapstructure:"ALLOCATION_TTL"`
}

type LockConfig struct {
	Backend     string `mapstructure:"LOCK_BACKEND"`
	TTL         string `mapstructure:"LOCK_TTL"`
	WaitTimeout string `mapstructure:"LOCK_WAIT_TIMEOUT"`
}

type SchedulerConfig struct {
	OfferExpiryCron string `mapstructure:"OFFER_EXPIRY_CRON"`
	SLAScanCron     string `mapstructure:"SLA_SCAN_CRON"`
	Timezone        string `mapstructure:"SCHEDULER_TIMEZONE"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"LOG_LEVEL"`
	Format     string `mapstructure:"LOG_FORMAT"`
	OutputPath string `mapstructure:"LOG_OUTPUT"`
}

type WorkflowConfig struct {
	DisbursementTolerance string `mapstructure:"DISBURSEMENT_TOLERANCE"`
	OfferValidityDays     int    `mapstructure:"OFFER_VALIDITY_DAYS"`
	OfferConditions       string `mapstructure:"OFFER_CONDITIONS"`
}

// SLAConfig holds per-phase day thresholds. Zero disables the check.
type SLAConfig struct {
	OriginationDays int `mapstructure:"SLA_ORIGINATION_DAYS"`
	DecisioningDays int `mapstructure:"SLA_DECISIONING_DAYS"`
	OfferDays       int `mapstructure:"SLA_OFFER_DAYS"`
	BookingDays     int `mapstructure:"SLA_BOOKING_DAYS"`
}

type ExternalConfig struct {
	PartyServiceURL string `mapstructure:"PARTY_SERVICE_URL"`
	CoreBankingURL  string `mapstructure:"CORE_BANKING_URL"`
	Timeout         string `mapstructure:"EXTERNAL_TIMEOUT"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT":             "8080",
	"SERVER_HOST":             "0.0.0.0",
	"ENV":                     "development",
	"SERVER_READ_TIMEOUT":     "15s",
	"SERVER_WRITE_TIMEOUT":    "15s",
	"SERVER_SHUTDOWN_TIMEOUT": "30s",
	"DATABASE_URL":            "",
	"DATABASE_HOST":           "localhost",
	"DATABASE_PORT":           "5432",
	"DATABASE_NAME":           "loan_origination",
	"DATABASE_USER":           "postgres",
	"DATABASE_PASSWORD":       "",
	"DATABASE_SSLMODE":        "disable",
	"DATABASE_MAX_OPEN_CONNS": 25,
	"DATABASE_MAX_IDLE_CONNS": 5,
	"REDIS_URL":               "",
	"REDIS_HOST":              "localhost",
	"REDIS_PORT":              "6379",
	"REDIS_PASSWORD":          "",
	"REDIS_DB":                0,
	"STORAGE_BACKEND":         "postgres",
	"MIGRATIONS_PATH":         "file://migrations",
	"ALLOCATION_TTL":          "168h",
	"LOCK_BACKEND":            "memory",
	"LOCK_TTL":                "30s",
	"LOCK_WAIT_TIMEOUT":       "5s",
	"OFFER_EXPIRY_CRON":       "*/15 * * * *",
	"SLA_SCAN_CRON":           "0 7 * * *",
	"SCHEDULER_TIMEZONE":      "UTC",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "json",
	"LOG_OUTPUT":              "stdout",
	"DISBURSEMENT_TOLERANCE":  "0.01",
	"OFFER_VALIDITY_DAYS":     30,
	"OFFER_CONDITIONS":        "PROOF_OF_INCOME,SIGNED_MANDATE",
	"SLA_ORIGINATION_DAYS":    14,
	"SLA_DECISIONING_DAYS":    5,
	"SLA_OFFER_DAYS":          10,
	"SLA_BOOKING_DAYS":        2,
	"PARTY_SERVICE_URL":       "",
	"CORE_BANKING_URL":        "",
	"EXTERNAL_TIMEOUT":        "10s",
	"HEALTH_CHECK_TIMEOUT":    "5s",
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// .env values never override variables already set in the environment
	_ = godotenv.Load(".env")
	_ = godotenv.Load("deployments/.env")

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Read from environment variables
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Storage.Backend {
	case "postgres":
		if c.Database.URL == "" && (c.Database.Host == "" || c.Database.Name == "") {
			return fmt.Errorf("DATABASE_URL or DATABASE_HOST and DATABASE_NAME are required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be postgres or memory, got %q", c.Storage.Backend)
	}

	switch c.Lock.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("LOCK_BACKEND must be memory or redis, got %q", c.Lock.Backend)
	}

	tolerance, err := decimal.NewFromString(c.Workflow.DisbursementTolerance)
	if err != nil {
		return fmt.Errorf("DISBURSEMENT_TOLERANCE must be a valid decimal: %w", err)
	}
	if tolerance.IsNegative() {
		return fmt.Errorf("DISBURSEMENT_TOLERANCE must not be negative")
	}

	if c.Workflow.OfferValidityDays <= 0 {
		return fmt.Errorf("OFFER_VALIDITY_DAYS must be greater than 0")
	}

	for name, days := range map[string]int{
		"SLA_ORIGINATION_DAYS": c.SLA.OriginationDays,
		"SLA_DECISIONING_DAYS": c.SLA.DecisioningDays,
		"SLA_OFFER_DAYS":       c.SLA.OfferDays,
		"SLA_BOOKING_DAYS":     c.SLA.BookingDays,
	} {
		if days < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	durations := map[string]string{
		"SERVER_READ_TIMEOUT":     c.Server.ReadTimeout,
		"SERVER_WRITE_TIMEOUT":    c.Server.WriteTimeout,
		"SERVER_SHUTDOWN_TIMEOUT": c.Server.ShutdownTimeout,
		"ALLOCATION_TTL":          c.Storage.AllocationTTL,
		"LOCK_TTL":                c.Lock.TTL,
		"LOCK_WAIT_TIMEOUT":       c.Lock.WaitTimeout,
		"EXTERNAL_TIMEOUT":        c.External.Timeout,
		"HEALTH_CHECK_TIMEOUT":    c.Health.Timeout,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a valid duration: %w", name, err)
		}
	}

	for name, spec := range map[string]string{
		"OFFER_EXPIRY_CRON": c.Scheduler.OfferExpiryCron,
		"SLA_SCAN_CRON":     c.Scheduler.SLAScanCron,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s must be a valid cron expression: %w", name, err)
		}
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE is invalid: %w", err)
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// Addr is the listen address of the HTTP server
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// DSN returns DATABASE_URL, or a postgres URL built from the parts
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// Addr returns host:port for the redis client
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// GetDisbursementTolerance returns the reconciliation tolerance as decimal
func (c *Config) GetDisbursementTolerance() decimal.Decimal {
	tolerance, _ := decimal.NewFromString(c.Workflow.DisbursementTolerance)
	return tolerance
}

// GetOfferConditions returns the condition types seeded on every offer
func (c *Config) GetOfferConditions() []string {
	var out []string
	for _, part := range strings.Split(c.Workflow.OfferConditions, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetOfferValidity returns how long a new offer stays open
func (c *Config) GetOfferValidity() time.Duration {
	return time.Duration(c.Workflow.OfferValidityDays) * 24 * time.Hour
}

// GetSLAThreshold returns the day threshold for a phase, 0 when untracked
func (c *Config) GetSLAThreshold(phase domain.Phase) int {
	switch phase {
	case domain.PhaseOrigination:
		return c.SLA.OriginationDays
	case domain.PhaseDecisioning:
		return c.SLA.DecisioningDays
	case domain.PhaseOffer:
		return c.SLA.OfferDays
	case domain.PhaseBooking:
		return c.SLA.BookingDays
	default:
		return 0
	}
}

// SLAThresholds returns every phase threshold keyed by phase
func (c *Config) SLAThresholds() map[domain.Phase]int {
	return map[domain.Phase]int{
		domain.PhaseOrigination: c.SLA.OriginationDays,
		domain.PhaseDecisioning: c.SLA.DecisioningDays,
		domain.PhaseOffer:       c.SLA.OfferDays,
		domain.PhaseBooking:     c.SLA.BookingDays,
	}
}

func mustDuration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

// GetReadTimeout returns the server read timeout as duration
func (c *Config) GetReadTimeout() time.Duration {
	return mustDuration(c.Server.ReadTimeout)
}

// GetWriteTimeout returns the server write timeout as duration
func (c *Config) GetWriteTimeout() time.Duration {
	return mustDuration(c.Server.WriteTimeout)
}

// GetShutdownTimeout returns the graceful shutdown budget as duration
func (c *Config) GetShutdownTimeout() time.Duration {
	return mustDuration(c.Server.ShutdownTimeout)
}

// GetAllocationTTL returns how long an idle allocation is kept
func (c *Config) GetAllocationTTL() time.Duration {
	return mustDuration(c.Storage.AllocationTTL)
}

// GetLockTTL returns the redis lock expiry as duration
func (c *Config) GetLockTTL() time.Duration {
	return mustDuration(c.Lock.TTL)
}

// GetLockWaitTimeout returns how long a trigger waits for its application lock
func (c *Config) GetLockWaitTimeout() time.Duration {
	return mustDuration(c.Lock.WaitTimeout)
}

// GetExternalTimeout returns the HTTP timeout for collaborator calls
func (c *Config) GetExternalTimeout() time.Duration {
	return mustDuration(c.External.Timeout)
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	return mustDuration(c.Health.Timeout)
}

// GetSchedulerLocation returns the timezone cron schedules run in
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
