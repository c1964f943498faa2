// Package config loads baho-bot settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/maktab/baho-bot/pkg/timeutil"
)

// Environment is the deployment stage named by APP_ENV.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Report trigger strategies.
const (
	StrategyPoll = "poll"
	StrategyCron = "cron"
)

// Config is shared by the bot and the worker; each binary reads the parts it
// needs.
type Config struct {
	App      AppConfig
	Telegram TelegramConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Report   ReportConfig
	Metrics  MetricsConfig
}

type AppConfig struct {
	Name            string
	Environment     Environment
	Version         string
	LogLevel        string
	ShutdownTimeout time.Duration
}

type TelegramConfig struct {
	Token          string
	BaseURL        string
	RequestTimeout time.Duration
	RetryAttempts  int

	// Bot only.
	PollTimeout   time.Duration
	UserRateLimit int // updates per minute per chat
	UserBurst     int
	SessionTTL    time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Migrate applies pending embedded migrations at startup.
	Migrate bool
}

// RedisConfig is optional: without a URL both binaries fall back to
// in-process state.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (r RedisConfig) Enabled() bool { return r.URL != "" }

// ReportConfig drives the daily cycle. The raw strings are resolved into
// Time, Location and RestDay by Validate.
type ReportConfig struct {
	DailyTime   string
	Timezone    string
	RestDayName string

	Time     timeutil.ClockTime
	Location *time.Location
	RestDay  time.Weekday

	Strategy     string
	PollInterval time.Duration

	MessageDelay time.Duration
	BatchSize    int
	BatchDelay   time.Duration
}

// MetricsConfig is the worker's ops listener.
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// Load reads .env when present, then the environment, and validates.
func Load() (*Config, error) {
	// Missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{
		App:      loadAppConfig(),
		Telegram: loadTelegramConfig(),
		Database: loadDatabaseConfig(),
		Redis:    loadRedisConfig(),
		Metrics:  loadMetricsConfig(),
	}
	cfg.Report = loadReportConfig(cfg.App.Environment)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Name:            str("APP_NAME", "baho-bot"),
		Environment:     Environment(strings.ToLower(str("APP_ENV", string(EnvDevelopment)))),
		Version:         str("APP_VERSION", "0.1.0"),
		LogLevel:        str("LOG_LEVEL", "info"),
		ShutdownTimeout: duration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadTelegramConfig() TelegramConfig {
	return TelegramConfig{
		Token:          str("BOT_TOKEN", str("TELEGRAM_BOT_TOKEN", "")),
		BaseURL:        str("TELEGRAM_API_URL", "https://api.telegram.org"),
		RequestTimeout: duration("TELEGRAM_REQUEST_TIMEOUT", time.Minute),
		RetryAttempts:  integer("TELEGRAM_RETRY_ATTEMPTS", 3),
		PollTimeout:    duration("TELEGRAM_POLL_TIMEOUT", 30*time.Second),
		UserRateLimit:  integer("TELEGRAM_USER_RATE_LIMIT", 20),
		UserBurst:      integer("TELEGRAM_USER_BURST", 5),
		SessionTTL:     duration("SESSION_TTL", 10*time.Minute),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             str("DATABASE_URL", ""),
		MaxConns:        integer("DB_MAX_CONNS", 10),
		MinConns:        integer("DB_MIN_CONNS", 1),
		ConnMaxLifetime: duration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: duration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		Migrate:         boolean("DB_MIGRATE", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:          str("REDIS_URL", ""),
		PoolSize:     integer("REDIS_POOL_SIZE", 10),
		MinIdleConns: integer("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  duration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func loadReportConfig(env Environment) ReportConfig {
	strategy := StrategyPoll
	if env == EnvProduction {
		strategy = StrategyCron
	}

	return ReportConfig{
		DailyTime:    str("DAILY_REPORT_TIME", "18:00"),
		Timezone:     str("TIMEZONE", "Asia/Tashkent"),
		RestDayName:  str("REST_DAY", "sunday"),
		Strategy:     strings.ToLower(str("SCHEDULER_STRATEGY", strategy)),
		PollInterval: duration("SCHEDULER_POLL_INTERVAL", time.Minute),
		MessageDelay: millis("MESSAGE_DELAY_MS", 50),
		BatchSize:    integer("BATCH_SIZE", 25),
		BatchDelay:   millis("BATCH_DELAY_MS", 1000),
	}
}

func loadMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: boolean("METRICS_ENABLED", true),
		Addr:    str("METRICS_ADDR", ":9090"),
	}
}

// Validate checks the configuration and resolves derived fields (report
// time, location, rest day). All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Telegram.Token == "" {
		errs = append(errs, "BOT_TOKEN is required")
	}
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	switch c.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Sprintf("APP_ENV %q must be development, staging or production", c.App.Environment))
	}

	if t, err := timeutil.ParseClock(c.Report.DailyTime); err != nil {
		errs = append(errs, "DAILY_REPORT_TIME: "+err.Error())
	} else {
		c.Report.Time = t
	}

	if loc, err := timeutil.LoadLocation(c.Report.Timezone); err != nil {
		errs = append(errs, "TIMEZONE: "+err.Error())
	} else {
		c.Report.Location = loc
	}

	if d, err := timeutil.ParseWeekday(c.Report.RestDayName); err != nil {
		errs = append(errs, "REST_DAY: "+err.Error())
	} else {
		c.Report.RestDay = d
	}

	if c.Report.Strategy != StrategyPoll && c.Report.Strategy != StrategyCron {
		errs = append(errs, fmt.Sprintf("SCHEDULER_STRATEGY %q must be poll or cron", c.Report.Strategy))
	}

	// Poll ticks sit on interval boundaries, so only divisors of a minute
	// are guaranteed to hit the report minute.
	if p := c.Report.PollInterval; p <= 0 || p > time.Minute || time.Minute%p != 0 {
		errs = append(errs, fmt.Sprintf("SCHEDULER_POLL_INTERVAL %s must be positive and divide 1m", p))
	}

	if c.Report.MessageDelay < 0 {
		errs = append(errs, "MESSAGE_DELAY_MS must not be negative")
	}
	if c.Report.BatchSize < 0 {
		errs = append(errs, "BATCH_SIZE must not be negative")
	}
	if c.Report.BatchDelay < 0 {
		errs = append(errs, "BATCH_DELAY_MS must not be negative")
	}
	if c.Telegram.SessionTTL <= 0 {
		errs = append(errs, "SESSION_TTL must be positive")
	}

	if len(errs) > 0 {
		return errors.New("invalid configuration:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsProduction selects JSON logs and the cron strategy by default.
func (c *Config) IsProduction() bool { return c.App.Environment == EnvProduction }

// ══════════════════════════════════════════════════════════════════════════════
// ENV PARSING
// ══════════════════════════════════════════════════════════════════════════════

// lookup returns def when key is unset, empty or fails to parse.
func lookup[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func str(key, def string) string {
	return lookup(key, def, func(s string) (string, error) { return s, nil })
}

func boolean(key string, def bool) bool { return lookup(key, def, strconv.ParseBool) }

func integer(key string, def int) int { return lookup(key, def, strconv.Atoi) }

func duration(key string, def time.Duration) time.Duration {
	return lookup(key, def, time.ParseDuration)
}

func millis(key string, def int) time.Duration {
	return time.Duration(integer(key, def)) * time.Millisecond
}
