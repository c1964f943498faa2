// Package main - воркер ежедневных отчётов: в заданное время собирает
// сегодняшние оценки каждого ученика и рассылает их привязанным родителям.
//
// Запуск:
//
//	worker            - работа по расписанию (poll или cron)
//	worker -run-now   - один цикл немедленно и выход
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maktab/baho-bot/config"
	"github.com/maktab/baho-bot/internal/application/report"
	"github.com/maktab/baho-bot/internal/domain/calendar"
	"github.com/maktab/baho-bot/internal/infrastructure/external/telegram"
	"github.com/maktab/baho-bot/internal/infrastructure/messaging"
	"github.com/maktab/baho-bot/internal/infrastructure/metrics"
	"github.com/maktab/baho-bot/internal/infrastructure/persistence/postgres"
	"github.com/maktab/baho-bot/internal/infrastructure/persistence/redis"
	"github.com/maktab/baho-bot/internal/infrastructure/scheduler"
	"github.com/maktab/baho-bot/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/maktab/baho-bot/internal/interface/http"
	"github.com/maktab/baho-bot/internal/interface/http/handlers"
	"github.com/maktab/baho-bot/pkg/clock"
	"github.com/maktab/baho-bot/pkg/logger"
	"github.com/maktab/baho-bot/pkg/retry"
)

func main() {
	runNow := flag.Bool("run-now", false, "run one report cycle immediately and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *runNow); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, runNow bool) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Environment: string(cfg.App.Environment),
	})
	slog.SetDefault(log)

	log.Info("starting report worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"report_time", cfg.Report.Time.String(),
		"timezone", cfg.Report.Location.String(),
		"rest_day", cfg.Report.RestDay.String(),
		"strategy", cfg.Report.Strategy,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL И МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (опционально, общий замок срабатывания)
	// ─────────────────────────────────────────────────────────────────────────
	var lock scheduler.FireLock
	var cache *redis.Cache
	if cfg.Redis.Enabled() {
		cache, err = openRedis(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer cache.Close()

		fireLock := redis.NewFireLock(cache, "")
		lock = fireLock
		log.Info("redis fire lock enabled", "owner", fireLock.Owner())
	} else {
		log.Warn("REDIS_URL not set, duplicate firing is suppressed in-process only")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. TELEGRAM И РАССЫЛКА
	// ─────────────────────────────────────────────────────────────────────────
	clientCfg := telegram.DefaultClientConfig(cfg.Telegram.Token)
	clientCfg.BaseURL = cfg.Telegram.BaseURL
	clientCfg.Timeout = cfg.Telegram.RequestTimeout
	clientCfg.RetryAttempts = cfg.Telegram.RetryAttempts
	clientCfg.Logger = log
	client := telegram.NewClient(clientCfg)

	m := metrics.New()

	dispatcher := messaging.NewDispatcher(client, messaging.Config{
		MessageDelay: cfg.Report.MessageDelay,
		BatchSize:    cfg.Report.BatchSize,
		BatchDelay:   cfg.Report.BatchDelay,
		Logger:       log,
	},
		messaging.RecoveryMiddleware(log),
		messaging.MetricsMiddleware(m),
		messaging.LoggingMiddleware(log),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ОТЧЁТЫ
	// ─────────────────────────────────────────────────────────────────────────
	sqlDB := db.DB()
	links := postgres.NewRecipientRepository(sqlDB)
	grades := postgres.NewGradeRepository(sqlDB)
	lessons := postgres.NewScheduleRepository(sqlDB)
	holidays := postgres.NewHolidayRepository(sqlDB, log)

	loc := cfg.Report.Location
	renderer := report.NewService(
		report.NewResolver(lessons, cfg.Report.RestDay, loc),
		grades,
		report.NewBuilder(loc),
		loc,
	)

	job := jobs.NewDailyReportJob(links, renderer, dispatcher, m, clock.Real(), log, jobs.DefaultDailyReportConfig())

	core := scheduler.NewReportTrigger(scheduler.ReportTriggerConfig{
		Target:    cfg.Report.Time,
		Location:  loc,
		Gate:      calendar.NewService(holidays, cfg.Report.RestDay, loc),
		Cycle:     job,
		Lock:      lock,
		Logger:    log,
		OnOutcome: m.ObserveOutcome,
	})

	if runNow {
		outcome := core.RunNow(ctx, time.Now())
		log.Info("manual cycle finished", "outcome", outcome)
		if outcome == scheduler.OutcomeFailed || outcome == scheduler.OutcomeCalendarError {
			return fmt.Errorf("manual cycle: %s", outcome)
		}
		return nil
	}

	trigger := newTrigger(cfg, core, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP (health, metrics)
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.PingCheck(db))
	if cache != nil {
		health.AddCheck("redis", handlers.PingCheck(cache))
	}

	srvCfg := httpserver.DefaultConfig()
	srvCfg.Addr = cfg.Metrics.Addr
	deps := httpserver.Dependencies{
		Health: health,
		LastCycle: func() (any, bool) {
			return job.LastSummary()
		},
		Logger: log,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = m.Handler()
	}
	srv := httpserver.NewServer(srvCfg, deps)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting ops server", "addr", srvCfg.Addr)
		return srv.Start()
	})

	g.Go(func() error {
		if err := trigger.Start(gctx); err != nil {
			return fmt.Errorf("start %s trigger: %w", trigger.Name(), err)
		}
		log.Info("report trigger started", "strategy", trigger.Name())
		<-gctx.Done()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "timeout", cfg.App.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := trigger.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			errs = append(errs, fmt.Errorf("stop trigger: %w", err))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop ops server: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", "error", err)
		return err
	}
	log.Info("worker stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func newTrigger(cfg *config.Config, core *scheduler.ReportTrigger, log *slog.Logger) scheduler.Trigger {
	if cfg.Report.Strategy == config.StrategyCron {
		return scheduler.NewCronTrigger(core, cfg.Report.RestDay, clock.Real(), log)
	}
	return scheduler.NewPollTrigger(core, scheduler.SchedulerConfig{
		Logger:   log,
		Timezone: cfg.Report.Location,
	}, cfg.Report.PollInterval)
}

// openDatabase подключается к Postgres с повторами и применяет миграции.
func openDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	startup := retry.StartupRetrier(retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		log.Warn("postgres not ready, retrying", "attempt", attempt, "delay", delay.String(), "error", err)
	}))
	conn, err := retry.Value(ctx, startup, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pgCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.Migrate {
		applied, err := postgres.NewMigrator(conn.DB()).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations completed", "applied", applied)
	}
	return conn, nil
}

func openRedis(ctx context.Context, cfg *config.Config, log *slog.Logger) (*redis.Cache, error) {
	rCfg := redis.DefaultConfig()
	rCfg.URL = cfg.Redis.URL
	rCfg.PoolSize = cfg.Redis.PoolSize
	rCfg.MinIdleConns = cfg.Redis.MinIdleConns
	rCfg.DialTimeout = cfg.Redis.DialTimeout
	rCfg.ReadTimeout = cfg.Redis.ReadTimeout
	rCfg.WriteTimeout = cfg.Redis.WriteTimeout

	cache, err := retry.Value(ctx, retry.StartupRetrier(), func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, rCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("redis connection established")
	return cache, nil
}
