// Package main - Telegram-бот для родителей: привязка чата к ученику по
// логину и паролю, сегодняшние оценки по кнопке, настройки уведомлений.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maktab/baho-bot/config"
	"github.com/maktab/baho-bot/internal/application/command"
	"github.com/maktab/baho-bot/internal/application/query"
	"github.com/maktab/baho-bot/internal/application/report"
	"github.com/maktab/baho-bot/internal/infrastructure/external/telegram"
	"github.com/maktab/baho-bot/internal/infrastructure/persistence/postgres"
	"github.com/maktab/baho-bot/internal/infrastructure/persistence/redis"
	bot "github.com/maktab/baho-bot/internal/interface/telegram"
	"github.com/maktab/baho-bot/internal/interface/telegram/handler"
	"github.com/maktab/baho-bot/internal/interface/telegram/middleware"
	"github.com/maktab/baho-bot/internal/interface/telegram/presenter"
	"github.com/maktab/baho-bot/pkg/clock"
	"github.com/maktab/baho-bot/pkg/logger"
	"github.com/maktab/baho-bot/pkg/retry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
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
	log.Info("starting guardian bot", "env", cfg.App.Environment, "version", cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)

	db, err := retry.Value(ctx, retry.StartupRetrier(), func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pgCfg)
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Уже применённые миграции пропускаются.
	if cfg.Database.Migrate {
		if _, err := postgres.NewMigrator(db.DB()).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. СЕССИИ (Redis или память процесса)
	// ─────────────────────────────────────────────────────────────────────────
	var sessions handler.SessionStore
	if cfg.Redis.Enabled() {
		rCfg := redis.DefaultConfig()
		rCfg.URL = cfg.Redis.URL
		rCfg.PoolSize = cfg.Redis.PoolSize
		rCfg.MinIdleConns = cfg.Redis.MinIdleConns
		rCfg.DialTimeout = cfg.Redis.DialTimeout
		rCfg.ReadTimeout = cfg.Redis.ReadTimeout
		rCfg.WriteTimeout = cfg.Redis.WriteTimeout

		cache, err := redis.NewCache(ctx, rCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer cache.Close()

		sessions = redis.NewSessionStore[handler.Session](cache, cfg.Telegram.SessionTTL)
		log.Info("sessions stored in redis", "ttl", cfg.Telegram.SessionTTL.String())
	} else {
		sessions = handler.NewMemorySessionStore(cfg.Telegram.SessionTTL, clock.Real())
		log.Warn("REDIS_URL not set, sessions kept in memory")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. USE CASES
	// ─────────────────────────────────────────────────────────────────────────
	sqlDB := db.DB()
	links := postgres.NewRecipientRepository(sqlDB)
	accounts := postgres.NewAccountRepository(sqlDB)

	loc := cfg.Report.Location
	renderer := report.NewService(
		report.NewResolver(postgres.NewScheduleRepository(sqlDB), cfg.Report.RestDay, loc),
		postgres.NewGradeRepository(sqlDB),
		report.NewBuilder(loc),
		loc,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. TELEGRAM
	// ─────────────────────────────────────────────────────────────────────────
	clientCfg := telegram.DefaultClientConfig(cfg.Telegram.Token)
	clientCfg.BaseURL = cfg.Telegram.BaseURL
	clientCfg.RetryAttempts = cfg.Telegram.RetryAttempts
	clientCfg.Logger = log
	// HTTP-таймаут должен быть больше long poll.
	clientCfg.Timeout = max(cfg.Telegram.RequestTimeout, cfg.Telegram.PollTimeout+10*time.Second)
	client := telegram.NewClient(clientCfg)

	guardian := handler.NewGuardian(handler.Dependencies{
		Messenger: client,
		Sessions:  sessions,
		Links:     links,
		Link:      command.NewLinkGuardianHandler(accounts, links, log),
		Unlink:    command.NewUnlinkGuardianHandler(links, log),
		Toggle:    command.NewToggleNotificationsHandler(links, log),
		Today:     query.NewTodayReportHandler(links, renderer, clock.Real(), loc),
		Clock:     clock.Real(),
		Logger:    log,
	})
	router := bot.NewGuardianRouter(guardian, log)

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.Telegram.UserRateLimit,
		BurstSize:         cfg.Telegram.UserBurst,
	})

	replyError := func(ctx context.Context, chatID int64, text string) {
		if chatID == 0 {
			return
		}
		if _, err := client.SendMarkdown(context.WithoutCancel(ctx), chatID, text, nil); err != nil {
			log.Debug("failed to send service reply", "chat_id", chatID, "error", err)
		}
	}

	updates := middleware.Chain(router.Handle,
		middleware.Recovery(log, func(ctx context.Context, info middleware.PanicInfo) {
			replyError(ctx, info.ChatID, presenter.ErrorGeneral)
		}),
		middleware.Logging(log),
		middleware.RateLimit(limiter, func(ctx context.Context, u *telegram.Update) {
			replyError(ctx, u.ChatID(), presenter.RateLimited)
		}),
	)

	poller := bot.NewBot(bot.BotConfig{
		PollingTimeout: int(cfg.Telegram.PollTimeout / time.Second),
		Logger:         log,
	}, client, updates)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return poller.Run(gctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := limiter.Cleanup(); n > 0 {
					log.Debug("rate limiter buckets dropped", "count", n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Error("bot stopped with error", "error", err)
		return err
	}

	stats := poller.Stats()
	log.Info("bot stopped", "handled", stats.Handled, "failed", stats.Failed)
	return nil
}
