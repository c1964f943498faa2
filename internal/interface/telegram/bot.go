package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maktab/baho-bot/internal/infrastructure/external/telegram"
	"github.com/maktab/baho-bot/internal/interface/telegram/middleware"
	"github.com/maktab/baho-bot/pkg/clock"
	"github.com/maktab/baho-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// PollingTimeout is the long poll timeout in seconds.
	PollingTimeout int

	// Limit is the maximum number of updates per poll.
	Limit int

	// ErrorBackoff is the pause after a failed poll.
	ErrorBackoff time.Duration

	Logger *slog.Logger
	Clock  clock.Clock
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		PollingTimeout: 30,
		Limit:          100,
		ErrorBackoff:   5 * time.Second,
	}
}

// UpdateSource is where updates come from. *telegram.Client satisfies it.
type UpdateSource interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	GetUpdates(ctx context.Context, offset int64, limit, timeout int) ([]telegram.Update, error)
}

// Stats counts handled updates.
type Stats struct {
	StartedAt time.Time
	Handled   int64
	Failed    int64
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot long-polls for updates and hands each to the handler in order.
type Bot struct {
	config  BotConfig
	source  UpdateSource
	handler middleware.Handler
	logger  *slog.Logger

	offset    int64
	handled   atomic.Int64
	failed    atomic.Int64
	startedAt atomic.Pointer[time.Time]

	mu      sync.Mutex
	running bool
}

// NewBot creates a bot. handler is usually a Router wrapped in middlewares.
func NewBot(config BotConfig, source UpdateSource, handler middleware.Handler) *Bot {
	def := DefaultBotConfig()
	if config.PollingTimeout <= 0 {
		config.PollingTimeout = def.PollingTimeout
	}
	if config.Limit <= 0 {
		config.Limit = def.Limit
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = def.ErrorBackoff
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	return &Bot{
		config:  config,
		source:  source,
		handler: handler,
		logger:  config.Logger.With(logger.Component("bot")),
	}
}

// Run verifies the token and polls until ctx is done. It returns nil on
// cancellation.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	me, err := b.source.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}
	now := b.config.Clock.Now()
	b.startedAt.Store(&now)
	b.logger.Info("bot verified",
		slog.Int64("id", me.ID),
		slog.String("username", me.Username),
	)

	b.logger.Info("starting long polling", slog.Int("timeout_s", b.config.PollingTimeout))
	for {
		if ctx.Err() != nil {
			b.logger.Info("stopping long polling")
			return nil
		}
		b.PollOnce(ctx)
	}
}

// PollOnce fetches one batch of updates and handles it. A failed fetch
// backs off before returning.
func (b *Bot) PollOnce(ctx context.Context) {
	updates, err := b.source.GetUpdates(ctx, b.offset, b.config.Limit, b.config.PollingTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("failed to get updates", logger.Err(err))
		_ = b.config.Clock.Sleep(ctx, b.config.ErrorBackoff)
		return
	}

	for i := range updates {
		update := &updates[i]
		if update.UpdateID >= b.offset {
			b.offset = update.UpdateID + 1
		}
		if err := b.handler(ctx, update); err != nil {
			b.failed.Add(1)
			b.logger.Error("failed to handle update",
				slog.Int64("update_id", update.UpdateID),
				logger.Err(err),
			)
			continue
		}
		b.handled.Add(1)
	}
}

// IsRunning returns whether Run is active.
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Stats returns update counters.
func (b *Bot) Stats() Stats {
	s := Stats{Handled: b.handled.Load(), Failed: b.failed.Load()}
	if t := b.startedAt.Load(); t != nil {
		s.StartedAt = *t
	}
	return s
}

// Offset returns the next update id to request.
func (b *Bot) Offset() int64 {
	return b.offset
}
