// Package messaging delivers rendered reports to guardians under the
// outbound rate budget of the chat transport.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/maktab/baho-bot/pkg/clock"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// Sender is the transport collaborator: one synchronous send attempt.
// Timeouts are owned by the implementation and surface as errors.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, chatID int64, text string) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}

// Message is one rendered report addressed to one chat.
type Message struct {
	ChatID    int64
	StudentID string
	Text      string
}

// Failure describes one message that could not be delivered.
type Failure struct {
	ChatID    int64
	StudentID string
	Err       error
}

// Result aggregates a dispatch run.
type Result struct {
	Sent     int
	Failed   int
	Failures []Failure

	// Skipped counts messages never attempted because ctx was cancelled.
	Skipped int
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Dispatcher.
type Config struct {
	// MessageDelay is the pause after every message except the last.
	MessageDelay time.Duration

	// BatchSize: after every BatchSize-th message an extra BatchDelay is added,
	// unless that message was the last one. Zero disables batching.
	BatchSize int

	// BatchDelay is the extra pause between batches.
	BatchDelay time.Duration

	// Logger for structured logging.
	Logger *slog.Logger

	// Clock drives the pauses. Defaults to the real clock.
	Clock clock.Clock
}

// DefaultConfig matches Telegram's broadcast guidance: ~20 msg/s with a
// one-second breather every 25 messages.
func DefaultConfig() Config {
	return Config{
		MessageDelay: 50 * time.Millisecond,
		BatchSize:    25,
		BatchDelay:   time.Second,
	}
}

// Dispatcher sends messages strictly one at a time.
// Concurrent Dispatch calls are serialized so only one send is ever in flight.
type Dispatcher struct {
	sender Sender
	config Config
	logger *slog.Logger
	clock  clock.Clock

	mu sync.Mutex
}

// NewDispatcher creates a Dispatcher. Middlewares wrap sender outermost first.
func NewDispatcher(sender Sender, config Config, middlewares ...Middleware) *Dispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	for i := len(middlewares) - 1; i >= 0; i-- {
		sender = middlewares[i](sender)
	}
	return &Dispatcher{
		sender: sender,
		config: config,
		logger: config.Logger.With("component", "dispatcher"),
		clock:  config.Clock,
	}
}

// Dispatch sends messages in order. Individual failures are counted and
// logged but never abort the run. Cancelling ctx lets the in-flight send
// finish and stops before the next one.
func (d *Dispatcher) Dispatch(ctx context.Context, messages []Message) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	var res Result
	total := len(messages)
	started := d.clock.Now()

	// Sends are not cut short by shutdown; the transport timeout bounds them.
	sendCtx := context.WithoutCancel(ctx)

	for i, msg := range messages {
		if ctx.Err() != nil {
			res.Skipped = total - i
			break
		}

		if err := d.sender.Send(sendCtx, msg.ChatID, msg.Text); err != nil {
			res.Failed++
			res.Failures = append(res.Failures, Failure{ChatID: msg.ChatID, StudentID: msg.StudentID, Err: err})
			d.logger.Warn("report delivery failed",
				"chat_id", msg.ChatID,
				"student_id", msg.StudentID,
				"error", err,
			)
		} else {
			res.Sent++
		}

		last := i == total-1
		if last {
			break
		}

		if err := d.clock.Sleep(ctx, d.config.MessageDelay); err != nil {
			res.Skipped = total - i - 1
			break
		}

		if d.config.BatchSize > 0 && (i+1)%d.config.BatchSize == 0 {
			d.logger.Info("batch completed",
				"batch", (i+1)/d.config.BatchSize,
				"sent", res.Sent,
				"failed", res.Failed,
			)
			if err := d.clock.Sleep(ctx, d.config.BatchDelay); err != nil {
				res.Skipped = total - i - 1
				break
			}
		}
	}

	d.logger.Info("dispatch finished",
		"total", total,
		"sent", res.Sent,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"duration", d.clock.Now().Sub(started).String(),
	)

	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps a Sender.
type Middleware func(Sender) Sender

// RecoveryMiddleware turns a panicking send into an ordinary failure.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next Sender) Sender {
		return SenderFunc(func(ctx context.Context, chatID int64, text string) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("sender panic recovered",
						"chat_id", chatID,
						"panic", r,
						"stack", string(debug.Stack()),
					)
					err = fmt.Errorf("sender panic: %v", r)
				}
			}()
			return next.Send(ctx, chatID, text)
		})
	}
}

// LoggingMiddleware logs every send at debug level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next Sender) Sender {
		return SenderFunc(func(ctx context.Context, chatID int64, text string) error {
			start := time.Now()
			err := next.Send(ctx, chatID, text)
			logger.Debug("send attempted",
				"chat_id", chatID,
				"bytes", len(text),
				"duration", time.Since(start).String(),
				"ok", err == nil,
			)
			return err
		})
	}
}

// Recorder receives per-message outcomes.
type Recorder interface {
	MessageSent()
	MessageFailed()
	ObserveSend(d time.Duration)
}

// MetricsMiddleware reports outcomes and latency to rec.
func MetricsMiddleware(rec Recorder) Middleware {
	return func(next Sender) Sender {
		return SenderFunc(func(ctx context.Context, chatID int64, text string) error {
			start := time.Now()
			err := next.Send(ctx, chatID, text)
			rec.ObserveSend(time.Since(start))
			if err != nil {
				rec.MessageFailed()
			} else {
				rec.MessageSent()
			}
			return err
		})
	}
}
