// Package middleware wraps update handling of the guardian bot.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/maktab/baho-bot/internal/infrastructure/external/telegram"
)

// Handler processes one update.
type Handler func(ctx context.Context, update *telegram.Update) error

// Middleware decorates a Handler.
type Middleware func(next Handler) Handler

// Chain applies middlewares so that the first one is the outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY MIDDLEWARE
// A panicking handler must not kill the polling loop.
// ══════════════════════════════════════════════════════════════════════════════

// PanicInfo describes a recovered panic.
type PanicInfo struct {
	UpdateID   int64
	ChatID     int64
	Value      any
	StackTrace string
	Timestamp  time.Time
}

// Recovery turns a panic into an error. onPanic, when set, is called with
// the details (e.g. to reply with a generic error text).
func Recovery(logger *slog.Logger, onPanic func(ctx context.Context, info PanicInfo)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, update *telegram.Update) (err error) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				info := PanicInfo{
					UpdateID:   update.UpdateID,
					ChatID:     update.ChatID(),
					Value:      p,
					StackTrace: string(debug.Stack()),
					Timestamp:  time.Now().UTC(),
				}
				logger.Error("panic in update handler",
					slog.Int64("update_id", info.UpdateID),
					slog.Int64("chat_id", info.ChatID),
					slog.Any("panic", p),
					slog.String("stack", info.StackTrace),
				)
				if onPanic != nil {
					onPanic(ctx, info)
				}
				err = fmt.Errorf("panic handling update %d: %v", update.UpdateID, p)
			}()
			return next(ctx, update)
		}
	}
}

// Logging logs each update at debug level and failures at error level.
func Logging(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, update *telegram.Update) error {
			start := time.Now()
			err := next(ctx, update)

			attrs := []any{
				slog.Int64("update_id", update.UpdateID),
				slog.Int64("chat_id", update.ChatID()),
				slog.String("latency", time.Since(start).String()),
			}
			if err != nil {
				logger.Error("update failed", append(attrs, slog.String("error", err.Error()))...)
				return err
			}
			logger.Debug("update handled", attrs...)
			return nil
		}
	}
}
