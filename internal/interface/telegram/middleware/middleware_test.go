package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktab/baho-bot/internal/infrastructure/external/telegram"
	"github.com/maktab/baho-bot/pkg/logger"
)

func update(chatID int64) *telegram.Update {
	return &telegram.Update{UpdateID: 1, Message: &telegram.Message{Chat: &telegram.Chat{ID: chatID}}}
}

func TestRecovery_TurnsPanicIntoError(t *testing.T) {
	var got PanicInfo
	h := Chain(func(context.Context, *telegram.Update) error {
		panic("boom")
	}, Recovery(logger.Discard(), func(_ context.Context, info PanicInfo) { got = info }))

	err := h(context.Background(), update(42))
	require.Error(t, err)
	assert.Equal(t, int64(42), got.ChatID)
	assert.Equal(t, "boom", got.Value)
	assert.NotEmpty(t, got.StackTrace)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, u *telegram.Update) error {
				order = append(order, name)
				return next(ctx, u)
			}
		}
	}
	h := Chain(func(context.Context, *telegram.Update) error {
		order = append(order, "handler")
		return nil
	}, mw("outer"), mw("inner"))

	require.NoError(t, h(context.Background(), update(1)))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestLogging_PassesErrorThrough(t *testing.T) {
	want := errors.New("failed")
	h := Chain(func(context.Context, *telegram.Update) error { return want }, Logging(logger.Discard()))
	assert.ErrorIs(t, h(context.Background(), update(1)), want)
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 60, BurstSize: 2, IdleTTL: time.Minute})
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))
	assert.True(t, rl.Allow(2), "chats are limited independently")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow(1))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, rl.Cleanup())
}

func TestRateLimit_DropsOverLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})
	calls, limited := 0, 0
	h := Chain(func(context.Context, *telegram.Update) error {
		calls++
		return nil
	}, RateLimit(rl, func(context.Context, *telegram.Update) { limited++ }))

	for i := 0; i < 3; i++ {
		require.NoError(t, h(context.Background(), update(9)))
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, limited)
}
