// Package retry runs operations with exponential backoff and jitter.
// Used by transport-level calls (Telegram Bot API) and startup connections.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryableError marks an error as worth another attempt. A positive After
// replaces the computed backoff, e.g. Telegram's retry_after.
type RetryableError struct {
	Err   error
	After time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks err for retry. Nil stays nil.
func Retryable(err error) error { return RetryAfter(err, 0) }

// RetryAfter marks err for retry after the server-provided delay.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err, After: after}
}

func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

type policy struct {
	attempts   int
	initial    time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     float64
	retryIf    func(error) bool
	onRetry    func(attempt int, err error, delay time.Duration)
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option adjusts a Retrier. Out-of-range values are ignored.
type Option func(*policy)

// WithMaxAttempts counts the first attempt.
func WithMaxAttempts(n int) Option {
	return func(p *policy) {
		if n > 0 {
			p.attempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.initial = d
		}
	}
}

// WithMaxDelay caps every wait, server hints included.
func WithMaxDelay(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.maxDelay = d
		}
	}
}

// WithJitter spreads each wait by up to ±j of itself, j in [0,1].
func WithJitter(j float64) Option {
	return func(p *policy) {
		if j >= 0 && j <= 1 {
			p.jitter = j
		}
	}
}

// WithRetryIf replaces the default of retrying only RetryableError.
func WithRetryIf(fn func(error) bool) Option {
	return func(p *policy) { p.retryIf = fn }
}

// WithOnRetry is called before each wait.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *policy) { p.onRetry = fn }
}

// WithSleep replaces the timer wait; tests record the delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *policy) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier is immutable and safe for concurrent use.
type Retrier struct {
	p policy
}

// New starts from 3 attempts, 100ms doubling up to 30s, 10% jitter.
func New(opts ...Option) *Retrier {
	p := policy{
		attempts:   3,
		initial:    100 * time.Millisecond,
		maxDelay:   30 * time.Second,
		multiplier: 2,
		jitter:     0.1,
		retryIf:    IsRetryable,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.retryIf == nil {
		p.retryIf = IsRetryable
	}
	return &Retrier{p: p}
}

// Do runs op until it succeeds, fails permanently, exhausts the attempts or
// ctx ends. The returned error is op's last error with the retry marker
// stripped, or ctx.Err() if op never ran.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last == nil {
				return err
			}
			return unmark(last)
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		if attempt >= r.p.attempts || !r.p.retryIf(last) {
			return unmark(last)
		}

		delay := r.backoff(attempt, last)
		if r.p.onRetry != nil {
			r.p.onRetry(attempt, last, delay)
		}
		if err := r.p.sleep(ctx, delay); err != nil {
			return unmark(last)
		}
	}
}

func (r *Retrier) backoff(attempt int, err error) time.Duration {
	var re *RetryableError
	if errors.As(err, &re) && re.After > 0 {
		return min(re.After, r.p.maxDelay)
	}

	d := float64(r.p.initial) * math.Pow(r.p.multiplier, float64(attempt-1))
	d = math.Min(d, float64(r.p.maxDelay))
	if r.p.jitter > 0 {
		d += d * r.p.jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

func unmark(err error) error {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.Err
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do builds a one-off Retrier from opts.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// Value runs op under r and returns its last result.
func Value[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var v T
	err := r.Do(ctx, func(ctx context.Context) error {
		var err error
		v, err = op(ctx)
		return err
	})
	return v, err
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// TelegramRetrier makes a few quick attempts and honours retry_after.
func TelegramRetrier(opts ...Option) *Retrier {
	return New(append([]Option{
		WithMaxAttempts(3),
		WithInitialDelay(200 * time.Millisecond),
		WithMaxDelay(5 * time.Second),
	}, opts...)...)
}

// StartupRetrier retries every error while Postgres or Redis come up.
func StartupRetrier(opts ...Option) *Retrier {
	return New(append([]Option{
		WithMaxAttempts(5),
		WithInitialDelay(500 * time.Millisecond),
		WithMaxDelay(5 * time.Second),
		WithJitter(0.2),
		WithRetryIf(func(error) bool { return true }),
	}, opts...)...)
}
