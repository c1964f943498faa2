package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maktab/baho-bot/internal/domain/calendar"
	"github.com/maktab/baho-bot/pkg/logger"
	"github.com/maktab/baho-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRIGGER CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// Trigger is a strategy that decides when the daily report cycle fires.
type Trigger interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// Cycle runs one full report cycle for the given date.
type Cycle interface {
	RunCycle(ctx context.Context, date time.Time) error
}

// CycleFunc adapts a function to Cycle.
type CycleFunc func(ctx context.Context, date time.Time) error

// RunCycle implements Cycle.
func (f CycleFunc) RunCycle(ctx context.Context, date time.Time) error { return f(ctx, date) }

// Gate decides whether a date gets reports at all.
type Gate interface {
	Check(ctx context.Context, date time.Time) (calendar.Verdict, error)
}

// FireLock suppresses duplicate firing across processes. Acquire returns
// false when another holder already owns key.
type FireLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Outcome is the result of a single Tick.
type Outcome string

const (
	OutcomeNotDue          Outcome = "not_due"
	OutcomeAlreadyFired    Outcome = "already_fired"
	OutcomeInProgress      Outcome = "in_progress"
	OutcomeLockedElsewhere Outcome = "locked_elsewhere"
	OutcomeNonReporting    Outcome = "non_reporting"
	OutcomeCalendarError   Outcome = "calendar_error"
	OutcomeFailed          Outcome = "failed"
	OutcomeCompleted       Outcome = "completed"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT TRIGGER
// ══════════════════════════════════════════════════════════════════════════════

// FireLockTTL is how long a fired key is held in the shared lock.
const FireLockTTL = 24 * time.Hour

// ReportTriggerConfig configures the shared trigger core.
type ReportTriggerConfig struct {
	Target   timeutil.ClockTime
	Location *time.Location
	Gate     Gate
	Cycle    Cycle

	// Lock is optional. Without it only in-process duplicates are suppressed.
	Lock FireLock

	Logger *slog.Logger

	// OnOutcome is called after every Tick that reached the target minute.
	OnOutcome func(Outcome)
}

// ReportTrigger holds the firing rules shared by every strategy: the target
// minute, the last fired key and the overlap guard.
type ReportTrigger struct {
	target    timeutil.ClockTime
	loc       *time.Location
	gate      Gate
	cycle     Cycle
	lock      FireLock
	logger    *slog.Logger
	onOutcome func(Outcome)

	mu           sync.Mutex
	lastFiredKey string
	inProgress   bool
}

// NewReportTrigger creates the shared trigger core.
func NewReportTrigger(cfg ReportTriggerConfig) *ReportTrigger {
	if cfg.Location == nil {
		cfg.Location = timeutil.TashkentTZ
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ReportTrigger{
		target:    cfg.Target,
		loc:       cfg.Location,
		gate:      cfg.Gate,
		cycle:     cfg.Cycle,
		lock:      cfg.Lock,
		logger:    cfg.Logger.With("component", "report_trigger"),
		onOutcome: cfg.OnOutcome,
	}
}

// Target returns the configured firing minute.
func (t *ReportTrigger) Target() timeutil.ClockTime { return t.target }

// Location returns the report timezone.
func (t *ReportTrigger) Location() *time.Location { return t.loc }

// LastFiredKey returns the key of the last minute that fired.
func (t *ReportTrigger) LastFiredKey() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFiredKey
}

// Tick fires the cycle when now falls in the target minute and that minute
// has not fired yet. Safe to call any number of times per minute.
func (t *ReportTrigger) Tick(ctx context.Context, now time.Time) Outcome {
	if !t.target.Matches(now, t.loc) {
		return OutcomeNotDue
	}
	key := timeutil.SlotKey(now, t.loc)

	outcome := t.fire(ctx, now, key, false)
	if t.onOutcome != nil {
		t.onOutcome(outcome)
	}
	return outcome
}

// RunNow fires the cycle for now regardless of the target minute. The
// calendar gate and the overlap guard still apply.
func (t *ReportTrigger) RunNow(ctx context.Context, now time.Time) Outcome {
	outcome := t.fire(ctx, now, "manual "+timeutil.SlotKey(now, t.loc), true)
	if t.onOutcome != nil {
		t.onOutcome(outcome)
	}
	return outcome
}

func (t *ReportTrigger) fire(ctx context.Context, now time.Time, key string, manual bool) Outcome {
	t.mu.Lock()
	if !manual && key == t.lastFiredKey {
		t.mu.Unlock()
		return OutcomeAlreadyFired
	}
	if t.inProgress {
		t.mu.Unlock()
		t.logger.Warn("previous cycle still running, skipping", "fired_key", key)
		return OutcomeInProgress
	}
	t.inProgress = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inProgress = false
		t.mu.Unlock()
	}()

	if t.lock != nil && !manual {
		ok, err := t.lock.Acquire(ctx, key, FireLockTTL)
		if err != nil {
			// Lock errors fall back to in-process suppression only.
			t.logger.Warn("fire lock unavailable, continuing", logger.FiredKey(key), logger.Err(err))
		} else if !ok {
			t.markFired(key)
			t.logger.Info("cycle already fired by another instance", "fired_key", key)
			return OutcomeLockedElsewhere
		}
	}

	// Recorded before running, so a failure is not retried within the minute.
	if !manual {
		t.markFired(key)
	}

	verdict, err := t.gate.Check(ctx, now)
	if err != nil {
		t.logger.Error("calendar check failed, cycle skipped", logger.FiredKey(key), logger.Err(err))
		return OutcomeCalendarError
	}
	if verdict.NonReporting {
		attrs := []any{"fired_key", key, "reason", string(verdict.Reason)}
		if verdict.Holiday != nil {
			attrs = append(attrs, "holiday", verdict.Holiday.Name)
		}
		t.logger.Info("non-reporting day, cycle skipped", attrs...)
		return OutcomeNonReporting
	}

	t.logger.Info("report cycle firing", "fired_key", key, "manual", manual)
	if err := t.cycle.RunCycle(ctx, now); err != nil {
		t.logger.Error("report cycle failed", logger.FiredKey(key), logger.Err(err))
		return OutcomeFailed
	}
	return OutcomeCompleted
}

func (t *ReportTrigger) markFired(key string) {
	t.mu.Lock()
	t.lastFiredKey = key
	t.mu.Unlock()
}
