package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktab/baho-bot/internal/domain/calendar"
	"github.com/maktab/baho-bot/pkg/clock"
	"github.com/maktab/baho-bot/pkg/logger"
	"github.com/maktab/baho-bot/pkg/timeutil"
)

var tz = timeutil.TashkentTZ

type fakeGate struct {
	verdict calendar.Verdict
	err     error
	calls   atomic.Int32
}

func (g *fakeGate) Check(ctx context.Context, date time.Time) (calendar.Verdict, error) {
	g.calls.Add(1)
	return g.verdict, g.err
}

type countingCycle struct {
	runs  atomic.Int32
	err   error
	block chan struct{}
	dates []time.Time
	mu    sync.Mutex
}

func (c *countingCycle) RunCycle(ctx context.Context, date time.Time) error {
	c.runs.Add(1)
	c.mu.Lock()
	c.dates = append(c.dates, date)
	c.mu.Unlock()
	if c.block != nil {
		<-c.block
	}
	return c.err
}

type memLock struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *memLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func newTrigger(gate Gate, cycle Cycle, lock FireLock) *ReportTrigger {
	return NewReportTrigger(ReportTriggerConfig{
		Target:   timeutil.ClockTime{Hour: 18, Minute: 0},
		Location: tz,
		Gate:     gate,
		Cycle:    cycle,
		Lock:     lock,
		Logger:   logger.Discard(),
	})
}

func at(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, tz)
}

func TestTick_SameMinuteFiresOnce(t *testing.T) {
	cycle := &countingCycle{}
	tr := newTrigger(&fakeGate{}, cycle, nil)

	assert.Equal(t, OutcomeCompleted, tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 1)))
	assert.Equal(t, OutcomeAlreadyFired, tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 59)))

	assert.EqualValues(t, 1, cycle.runs.Load())
	assert.Equal(t, "2025-03-03 18:00", tr.LastFiredKey())
}

func TestTick_OutsideTargetIsNoop(t *testing.T) {
	gate := &fakeGate{}
	cycle := &countingCycle{}
	tr := newTrigger(gate, cycle, nil)

	assert.Equal(t, OutcomeNotDue, tr.Tick(context.Background(), at(2025, 3, 3, 17, 59, 59)))
	assert.Equal(t, OutcomeNotDue, tr.Tick(context.Background(), at(2025, 3, 3, 18, 1, 0)))

	assert.Zero(t, cycle.runs.Load())
	assert.Zero(t, gate.calls.Load())
}

func TestTick_NextDayFiresAgain(t *testing.T) {
	cycle := &countingCycle{}
	tr := newTrigger(&fakeGate{}, cycle, nil)

	tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 0))
	tr.Tick(context.Background(), at(2025, 3, 4, 18, 0, 0))

	assert.EqualValues(t, 2, cycle.runs.Load())
}

func TestTick_UsesReportTimezone(t *testing.T) {
	cycle := &countingCycle{}
	tr := newTrigger(&fakeGate{}, cycle, nil)

	// 13:00 UTC is 18:00 in Tashkent.
	utc := time.Date(2025, 3, 3, 13, 0, 30, 0, time.UTC)
	assert.Equal(t, OutcomeCompleted, tr.Tick(context.Background(), utc))
}

func TestTick_NonReportingDaySkipsCycle(t *testing.T) {
	gate := &fakeGate{verdict: calendar.Verdict{
		NonReporting: true,
		Reason:       calendar.ReasonHoliday,
		Holiday:      &calendar.Holiday{Name: "Navro'z"},
	}}
	cycle := &countingCycle{}
	tr := newTrigger(gate, cycle, nil)

	assert.Equal(t, OutcomeNonReporting, tr.Tick(context.Background(), at(2025, 3, 21, 18, 0, 0)))
	assert.Equal(t, OutcomeAlreadyFired, tr.Tick(context.Background(), at(2025, 3, 21, 18, 0, 30)))

	assert.Zero(t, cycle.runs.Load())
	assert.EqualValues(t, 1, gate.calls.Load())
}

func TestTick_CalendarErrorSkipsAndRecordsKey(t *testing.T) {
	gate := &fakeGate{err: errors.New("db down")}
	cycle := &countingCycle{}
	tr := newTrigger(gate, cycle, nil)

	assert.Equal(t, OutcomeCalendarError, tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 0)))
	assert.Equal(t, OutcomeAlreadyFired, tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 10)))
	assert.Zero(t, cycle.runs.Load())
}

func TestTick_FailedCycleIsNotRetriedWithinMinute(t *testing.T) {
	cycle := &countingCycle{err: errors.New("boom")}
	tr := newTrigger(&fakeGate{}, cycle, nil)

	assert.Equal(t, OutcomeFailed, tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 0)))
	assert.Equal(t, OutcomeAlreadyFired, tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 5)))
	assert.EqualValues(t, 1, cycle.runs.Load())
}

func TestTick_OverlapSuppressed(t *testing.T) {
	cycle := &countingCycle{block: make(chan struct{})}
	tr := newTrigger(&fakeGate{}, cycle, nil)

	done := make(chan Outcome)
	go func() { done <- tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 0)) }()

	require.Eventually(t, func() bool { return cycle.runs.Load() == 1 }, time.Second, time.Millisecond)

	// Manual run while the scheduled cycle is still going.
	assert.Equal(t, OutcomeInProgress, tr.RunNow(context.Background(), at(2025, 3, 3, 18, 0, 30)))

	close(cycle.block)
	assert.Equal(t, OutcomeCompleted, <-done)
	assert.EqualValues(t, 1, cycle.runs.Load())
}

func TestTick_LockHeldElsewhere(t *testing.T) {
	lock := &memLock{held: map[string]bool{"2025-03-03 18:00": true}}
	cycle := &countingCycle{}
	tr := newTrigger(&fakeGate{}, cycle, lock)

	assert.Equal(t, OutcomeLockedElsewhere, tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 0)))
	assert.Equal(t, OutcomeAlreadyFired, tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 1)))
	assert.Zero(t, cycle.runs.Load())
}

func TestTick_TwoInstancesShareLock(t *testing.T) {
	lock := &memLock{}
	c1, c2 := &countingCycle{}, &countingCycle{}
	a := newTrigger(&fakeGate{}, c1, lock)
	b := newTrigger(&fakeGate{}, c2, lock)

	now := at(2025, 3, 3, 18, 0, 0)
	a.Tick(context.Background(), now)
	b.Tick(context.Background(), now)

	assert.EqualValues(t, 1, c1.runs.Load()+c2.runs.Load())
}

func TestTick_LockErrorStillFires(t *testing.T) {
	cycle := &countingCycle{}
	tr := newTrigger(&fakeGate{}, cycle, &memLock{err: errors.New("redis down")})

	assert.Equal(t, OutcomeCompleted, tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 0)))
	assert.EqualValues(t, 1, cycle.runs.Load())
}

func TestRunNow_IgnoresTargetButNotCalendar(t *testing.T) {
	gate := &fakeGate{}
	cycle := &countingCycle{}
	tr := newTrigger(gate, cycle, nil)

	assert.Equal(t, OutcomeCompleted, tr.RunNow(context.Background(), at(2025, 3, 3, 9, 15, 0)))

	gate.verdict = calendar.Verdict{NonReporting: true, Reason: calendar.ReasonRestDay}
	assert.Equal(t, OutcomeNonReporting, tr.RunNow(context.Background(), at(2025, 3, 9, 9, 15, 0)))

	assert.EqualValues(t, 1, cycle.runs.Load())
	assert.Empty(t, tr.LastFiredKey())
}

func TestTick_OnOutcomeObserved(t *testing.T) {
	var got []Outcome
	tr := NewReportTrigger(ReportTriggerConfig{
		Target:    timeutil.ClockTime{Hour: 18},
		Location:  tz,
		Gate:      &fakeGate{},
		Cycle:     &countingCycle{},
		Logger:    logger.Discard(),
		OnOutcome: func(o Outcome) { got = append(got, o) },
	})

	tr.Tick(context.Background(), at(2025, 3, 3, 17, 0, 0))
	tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 0))
	tr.Tick(context.Background(), at(2025, 3, 3, 18, 0, 1))

	assert.Equal(t, []Outcome{OutcomeCompleted, OutcomeAlreadyFired}, got)
}

// ─────────────────────────────────────────────────────────────────────────────
// strategies
// ─────────────────────────────────────────────────────────────────────────────

func TestCronSpec(t *testing.T) {
	tests := []struct {
		name    string
		restDay time.Weekday
		want    string
	}{
		{"sunday", time.Sunday, "0 18 * * 1-6"},
		{"saturday", time.Saturday, "0 18 * * 0-5"},
		{"friday", time.Friday, "0 18 * * 0,1,2,3,4,6"},
		{"none", time.Weekday(-1), "0 18 * * *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CronSpec(18, 0, tt.restDay))
		})
	}
	assert.Equal(t, "5 7 * * 1-6", CronSpec(7, 5, time.Sunday))
}

func TestCronTrigger_StartStop(t *testing.T) {
	tr := newTrigger(&fakeGate{}, &countingCycle{}, nil)
	ct := NewCronTrigger(tr, time.Sunday, nil, logger.Discard())

	require.NoError(t, ct.Start(context.Background()))
	assert.ErrorIs(t, ct.Start(context.Background()), ErrSchedulerAlreadyRunning)

	next := ct.NextRun().In(tz)
	assert.Equal(t, 18, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.NotEqual(t, time.Sunday, next.Weekday())

	require.NoError(t, ct.Stop())
	assert.ErrorIs(t, ct.Stop(), ErrSchedulerNotRunning)
	assert.True(t, ct.NextRun().IsZero())
}

func TestTickJob_UsesClockAndMapsOutcome(t *testing.T) {
	fake := clock.NewFake(at(2025, 3, 3, 18, 0, 0))
	cycle := &countingCycle{err: errors.New("boom")}
	job := &tickJob{core: newTrigger(&fakeGate{}, cycle, nil), clock: fake}

	assert.ErrorIs(t, job.Run(context.Background()), ErrCycleFailed)
	assert.NoError(t, job.Run(context.Background()))

	fake.Advance(time.Minute)
	assert.NoError(t, job.Run(context.Background()))
	assert.EqualValues(t, 1, cycle.runs.Load())
}

func TestAlignedSchedule(t *testing.T) {
	s := NewAlignedSchedule(time.Minute)
	next := s.Next(at(2025, 3, 3, 17, 59, 42))
	assert.Equal(t, at(2025, 3, 3, 18, 0, 0), next)
	assert.Equal(t, at(2025, 3, 3, 18, 1, 0), s.Next(next))
	assert.Equal(t, "every 1m0s aligned", s.String())

	half := NewAlignedSchedule(30 * time.Second)
	assert.Equal(t, at(2025, 3, 3, 18, 0, 0), half.Next(at(2025, 3, 3, 17, 59, 42)))
}
