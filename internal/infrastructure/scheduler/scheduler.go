// Package scheduler decides when the daily report cycle fires. It hosts the
// shared firing core and two interchangeable strategies: a cron expression
// and an in-process minute poller built on Scheduler.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maktab/baho-bot/pkg/clock"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOBS & SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of periodic work.
type Job interface {
	Name() string
	Description() string

	// Run is called with the scheduler context; it is cancelled on Stop.
	Run(ctx context.Context) error
}

// Schedule yields the first due time strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerConfig configures a Scheduler. Zero values are replaced by defaults.
type SchedulerConfig struct {
	Logger   *slog.Logger
	Timezone *time.Location
	Clock    clock.Clock

	// TickInterval is the resolution of due checks (default 1s).
	TickInterval time.Duration
}

// Scheduler runs registered jobs on their schedules. At most one run of a
// job is in flight; a due time reached while it is busy is dropped.
type Scheduler struct {
	log   *slog.Logger
	loc   *time.Location
	clock clock.Clock
	tick  time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runCtx  context.Context
}

type entry struct {
	job      Job
	schedule Schedule
	next     time.Time
	busy     bool
	runs     int64
	failures int64
	dropped  int64
}

// NewScheduler builds a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Scheduler{
		log:     cfg.Logger,
		loc:     cfg.Timezone,
		clock:   cfg.Clock,
		tick:    cfg.TickInterval,
		entries: make(map[string]*entry),
		runCtx:  context.Background(),
	}
}

// Register adds job under its name. Names are unique.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil || schedule == nil {
		return ErrInvalidRegistration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.entries[job.Name()]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name())
	}
	e := &entry{
		job:      job,
		schedule: schedule,
		next:     schedule.Next(s.clock.Now().In(s.loc)),
	}
	s.entries[job.Name()] = e

	s.log.Info("job registered",
		"job", job.Name(),
		"schedule", schedule.String(),
		"first_run", e.next.Format(time.RFC3339),
	)
	return nil
}

// Start launches the tick loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop(s.runCtx)

	s.log.Info("scheduler started", "jobs", len(s.entries), "tick", s.tick.String())
	return nil
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether the tick loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(s.clock.Now())
		}
	}
}

// dispatchDue starts every job due at now and returns how many were started.
func (s *Scheduler) dispatchDue(now time.Time) int {
	now = now.In(s.loc)

	s.mu.Lock()
	ctx := s.runCtx
	var due []*entry
	for _, e := range s.entries {
		if now.Before(e.next) {
			continue
		}
		// Advance first so a dropped run is not retried on the next tick.
		e.next = e.schedule.Next(now)
		if e.busy {
			e.dropped++
			s.log.Warn("previous run still active, dropping", "job", e.job.Name())
			continue
		}
		e.busy = true
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go s.run(ctx, e)
	}
	return len(due)
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	defer s.wg.Done()

	started := s.clock.Now()
	err := e.job.Run(ctx)
	took := s.clock.Now().Sub(started)

	s.mu.Lock()
	e.busy = false
	e.runs++
	if err != nil {
		e.failures++
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed", "job", e.job.Name(), "took", took.String(), "error", err)
		return
	}
	s.log.Debug("job done", "job", e.job.Name(), "took", took.String())
}

// Counters returns run, failure and dropped counts for a job.
func (s *Scheduler) Counters(name string) (runs, failures, dropped int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return 0, 0, 0, false
	}
	return e.runs, e.failures, e.dropped, true
}

var (
	ErrInvalidRegistration     = errors.New("job and schedule are required")
	ErrDuplicateJob            = errors.New("job already registered")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)
