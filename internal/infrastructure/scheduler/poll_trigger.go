package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/maktab/baho-bot/pkg/clock"
)

// PollTrigger checks the target minute on every aligned minute boundary
// using the in-process Scheduler.
type PollTrigger struct {
	core      *ReportTrigger
	scheduler *Scheduler
	clock     clock.Clock
	interval  time.Duration
}

// NewPollTrigger creates a polling trigger. A zero interval means one minute.
func NewPollTrigger(core *ReportTrigger, cfg SchedulerConfig, interval time.Duration) *PollTrigger {
	if interval <= 0 {
		interval = time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = core.Location()
	}
	return &PollTrigger{
		core:      core,
		scheduler: NewScheduler(cfg),
		clock:     cfg.Clock,
		interval:  interval,
	}
}

// Name implements Trigger.
func (p *PollTrigger) Name() string { return "poll" }

// Start registers the tick job and starts the scheduler loop.
func (p *PollTrigger) Start(ctx context.Context) error {
	job := &tickJob{core: p.core, clock: p.clock}
	if err := p.scheduler.Register(job, NewAlignedSchedule(p.interval)); err != nil {
		return fmt.Errorf("register tick job: %w", err)
	}
	return p.scheduler.Start(ctx)
}

// Stop stops the scheduler, waiting for an in-flight cycle to return.
func (p *PollTrigger) Stop() error {
	return p.scheduler.Stop()
}

// Scheduler exposes the underlying scheduler for status reporting.
func (p *PollTrigger) Scheduler() *Scheduler { return p.scheduler }

// tickJob adapts ReportTrigger.Tick to the Job interface.
type tickJob struct {
	core  *ReportTrigger
	clock clock.Clock
}

func (j *tickJob) Name() string { return "daily_report_tick" }

func (j *tickJob) Description() string {
	return fmt.Sprintf("Fires the daily report cycle at %s", j.core.Target())
}

func (j *tickJob) Run(ctx context.Context) error {
	switch j.core.Tick(ctx, j.clock.Now()) {
	case OutcomeFailed:
		return ErrCycleFailed
	case OutcomeCalendarError:
		return ErrCalendarUnavailable
	}
	return nil
}

var (
	// ErrCycleFailed is reported to the scheduler when a cycle returned an error.
	ErrCycleFailed = fmt.Errorf("report cycle failed")

	// ErrCalendarUnavailable is reported when the calendar gate could not be evaluated.
	ErrCalendarUnavailable = fmt.Errorf("calendar unavailable")
)
