package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/maktab/baho-bot/pkg/clock"
)

// CronTrigger fires the report cycle from a robfig/cron entry at the target
// minute on every day except the rest day.
type CronTrigger struct {
	core    *ReportTrigger
	restDay time.Weekday
	clock   clock.Clock
	logger  *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

// NewCronTrigger creates a cron-driven trigger.
func NewCronTrigger(core *ReportTrigger, restDay time.Weekday, clk clock.Clock, logger *slog.Logger) *CronTrigger {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CronTrigger{
		core:    core,
		restDay: restDay,
		clock:   clk,
		logger:  logger.With("component", "cron_trigger"),
	}
}

// Name implements Trigger.
func (c *CronTrigger) Name() string { return "cron" }

// Spec returns the cron expression for the target minute.
func (c *CronTrigger) Spec() string {
	return CronSpec(c.core.Target().Hour, c.core.Target().Minute, c.restDay)
}

// Start schedules the entry and starts the cron runner.
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron != nil {
		return ErrSchedulerAlreadyRunning
	}

	cl := cronLogger{l: c.logger}
	runner := cron.New(
		cron.WithLocation(c.core.Location()),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)

	spec := c.Spec()
	id, err := runner.AddFunc(spec, func() {
		c.core.Tick(ctx, c.clock.Now())
	})
	if err != nil {
		return fmt.Errorf("add cron entry %q: %w", spec, err)
	}

	runner.Start()
	c.cron = runner
	c.entryID = id

	c.logger.Info("cron trigger started",
		"spec", spec,
		"next_run", runner.Entry(id).Next.Format(time.RFC3339),
	)
	return nil
}

// Stop stops the runner and waits for a running cycle to return.
func (c *CronTrigger) Stop() error {
	c.mu.Lock()
	runner := c.cron
	c.cron = nil
	c.mu.Unlock()

	if runner == nil {
		return ErrSchedulerNotRunning
	}
	<-runner.Stop().Done()
	c.logger.Info("cron trigger stopped")
	return nil
}

// NextRun returns the next fire time, or zero when stopped.
func (c *CronTrigger) NextRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil {
		return time.Time{}
	}
	return c.cron.Entry(c.entryID).Next
}

// CronSpec builds "M H * * DOW" where DOW lists every day except restDay.
// A restDay outside 0..6 yields "*".
func CronSpec(hour, minute int, restDay time.Weekday) string {
	var dow string
	switch {
	case restDay == time.Sunday:
		dow = "1-6"
	case restDay == time.Saturday:
		dow = "0-5"
	case restDay > time.Sunday && restDay < time.Saturday:
		days := make([]string, 0, 6)
		for d := time.Sunday; d <= time.Saturday; d++ {
			if d != restDay {
				days = append(days, strconv.Itoa(int(d)))
			}
		}
		dow = strings.Join(days, ",")
	default:
		dow = "*"
	}
	return fmt.Sprintf("%d %d * * %s", minute, hour, dow)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
