// Package jobs contains the scheduled jobs of the baho-bot worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maktab/baho-bot/internal/domain/recipient"
	"github.com/maktab/baho-bot/internal/domain/student"
	"github.com/maktab/baho-bot/internal/infrastructure/messaging"
	"github.com/maktab/baho-bot/pkg/clock"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY REPORT JOB
// ══════════════════════════════════════════════════════════════════════════════

// RecipientLister returns the recipients of today's cycle.
type RecipientLister interface {
	ListEligible(ctx context.Context) ([]recipient.Link, error)
}

// Renderer produces the report text for one student and date.
type Renderer interface {
	Render(ctx context.Context, st student.Student, date time.Time) (string, error)
}

// Dispatcher delivers prepared messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, messages []messaging.Message) messaging.Result
}

// SummaryRecorder receives the summary of every finished cycle.
type SummaryRecorder interface {
	ObserveCycle(summary Summary)
}

// DailyReportConfig contains configuration for the daily report job.
type DailyReportConfig struct {
	// Timeout bounds the whole cycle. Zero disables it.
	Timeout time.Duration
}

// DefaultDailyReportConfig returns sensible defaults.
func DefaultDailyReportConfig() DailyReportConfig {
	return DailyReportConfig{
		Timeout: 30 * time.Minute,
	}
}

// Summary describes one finished cycle.
type Summary struct {
	CycleID    string
	Date       time.Time
	StartedAt  time.Time
	Duration   time.Duration
	Recipients int
	Prepared   int
	Sent       int
	Failed     int
	Skipped    int
}

// DailyReportJob prepares one report per eligible recipient and hands them
// all to the dispatcher. A recipient whose report cannot be prepared is
// counted as failed; the cycle goes on.
type DailyReportJob struct {
	recipients RecipientLister
	renderer   Renderer
	dispatcher Dispatcher
	recorder   SummaryRecorder
	clock      clock.Clock
	logger     *slog.Logger
	config     DailyReportConfig

	lastSummary atomic.Pointer[Summary]
}

// NewDailyReportJob creates a new daily report job. recorder may be nil.
func NewDailyReportJob(
	recipients RecipientLister,
	renderer Renderer,
	dispatcher Dispatcher,
	recorder SummaryRecorder,
	clk clock.Clock,
	logger *slog.Logger,
	config DailyReportConfig,
) *DailyReportJob {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &DailyReportJob{
		recipients: recipients,
		renderer:   renderer,
		dispatcher: dispatcher,
		recorder:   recorder,
		clock:      clk,
		logger:     logger.With("job", "daily_report"),
		config:     config,
	}
}

// RunCycle runs one full cycle for date.
func (j *DailyReportJob) RunCycle(ctx context.Context, date time.Time) error {
	_, err := j.Execute(ctx, date)
	return err
}

// Execute runs one cycle and returns its summary. Only a failure to list
// recipients is returned as an error.
func (j *DailyReportJob) Execute(ctx context.Context, date time.Time) (Summary, error) {
	summary := Summary{
		CycleID:   uuid.New().String(),
		Date:      date,
		StartedAt: j.clock.Now(),
	}
	log := j.logger.With("cycle_id", summary.CycleID)

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	links, err := j.recipients.ListEligible(ctx)
	if err != nil {
		return summary, fmt.Errorf("list eligible recipients: %w", err)
	}
	summary.Recipients = len(links)
	log.Info("daily report cycle started", "recipients", len(links))

	messages := j.prepare(ctx, log, links, date, &summary)
	summary.Prepared = len(messages)

	if len(messages) > 0 {
		res := j.dispatcher.Dispatch(ctx, messages)
		summary.Sent = res.Sent
		summary.Failed += res.Failed
		summary.Skipped += res.Skipped
	}

	summary.Duration = j.clock.Now().Sub(summary.StartedAt)
	j.lastSummary.Store(&summary)
	if j.recorder != nil {
		j.recorder.ObserveCycle(summary)
	}

	log.Info("daily report cycle completed",
		"recipients", summary.Recipients,
		"prepared", summary.Prepared,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration", summary.Duration.String(),
	)

	return summary, nil
}

// prepare renders reports sequentially in recipient order.
func (j *DailyReportJob) prepare(
	ctx context.Context,
	log *slog.Logger,
	links []recipient.Link,
	date time.Time,
	summary *Summary,
) []messaging.Message {
	messages := make([]messaging.Message, 0, len(links))

	for i, link := range links {
		if ctx.Err() != nil {
			summary.Skipped += len(links) - i
			log.Warn("cycle cancelled during preparation", "remaining", len(links)-i)
			break
		}
		if !link.Eligible() {
			summary.Skipped++
			continue
		}

		text, err := j.renderer.Render(ctx, *link.Student, date)
		if err != nil {
			summary.Failed++
			log.Error("failed to prepare report",
				"chat_id", link.ChatID,
				"student_id", link.StudentID,
				"error", err,
			)
			continue
		}

		messages = append(messages, messaging.Message{
			ChatID:    link.ChatID,
			StudentID: link.StudentID,
			Text:      text,
		})
	}

	return messages
}

// LastSummary returns the summary of the last finished cycle, if any.
func (j *DailyReportJob) LastSummary() (Summary, bool) {
	s := j.lastSummary.Load()
	if s == nil {
		return Summary{}, false
	}
	return *s, true
}
