package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktab/baho-bot/internal/domain/recipient"
	"github.com/maktab/baho-bot/internal/domain/student"
	"github.com/maktab/baho-bot/internal/infrastructure/messaging"
	"github.com/maktab/baho-bot/pkg/clock"
	"github.com/maktab/baho-bot/pkg/logger"
	"github.com/maktab/baho-bot/pkg/timeutil"
)

type staticLister struct {
	links []recipient.Link
	err   error
}

func (s staticLister) ListEligible(ctx context.Context) ([]recipient.Link, error) {
	return s.links, s.err
}

type fakeRenderer struct {
	fail map[string]bool
}

func (r fakeRenderer) Render(ctx context.Context, st student.Student, date time.Time) (string, error) {
	if r.fail[st.ID] {
		return "", errors.New("schedule lookup failed")
	}
	return "report for " + st.DisplayName(), nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []int64
	fail map[int64]bool
}

func (s *recordingSender) Send(ctx context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, chatID)
	if s.fail[chatID] {
		return errors.New("chat not found")
	}
	return nil
}

type summarySink struct {
	got []Summary
}

func (s *summarySink) ObserveCycle(summary Summary) { s.got = append(s.got, summary) }

func link(chatID int64, studentID string) recipient.Link {
	return recipient.Link{
		ChatID:               chatID,
		TelegramID:           chatID,
		StudentID:            studentID,
		Active:               true,
		NotificationsEnabled: true,
		Student: &student.Student{
			ID:        studentID,
			FirstName: "Ali",
			LastName:  studentID,
			Active:    true,
		},
	}
}

func newJob(lister RecipientLister, renderer Renderer, sender messaging.Sender, sink SummaryRecorder) *DailyReportJob {
	fake := clock.NewFake(time.Date(2025, 3, 3, 18, 0, 0, 0, timeutil.TashkentTZ))
	cfg := messaging.DefaultConfig()
	cfg.Clock = fake
	cfg.Logger = logger.Discard()
	d := messaging.NewDispatcher(sender, cfg)
	return NewDailyReportJob(lister, renderer, d, sink, fake, logger.Discard(), DefaultDailyReportConfig())
}

func TestDailyReport_CountsPrepareAndSendFailures(t *testing.T) {
	lister := staticLister{links: []recipient.Link{
		link(1, "s1"),
		link(2, "s2"),
		link(3, "s3"),
		link(4, "s4"),
	}}
	renderer := fakeRenderer{fail: map[string]bool{"s2": true}}
	sender := &recordingSender{fail: map[int64]bool{4: true}}
	sink := &summarySink{}

	job := newJob(lister, renderer, sender, sink)
	summary, err := job.Execute(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Recipients)
	assert.Equal(t, 3, summary.Prepared)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.NotEmpty(t, summary.CycleID)

	// Recipient order is preserved and the unrenderable one is never sent.
	assert.Equal(t, []int64{1, 3, 4}, sender.sent)

	require.Len(t, sink.got, 1)
	assert.Equal(t, summary, sink.got[0])

	last, ok := job.LastSummary()
	require.True(t, ok)
	assert.Equal(t, summary.CycleID, last.CycleID)
}

func TestDailyReport_IneligibleLinkSkipped(t *testing.T) {
	off := link(2, "s2")
	off.NotificationsEnabled = false
	inactive := link(3, "s3")
	inactive.Student.Active = false

	sender := &recordingSender{}
	job := newJob(staticLister{links: []recipient.Link{link(1, "s1"), off, inactive}}, fakeRenderer{}, sender, nil)

	summary, err := job.Execute(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, []int64{1}, sender.sent)
}

func TestDailyReport_ListErrorFailsCycle(t *testing.T) {
	job := newJob(staticLister{err: errors.New("db down")}, fakeRenderer{}, &recordingSender{}, nil)

	err := job.RunCycle(context.Background(), time.Now())
	assert.ErrorContains(t, err, "list eligible recipients")

	_, ok := job.LastSummary()
	assert.False(t, ok)
}

func TestDailyReport_NoRecipients(t *testing.T) {
	sender := &recordingSender{}
	sink := &summarySink{}
	job := newJob(staticLister{}, fakeRenderer{}, sender, sink)

	require.NoError(t, job.RunCycle(context.Background(), time.Now()))
	assert.Empty(t, sender.sent)
	require.Len(t, sink.got, 1)
	assert.Zero(t, sink.got[0].Recipients)
}

func TestDailyReport_CancelledBeforePreparation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &recordingSender{}
	job := newJob(staticLister{links: []recipient.Link{link(1, "s1"), link(2, "s2")}}, fakeRenderer{}, sender, nil)

	summary, err := job.Execute(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Empty(t, sender.sent)
}
