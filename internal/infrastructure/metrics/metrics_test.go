package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktab/baho-bot/internal/infrastructure/messaging"
	"github.com/maktab/baho-bot/internal/infrastructure/scheduler"
	"github.com/maktab/baho-bot/internal/infrastructure/scheduler/jobs"
)

func TestMetrics_RecordsDispatchOutcomes(t *testing.T) {
	m := New()

	send := messaging.MetricsMiddleware(m)(messaging.SenderFunc(func(ctx context.Context, chatID int64, text string) error {
		if chatID == 2 {
			return errors.New("blocked")
		}
		return nil
	}))

	_ = send.Send(context.Background(), 1, "a")
	_ = send.Send(context.Background(), 2, "b")
	_ = send.Send(context.Background(), 3, "c")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reportsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reportsFailed))
}

func TestMetrics_OutcomesAndCycle(t *testing.T) {
	m := New()

	m.ObserveOutcome(scheduler.OutcomeNotDue)
	m.ObserveOutcome(scheduler.OutcomeCompleted)
	m.ObserveOutcome(scheduler.OutcomeNonReporting)
	m.ObserveOutcome(scheduler.OutcomeCompleted)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("non_reporting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.cycles.WithLabelValues("not_due")))

	m.ObserveCycle(jobs.Summary{Recipients: 10, Prepared: 9, Sent: 8, Failed: 2, Duration: 3 * time.Second})
	assert.Equal(t, 8.0, testutil.ToFloat64(m.lastCycleStats.WithLabelValues("sent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lastCycleStats.WithLabelValues("failed")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.MessageSent()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "baho_reports_sent_total 1")

	var nilMetrics *Metrics
	rec = httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
