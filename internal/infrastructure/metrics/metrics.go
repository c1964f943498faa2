// Package metrics exposes Prometheus instrumentation for the report worker.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maktab/baho-bot/internal/infrastructure/scheduler"
	"github.com/maktab/baho-bot/internal/infrastructure/scheduler/jobs"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	handler http.Handler

	reportsSent    prometheus.Counter
	reportsFailed  prometheus.Counter
	sendDuration   prometheus.Histogram
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	lastCycleStats *prometheus.GaugeVec
}

// New registers the worker collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	reportsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baho_reports_sent_total",
		Help: "Reports delivered to guardians",
	})

	reportsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baho_reports_failed_total",
		Help: "Reports that could not be delivered",
	})

	sendDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "baho_report_send_duration_seconds",
		Help:    "Latency of a single Telegram send",
		Buckets: prometheus.DefBuckets,
	})

	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "baho_report_cycles_total",
		Help: "Trigger firings by outcome",
	}, []string{"outcome"})

	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "baho_report_cycle_duration_seconds",
		Help:    "Duration of a full report cycle",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})

	lastCycleStats := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "baho_report_last_cycle",
		Help: "Counters of the last finished cycle",
	}, []string{"field"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "baho_goroutines",
		Help: "Number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(reportsSent, reportsFailed, sendDuration, cycles, cycleDuration, lastCycleStats, goroutines)

	return &Metrics{
		handler:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		reportsSent:    reportsSent,
		reportsFailed:  reportsFailed,
		sendDuration:   sendDuration,
		cycles:         cycles,
		cycleDuration:  cycleDuration,
		lastCycleStats: lastCycleStats,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// MessageSent implements messaging.Recorder.
func (m *Metrics) MessageSent() { m.reportsSent.Inc() }

// MessageFailed implements messaging.Recorder.
func (m *Metrics) MessageFailed() { m.reportsFailed.Inc() }

// ObserveSend implements messaging.Recorder.
func (m *Metrics) ObserveSend(d time.Duration) { m.sendDuration.Observe(d.Seconds()) }

// ObserveOutcome counts a trigger firing. Not-due ticks are ignored.
func (m *Metrics) ObserveOutcome(o scheduler.Outcome) {
	if o == scheduler.OutcomeNotDue {
		return
	}
	m.cycles.WithLabelValues(string(o)).Inc()
}

// ObserveCycle implements jobs.SummaryRecorder.
func (m *Metrics) ObserveCycle(s jobs.Summary) {
	m.cycleDuration.Observe(s.Duration.Seconds())
	m.lastCycleStats.WithLabelValues("recipients").Set(float64(s.Recipients))
	m.lastCycleStats.WithLabelValues("prepared").Set(float64(s.Prepared))
	m.lastCycleStats.WithLabelValues("sent").Set(float64(s.Sent))
	m.lastCycleStats.WithLabelValues("failed").Set(float64(s.Failed))
	m.lastCycleStats.WithLabelValues("skipped").Set(float64(s.Skipped))
}
