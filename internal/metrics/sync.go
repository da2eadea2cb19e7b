package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dthul/discord-bot/internal/models"
)

// SyncCollector records reconciliation passes, scheduled jobs and
// scheduling flows. A nil collector records nothing.
type SyncCollector struct {
	events      *prometheus.CounterVec
	passSeconds *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	jobs        *prometheus.CounterVec
	flows       *prometheus.CounterVec
}

// NewSyncCollector registers the sync metrics on registry.
func NewSyncCollector(registry prometheus.Registerer) (*SyncCollector, error) {
	c := &SyncCollector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "events_total",
			Help:      "Reconciled source events by outcome.",
		}, []string{"source", "outcome"}),
		passSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 240, 360},
		}, []string{"source", "result"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful pass.",
		}, []string{"source"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Recurring job runs by result.",
		}, []string{"job", "result"}),
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "schedules_total",
			Help:      "Schedule-session submissions by path and result.",
		}, []string{"path", "result"}),
	}

	for _, collector := range []prometheus.Collector{c.events, c.passSeconds, c.lastSuccess, c.jobs, c.flows} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveEvent counts one reconciled event.
func (c *SyncCollector) ObserveEvent(source models.Source, outcome string) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(string(source), outcome).Inc()
}

// ObservePass records the duration of a pass.
func (c *SyncCollector) ObservePass(source models.Source, took time.Duration, err error) {
	if c == nil {
		return
	}
	c.passSeconds.WithLabelValues(string(source), result(err)).Observe(took.Seconds())
	if err == nil {
		c.lastSuccess.WithLabelValues(string(source)).SetToCurrentTime()
	}
}

// ObserveJob counts one scheduler job run.
func (c *SyncCollector) ObserveJob(job string, err error) {
	if c == nil {
		return
	}
	c.jobs.WithLabelValues(job, result(err)).Inc()
}

// ObserveFlow counts one schedule-session submission.
func (c *SyncCollector) ObserveFlow(path string, err error) {
	if c == nil {
		return
	}
	c.flows.WithLabelValues(path, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
