// Package metrics holds the Prometheus instruments for the watcher pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline counts polls, detections and notifications.
type Pipeline struct {
	polls         prometheus.Counter
	pollErrors    prometheus.Counter
	pollDuration  prometheus.Histogram
	overhead      prometheus.Gauge
	newFlights    prometheus.Counter
	notifications *prometheus.CounterVec
}

// NewPipeline creates the pipeline instruments and registers them with reg.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overhead",
			Subsystem: "watcher",
			Name:      "polls_total",
			Help:      "Total number of flight source polls",
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overhead",
			Subsystem: "watcher",
			Name:      "poll_errors_total",
			Help:      "Total number of polls that failed after retries",
		}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "overhead",
			Subsystem: "watcher",
			Name:      "check_duration_seconds",
			Help:      "Duration of a full overhead check",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		overhead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "overhead",
			Subsystem: "watcher",
			Name:      "aircraft_overhead",
			Help:      "Aircraft inside the radius at the last poll",
		}),
		newFlights: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overhead",
			Subsystem: "watcher",
			Name:      "new_flights_total",
			Help:      "Flights that entered the radius since the previous poll",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overhead",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notification decisions by outcome",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{p.polls, p.pollErrors, p.pollDuration, p.overhead, p.newFlights, p.notifications} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Notification outcomes.
const (
	OutcomeSent       = "sent"
	OutcomeThrottled  = "throttled"
	OutcomeSuppressed = "suppressed"
	OutcomeFailed     = "failed"
	OutcomePartial    = "partial"
)

// ObservePoll records one poll. A nil Pipeline is a no-op.
func (p *Pipeline) ObservePoll(err error) {
	if p == nil {
		return
	}
	p.polls.Inc()
	if err != nil {
		p.pollErrors.Inc()
	}
}

// ObserveCheck records the overhead count, new flights and check duration.
func (p *Pipeline) ObserveCheck(overhead, fresh int, took time.Duration) {
	if p == nil {
		return
	}
	p.overhead.Set(float64(overhead))
	p.newFlights.Add(float64(fresh))
	p.pollDuration.Observe(took.Seconds())
}

// ObserveNotification adds n to the counter for outcome.
func (p *Pipeline) ObserveNotification(outcome string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.notifications.WithLabelValues(outcome).Add(float64(n))
}
