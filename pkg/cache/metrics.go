package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus counters a Cache reports to.
type Metrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	evictions prometheus.Counter
}

// NewMetrics creates cache counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overhead",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overhead",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses, including expired entries",
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overhead",
			Subsystem: "cache",
			Name:      "sets_total",
			Help:      "Total number of cache writes",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overhead",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of entries removed for expiry",
		}),
	}

	for _, c := range []prometheus.Collector{m.hits, m.misses, m.sets, m.evictions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
