package compactvec

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LookupKind tells which path answered a lookup.
type LookupKind int

const (
	// LookupWord is a restricted-vocabulary hit served from a dense vector.
	LookupWord LookupKind = iota
	// LookupSubword is a vector composed from subword buckets.
	LookupSubword
	// LookupCached is a composed vector served from the result cache.
	LookupCached
)

func (k LookupKind) String() string {
	switch k {
	case LookupWord:
		return "word"
	case LookupSubword:
		return "subword"
	case LookupCached:
		return "cached"
	default:
		return "unknown"
	}
}

// MetricsCollector receives store query metrics. Implementations must be
// safe for concurrent use.
type MetricsCollector interface {
	// RecordLookup is called after each single-token lookup.
	RecordLookup(kind LookupKind, duration time.Duration)

	// RecordBatch is called after each LookupBatch with the number of tokens.
	RecordBatch(tokens int, duration time.Duration)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLookup(LookupKind, time.Duration) {}
func (NoopMetricsCollector) RecordBatch(int, time.Duration)         {}

// PrometheusCollector exports store metrics to Prometheus.
type PrometheusCollector struct {
	lookups        *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	batchTokens    prometheus.Counter
	batchDuration  prometheus.Histogram
}

// NewPrometheusCollector creates the collector and registers it with reg.
// A nil reg registers with the default registry.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "compactvec",
			Name:      "lookups_total",
			Help:      "Token lookups by answering path.",
		}, []string{"kind"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "compactvec",
			Name:      "lookup_duration_seconds",
			Help:      "Latency of single-token lookups.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 10),
		}, []string{"kind"}),
		batchTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "compactvec",
			Name:      "batch_tokens_total",
			Help:      "Tokens looked up through LookupBatch.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "compactvec",
			Name:      "batch_duration_seconds",
			Help:      "Latency of LookupBatch calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, col := range []prometheus.Collector{c.lookups, c.lookupDuration, c.batchTokens, c.batchDuration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *PrometheusCollector) RecordLookup(kind LookupKind, d time.Duration) {
	k := kind.String()
	c.lookups.WithLabelValues(k).Inc()
	c.lookupDuration.WithLabelValues(k).Observe(d.Seconds())
}

func (c *PrometheusCollector) RecordBatch(tokens int, d time.Duration) {
	c.batchTokens.Add(float64(tokens))
	c.batchDuration.Observe(d.Seconds())
}
