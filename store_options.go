package compactvec

import (
	"time"

	"golang.org/x/text/unicode/norm"
)

// StoreOption is a functional option for configuring an opened store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	prefault bool
	cacheTTL time.Duration
	norm     *norm.Form
	metrics  MetricsCollector
	logger   *Logger
}

func defaultStoreConfig() *storeConfig {
	return &storeConfig{
		metrics: NoopMetricsCollector{},
		logger:  NoopLogger(),
	}
}

// WithPrefault populates the mapped container at open so lookups never wait
// on page faults. It has no effect on stores opened from memory.
func WithPrefault() StoreOption {
	return func(c *storeConfig) {
		c.prefault = true
	}
}

// WithCache keeps composed out-of-vocabulary vectors for ttl. Restricted
// words are never cached; they are already a single copy.
func WithCache(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.cacheTTL = ttl
	}
}

// WithNormalization normalizes every query token to form before lookup.
// Containers built from normalized vocabularies need the same form here.
func WithNormalization(form norm.Form) StoreOption {
	return func(c *storeConfig) {
		c.norm = &form
	}
}

// WithMetrics reports lookups to m.
func WithMetrics(m MetricsCollector) StoreOption {
	return func(c *storeConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithStoreLogger sets the logger used while opening and loading.
func WithStoreLogger(l *Logger) StoreOption {
	return func(c *storeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
