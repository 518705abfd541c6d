package metrics

import (
	"slices"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace prefixes every engine metric, "shelfrank" by default.
// Empty keeps the default.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the middle name segment, "engine" by default.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithRequestBuckets sets the buckets, in seconds, of HTTP request and tree
// export durations.
func WithRequestBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if validBuckets(buckets) {
			m.requestBuckets = buckets
		}
	}
}

// WithStageBuckets sets the buckets, in seconds, of recompute stage
// durations. Full runs over large work sets take minutes.
func WithStageBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if validBuckets(buckets) {
			m.stageBuckets = buckets
		}
	}
}

// WithStoreBuckets sets the buckets, in milliseconds, of store operation
// latency.
func WithStoreBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if validBuckets(buckets) {
			m.storeBuckets = buckets
		}
	}
}

// WithRegistry registers the metrics on r instead of the default registerer.
func WithRegistry(r prometheus.Registerer) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// validBuckets rejects empty or unsorted bucket lists; prometheus panics on
// unsorted ones.
func validBuckets(buckets []float64) bool {
	return len(buckets) > 0 && slices.IsSorted(buckets)
}
