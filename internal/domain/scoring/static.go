package scoring

import (
	"github.com/okian/shelfrank/internal/domain/model"
)

// Option applies a configuration option to the StaticCalculator.
type Option func(*StaticCalculator)

// WithUndatedInAll controls whether usage without a usable date counts toward
// the unrestricted window. It is off by default. Undated usage never counts
// toward a dated window.
func WithUndatedInAll(enabled bool) Option {
	return func(c *StaticCalculator) {
		c.undatedInAll = enabled
	}
}

// StaticCalculator folds per-day usage buckets into windowed sums.
type StaticCalculator struct {
	windows      *Windows
	undatedInAll bool
}

// NewStaticCalculator creates a calculator over the given window set.
func NewStaticCalculator(windows *Windows, opts ...Option) *StaticCalculator {
	c := &StaticCalculator{
		windows: windows,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Windows returns the calculator's window set.
func (c *StaticCalculator) Windows() *Windows {
	return c.windows
}

// Compute returns the windowed sums for one entity. Every window key is
// present; an entity without usage gets zeros.
func (c *StaticCalculator) Compute(buckets []model.UsageBucket) model.ScoreMap {
	windows := c.windows.list
	out := make(model.ScoreMap, len(windows))
	for _, w := range windows {
		out[w.Key] = 0
	}
	for _, b := range buckets {
		if b.Value <= 0 {
			continue
		}
		if !b.Dated() {
			if c.undatedInAll {
				out[KeyAll] += b.Value
			}
			continue
		}
		for _, w := range windows {
			if w.Contains(b.Day) {
				out[w.Key] += b.Value
			}
		}
	}
	return out
}

// Diff computes the score map and reports whether it differs from stored.
func (c *StaticCalculator) Diff(stored model.ScoreMap, buckets []model.UsageBucket) (model.ScoreMap, bool) {
	computed := c.Compute(buckets)
	return computed, !computed.Equal(stored)
}
