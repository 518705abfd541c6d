package scoring

import (
	"time"

	"github.com/okian/shelfrank/internal/domain/model"
)

// daysInYear is the length of one growth period.
const daysInYear = 365

// GrowthCalculator compares the trailing year of usage with the year before.
// The reference time is fixed at construction so every entity of a run sees
// the same periods.
type GrowthCalculator struct {
	now       time.Time
	pastStart time.Time
	b4Start   time.Time
}

// NewGrowthCalculator fixes the periods relative to now.
func NewGrowthCalculator(now time.Time) *GrowthCalculator {
	year := daysInYear * 24 * time.Hour
	return &GrowthCalculator{
		now:       now,
		pastStart: now.Add(-year),
		b4Start:   now.Add(-2 * year),
	}
}

// Now returns the frozen reference time.
func (g *GrowthCalculator) Now() time.Time {
	return g.now
}

// Compute returns the growth fields for one entity's usage.
func (g *GrowthCalculator) Compute(buckets []model.UsageBucket) model.Growth {
	var past, b4 int64
	for _, b := range buckets {
		if !b.Dated() || b.Value <= 0 {
			continue
		}
		switch {
		case !b.Day.Before(g.pastStart) && b.Day.Before(g.now):
			past += b.Value
		case !b.Day.Before(g.b4Start) && b.Day.Before(g.pastStart):
			b4 += b.Value
		}
	}
	return NewGrowth(past, b4)
}

// Diff computes growth and reports whether the period sums differ from stored.
// Derived fields follow the sums, so only those are compared.
func (g *GrowthCalculator) Diff(stored model.Growth, buckets []model.UsageBucket) (model.Growth, bool) {
	computed := g.Compute(buckets)
	changed := computed.ScorePastYr != stored.ScorePastYr || computed.ScoreYrB4 != stored.ScoreYrB4
	return computed, changed
}

// NewGrowth derives the growth fields from the two period sums.
func NewGrowth(past, b4 int64) model.Growth {
	abs := past - b4
	return model.Growth{
		ScorePastYr:    past,
		ScoreYrB4:      b4,
		AbsoluteGrowth: abs,
		RelativeGrowth: RelativeGrowth(abs, b4),
	}
}

// RelativeGrowth is abs/b4, or nil when b4 is zero.
func RelativeGrowth(abs, b4 int64) *float64 {
	if b4 == 0 {
		return nil
	}
	return model.Float(float64(abs) / float64(b4))
}
