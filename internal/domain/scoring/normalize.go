package scoring

import (
	"github.com/okian/shelfrank/internal/domain/model"
)

// maxNormalized is the top of the normalized range.
const maxNormalized = 100

// Maxima tracks per-window maximum static scores of a comparison population.
// A missing key means the population had no value for that window.
type Maxima map[string]int64

// Observe folds one entity's static scores into the maxima.
func (m Maxima) Observe(static model.ScoreMap) {
	for k, v := range static {
		if cur, ok := m[k]; !ok || v > cur {
			m[k] = v
		}
	}
}

// Normalizer rescales static scores against a comparison population maximum.
type Normalizer struct {
	windows *Windows
}

// NewNormalizer creates a normalizer over the given window set.
func NewNormalizer(windows *Windows) *Normalizer {
	return &Normalizer{windows: windows}
}

// Normalize returns 100*static/max for each window. The value is nil when the
// maximum is zero or absent, or when the entity has no static value for the
// window. Entities outside the comparison population may exceed its maximum;
// those values are capped at 100.
func (n *Normalizer) Normalize(static model.ScoreMap, maxima Maxima) model.NormalizedMap {
	out := make(model.NormalizedMap, len(n.windows.list))
	for _, w := range n.windows.list {
		out[w.Key] = normalizeOne(static, maxima, w.Key)
	}
	return out
}

// Diff normalizes and reports whether the result differs from stored.
func (n *Normalizer) Diff(stored model.NormalizedMap, static model.ScoreMap, maxima Maxima) (model.NormalizedMap, bool) {
	computed := n.Normalize(static, maxima)
	return computed, !computed.Equal(stored)
}

func normalizeOne(static model.ScoreMap, maxima Maxima, key string) *float64 {
	raw, ok := static[key]
	if !ok {
		return nil
	}
	mx, ok := maxima[key]
	if !ok || mx == 0 {
		return nil
	}
	v := maxNormalized * float64(raw) / float64(mx)
	if v > maxNormalized {
		v = maxNormalized
	}
	return model.Float(v)
}
