package scoring

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/shelfrank/internal/domain/model"
)

// ErrNotMaterialized is returned when a cached composite is requested for a
// candidate whose axes were never materialized for that source and window.
var ErrNotMaterialized = errors.New("candidate axes not materialized")

// Weights maps a topic kind to its weight in the composite score.
type Weights map[model.Kind]float64

// ParseWeights reads "author:1,publisher:0.5". Kind aliases accepted by
// model.ParseKind work here too.
func ParseWeights(s string) (Weights, error) {
	w := Weights{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("weight %q: missing value", part)
		}
		kind, err := model.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if !kind.IsTopic() {
			return nil, fmt.Errorf("%w: %q is not a topic kind", model.ErrUnknownKind, name)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("weight %q: %w", part, err)
		}
		w[kind] = f
	}
	return w, nil
}

// AxisValue reads one topic's value for a window and source. The second
// result is false when the value is null or absent.
func AxisValue(topic model.Entity, window string, source model.ScoreSource) (float64, bool) {
	if source == model.SourceNormalized {
		v, ok := topic.NormalizedScore[window]
		if !ok || v == nil {
			return 0, false
		}
		return *v, true
	}
	v, ok := topic.StaticScore[window]
	if !ok {
		return 0, false
	}
	return float64(v), true
}

// AxesFor computes the axis of every candidate-related kind as the maximum
// value among the given topics of that kind. A kind without any related
// value contributes 0.
func AxesFor(topics []model.Entity, window string, source model.ScoreSource) model.Axes {
	axes := make(model.Axes)
	for _, k := range model.TopicKinds() {
		if k.CandidateRelated() {
			axes[k] = 0
		}
	}
	seen := make(map[model.Kind]bool)
	for _, t := range topics {
		v, ok := AxisValue(t, window, source)
		if !ok {
			continue
		}
		if !seen[t.Kind] || v > axes[t.Kind] {
			axes[t.Kind] = v
			seen[t.Kind] = true
		}
	}
	return axes
}

// Combine returns Σ weight*axis, summed in canonical kind order so equal
// inputs always give the same float result.
func Combine(weights Weights, axes model.Axes) float64 {
	var total float64
	for _, k := range model.TopicKinds() {
		w, ok := weights[k]
		if !ok {
			continue
		}
		total += w * axes[k]
	}
	return total
}

// Result is one composite computation.
type Result struct {
	CandidateID string             `json:"candidate_id"`
	Window      string             `json:"window"`
	Source      model.ScoreSource  `json:"source"`
	Cached      bool               `json:"cached"`
	Score       float64            `json:"score"`
	Axes        model.Axes         `json:"axes"`
	Weights     map[string]float64 `json:"weights"`
}

// CompositeScorer computes candidate composite scores on demand or from
// materialized axes. Both paths share AxesFor and Combine.
type CompositeScorer struct {
	windows *Windows
}

// NewCompositeScorer creates a scorer over the given window set.
func NewCompositeScorer(windows *Windows) *CompositeScorer {
	return &CompositeScorer{windows: windows}
}

// OnDemand scores a candidate from its related topics' current values.
func (s *CompositeScorer) OnDemand(
	c model.Candidate,
	topics []model.Entity,
	weights Weights,
	window string,
	source model.ScoreSource,
) (Result, error) {
	if len(weights) == 0 {
		return Result{}, ErrNoWeights
	}
	w, err := s.windows.Lookup(window)
	if err != nil {
		return Result{}, err
	}
	axes := AxesFor(topics, w.Key, source)
	return newResult(c.ID, w.Key, source, false, weights, axes), nil
}

// Materialize computes unweighted axes for every window and source.
func (s *CompositeScorer) Materialize(topics []model.Entity) map[model.ScoreSource]model.AxisCache {
	out := make(map[model.ScoreSource]model.AxisCache, 2)
	for _, src := range []model.ScoreSource{model.SourceStatic, model.SourceNormalized} {
		cache := make(model.AxisCache, len(s.windows.list))
		for _, w := range s.windows.list {
			cache[w.Key] = AxesFor(topics, w.Key, src)
		}
		out[src] = cache
	}
	return out
}

// FromCache scores a candidate from its materialized axes.
func (s *CompositeScorer) FromCache(
	c model.Candidate,
	weights Weights,
	window string,
	source model.ScoreSource,
) (Result, error) {
	if len(weights) == 0 {
		return Result{}, ErrNoWeights
	}
	w, err := s.windows.Lookup(window)
	if err != nil {
		return Result{}, err
	}
	axes, ok := c.Cached[source][w.Key]
	if !ok {
		return Result{}, fmt.Errorf("%w: candidate %s %s/%s", ErrNotMaterialized, c.ID, source, w.Key)
	}
	return newResult(c.ID, w.Key, source, true, weights, axes), nil
}

// CacheChanged reports whether freshly materialized axes differ from stored.
func CacheChanged(stored, fresh map[model.ScoreSource]model.AxisCache) bool {
	if len(stored) != len(fresh) {
		return true
	}
	for src, fc := range fresh {
		sc, ok := stored[src]
		if !ok || len(sc) != len(fc) {
			return true
		}
		for key, axes := range fc {
			if !axes.Equal(sc[key]) {
				return true
			}
		}
	}
	return false
}

func newResult(id, window string, source model.ScoreSource, cached bool, weights Weights, axes model.Axes) Result {
	named := make(map[string]float64, len(weights))
	for k, v := range weights {
		named[string(k)] = v
	}
	return Result{
		CandidateID: id,
		Window:      window,
		Source:      source,
		Cached:      cached,
		Score:       Combine(weights, axes),
		Axes:        axes,
		Weights:     named,
	}
}
