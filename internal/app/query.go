package service

import (
	"container/heap"
	"context"
	"fmt"
	"strings"

	"github.com/okian/shelfrank/internal/adapters/repository"
	"github.com/okian/shelfrank/internal/domain/model"
	"github.com/okian/shelfrank/internal/domain/scoring"
	"github.com/okian/shelfrank/pkg/metrics"
)

// Order selects how topic listings are ranked.
type Order string

// Listing orders.
const (
	OrderScore  Order = "score"
	OrderGrowth Order = "growth"
)

// ParseOrder resolves an order name; empty means score.
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(s))); o {
	case "", OrderScore:
		return OrderScore, nil
	case OrderGrowth:
		return OrderGrowth, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOrder, s)
}

// TopicRank is one row of a topic listing.
type TopicRank struct {
	Rank           int                 `json:"rank" yaml:"rank"`
	ID             string              `json:"id" yaml:"id"`
	Name           string              `json:"name" yaml:"name"`
	Kind           model.Kind          `json:"kind" yaml:"kind"`
	Static         model.ScoreMap      `json:"static_score" yaml:"static_score"`
	Normalized     model.NormalizedMap `json:"normalized_score" yaml:"normalized_score"`
	ScorePastYr    int64               `json:"score_past_yr" yaml:"score_past_yr"`
	ScoreYrB4      int64               `json:"score_yr_b4" yaml:"score_yr_b4"`
	AbsoluteGrowth int64               `json:"absolute_growth" yaml:"absolute_growth"`
	RelativeGrowth *float64            `json:"relative_growth" yaml:"relative_growth"`
}

// ahead reports whether a ranks before b. Score order uses score_all; growth
// order uses relative growth with nulls last, then absolute growth. Ties
// break on id.
func ahead(order Order, a, b model.Entity) bool {
	if order == OrderGrowth {
		ra, rb := a.Growth.RelativeGrowth, b.Growth.RelativeGrowth
		switch {
		case ra != nil && rb == nil:
			return true
		case ra == nil && rb != nil:
			return false
		case ra != nil && *ra != *rb:
			return *ra > *rb
		}
		if a.Growth.AbsoluteGrowth != b.Growth.AbsoluteGrowth {
			return a.Growth.AbsoluteGrowth > b.Growth.AbsoluteGrowth
		}
	} else if sa, sb := a.StaticScore[scoring.KeyAll], b.StaticScore[scoring.KeyAll]; sa != sb {
		return sa > sb
	}
	return a.ID < b.ID
}

// rankHeap keeps the current top entities with the lowest ranked on top.
type rankHeap struct {
	order Order
	items []model.Entity
}

func (h *rankHeap) Len() int           { return len(h.items) }
func (h *rankHeap) Less(i, j int) bool { return ahead(h.order, h.items[j], h.items[i]) }
func (h *rankHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *rankHeap) Push(x any)         { h.items = append(h.items, x.(model.Entity)) }
func (h *rankHeap) Pop() any {
	n := len(h.items) - 1
	x := h.items[n]
	h.items = h.items[:n]
	return x
}

// TopTopics lists the best ranked entities of a kind in a work set. The limit
// is capped by the configured maximum.
func (s *Service) TopTopics(ctx context.Context, workSet string, kind model.Kind, order Order, limit int) ([]TopicRank, error) {
	order, err := ParseOrder(string(order))
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	limit = min(limit, s.cfg.MaxTopicLimit)

	h := &rankHeap{order: order}
	f := repository.EntityFilter{Kind: kind, WorkSet: workSet}
	err = s.store.StreamEntities(ctx, f, s.chunkSize, func(page []model.Entity) error {
		for _, e := range page {
			switch {
			case h.Len() < limit:
				heap.Push(h, e)
			case ahead(order, e, h.items[0]):
				h.items[0] = e
				heap.Fix(h, 0)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]TopicRank, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		e := heap.Pop(h).(model.Entity)
		out[i] = TopicRank{
			Rank:           i + 1,
			ID:             e.ID,
			Name:           e.Name,
			Kind:           e.Kind,
			Static:         e.StaticScore,
			Normalized:     e.NormalizedScore,
			ScorePastYr:    e.Growth.ScorePastYr,
			ScoreYrB4:      e.Growth.ScoreYrB4,
			AbsoluteGrowth: e.Growth.AbsoluteGrowth,
			RelativeGrowth: e.Growth.RelativeGrowth,
		}
	}
	return out, nil
}

// Entity returns one entity with its stored scores.
func (s *Service) Entity(ctx context.Context, id string) (model.Entity, error) {
	return s.store.GetEntity(ctx, id)
}

// ScoreRequest selects a composite computation.
type ScoreRequest struct {
	CandidateID string
	Window      string
	Source      model.ScoreSource
	Weights     scoring.Weights // empty uses the configured weights
	Cached      bool
}

// CandidateScore computes a candidate's composite score on demand or from
// its materialized axes.
func (s *Service) CandidateScore(ctx context.Context, req ScoreRequest) (scoring.Result, error) {
	path := "on_demand"
	if req.Cached {
		path = "cached"
	}
	res, err := s.candidateScore(ctx, req)
	if err != nil {
		metrics.RecordCompositeRequest(path, "error")
		return scoring.Result{}, err
	}
	metrics.RecordCompositeRequest(path, "ok")
	return res, nil
}

func (s *Service) candidateScore(ctx context.Context, req ScoreRequest) (scoring.Result, error) {
	source, err := model.ParseScoreSource(string(req.Source))
	if err != nil {
		return scoring.Result{}, err
	}
	weights := req.Weights
	if len(weights) == 0 {
		weights = s.weights
	}
	rec, err := s.store.GetCandidate(ctx, req.CandidateID)
	if err != nil {
		return scoring.Result{}, err
	}
	if req.Cached {
		return s.composite.FromCache(rec.Candidate, weights, req.Window, source)
	}
	return s.composite.OnDemand(rec.Candidate, rec.Topics, weights, req.Window, source)
}
