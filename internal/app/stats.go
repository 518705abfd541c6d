package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/shelfrank/internal/domain/model"
	"github.com/okian/shelfrank/pkg/metrics"
)

// Stage names one recompute step.
type Stage string

// Recompute stages, in dependency order.
const (
	StageStatic     Stage = "static"
	StageGrowth     Stage = "growth"
	StageNormalized Stage = "normalized"
	StageCandidates Stage = "candidates"
	StageAll        Stage = "all"
)

// Stages returns the concrete stages in the order "all" runs them.
func Stages() []Stage {
	return []Stage{StageStatic, StageGrowth, StageNormalized, StageCandidates}
}

// ParseStage resolves a stage name.
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StageStatic, StageGrowth, StageNormalized, StageCandidates, StageAll:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
}

// RunStats summarizes one stage over one population.
type RunStats struct {
	RunID   string     `json:"run_id" yaml:"run_id"`
	Stage   Stage      `json:"stage" yaml:"stage"`
	WorkSet string     `json:"work_set,omitempty" yaml:"work_set,omitempty"`
	Kind    model.Kind `json:"kind,omitempty" yaml:"kind,omitempty"`

	Scanned int `json:"scanned" yaml:"scanned"`
	Updated int `json:"updated" yaml:"updated"`
	Batches int `json:"batches" yaml:"batches"`
	Skipped int `json:"skipped" yaml:"skipped"`
}

// batcher buffers changed values and writes them in fixed-size batches, one
// transaction each. Committed batches stay when a later one fails.
type batcher[V any] struct {
	size    int
	pending map[string]V
	write   func(context.Context, map[string]V) error
	stats   *RunStats
}

func newBatcher[V any](size int, stats *RunStats, write func(context.Context, map[string]V) error) *batcher[V] {
	return &batcher[V]{
		size:    size,
		pending: make(map[string]V, size),
		write:   write,
		stats:   stats,
	}
}

func (b *batcher[V]) add(ctx context.Context, id string, v V) error {
	b.pending[id] = v
	if len(b.pending) >= b.size {
		return b.flush(ctx)
	}
	return nil
}

func (b *batcher[V]) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	n := len(b.pending)
	if err := b.write(ctx, b.pending); err != nil {
		return fmt.Errorf("write %s batch %d: %w", b.stats.Stage, b.stats.Batches+1, err)
	}
	b.pending = make(map[string]V, b.size)
	b.stats.Batches++
	b.stats.Updated += n
	metrics.RecordBatchCommitted(string(b.stats.Stage))
	metrics.RecordUpdated(string(b.stats.Stage), string(b.stats.Kind), n)
	return nil
}
