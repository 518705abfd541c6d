// Package repository defines the scoring store contracts and their in-memory
// and SQL implementations.
package repository

import (
	"context"

	"github.com/okian/shelfrank/internal/domain/model"
	"github.com/okian/shelfrank/internal/domain/tree"
)

// EntityFilter selects a population.
type EntityFilter struct {
	Kind model.Kind
	// WorkSet restricts to one work set; empty means all work sets.
	WorkSet string
	// LinkedOnly keeps entities related to at least one candidate.
	LinkedOnly bool
}

// UsageRecord is an entity with its usage grouped by day.
type UsageRecord struct {
	Entity model.Entity
	Usage  []model.UsageBucket
}

// CandidateRecord is a candidate with its related topics resolved.
type CandidateRecord struct {
	Candidate model.Candidate
	Topics    []model.Entity
}

// Ledger streams grouped usage. Works read their own events; topics read the
// events of their member works.
type Ledger interface {
	// StreamUsage calls fn with chunks of at most chunk entities in id order.
	StreamUsage(ctx context.Context, f EntityFilter, chunk int, fn func([]UsageRecord) error) error
}

// ScoreStore reads entities and writes engine-owned score fields. Each Save
// call is one batch committed atomically; ids that do not exist fail the
// batch with ErrNotFound.
type ScoreStore interface {
	StreamEntities(ctx context.Context, f EntityFilter, chunk int, fn func([]model.Entity) error) error
	GetEntity(ctx context.Context, id string) (model.Entity, error)

	SaveStatic(ctx context.Context, batch map[string]model.ScoreMap) error
	SaveGrowth(ctx context.Context, batch map[string]model.Growth) error
	SaveNormalized(ctx context.Context, batch map[string]model.NormalizedMap) error
}

// TreeStore loads subject forests.
type TreeStore interface {
	// LoadForest returns every subject category of a work set with its
	// direct membership count.
	LoadForest(ctx context.Context, workSet string) ([]tree.Row, error)
	// SubjectCandidates maps subject category ids to the ids of related
	// candidates that satisfy f.
	SubjectCandidates(ctx context.Context, f model.CandidateFilter) (map[string][]string, error)
}

// CandidateStore reads candidates and writes their materialized axes.
type CandidateStore interface {
	StreamCandidates(ctx context.Context, chunk int, fn func([]CandidateRecord) error) error
	GetCandidate(ctx context.Context, id string) (CandidateRecord, error)
	SaveCandidateAxes(ctx context.Context, batch map[string]map[model.ScoreSource]model.AxisCache) error
}

// Ingester stands in for the ingestion collaborators.
type Ingester interface {
	PutEntities(ctx context.Context, entities []model.Entity) error
	PutMemberships(ctx context.Context, links []model.Membership) error
	PutUsage(ctx context.Context, events []model.UsageEvent) error
	PutCandidates(ctx context.Context, candidates []model.Candidate) error
}

// Store is the full storage surface.
type Store interface {
	Ledger
	ScoreStore
	TreeStore
	CandidateStore
	Ingester

	Close() error
}
