package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/shelfrank/internal/domain/model"
	"github.com/okian/shelfrank/internal/domain/tree"
	"github.com/okian/shelfrank/pkg/metrics"
)

const memoryStoreName = "memory"

// MemoryStore is an in-memory Store. Reads return copies, so callers may keep
// or mutate results freely.
type MemoryStore struct {
	mu sync.RWMutex

	entities   map[string]model.Entity
	members    map[string]map[string]struct{} // topic id -> work ids
	usage      map[string]map[string]model.UsageEvent
	candidates map[string]model.Candidate
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:   make(map[string]model.Entity),
		members:    make(map[string]map[string]struct{}),
		usage:      make(map[string]map[string]model.UsageEvent),
		candidates: make(map[string]model.Candidate),
	}
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func observe(store, op string, start time.Time) {
	metrics.RecordStoreLatency(store, op, float64(time.Since(start).Microseconds())/1000)
}

// StreamUsage implements Ledger.
func (s *MemoryStore) StreamUsage(ctx context.Context, f EntityFilter, chunk int, fn func([]UsageRecord) error) error {
	return s.streamIDs(ctx, f, chunk, func(ids []string) error {
		start := time.Now()
		s.mu.RLock()
		out := make([]UsageRecord, len(ids))
		for i, id := range ids {
			e := s.entities[id]
			out[i] = UsageRecord{Entity: cloneEntity(e), Usage: s.bucketsLocked(e)}
		}
		s.mu.RUnlock()
		observe(memoryStoreName, "stream_usage", start)
		return fn(out)
	})
}

func (s *MemoryStore) bucketsLocked(e model.Entity) []model.UsageBucket {
	byDay := make(map[time.Time]int64)
	add := func(workID string) {
		for _, ev := range s.usage[workID] {
			byDay[model.ParseDay(ev.Date)] += ev.Value
		}
	}
	if e.Kind == model.KindWork {
		add(e.ID)
	} else {
		for workID := range s.members[e.ID] {
			add(workID)
		}
	}
	out := make([]model.UsageBucket, 0, len(byDay))
	for d, v := range byDay {
		out = append(out, model.UsageBucket{Day: d, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}

// StreamEntities implements ScoreStore.
func (s *MemoryStore) StreamEntities(ctx context.Context, f EntityFilter, chunk int, fn func([]model.Entity) error) error {
	return s.streamIDs(ctx, f, chunk, func(ids []string) error {
		s.mu.RLock()
		out := make([]model.Entity, len(ids))
		for i, id := range ids {
			out[i] = cloneEntity(s.entities[id])
		}
		s.mu.RUnlock()
		return fn(out)
	})
}

// streamIDs snapshots the matching ids and hands them out in chunks. The lock
// is not held while fn runs, so fn may write back.
func (s *MemoryStore) streamIDs(ctx context.Context, f EntityFilter, chunk int, fn func([]string) error) error {
	if chunk <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunk, chunk)
	}
	s.mu.RLock()
	linked := map[string]struct{}{}
	if f.LinkedOnly {
		linked = s.linkedLocked()
	}
	var ids []string
	for id, e := range s.entities {
		if e.Kind != f.Kind || (f.WorkSet != "" && e.WorkSet != f.WorkSet) {
			continue
		}
		if _, ok := linked[id]; f.LinkedOnly && !ok {
			continue
		}
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	for len(ids) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(chunk, len(ids))
		if err := fn(ids[:n]); err != nil {
			return err
		}
		ids = ids[n:]
	}
	return nil
}

func (s *MemoryStore) linkedLocked() map[string]struct{} {
	out := make(map[string]struct{})
	for _, c := range s.candidates {
		for _, ids := range c.TopicIDs {
			for _, id := range ids {
				out[id] = struct{}{}
			}
		}
	}
	return out
}

// GetEntity implements ScoreStore.
func (s *MemoryStore) GetEntity(_ context.Context, id string) (model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Entity{}, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	return cloneEntity(e), nil
}

// SaveStatic implements ScoreStore.
func (s *MemoryStore) SaveStatic(_ context.Context, batch map[string]model.ScoreMap) error {
	defer observe(memoryStoreName, "save_static", time.Now())
	return saveBatch(s, batch, func(e *model.Entity, v model.ScoreMap) { e.StaticScore = v.Clone() })
}

// SaveGrowth implements ScoreStore.
func (s *MemoryStore) SaveGrowth(_ context.Context, batch map[string]model.Growth) error {
	defer observe(memoryStoreName, "save_growth", time.Now())
	return saveBatch(s, batch, func(e *model.Entity, v model.Growth) { e.Growth = cloneGrowth(v) })
}

// SaveNormalized implements ScoreStore.
func (s *MemoryStore) SaveNormalized(_ context.Context, batch map[string]model.NormalizedMap) error {
	defer observe(memoryStoreName, "save_normalized", time.Now())
	return saveBatch(s, batch, func(e *model.Entity, v model.NormalizedMap) { e.NormalizedScore = v.Clone() })
}

// saveBatch applies a batch all-or-nothing.
func saveBatch[V any](s *MemoryStore, batch map[string]V, apply func(*model.Entity, V)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range batch {
		if _, ok := s.entities[id]; !ok {
			return fmt.Errorf("entity %s: %w", id, ErrNotFound)
		}
	}
	for id, v := range batch {
		e := s.entities[id]
		apply(&e, v)
		s.entities[id] = e
	}
	return nil
}

// LoadForest implements TreeStore.
func (s *MemoryStore) LoadForest(_ context.Context, workSet string) ([]tree.Row, error) {
	defer observe(memoryStoreName, "load_forest", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []tree.Row
	for id, e := range s.entities {
		if e.Kind != model.KindSubjectCategory || e.WorkSet != workSet {
			continue
		}
		rows = append(rows, tree.Row{Entity: cloneEntity(e), WorkCount: int64(len(s.members[id]))})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Entity.ID < rows[j].Entity.ID })
	return rows, nil
}

// SubjectCandidates implements TreeStore.
func (s *MemoryStore) SubjectCandidates(_ context.Context, f model.CandidateFilter) (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.candidates))
	for id := range s.candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make(map[string][]string)
	for _, id := range ids {
		c := s.candidates[id]
		if !f.Matches(c.TopicIDs) {
			continue
		}
		for _, topic := range c.TopicIDs[model.KindSubjectCategory] {
			out[topic] = append(out[topic], id)
		}
	}
	return out, nil
}

// StreamCandidates implements CandidateStore.
func (s *MemoryStore) StreamCandidates(ctx context.Context, chunk int, fn func([]CandidateRecord) error) error {
	if chunk <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunk, chunk)
	}
	s.mu.RLock()
	ids := make([]string, 0, len(s.candidates))
	for id := range s.candidates {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	for len(ids) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(chunk, len(ids))
		s.mu.RLock()
		recs := make([]CandidateRecord, 0, n)
		for _, id := range ids[:n] {
			recs = append(recs, s.candidateLocked(s.candidates[id]))
		}
		s.mu.RUnlock()
		if err := fn(recs); err != nil {
			return err
		}
		ids = ids[n:]
	}
	return nil
}

func (s *MemoryStore) candidateLocked(c model.Candidate) CandidateRecord {
	rec := CandidateRecord{Candidate: cloneCandidate(c)}
	for _, kind := range model.TopicKinds() {
		for _, id := range c.TopicIDs[kind] {
			if e, ok := s.entities[id]; ok {
				rec.Topics = append(rec.Topics, cloneEntity(e))
			}
		}
	}
	return rec
}

// GetCandidate implements CandidateStore.
func (s *MemoryStore) GetCandidate(_ context.Context, id string) (CandidateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return CandidateRecord{}, fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	return s.candidateLocked(c), nil
}

// SaveCandidateAxes implements CandidateStore.
func (s *MemoryStore) SaveCandidateAxes(_ context.Context, batch map[string]map[model.ScoreSource]model.AxisCache) error {
	defer observe(memoryStoreName, "save_candidate_axes", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range batch {
		if _, ok := s.candidates[id]; !ok {
			return fmt.Errorf("candidate %s: %w", id, ErrNotFound)
		}
	}
	for id, cache := range batch {
		c := s.candidates[id]
		c.Cached = cloneCache(cache)
		s.candidates[id] = c
	}
	return nil
}

// PutEntities implements Ingester. Score fields of existing entities are kept.
func (s *MemoryStore) PutEntities(_ context.Context, entities []model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		if prev, ok := s.entities[e.ID]; ok {
			e.StaticScore = prev.StaticScore
			e.NormalizedScore = prev.NormalizedScore
			e.Growth = prev.Growth
		}
		s.entities[e.ID] = cloneEntity(e)
	}
	return nil
}

// PutMemberships implements Ingester.
func (s *MemoryStore) PutMemberships(_ context.Context, links []model.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range links {
		set, ok := s.members[l.TopicID]
		if !ok {
			set = make(map[string]struct{})
			s.members[l.TopicID] = set
		}
		set[l.WorkID] = struct{}{}
	}
	return nil
}

// PutUsage implements Ingester. Events without an id get a random one.
func (s *MemoryStore) PutUsage(_ context.Context, events []model.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		byID, ok := s.usage[ev.WorkID]
		if !ok {
			byID = make(map[string]model.UsageEvent)
			s.usage[ev.WorkID] = byID
		}
		byID[ev.ID] = ev
	}
	return nil
}

// PutCandidates implements Ingester. Materialized axes of existing
// candidates are kept.
func (s *MemoryStore) PutCandidates(_ context.Context, candidates []model.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candidates {
		c = cloneCandidate(c)
		if prev, ok := s.candidates[c.ID]; ok {
			c.Cached = prev.Cached
		} else {
			c.Cached = nil
		}
		s.candidates[c.ID] = c
	}
	return nil
}

func cloneEntity(e model.Entity) model.Entity {
	e.StaticScore = e.StaticScore.Clone()
	e.NormalizedScore = e.NormalizedScore.Clone()
	e.Growth = cloneGrowth(e.Growth)
	return e
}

func cloneGrowth(g model.Growth) model.Growth {
	if g.RelativeGrowth != nil {
		g.RelativeGrowth = model.Float(*g.RelativeGrowth)
	}
	return g
}

func cloneCandidate(c model.Candidate) model.Candidate {
	if c.TopicIDs != nil {
		ids := make(map[model.Kind][]string, len(c.TopicIDs))
		for k, v := range c.TopicIDs {
			ids[k] = append([]string(nil), v...)
		}
		c.TopicIDs = ids
	}
	c.Cached = cloneCache(c.Cached)
	return c
}

func cloneCache(in map[model.ScoreSource]model.AxisCache) map[model.ScoreSource]model.AxisCache {
	if in == nil {
		return nil
	}
	out := make(map[model.ScoreSource]model.AxisCache, len(in))
	for src, cache := range in {
		oc := make(model.AxisCache, len(cache))
		for w, axes := range cache {
			oa := make(model.Axes, len(axes))
			for k, v := range axes {
				oa[k] = v
			}
			oc[w] = oa
		}
		out[src] = oc
	}
	return out
}
