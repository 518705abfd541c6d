package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/shelfrank/internal/adapters/repository"
	"github.com/okian/shelfrank/internal/domain/model"
	"github.com/okian/shelfrank/internal/domain/scoring"
	"github.com/okian/shelfrank/internal/domain/tree"
	"github.com/okian/shelfrank/pkg/logger"
	"github.com/okian/shelfrank/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const maxLoggedOrphans = 10

// Recompute runs a stage over a work set under one run id and one frozen
// now. Without kinds every kind the stage supports is processed. Kinds run
// concurrently up to the parallel limit. StageAll runs every stage in order
// and silently drops kinds a stage does not support.
func (s *Service) Recompute(ctx context.Context, stage Stage, workSet string, kinds ...model.Kind) ([]RunStats, error) {
	if _, err := ParseStage(string(stage)); err != nil {
		return nil, err
	}
	r := s.newRun()
	r.log.Info(ctx, "recompute started",
		logger.String("stage", string(stage)),
		logger.String("work_set", workSet),
		logger.String("now", r.now.Format(time.RFC3339)),
	)

	stages := []Stage{stage}
	if stage == StageAll {
		stages = Stages()
	}
	var out []RunStats
	for _, st := range stages {
		targets, err := stageKinds(st, kinds, stage == StageAll)
		if err != nil {
			return out, err
		}
		stats, err := s.runStage(ctx, r, st, workSet, targets)
		out = append(out, stats...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// stageKinds resolves the populations a stage runs over.
func stageKinds(st Stage, requested []model.Kind, lenient bool) ([]model.Kind, error) {
	supported := func(k model.Kind) bool {
		if st == StageNormalized {
			return k.IsTopic()
		}
		return true
	}
	if len(requested) == 0 {
		if st == StageNormalized {
			return model.TopicKinds(), nil
		}
		return model.AllKinds(), nil
	}
	out := make([]model.Kind, 0, len(requested))
	for _, k := range requested {
		if supported(k) {
			out = append(out, k)
			continue
		}
		if !lenient {
			return nil, fmt.Errorf("%w: %s for %s", ErrUnsupportedKind, k, st)
		}
	}
	return out, nil
}

func (s *Service) runStage(ctx context.Context, r *run, st Stage, workSet string, kinds []model.Kind) ([]RunStats, error) {
	if st == StageCandidates {
		stats, err := s.materialize(ctx, r)
		return []RunStats{stats}, err
	}

	results := make([]RunStats, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i, kind := range kinds {
		g.Go(func() error {
			stats, err := s.population(gctx, r, st, workSet, kind)
			results[i] = stats
			return err
		})
	}
	err := g.Wait()
	return results, err
}

// population runs one stage over one (work set, kind).
func (s *Service) population(ctx context.Context, r *run, st Stage, workSet string, kind model.Kind) (RunStats, error) {
	stats := RunStats{RunID: r.id, Stage: st, WorkSet: workSet, Kind: kind}
	log := r.log.With(
		logger.String("stage", string(st)),
		logger.String("work_set", workSet),
		logger.String("kind", string(kind)),
	)
	log.Debug(ctx, "stage started")
	start := time.Now()

	var err error
	switch st {
	case StageStatic:
		err = s.recomputeStatic(ctx, workSet, kind, &stats)
	case StageGrowth:
		err = s.recomputeGrowth(ctx, r.now, workSet, kind, &stats)
	case StageNormalized:
		if kind == model.KindSubjectCategory {
			err = s.normalizeSubjects(ctx, log, workSet, &stats)
		} else {
			err = s.normalizeFlat(ctx, workSet, kind, &stats)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownStage, st)
	}
	s.finish(ctx, log, &stats, start, err)
	return stats, err
}

func (s *Service) finish(ctx context.Context, log logger.Logger, stats *RunStats, start time.Time, err error) {
	stats.Skipped = stats.Scanned - stats.Updated
	took := time.Since(start)
	stage := string(stats.Stage)
	metrics.RecordScanned(stage, string(stats.Kind), stats.Scanned)
	metrics.RecordStageDuration(stage, took.Seconds())

	fields := []logger.Field{
		logger.Int("scanned", stats.Scanned),
		logger.Int("updated", stats.Updated),
		logger.Int("batches", stats.Batches),
		logger.Int("skipped", stats.Skipped),
		logger.Duration("took", took),
	}
	if err != nil {
		metrics.RecordRun(stage, "error")
		metrics.RecordErrorByComponent("service", stage)
		log.Error(ctx, "stage failed", append(fields, logger.Error(err))...)
		return
	}
	metrics.RecordRun(stage, "ok")
	log.Info(ctx, "stage finished", fields...)
}

func (s *Service) recomputeStatic(ctx context.Context, workSet string, kind model.Kind, stats *RunStats) error {
	b := newBatcher(s.batchSize, stats, s.store.SaveStatic)
	f := repository.EntityFilter{Kind: kind, WorkSet: workSet}
	err := s.store.StreamUsage(ctx, f, s.chunkSize, func(recs []repository.UsageRecord) error {
		for _, rec := range recs {
			stats.Scanned++
			fresh, changed := s.static.Diff(rec.Entity.StaticScore, rec.Usage)
			if !changed {
				continue
			}
			if err := b.add(ctx, rec.Entity.ID, fresh); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return b.flush(ctx)
}

func (s *Service) recomputeGrowth(ctx context.Context, now time.Time, workSet string, kind model.Kind, stats *RunStats) error {
	calc := scoring.NewGrowthCalculator(now)
	b := newBatcher(s.batchSize, stats, s.store.SaveGrowth)
	f := repository.EntityFilter{Kind: kind, WorkSet: workSet}
	err := s.store.StreamUsage(ctx, f, s.chunkSize, func(recs []repository.UsageRecord) error {
		for _, rec := range recs {
			stats.Scanned++
			fresh, changed := calc.Diff(rec.Entity.Growth, rec.Usage)
			if !changed {
				continue
			}
			if err := b.add(ctx, rec.Entity.ID, fresh); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return b.flush(ctx)
}

// normalizeFlat rescales a flat topic kind against the candidate-linked
// entities of that kind across every work set.
func (s *Service) normalizeFlat(ctx context.Context, workSet string, kind model.Kind, stats *RunStats) error {
	maxima := scoring.Maxima{}
	linked := repository.EntityFilter{Kind: kind, LinkedOnly: true}
	err := s.store.StreamEntities(ctx, linked, s.chunkSize, func(page []model.Entity) error {
		for _, e := range page {
			maxima.Observe(e.StaticScore)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("collect %s maxima: %w", kind, err)
	}

	b := newBatcher(s.batchSize, stats, s.store.SaveNormalized)
	f := repository.EntityFilter{Kind: kind, WorkSet: workSet}
	err = s.store.StreamEntities(ctx, f, s.chunkSize, func(page []model.Entity) error {
		for _, e := range page {
			stats.Scanned++
			fresh, changed := s.normalizer.Diff(e.NormalizedScore, e.StaticScore, maxima)
			if !changed {
				continue
			}
			if err := b.add(ctx, e.ID, fresh); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return b.flush(ctx)
}

// normalizeSubjects rescales every schema tree against the maxima of its own
// descendants. Nodes outside configured schemas keep their values.
func (s *Service) normalizeSubjects(ctx context.Context, log logger.Logger, workSet string, stats *RunStats) error {
	rows, err := s.store.LoadForest(ctx, workSet)
	if err != nil {
		return err
	}
	forest := tree.Build(rows)
	s.recordOrphans(ctx, log, workSet, forest)
	stats.Scanned = forest.Len()

	b := newBatcher(s.batchSize, stats, s.store.SaveNormalized)
	for _, root := range s.cfg.SchemaRoots() {
		nodes, err := forest.Descendants(root)
		if errors.Is(err, tree.ErrRootNotFound) {
			log.Debug(ctx, "schema root not loaded", logger.String("root", root))
			continue
		}
		if err != nil {
			return err
		}
		maxima := scoring.Maxima{}
		for _, e := range nodes {
			maxima.Observe(e.StaticScore)
		}
		// The root is normalized against its descendants' maximum too.
		top, err := forest.Root(root)
		if err != nil {
			return err
		}
		for _, e := range append(nodes, top) {
			fresh, changed := s.normalizer.Diff(e.NormalizedScore, e.StaticScore, maxima)
			if !changed {
				continue
			}
			if err := b.add(ctx, e.ID, fresh); err != nil {
				return err
			}
		}
	}
	return b.flush(ctx)
}

// materialize stores unweighted candidate axes for every source and window.
func (s *Service) materialize(ctx context.Context, r *run) (RunStats, error) {
	stats := RunStats{RunID: r.id, Stage: StageCandidates}
	log := r.log.With(logger.String("stage", string(StageCandidates)))
	start := time.Now()

	b := newBatcher(s.batchSize, &stats, s.store.SaveCandidateAxes)
	err := s.store.StreamCandidates(ctx, s.chunkSize, func(recs []repository.CandidateRecord) error {
		for _, rec := range recs {
			stats.Scanned++
			fresh := s.composite.Materialize(rec.Topics)
			if !scoring.CacheChanged(rec.Candidate.Cached, fresh) {
				continue
			}
			if err := b.add(ctx, rec.Candidate.ID, fresh); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		err = b.flush(ctx)
	}
	s.finish(ctx, log, &stats, start, err)
	return stats, err
}

func (s *Service) recordOrphans(ctx context.Context, log logger.Logger, workSet string, forest *tree.Forest) {
	n := forest.Unreachable()
	metrics.UpdateTreeOrphans(workSet, n)
	if n == 0 {
		return
	}
	orphans := forest.Orphans()
	if len(orphans) > maxLoggedOrphans {
		orphans = orphans[:maxLoggedOrphans]
	}
	log.Warn(ctx, "subject nodes outside any tree skipped",
		logger.Int("unreachable", n),
		logger.Any("orphans", orphans),
	)
}
