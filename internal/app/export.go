package service

import (
	"context"
	"errors"
	"time"

	"github.com/okian/shelfrank/internal/domain/model"
	"github.com/okian/shelfrank/internal/domain/tree"
	"github.com/okian/shelfrank/pkg/logger"
	"github.com/okian/shelfrank/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// ExportRequest selects a tree export.
type ExportRequest struct {
	WorkSet string
	Root    string // root UID; ignored by ExportTrees
	Mode    tree.Mode
	Window  string
	Filter  model.CandidateFilter
}

// ExportTree aggregates one schema tree of a work set.
func (s *Service) ExportTree(ctx context.Context, req ExportRequest) (*tree.Document, error) {
	docs, err := s.export(ctx, req, []string{req.Root}, true)
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// ExportTrees aggregates every configured schema tree present in the work
// set, in configuration order. Trees run concurrently.
func (s *Service) ExportTrees(ctx context.Context, req ExportRequest) ([]*tree.Document, error) {
	return s.export(ctx, req, s.cfg.SchemaRoots(), false)
}

func (s *Service) export(ctx context.Context, req ExportRequest, roots []string, strict bool) ([]*tree.Document, error) {
	mode, err := tree.ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	w, err := s.windows.Lookup(req.Window)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(
		logger.String("work_set", req.WorkSet),
		logger.String("mode", string(mode)),
	)
	start := time.Now()

	rows, err := s.store.LoadForest(ctx, req.WorkSet)
	if err != nil {
		return nil, err
	}
	forest := tree.Build(rows)
	s.recordOrphans(ctx, log, req.WorkSet, forest)

	var candidates map[string][]string
	if mode == tree.ModeCandidatesCount {
		candidates, err = s.store.SubjectCandidates(ctx, req.Filter)
		if err != nil {
			return nil, err
		}
	}

	docs := make([]*tree.Document, len(roots))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i, root := range roots {
		g.Go(func() error {
			doc, err := s.aggregator.Export(forest, tree.Request{
				Root:       root,
				Mode:       mode,
				Window:     w.Key,
				Candidates: candidates,
			})
			if errors.Is(err, tree.ErrRootNotFound) && !strict {
				log.Debug(ctx, "schema root not loaded", logger.String("root", root))
				return nil
			}
			docs[i] = doc
			return err
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RecordErrorByComponent("tree", "export")
		return nil, err
	}

	out := docs[:0]
	for _, d := range docs {
		if d != nil {
			out = append(out, d)
		}
	}
	took := time.Since(start)
	metrics.RecordTreeExport(string(mode), took.Seconds())
	log.Info(ctx, "tree export finished",
		logger.Int("trees", len(out)),
		logger.Int("nodes", forest.Len()),
		logger.Duration("took", took),
	)
	return out, nil
}
