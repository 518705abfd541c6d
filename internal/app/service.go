// Package service orchestrates scoring runs over a repository and serves the
// read paths required by the HTTP API and the CLI.
package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/shelfrank/internal/adapters/repository"
	"github.com/okian/shelfrank/internal/config"
	"github.com/okian/shelfrank/internal/domain/scoring"
	"github.com/okian/shelfrank/internal/domain/tree"
	"github.com/okian/shelfrank/pkg/logger"
)

// Service runs the scoring stages and answers score queries.
type Service struct {
	store repository.Store
	cfg   *config.Config

	windows    *scoring.Windows
	static     *scoring.StaticCalculator
	normalizer *scoring.Normalizer
	composite  *scoring.CompositeScorer
	aggregator *tree.Aggregator
	weights    scoring.Weights

	clock       func() time.Time
	chunkSize   int
	batchSize   int
	maxParallel int

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the engine configuration. Defaults to config.New().
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the run clock. It wins over a configured fixed now.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithChunkSize sets the number of entities read per store query.
func WithChunkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithBatchSize sets the number of entities written per transaction.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithMaxParallel caps concurrent populations and tree exports.
func WithMaxParallel(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

// New constructs a Service over store. Values set through options take
// precedence over the configuration.
func New(store repository.Store, opts ...Option) (*Service, error) {
	s := &Service{store: store, cfg: config.New()}
	for _, opt := range opts {
		opt(s)
	}
	cfg := s.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if s.chunkSize == 0 {
		s.chunkSize = cfg.ChunkSize
	}
	if s.batchSize == 0 {
		s.batchSize = cfg.BatchSize
	}
	if s.maxParallel == 0 {
		s.maxParallel = cfg.MaxParallel
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}
	if s.clock == nil {
		fixed, ok, err := cfg.FixedNow()
		if err != nil {
			return nil, err
		}
		if ok {
			s.clock = func() time.Time { return fixed }
		} else {
			s.clock = time.Now
		}
	}

	weights, err := scoring.ParseWeights(cfg.CandidateWeights)
	if err != nil {
		return nil, fmt.Errorf("%w: candidate_weights: %v", config.ErrInvalidConfig, err)
	}
	exclude, err := tree.UIDPattern(cfg.TreeExcludeUIDPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	s.windows = scoring.NewWindows(cfg.ScoreYears)
	s.static = scoring.NewStaticCalculator(s.windows, scoring.WithUndatedInAll(cfg.CountUndatedInAll))
	s.normalizer = scoring.NewNormalizer(s.windows)
	s.composite = scoring.NewCompositeScorer(s.windows)
	s.aggregator = tree.NewAggregator(tree.WithExclude(exclude))
	s.weights = weights
	return s, nil
}

// Windows returns the configured window set.
func (s *Service) Windows() *scoring.Windows {
	return s.windows
}

// DefaultWeights returns a copy of the configured composite weights.
func (s *Service) DefaultWeights() scoring.Weights {
	out := make(scoring.Weights, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

// run carries the identity and frozen clock of one invocation.
type run struct {
	id  string
	now time.Time
	log logger.Logger
}

func (s *Service) newRun() *run {
	id := uuid.NewString()
	return &run{
		id:  id,
		now: s.clock().UTC(),
		log: s.logger.With(logger.String("run_id", id)),
	}
}
