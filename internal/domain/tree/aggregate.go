package tree

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/okian/shelfrank/internal/domain/model"
	"github.com/okian/shelfrank/internal/domain/scoring"
)

// Mode selects what a tree export accumulates.
type Mode string

// Aggregation modes.
const (
	ModeScore           Mode = "score"
	ModeCandidatesCount Mode = "candidates_count"
	ModeGrowth          Mode = "growth"
)

// ParseMode resolves a mode name; empty means score.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeScore:
		return ModeScore, nil
	case ModeCandidatesCount:
		return ModeCandidatesCount, nil
	case ModeGrowth:
		return ModeGrowth, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Predicate selects nodes by entity.
type Predicate func(model.Entity) bool

// UIDPattern returns a predicate matching node UIDs against pattern. An empty
// pattern yields a nil predicate.
func UIDPattern(pattern string) (Predicate, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile uid pattern: %w", err)
	}
	return func(e model.Entity) bool {
		return re.MatchString(e.UID)
	}, nil
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithExclude prunes matching nodes and their subtrees from exports.
func WithExclude(p Predicate) Option {
	return func(a *Aggregator) {
		a.exclude = p
	}
}

// Aggregator accumulates node values bottom-up over one schema tree.
type Aggregator struct {
	exclude Predicate
}

// NewAggregator creates an aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Request describes one export.
type Request struct {
	Root   string // root UID
	Mode   Mode
	Window string // static window key for score mode; default score_all

	// Candidates lists, per node id, the directly related candidates that
	// passed the caller's filter. Used by candidates_count mode.
	Candidates map[string][]string
}

// accum is the fixed accumulation record of one node.
type accum struct {
	score     int64
	workCount int64
	cands     []string
	past      int64
	b4        int64
	abs       int64
}

// Export aggregates the tree under req.Root and returns its document. The
// forest is only read, so exports of different roots may run concurrently.
func (a *Aggregator) Export(f *Forest, req Request) (*Document, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	window := req.Window
	if window == "" {
		window = scoring.KeyAll
	}
	order, err := f.subtree(req.Root, a.exclude)
	if err != nil {
		return nil, err
	}

	local := make(map[int]int, len(order))
	for li, i := range order {
		local[i] = li
	}
	acc := make([]accum, len(order))
	for li, i := range order {
		e := f.nodes[i].row.Entity
		switch mode {
		case ModeScore:
			acc[li].score = e.StaticScore[window]
			acc[li].workCount = f.nodes[i].row.WorkCount
		case ModeCandidatesCount:
			acc[li].cands = append([]string(nil), req.Candidates[e.ID]...)
		case ModeGrowth:
			acc[li].past = e.Growth.ScorePastYr
			acc[li].b4 = e.Growth.ScoreYrB4
			acc[li].abs = e.Growth.AbsoluteGrowth
		}
	}

	// Reverse pass: descendants precede ancestors.
	for li := len(order) - 1; li > 0; li-- {
		pl := local[f.nodes[order[li]].parent]
		c, p := &acc[li], &acc[pl]
		p.score += c.score
		p.workCount += c.workCount
		p.cands = append(p.cands, c.cands...)
		p.past += c.past
		p.b4 += c.b4
		p.abs += c.abs
	}

	docs := make([]*Document, len(order))
	for li, i := range order {
		docs[li] = newDocument(mode, f.nodes[i].row, window, acc[li])
	}
	for li := 1; li < len(order); li++ {
		pl := local[f.nodes[order[li]].parent]
		docs[pl].Children = append(docs[pl].Children, docs[li])
	}
	return docs[0], nil
}

func newDocument(mode Mode, row Row, window string, a accum) *Document {
	e := row.Entity
	d := &Document{
		ID:       e.ID,
		Name:     e.Name,
		UID:      e.UID,
		Mode:     mode,
		Children: []*Document{},
	}
	switch mode {
	case ModeScore:
		d.Score = e.StaticScore[window]
		d.AccScore = a.score
		d.WorkCount = row.WorkCount
		d.AccWorkCount = a.workCount
	case ModeCandidatesCount:
		d.AccScore = distinct(a.cands)
	case ModeGrowth:
		d.Growth = e.Growth
		d.AccGrowth = model.Growth{
			ScorePastYr:    a.past,
			ScoreYrB4:      a.b4,
			AbsoluteGrowth: a.abs,
			RelativeGrowth: scoring.RelativeGrowth(a.abs, a.b4),
		}
	}
	return d
}

func distinct(ids []string) int64 {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return int64(len(seen))
}
