package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSource is returned for an unrecognised score source.
var ErrUnknownSource = errors.New("unknown score source")

// ScoreSource selects which topic score map feeds the composite score.
type ScoreSource string

// Score sources.
const (
	SourceStatic     ScoreSource = "static"
	SourceNormalized ScoreSource = "normalized"
)

// ParseScoreSource resolves a score source name; empty means static.
func ParseScoreSource(s string) (ScoreSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static":
		return SourceStatic, nil
	case "normalized":
		return SourceNormalized, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Axes holds the per-kind axis values of a candidate for one window.
type Axes map[Kind]float64

// Equal compares two axis maps.
func (a Axes) Equal(o Axes) bool {
	if len(a) != len(o) {
		return false
	}
	for k, v := range a {
		ov, ok := o[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// AxisCache stores axes per window key for one score source.
type AxisCache map[string]Axes

// Candidate is an externally supplied acquisition item.
type Candidate struct {
	ID    string
	Title string

	// TopicIDs lists related topic ids by kind. At most one publisher.
	TopicIDs map[Kind][]string

	// Cached holds materialized axes per score source and window.
	Cached map[ScoreSource]AxisCache
}

// CandidateFilter restricts candidates to those related to at least one of
// the listed topics for every listed kind.
type CandidateFilter map[Kind][]string

// Matches reports whether a candidate's relations satisfy f. Subject
// categories are ignored because trees are the subject axis themselves.
func (f CandidateFilter) Matches(topics map[Kind][]string) bool {
	for kind, ids := range f {
		if kind == KindSubjectCategory || len(ids) == 0 {
			continue
		}
		if !intersects(topics[kind], ids) {
			return false
		}
	}
	return true
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	for _, id := range a {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// ParseCandidateFilter reads a JSON object such as {"author": ["a1"]}. An
// empty string yields a nil filter that matches every candidate.
func ParseCandidateFilter(raw string) (CandidateFilter, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var byName map[string][]string
	if err := json.Unmarshal([]byte(raw), &byName); err != nil {
		return nil, fmt.Errorf("candidate filter: %w", err)
	}
	f := make(CandidateFilter, len(byName))
	for name, ids := range byName {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		f[kind] = ids
	}
	return f, nil
}
