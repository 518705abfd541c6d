// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a kind tag does not name a known entity kind.
var ErrUnknownKind = errors.New("unknown entity kind")

// Kind tags an Entity. Works and every topic type share one representation.
type Kind string

// Known entity kinds.
const (
	KindWork             Kind = "work"
	KindAuthor           Kind = "author"
	KindPublisher        Kind = "publisher"
	KindLanguage         Kind = "language"
	KindSubjectCategory  Kind = "subject_category"
	KindWorkCategory     Kind = "work_category"
	KindOwnerInstitution Kind = "owner_institution"
)

// TopicKinds lists topic kinds in canonical order.
func TopicKinds() []Kind {
	return []Kind{
		KindAuthor,
		KindPublisher,
		KindLanguage,
		KindSubjectCategory,
		KindWorkCategory,
		KindOwnerInstitution,
	}
}

// AllKinds lists every kind, works first.
func AllKinds() []Kind {
	return append([]Kind{KindWork}, TopicKinds()...)
}

// ParseKind resolves a kind tag. A few plural and short aliases are accepted
// because callers pass them straight from query strings.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "work", "works":
		return KindWork, nil
	case "author", "authors":
		return KindAuthor, nil
	case "publisher", "publishers":
		return KindPublisher, nil
	case "language", "languages", "lang":
		return KindLanguage, nil
	case "subject_category", "subject_categories", "subject", "subjects", "psh":
		return KindSubjectCategory, nil
	case "work_category", "work_categories", "category":
		return KindWorkCategory, nil
	case "owner_institution", "owner_institutions", "owner":
		return KindOwnerInstitution, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// IsTopic reports whether k is a topic kind.
func (k Kind) IsTopic() bool {
	return k != KindWork && k != ""
}

// IsHierarchical reports whether entities of this kind live in schema trees.
func (k Kind) IsHierarchical() bool {
	return k == KindSubjectCategory
}

// CandidateRelated reports whether candidates carry relations of this kind.
func (k Kind) CandidateRelated() bool {
	switch k {
	case KindAuthor, KindPublisher, KindLanguage, KindSubjectCategory:
		return true
	}
	return false
}

// Entity is a work or a topic together with its engine-owned score fields.
type Entity struct {
	ID      string
	Kind    Kind
	WorkSet string
	Name    string

	// Hierarchical topics only.
	UID        string
	ParentID   string
	Controlled bool

	StaticScore     ScoreMap
	NormalizedScore NormalizedMap
	Growth          Growth
}

// Population identifies the set of entities a run owns.
type Population struct {
	WorkSet string
	Kind    Kind
}

func (p Population) String() string {
	return p.WorkSet + "/" + string(p.Kind)
}

// ScoreMap maps a window key to a non-negative usage sum.
type ScoreMap map[string]int64

// Equal reports whether both maps hold the same keys and values.
func (m ScoreMap) Equal(o ScoreMap) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns a copy of m.
func (m ScoreMap) Clone() ScoreMap {
	if m == nil {
		return nil
	}
	out := make(ScoreMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// NormalizedMap maps a window key to a 0-100 value. A nil value means null.
type NormalizedMap map[string]*float64

// Equal compares two maps treating nil values as null.
func (m NormalizedMap) Equal(o NormalizedMap) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !floatPtrEqual(v, ov) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of m.
func (m NormalizedMap) Clone() NormalizedMap {
	if m == nil {
		return nil
	}
	out := make(NormalizedMap, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = nil
			continue
		}
		c := *v
		out[k] = &c
	}
	return out
}

// Growth holds the trailing-year comparison fields.
type Growth struct {
	ScorePastYr    int64
	ScoreYrB4      int64
	AbsoluteGrowth int64
	RelativeGrowth *float64
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
