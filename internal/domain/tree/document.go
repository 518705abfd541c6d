package tree

import (
	"encoding/json"

	"github.com/okian/shelfrank/internal/domain/model"
)

// Document is one node of an exported tree. Which fields are serialized
// depends on Mode.
type Document struct {
	ID   string
	Name string
	UID  string
	Mode Mode

	Score        int64
	AccScore     int64
	WorkCount    int64
	AccWorkCount int64

	Growth    model.Growth
	AccGrowth model.Growth

	Children []*Document
}

type scoreView struct {
	ID           string      `json:"id" yaml:"id"`
	Name         string      `json:"name" yaml:"name"`
	UID          string      `json:"uid" yaml:"uid"`
	Score        int64       `json:"score" yaml:"score"`
	AccScore     int64       `json:"acc_score" yaml:"acc_score"`
	WorkCount    int64       `json:"work_count" yaml:"work_count"`
	AccWorkCount int64       `json:"acc_work_count" yaml:"acc_work_count"`
	Children     []*Document `json:"children" yaml:"children"`
}

type countView struct {
	ID       string      `json:"id" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	UID      string      `json:"uid" yaml:"uid"`
	AccScore int64       `json:"acc_score" yaml:"acc_score"`
	Children []*Document `json:"children" yaml:"children"`
}

type growthView struct {
	ID                string      `json:"id" yaml:"id"`
	Name              string      `json:"name" yaml:"name"`
	UID               string      `json:"uid" yaml:"uid"`
	ScorePastYr       int64       `json:"score_past_yr" yaml:"score_past_yr"`
	ScoreYrB4         int64       `json:"score_yr_b4" yaml:"score_yr_b4"`
	AbsoluteGrowth    int64       `json:"absolute_growth" yaml:"absolute_growth"`
	RelativeGrowth    *float64    `json:"relative_growth" yaml:"relative_growth"`
	AccScorePastYr    int64       `json:"acc_score_past_yr" yaml:"acc_score_past_yr"`
	AccScoreYrB4      int64       `json:"acc_score_yr_b4" yaml:"acc_score_yr_b4"`
	AccAbsoluteGrowth int64       `json:"acc_absolute_growth" yaml:"acc_absolute_growth"`
	AccRelativeGrowth *float64    `json:"acc_relative_growth" yaml:"acc_relative_growth"`
	Children          []*Document `json:"children" yaml:"children"`
}

func (d *Document) view() any {
	switch d.Mode {
	case ModeCandidatesCount:
		return countView{ID: d.ID, Name: d.Name, UID: d.UID, AccScore: d.AccScore, Children: d.Children}
	case ModeGrowth:
		return growthView{
			ID:                d.ID,
			Name:              d.Name,
			UID:               d.UID,
			ScorePastYr:       d.Growth.ScorePastYr,
			ScoreYrB4:         d.Growth.ScoreYrB4,
			AbsoluteGrowth:    d.Growth.AbsoluteGrowth,
			RelativeGrowth:    d.Growth.RelativeGrowth,
			AccScorePastYr:    d.AccGrowth.ScorePastYr,
			AccScoreYrB4:      d.AccGrowth.ScoreYrB4,
			AccAbsoluteGrowth: d.AccGrowth.AbsoluteGrowth,
			AccRelativeGrowth: d.AccGrowth.RelativeGrowth,
			Children:          d.Children,
		}
	default:
		return scoreView{
			ID:           d.ID,
			Name:         d.Name,
			UID:          d.UID,
			Score:        d.Score,
			AccScore:     d.AccScore,
			WorkCount:    d.WorkCount,
			AccWorkCount: d.AccWorkCount,
			Children:     d.Children,
		}
	}
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.view())
}

// MarshalYAML implements yaml.Marshaler.
func (d *Document) MarshalYAML() (any, error) {
	return d.view(), nil
}

// Walk visits d and its descendants depth first.
func (d *Document) Walk(fn func(*Document)) {
	fn(d)
	for _, c := range d.Children {
		c.Walk(fn)
	}
}
