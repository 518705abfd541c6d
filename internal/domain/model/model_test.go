package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/shelfrank/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestParseKind(t *testing.T) {
	convey.Convey("Given kind tags from query strings", t, func() {
		cases := map[string]model.Kind{
			"work":              model.KindWork,
			"Authors":           model.KindAuthor,
			"publisher":         model.KindPublisher,
			"lang":              model.KindLanguage,
			"psh":               model.KindSubjectCategory,
			"work_categories":   model.KindWorkCategory,
			" owner ":           model.KindOwnerInstitution,
			"subject_category":  model.KindSubjectCategory,
			"owner_institution": model.KindOwnerInstitution,
		}
		for in, want := range cases {
			got, err := model.ParseKind(in)
			convey.So(err, convey.ShouldBeNil)
			convey.So(got, convey.ShouldEqual, want)
		}

		convey.Convey("Then an unknown tag is rejected", func() {
			_, err := model.ParseKind("shelf")
			convey.So(errors.Is(err, model.ErrUnknownKind), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given the kind set", t, func() {
		convey.So(model.AllKinds()[0], convey.ShouldEqual, model.KindWork)
		convey.So(len(model.TopicKinds()), convey.ShouldEqual, 6)
		convey.So(model.KindWork.IsTopic(), convey.ShouldBeFalse)
		convey.So(model.KindSubjectCategory.IsHierarchical(), convey.ShouldBeTrue)
		convey.So(model.KindWorkCategory.CandidateRelated(), convey.ShouldBeFalse)
		convey.So(model.KindLanguage.CandidateRelated(), convey.ShouldBeTrue)
	})
}

func TestScoreMaps(t *testing.T) {
	convey.Convey("Given score maps", t, func() {
		a := model.ScoreMap{"score_all": 3, "score_2020": 1}

		convey.Convey("Then a clone is equal and independent", func() {
			b := a.Clone()
			convey.So(b.Equal(a), convey.ShouldBeTrue)
			b["score_all"] = 4
			convey.So(b.Equal(a), convey.ShouldBeFalse)
			convey.So(a["score_all"], convey.ShouldEqual, 3)
		})

		convey.Convey("Then missing keys differ from zero values", func() {
			convey.So(model.ScoreMap{"score_all": 0}.Equal(model.ScoreMap{}), convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given normalized maps", t, func() {
		a := model.NormalizedMap{"score_all": model.Float(50), "score_2020": nil}

		convey.Convey("Then nil compares equal only to nil", func() {
			convey.So(a.Equal(a.Clone()), convey.ShouldBeTrue)
			b := a.Clone()
			b["score_2020"] = model.Float(0)
			convey.So(a.Equal(b), convey.ShouldBeFalse)
		})
	})
}

func TestUsage(t *testing.T) {
	convey.Convey("Given usage dates", t, func() {
		convey.So(model.ParseDay("2020-05-06").Year(), convey.ShouldEqual, 2020)
		convey.So(model.ParseDay("").IsZero(), convey.ShouldBeTrue)
		convey.So(model.ParseDay("06/05/2020").IsZero(), convey.ShouldBeTrue)
		convey.So(model.UsageBucket{Day: model.ParseDay("bad")}.Dated(), convey.ShouldBeFalse)
	})
}

func TestCandidateFilter(t *testing.T) {
	convey.Convey("Given a candidate related to two authors and one language", t, func() {
		topics := map[model.Kind][]string{
			model.KindAuthor:   {"a1", "a2"},
			model.KindLanguage: {"cze"},
		}

		convey.Convey("Then an empty filter matches", func() {
			convey.So(model.CandidateFilter{}.Matches(topics), convey.ShouldBeTrue)
		})

		convey.Convey("Then any listed topic within a kind matches", func() {
			f := model.CandidateFilter{model.KindAuthor: {"a9", "a2"}}
			convey.So(f.Matches(topics), convey.ShouldBeTrue)
		})

		convey.Convey("Then every filtered kind must match", func() {
			f := model.CandidateFilter{model.KindAuthor: {"a1"}, model.KindLanguage: {"eng"}}
			convey.So(f.Matches(topics), convey.ShouldBeFalse)
		})

		convey.Convey("Then subject filters are ignored", func() {
			f := model.CandidateFilter{model.KindSubjectCategory: {"s1"}}
			convey.So(f.Matches(topics), convey.ShouldBeTrue)
		})

		convey.Convey("Then a kind the candidate lacks does not match", func() {
			f := model.CandidateFilter{model.KindPublisher: {"p1"}}
			convey.So(f.Matches(topics), convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given score source names", t, func() {
		s, err := model.ParseScoreSource("")
		convey.So(err, convey.ShouldBeNil)
		convey.So(s, convey.ShouldEqual, model.SourceStatic)
		s, err = model.ParseScoreSource("Normalized")
		convey.So(err, convey.ShouldBeNil)
		convey.So(s, convey.ShouldEqual, model.SourceNormalized)
		_, err = model.ParseScoreSource("live")
		convey.So(errors.Is(err, model.ErrUnknownSource), convey.ShouldBeTrue)
	})
}

func TestParseCandidateFilter(t *testing.T) {
	convey.Convey("Given candidate filter documents", t, func() {
		f, err := model.ParseCandidateFilter(`{"author": ["a1", "a2"], "publisher": []}`)
		convey.So(err, convey.ShouldBeNil)
		convey.So(f[model.KindAuthor], convey.ShouldResemble, []string{"a1", "a2"})
		convey.So(f.Matches(map[model.Kind][]string{model.KindAuthor: {"a2"}}), convey.ShouldBeTrue)

		empty, err := model.ParseCandidateFilter(" ")
		convey.So(err, convey.ShouldBeNil)
		convey.So(empty, convey.ShouldBeNil)

		_, err = model.ParseCandidateFilter(`{"shelf": ["x"]}`)
		convey.So(errors.Is(err, model.ErrUnknownKind), convey.ShouldBeTrue)

		_, err = model.ParseCandidateFilter(`[1]`)
		convey.So(err, convey.ShouldNotBeNil)
	})
}
