package scoring_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/shelfrank/internal/domain/model"
	scoring "github.com/okian/shelfrank/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func day(s string) time.Time {
	return model.ParseDay(s)
}

func TestWindows(t *testing.T) {
	Convey("Given the default window set", t, func() {
		ws := scoring.NewWindows(scoring.DefaultYears)

		Convey("Then keys follow configured order with all last", func() {
			So(ws.Keys(), ShouldResemble, []string{
				"score_2020", "score_2015", "score_2010", "score_2005", "score_2000", "score_all",
			})
		})

		Convey("Then lookup accepts short and full keys", func() {
			w, err := ws.Lookup("2015")
			So(err, ShouldBeNil)
			So(w.Key, ShouldEqual, "score_2015")
			So(w.Cutoff, ShouldEqual, time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC))

			w, err = ws.Lookup("all")
			So(err, ShouldBeNil)
			So(w.All, ShouldBeTrue)

			w, err = ws.Lookup("")
			So(err, ShouldBeNil)
			So(w.Key, ShouldEqual, scoring.KeyAll)
		})

		Convey("Then an unknown key is rejected", func() {
			_, err := ws.Lookup("1999")
			So(errors.Is(err, scoring.ErrInvalidWindow), ShouldBeTrue)
		})
	})

	Convey("Given duplicated years", t, func() {
		ws := scoring.NewWindows([]int{2020, 2020, 2010})
		So(ws.Keys(), ShouldResemble, []string{"score_2020", "score_2010", "score_all"})
	})
}

func TestStaticCalculator(t *testing.T) {
	Convey("Given a static calculator with default windows", t, func() {
		calc := scoring.NewStaticCalculator(scoring.NewWindows(scoring.DefaultYears))

		Convey("When an entity has no usage", func() {
			got := calc.Compute(nil)

			Convey("Then every window is zero", func() {
				So(len(got), ShouldEqual, 6)
				for _, v := range got {
					So(v, ShouldEqual, 0)
				}
			})
		})

		Convey("When usage spans several windows", func() {
			buckets := []model.UsageBucket{
				{Day: day("2020-05-06"), Value: 11},
				{Day: day("2021-01-06"), Value: 19},
				{Day: day("2012-03-01"), Value: 4},
				{Day: day("1998-12-31"), Value: 2},
			}
			got := calc.Compute(buckets)

			Convey("Then each window sums values on or after its cutoff", func() {
				So(got["score_2020"], ShouldEqual, 30)
				So(got["score_2015"], ShouldEqual, 30)
				So(got["score_2010"], ShouldEqual, 34)
				So(got["score_2005"], ShouldEqual, 34)
				So(got["score_2000"], ShouldEqual, 34)
				So(got["score_all"], ShouldEqual, 36)
			})
		})

		Convey("When a usage day is exactly the cutoff", func() {
			got := calc.Compute([]model.UsageBucket{{Day: day("2020-01-01"), Value: 5}})
			So(got["score_2020"], ShouldEqual, 5)
		})

		Convey("When usage has no date", func() {
			buckets := []model.UsageBucket{
				{Day: day("not-a-date"), Value: 7},
				{Day: day("2021-02-02"), Value: 1},
			}
			got := calc.Compute(buckets)

			Convey("Then it contributes to no window", func() {
				So(got["score_2020"], ShouldEqual, 1)
				So(got["score_all"], ShouldEqual, 1)
			})
		})

		Convey("When undated usage is counted toward all", func() {
			lenient := scoring.NewStaticCalculator(
				scoring.NewWindows(scoring.DefaultYears),
				scoring.WithUndatedInAll(true),
			)
			got := lenient.Compute([]model.UsageBucket{{Value: 7}, {Day: day("2021-02-02"), Value: 1}})
			So(got["score_2020"], ShouldEqual, 1)
			So(got["score_all"], ShouldEqual, 8)
		})

		Convey("When diffing against a stored map", func() {
			buckets := []model.UsageBucket{{Day: day("2016-06-06"), Value: 3}}
			first, changed := calc.Diff(nil, buckets)
			So(changed, ShouldBeTrue)

			_, changed = calc.Diff(first, buckets)
			So(changed, ShouldBeFalse)

			_, changed = calc.Diff(first, append(buckets, model.UsageBucket{Day: day("2022-01-01"), Value: 1}))
			So(changed, ShouldBeTrue)
		})
	})
}

func TestGrowthCalculator(t *testing.T) {
	Convey("Given a growth calculator with a frozen now", t, func() {
		now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		calc := scoring.NewGrowthCalculator(now)
		yearAgo := now.Add(-365 * 24 * time.Hour)

		Convey("When usage falls in both periods", func() {
			g := calc.Compute([]model.UsageBucket{
				{Day: day("2024-01-10"), Value: 10},
				{Day: day("2022-12-01"), Value: 5},
				{Day: day("2021-01-01"), Value: 100},
			})

			Convey("Then growth compares the two periods", func() {
				So(g.ScorePastYr, ShouldEqual, 10)
				So(g.ScoreYrB4, ShouldEqual, 5)
				So(g.AbsoluteGrowth, ShouldEqual, 5)
				So(g.RelativeGrowth, ShouldNotBeNil)
				So(*g.RelativeGrowth, ShouldEqual, 1.0)
			})
		})

		Convey("When the prior period is empty", func() {
			g := calc.Compute([]model.UsageBucket{{Day: day("2024-01-10"), Value: 3}})

			Convey("Then relative growth is null", func() {
				So(g.AbsoluteGrowth, ShouldEqual, 3)
				So(g.RelativeGrowth, ShouldBeNil)
			})
		})

		Convey("When usage sits on the period boundaries", func() {
			g := calc.Compute([]model.UsageBucket{
				{Day: now, Value: 1},
				{Day: yearAgo, Value: 2},
				{Day: yearAgo.Add(-365 * 24 * time.Hour), Value: 4},
			})

			Convey("Then now is excluded and period starts are included", func() {
				So(g.ScorePastYr, ShouldEqual, 2)
				So(g.ScoreYrB4, ShouldEqual, 4)
				So(*g.RelativeGrowth, ShouldEqual, -0.5)
			})
		})

		Convey("When diffing with identical sums", func() {
			buckets := []model.UsageBucket{{Day: day("2024-01-10"), Value: 3}}
			first, changed := calc.Diff(model.Growth{}, buckets)
			So(changed, ShouldBeTrue)
			_, changed = calc.Diff(first, buckets)
			So(changed, ShouldBeFalse)
		})
	})

	Convey("Relative growth is null exactly when b4 is zero", t, func() {
		for _, tc := range []struct{ past, b4 int64 }{{0, 0}, {5, 0}, {0, 5}, {7, 3}} {
			g := scoring.NewGrowth(tc.past, tc.b4)
			if tc.b4 == 0 {
				So(g.RelativeGrowth, ShouldBeNil)
				continue
			}
			So(*g.RelativeGrowth, ShouldEqual, float64(g.AbsoluteGrowth)/float64(tc.b4))
		}
	})
}

func TestNormalizer(t *testing.T) {
	Convey("Given a normalizer and observed maxima", t, func() {
		ws := scoring.NewWindows([]int{2020})
		n := scoring.NewNormalizer(ws)
		maxima := scoring.Maxima{}
		maxima.Observe(model.ScoreMap{"score_2020": 30, "score_all": 30})
		maxima.Observe(model.ScoreMap{"score_2020": 0, "score_all": 12})

		Convey("When normalizing the population maximum", func() {
			got := n.Normalize(model.ScoreMap{"score_2020": 30, "score_all": 30}, maxima)
			So(*got["score_all"], ShouldEqual, 100)
			So(*got["score_2020"], ShouldEqual, 100)
		})

		Convey("When normalizing a smaller entity", func() {
			got := n.Normalize(model.ScoreMap{"score_2020": 0, "score_all": 12}, maxima)
			So(*got["score_all"], ShouldEqual, 40)
			So(*got["score_2020"], ShouldEqual, 0)
		})

		Convey("When the maximum is zero or absent", func() {
			zero := scoring.Maxima{"score_2020": 0}
			got := n.Normalize(model.ScoreMap{"score_2020": 0, "score_all": 5}, zero)
			So(got["score_2020"], ShouldBeNil)
			So(got["score_all"], ShouldBeNil)
		})

		Convey("When the entity has no static value for a window", func() {
			got := n.Normalize(model.ScoreMap{"score_all": 6}, maxima)
			So(got["score_2020"], ShouldBeNil)
			So(*got["score_all"], ShouldEqual, 20)
		})

		Convey("When an entity outside the population exceeds the maximum", func() {
			got := n.Normalize(model.ScoreMap{"score_2020": 90, "score_all": 90}, maxima)
			So(*got["score_all"], ShouldEqual, 100)
		})

		Convey("When diffing against the same result", func() {
			first, changed := n.Diff(nil, model.ScoreMap{"score_all": 6}, maxima)
			So(changed, ShouldBeTrue)
			_, changed = n.Diff(first, model.ScoreMap{"score_all": 6}, maxima)
			So(changed, ShouldBeFalse)
		})
	})
}

func TestCompositeScorer(t *testing.T) {
	Convey("Given a candidate with two authors and a publisher", t, func() {
		ws := scoring.NewWindows([]int{2020})
		scorer := scoring.NewCompositeScorer(ws)
		cand := model.Candidate{ID: "c1"}
		topics := []model.Entity{
			{ID: "a1", Kind: model.KindAuthor, StaticScore: model.ScoreMap{"score_all": 10, "score_2020": 1},
				NormalizedScore: model.NormalizedMap{"score_all": model.Float(25)}},
			{ID: "a2", Kind: model.KindAuthor, StaticScore: model.ScoreMap{"score_all": 30, "score_2020": 2},
				NormalizedScore: model.NormalizedMap{"score_all": nil}},
			{ID: "p1", Kind: model.KindPublisher, StaticScore: model.ScoreMap{"score_all": 4}},
		}

		Convey("When scoring with weight 1 on authors", func() {
			res, err := scorer.OnDemand(cand, topics, scoring.Weights{model.KindAuthor: 1}, "all", model.SourceStatic)

			Convey("Then the author axis is the maximum", func() {
				So(err, ShouldBeNil)
				So(res.Axes[model.KindAuthor], ShouldEqual, 30)
				So(res.Score, ShouldEqual, 30)
			})
		})

		Convey("When scoring several axes", func() {
			weights := scoring.Weights{model.KindAuthor: 0.5, model.KindPublisher: 2, model.KindLanguage: 3}
			res, err := scorer.OnDemand(cand, topics, weights, "score_all", model.SourceStatic)

			Convey("Then missing axes contribute zero", func() {
				So(err, ShouldBeNil)
				So(res.Axes[model.KindLanguage], ShouldEqual, 0)
				So(res.Score, ShouldEqual, 0.5*30+2*4)
			})
		})

		Convey("When scoring the normalized source", func() {
			res, err := scorer.OnDemand(cand, topics, scoring.Weights{model.KindAuthor: 1}, "all", model.SourceNormalized)

			Convey("Then null values are ignored", func() {
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 25)
			})
		})

		Convey("When axes are materialized", func() {
			cand.Cached = scorer.Materialize(topics)
			weights := scoring.Weights{model.KindAuthor: 0.3, model.KindPublisher: 0.7}

			Convey("Then cached and on-demand scores agree exactly", func() {
				for _, src := range []model.ScoreSource{model.SourceStatic, model.SourceNormalized} {
					for _, w := range ws.Keys() {
						live, err := scorer.OnDemand(cand, topics, weights, w, src)
						So(err, ShouldBeNil)
						cached, err := scorer.FromCache(cand, weights, w, src)
						So(err, ShouldBeNil)
						So(cached.Score, ShouldEqual, live.Score)
						So(cached.Cached, ShouldBeTrue)
					}
				}
			})

			Convey("Then rematerializing reports no change", func() {
				So(scoring.CacheChanged(cand.Cached, scorer.Materialize(topics)), ShouldBeFalse)
				So(scoring.CacheChanged(cand.Cached, scorer.Materialize(topics[:1])), ShouldBeTrue)
			})
		})

		Convey("When nothing is materialized", func() {
			_, err := scorer.FromCache(cand, scoring.Weights{model.KindAuthor: 1}, "all", model.SourceStatic)
			So(errors.Is(err, scoring.ErrNotMaterialized), ShouldBeTrue)
		})

		Convey("When weights are empty", func() {
			_, err := scorer.OnDemand(cand, topics, nil, "all", model.SourceStatic)
			So(errors.Is(err, scoring.ErrNoWeights), ShouldBeTrue)
		})

		Convey("When the window is unknown", func() {
			_, err := scorer.OnDemand(cand, topics, scoring.Weights{model.KindAuthor: 1}, "1990", model.SourceStatic)
			So(errors.Is(err, scoring.ErrInvalidWindow), ShouldBeTrue)
		})
	})
}

func TestParseWeights(t *testing.T) {
	Convey("Given a weight string", t, func() {
		w, err := scoring.ParseWeights("authors:1, publisher:0.5,lang:2")
		So(err, ShouldBeNil)
		So(w, ShouldResemble, scoring.Weights{
			model.KindAuthor:    1,
			model.KindPublisher: 0.5,
			model.KindLanguage:  2,
		})

		_, err = scoring.ParseWeights("bogus:1")
		So(errors.Is(err, model.ErrUnknownKind), ShouldBeTrue)

		_, err = scoring.ParseWeights("work:1")
		So(errors.Is(err, model.ErrUnknownKind), ShouldBeTrue)

		_, err = scoring.ParseWeights("author")
		So(err, ShouldNotBeNil)
	})
}
