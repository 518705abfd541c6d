package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/okian/shelfrank/internal/adapters/repository"
	"github.com/okian/shelfrank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type storeFactory func(t *testing.T) repository.Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(*testing.T) repository.Store { return repository.NewMemoryStore() },
		"sqlite": func(t *testing.T) repository.Store {
			path := filepath.Join(t.TempDir(), "shelfrank.db")
			s, err := repository.NewSQLStore(context.Background(), repository.DriverSQLite, path)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func seed(ctx context.Context, s repository.Store) error {
	entities := []model.Entity{
		{ID: "w1", Kind: model.KindWork, WorkSet: "ws", Name: "Work 1"},
		{ID: "w2", Kind: model.KindWork, WorkSet: "ws", Name: "Work 2"},
		{ID: "w3", Kind: model.KindWork, WorkSet: "other", Name: "Work 3"},
		{ID: "ax", Kind: model.KindAuthor, WorkSet: "ws", Name: "Author X"},
		{ID: "ay", Kind: model.KindAuthor, WorkSet: "ws", Name: "Author Y"},
		{ID: "s-root", Kind: model.KindSubjectCategory, WorkSet: "ws", Name: "PSH", UID: "PSH-ROOT", Controlled: true},
		{ID: "s1", Kind: model.KindSubjectCategory, WorkSet: "ws", Name: "Biology", UID: "psh1", ParentID: "s-root"},
	}
	if err := s.PutEntities(ctx, entities); err != nil {
		return err
	}
	links := []model.Membership{
		{WorkID: "w1", TopicID: "ax"},
		{WorkID: "w2", TopicID: "ax"},
		{WorkID: "w2", TopicID: "ay"},
		{WorkID: "w1", TopicID: "s1"},
		{WorkID: "w1", TopicID: "s1"},
	}
	if err := s.PutMemberships(ctx, links); err != nil {
		return err
	}
	events := []model.UsageEvent{
		{ID: "e1", WorkID: "w1", Date: "2020-05-06", Value: 11},
		{ID: "e2", WorkID: "w1", Date: "2021-01-06", Value: 19},
		{ID: "e3", WorkID: "w2", Date: "2021-01-06", Value: 1},
		{ID: "e4", WorkID: "w2", Date: "", Value: 4},
		{WorkID: "w3", Date: "2022-02-02", Value: 9},
	}
	if err := s.PutUsage(ctx, events); err != nil {
		return err
	}
	return s.PutCandidates(ctx, []model.Candidate{
		{ID: "c1", Title: "Cand 1", TopicIDs: map[model.Kind][]string{
			model.KindAuthor:          {"ax"},
			model.KindSubjectCategory: {"s1"},
		}},
		{ID: "c2", Title: "Cand 2", TopicIDs: map[model.Kind][]string{
			model.KindAuthor:          {"ghost"},
			model.KindSubjectCategory: {"s1"},
		}},
	})
}

func sumUsage(b []model.UsageBucket) int64 {
	var total int64
	for _, u := range b {
		total += u.Value
	}
	return total
}

func TestStores(t *testing.T) {
	for name, newStore := range factories() {
		Convey("Given a seeded "+name+" store", t, func() {
			ctx := context.Background()
			s := newStore(t)
			So(seed(ctx, s), ShouldBeNil)

			Convey("When streaming work usage", func() {
				got := map[string]int64{}
				chunks := 0
				err := s.StreamUsage(ctx, repository.EntityFilter{Kind: model.KindWork, WorkSet: "ws"}, 1,
					func(recs []repository.UsageRecord) error {
						chunks++
						for _, r := range recs {
							got[r.Entity.ID] = sumUsage(r.Usage)
						}
						return nil
					})

				Convey("Then each work reads its own events in chunks", func() {
					So(err, ShouldBeNil)
					So(chunks, ShouldEqual, 2)
					So(got, ShouldResemble, map[string]int64{"w1": 30, "w2": 5})
				})
			})

			Convey("When streaming topic usage", func() {
				var recs []repository.UsageRecord
				err := s.StreamUsage(ctx, repository.EntityFilter{Kind: model.KindAuthor, WorkSet: "ws"}, 10,
					func(page []repository.UsageRecord) error {
						recs = append(recs, page...)
						return nil
					})

				Convey("Then topics read the events of their works grouped by day", func() {
					So(err, ShouldBeNil)
					So(len(recs), ShouldEqual, 2)
					So(recs[0].Entity.ID, ShouldEqual, "ax")
					So(sumUsage(recs[0].Usage), ShouldEqual, 35)
					So(sumUsage(recs[1].Usage), ShouldEqual, 5)
					undated := 0
					for _, b := range recs[1].Usage {
						if !b.Dated() {
							undated++
						}
					}
					So(undated, ShouldEqual, 1)
				})
			})

			Convey("When streaming only candidate-linked authors", func() {
				var ids []string
				err := s.StreamEntities(ctx, repository.EntityFilter{Kind: model.KindAuthor, LinkedOnly: true}, 10,
					func(page []model.Entity) error {
						for _, e := range page {
							ids = append(ids, e.ID)
						}
						return nil
					})
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"ax"})
			})

			Convey("When the chunk size is invalid", func() {
				err := s.StreamEntities(ctx, repository.EntityFilter{Kind: model.KindWork}, 0,
					func([]model.Entity) error { return nil })
				So(errors.Is(err, repository.ErrInvalidChunk), ShouldBeTrue)
			})

			Convey("When saving score batches", func() {
				static := model.ScoreMap{"score_all": 35, "score_2020": 35}
				So(s.SaveStatic(ctx, map[string]model.ScoreMap{"ax": static}), ShouldBeNil)
				So(s.SaveGrowth(ctx, map[string]model.Growth{"ax": {ScorePastYr: 3, ScoreYrB4: 2, AbsoluteGrowth: 1, RelativeGrowth: model.Float(0.5)}}), ShouldBeNil)
				So(s.SaveNormalized(ctx, map[string]model.NormalizedMap{"ax": {"score_all": model.Float(100), "score_2020": nil}}), ShouldBeNil)

				Convey("Then the entity reads back the written fields", func() {
					e, err := s.GetEntity(ctx, "ax")
					So(err, ShouldBeNil)
					So(e.StaticScore, ShouldResemble, static)
					So(e.Growth.ScorePastYr, ShouldEqual, 3)
					So(*e.Growth.RelativeGrowth, ShouldEqual, 0.5)
					So(*e.NormalizedScore["score_all"], ShouldEqual, 100)
					v, ok := e.NormalizedScore["score_2020"]
					So(ok, ShouldBeTrue)
					So(v, ShouldBeNil)
				})

				Convey("Then re-ingesting the entity keeps its scores", func() {
					So(s.PutEntities(ctx, []model.Entity{{ID: "ax", Kind: model.KindAuthor, WorkSet: "ws", Name: "Renamed"}}), ShouldBeNil)
					e, err := s.GetEntity(ctx, "ax")
					So(err, ShouldBeNil)
					So(e.Name, ShouldEqual, "Renamed")
					So(e.StaticScore["score_all"], ShouldEqual, 35)
				})

				Convey("Then a null relative growth round-trips", func() {
					So(s.SaveGrowth(ctx, map[string]model.Growth{"ax": {ScorePastYr: 3}}), ShouldBeNil)
					e, err := s.GetEntity(ctx, "ax")
					So(err, ShouldBeNil)
					So(e.Growth.RelativeGrowth, ShouldBeNil)
				})
			})

			Convey("When a batch names an unknown entity", func() {
				err := s.SaveStatic(ctx, map[string]model.ScoreMap{
					"ax":      {"score_all": 1},
					"missing": {"score_all": 2},
				})

				Convey("Then the whole batch fails", func() {
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
					e, err := s.GetEntity(ctx, "ax")
					So(err, ShouldBeNil)
					So(e.StaticScore["score_all"], ShouldEqual, 0)
				})
			})

			Convey("When loading the subject forest", func() {
				rows, err := s.LoadForest(ctx, "ws")
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 2)
				So(rows[0].Entity.ID, ShouldEqual, "s-root")
				So(rows[0].Entity.Controlled, ShouldBeTrue)
				So(rows[1].Entity.ParentID, ShouldEqual, "s-root")
				So(rows[1].WorkCount, ShouldEqual, 1)
			})

			Convey("When mapping subjects to candidates", func() {
				all, err := s.SubjectCandidates(ctx, nil)
				So(err, ShouldBeNil)
				So(all["s1"], ShouldResemble, []string{"c1", "c2"})

				filtered, err := s.SubjectCandidates(ctx, model.CandidateFilter{model.KindAuthor: {"ax"}})
				So(err, ShouldBeNil)
				So(filtered["s1"], ShouldResemble, []string{"c1"})
			})

			Convey("When reading candidates", func() {
				rec, err := s.GetCandidate(ctx, "c1")
				So(err, ShouldBeNil)
				So(rec.Candidate.Title, ShouldEqual, "Cand 1")
				So(rec.Candidate.TopicIDs[model.KindAuthor], ShouldResemble, []string{"ax"})
				So(len(rec.Topics), ShouldEqual, 2)

				ghost, err := s.GetCandidate(ctx, "c2")
				So(err, ShouldBeNil)
				So(len(ghost.Topics), ShouldEqual, 1)

				_, err = s.GetCandidate(ctx, "nope")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("When materialized axes are saved", func() {
				cache := map[model.ScoreSource]model.AxisCache{
					model.SourceStatic:     {"score_all": {model.KindAuthor: 35}},
					model.SourceNormalized: {"score_all": {model.KindAuthor: 100}},
				}
				So(s.SaveCandidateAxes(ctx, map[string]map[model.ScoreSource]model.AxisCache{"c1": cache}), ShouldBeNil)

				Convey("Then streaming candidates returns them", func() {
					var recs []repository.CandidateRecord
					err := s.StreamCandidates(ctx, 1, func(page []repository.CandidateRecord) error {
						recs = append(recs, page...)
						return nil
					})
					So(err, ShouldBeNil)
					So(len(recs), ShouldEqual, 2)
					So(recs[0].Candidate.Cached, ShouldResemble, cache)
					So(recs[1].Candidate.Cached, ShouldBeNil)
				})

				Convey("Then re-ingesting keeps the cache", func() {
					So(s.PutCandidates(ctx, []model.Candidate{{ID: "c1", Title: "Again"}}), ShouldBeNil)
					rec, err := s.GetCandidate(ctx, "c1")
					So(err, ShouldBeNil)
					So(rec.Candidate.Cached, ShouldResemble, cache)
					So(rec.Topics, ShouldBeEmpty)
				})
			})

			Convey("When a callback fails", func() {
				boom := errors.New("boom")
				err := s.StreamCandidates(ctx, 10, func([]repository.CandidateRecord) error { return boom })
				So(errors.Is(err, boom), ShouldBeTrue)
			})
		})
	}
}

func TestSQLStoreDriver(t *testing.T) {
	Convey("Given an unknown driver", t, func() {
		_, err := repository.NewSQLStore(context.Background(), "mysql", "x")
		So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
	})

	Convey("Given a pool cap", t, func() {
		path := filepath.Join(t.TempDir(), "pool.db")
		s, err := repository.NewSQLStore(context.Background(), repository.DriverSQLite, path,
			repository.WithMaxOpenConns(3),
		)
		So(err, ShouldBeNil)
		defer s.Close()
		So(s.Stats().MaxOpenConnections, ShouldEqual, 3)

		Convey("Then zero keeps the driver default", func() {
			u, err := repository.NewSQLStore(context.Background(), repository.DriverSQLite, path,
				repository.WithMaxOpenConns(0),
			)
			So(err, ShouldBeNil)
			defer u.Close()
			So(u.Stats().MaxOpenConnections, ShouldEqual, 0)
		})
	})
}
