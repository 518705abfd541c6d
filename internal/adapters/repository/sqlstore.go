package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/okian/shelfrank/internal/domain/model"
	"github.com/okian/shelfrank/internal/domain/tree"
	"github.com/okian/shelfrank/pkg/metrics"
	_ "modernc.org/sqlite" // sqlite driver
)

const sqlStoreName = "sql"

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	work_set         TEXT NOT NULL DEFAULT '',
	name             TEXT NOT NULL DEFAULT '',
	uid              TEXT NOT NULL DEFAULT '',
	parent_id        TEXT NOT NULL DEFAULT '',
	controlled       BOOLEAN NOT NULL DEFAULT FALSE,
	static_score     TEXT NOT NULL DEFAULT '{}',
	normalized_score TEXT NOT NULL DEFAULT '{}',
	score_past_yr    BIGINT NOT NULL DEFAULT 0,
	score_yr_b4      BIGINT NOT NULL DEFAULT 0,
	absolute_growth  BIGINT NOT NULL DEFAULT 0,
	relative_growth  DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_entities_population ON entities(kind, work_set, id);

CREATE TABLE IF NOT EXISTS memberships (
	work_id  TEXT NOT NULL,
	topic_id TEXT NOT NULL,
	PRIMARY KEY (work_id, topic_id)
);
CREATE INDEX IF NOT EXISTS idx_memberships_topic ON memberships(topic_id);

CREATE TABLE IF NOT EXISTS usage_events (
	id      TEXT PRIMARY KEY,
	work_id TEXT NOT NULL,
	day     TEXT NOT NULL DEFAULT '',
	value   BIGINT NOT NULL,
	type    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_usage_events_work_day ON usage_events(work_id, day);

CREATE TABLE IF NOT EXISTS candidates (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL DEFAULT '',
	static_axes     TEXT NOT NULL DEFAULT '',
	normalized_axes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS candidate_topics (
	candidate_id TEXT NOT NULL,
	topic_id     TEXT NOT NULL,
	kind         TEXT NOT NULL,
	PRIMARY KEY (candidate_id, topic_id)
);
CREATE INDEX IF NOT EXISTS idx_candidate_topics_topic ON candidate_topics(topic_id);
`

const entityColumns = `e.id, e.kind, e.work_set, e.name, e.uid, e.parent_id, e.controlled,
	e.static_score, e.normalized_score, e.score_past_yr, e.score_yr_b4,
	e.absolute_growth, e.relative_growth`

type entityRow struct {
	ID              string          `db:"id"`
	Kind            string          `db:"kind"`
	WorkSet         string          `db:"work_set"`
	Name            string          `db:"name"`
	UID             string          `db:"uid"`
	ParentID        string          `db:"parent_id"`
	Controlled      bool            `db:"controlled"`
	StaticScore     string          `db:"static_score"`
	NormalizedScore string          `db:"normalized_score"`
	ScorePastYr     int64           `db:"score_past_yr"`
	ScoreYrB4       int64           `db:"score_yr_b4"`
	AbsoluteGrowth  int64           `db:"absolute_growth"`
	RelativeGrowth  sql.NullFloat64 `db:"relative_growth"`
}

func (r entityRow) entity() (model.Entity, error) {
	e := model.Entity{
		ID:         r.ID,
		Kind:       model.Kind(r.Kind),
		WorkSet:    r.WorkSet,
		Name:       r.Name,
		UID:        r.UID,
		ParentID:   r.ParentID,
		Controlled: r.Controlled,
		Growth: model.Growth{
			ScorePastYr:    r.ScorePastYr,
			ScoreYrB4:      r.ScoreYrB4,
			AbsoluteGrowth: r.AbsoluteGrowth,
		},
	}
	if r.RelativeGrowth.Valid {
		e.Growth.RelativeGrowth = model.Float(r.RelativeGrowth.Float64)
	}
	if err := decodeJSON(r.StaticScore, &e.StaticScore); err != nil {
		return e, fmt.Errorf("entity %s static_score: %w", r.ID, err)
	}
	if err := decodeJSON(r.NormalizedScore, &e.NormalizedScore); err != nil {
		return e, fmt.Errorf("entity %s normalized_score: %w", r.ID, err)
	}
	return e, nil
}

type usageRow struct {
	EntityID string `db:"entity_id"`
	Day      string `db:"day"`
	Value    int64  `db:"value"`
}

type candidateRow struct {
	ID             string `db:"id"`
	Title          string `db:"title"`
	StaticAxes     string `db:"static_axes"`
	NormalizedAxes string `db:"normalized_axes"`
}

type relationRow struct {
	CandidateID string `db:"candidate_id"`
	TopicID     string `db:"topic_id"`
	Kind        string `db:"kind"`
}

// SQLStore implements Store over database/sql through sqlx. SQLite and
// PostgreSQL share one portable schema; placeholders are rebound per driver.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore opens the database and creates the schema when missing. A
// SQLite DSN without parameters gets WAL and a busy timeout.
func NewSQLStore(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	o := storeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if o.maxOpenConns > 0 {
		db.SetMaxOpenConns(o.maxOpenConns)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Stats reports connection pool statistics.
func (s *SQLStore) Stats() sql.DBStats {
	return s.db.Stats()
}

// populationQuery returns the keyset query for one page of a population.
func (s *SQLStore) populationQuery(f EntityFilter, after string, limit int) (string, []any) {
	var b strings.Builder
	args := []any{string(f.Kind)}
	b.WriteString("SELECT " + entityColumns + " FROM entities e WHERE e.kind = ?")
	if f.WorkSet != "" {
		b.WriteString(" AND e.work_set = ?")
		args = append(args, f.WorkSet)
	}
	if f.LinkedOnly {
		b.WriteString(" AND EXISTS (SELECT 1 FROM candidate_topics ct WHERE ct.topic_id = e.id)")
	}
	b.WriteString(" AND e.id > ? ORDER BY e.id LIMIT ?")
	args = append(args, after, limit)
	return s.db.Rebind(b.String()), args
}

// StreamEntities implements ScoreStore.
func (s *SQLStore) StreamEntities(ctx context.Context, f EntityFilter, chunk int, fn func([]model.Entity) error) error {
	if chunk <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunk, chunk)
	}
	after := ""
	for {
		page, err := s.page(ctx, f, after, chunk)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < chunk {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

func (s *SQLStore) page(ctx context.Context, f EntityFilter, after string, limit int) ([]model.Entity, error) {
	defer observe(sqlStoreName, "page", time.Now())
	q, args := s.populationQuery(f, after, limit)
	var rows []entityRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("select %s population: %w", f.Kind, err)
	}
	out := make([]model.Entity, len(rows))
	for i, r := range rows {
		e, err := r.entity()
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// StreamUsage implements Ledger. Each chunk costs one page query and one
// grouped usage query.
func (s *SQLStore) StreamUsage(ctx context.Context, f EntityFilter, chunk int, fn func([]UsageRecord) error) error {
	return s.StreamEntities(ctx, f, chunk, func(page []model.Entity) error {
		ids := make([]string, len(page))
		for i, e := range page {
			ids[i] = e.ID
		}
		byEntity, err := s.groupedUsage(ctx, f.Kind, ids)
		if err != nil {
			return err
		}
		recs := make([]UsageRecord, len(page))
		for i, e := range page {
			recs[i] = UsageRecord{Entity: e, Usage: byEntity[e.ID]}
		}
		return fn(recs)
	})
}

func (s *SQLStore) groupedUsage(ctx context.Context, kind model.Kind, ids []string) (map[string][]model.UsageBucket, error) {
	defer observe(sqlStoreName, "grouped_usage", time.Now())
	q := `SELECT m.topic_id AS entity_id, u.day AS day, SUM(u.value) AS value
		FROM memberships m JOIN usage_events u ON u.work_id = m.work_id
		WHERE m.topic_id IN (?) GROUP BY m.topic_id, u.day`
	if kind == model.KindWork {
		q = `SELECT u.work_id AS entity_id, u.day AS day, SUM(u.value) AS value
			FROM usage_events u WHERE u.work_id IN (?) GROUP BY u.work_id, u.day`
	}
	q, args, err := sqlx.In(q, ids)
	if err != nil {
		return nil, fmt.Errorf("expand usage query: %w", err)
	}
	var rows []usageRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("select grouped usage: %w", err)
	}
	out := make(map[string][]model.UsageBucket, len(ids))
	for _, r := range rows {
		out[r.EntityID] = append(out[r.EntityID], model.UsageBucket{Day: model.ParseDay(r.Day), Value: r.Value})
	}
	return out, nil
}

// GetEntity implements ScoreStore.
func (s *SQLStore) GetEntity(ctx context.Context, id string) (model.Entity, error) {
	var r entityRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind("SELECT "+entityColumns+" FROM entities e WHERE e.id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Entity{}, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Entity{}, fmt.Errorf("get entity %s: %w", id, err)
	}
	return r.entity()
}

// SaveStatic implements ScoreStore.
func (s *SQLStore) SaveStatic(ctx context.Context, batch map[string]model.ScoreMap) error {
	defer observe(sqlStoreName, "save_static", time.Now())
	return s.updateBatch(ctx, "UPDATE entities SET static_score = ? WHERE id = ?", sortedKeys(batch),
		func(id string) ([]any, error) {
			raw, err := json.Marshal(batch[id])
			return []any{string(raw)}, err
		})
}

// SaveGrowth implements ScoreStore.
func (s *SQLStore) SaveGrowth(ctx context.Context, batch map[string]model.Growth) error {
	defer observe(sqlStoreName, "save_growth", time.Now())
	q := `UPDATE entities SET score_past_yr = ?, score_yr_b4 = ?, absolute_growth = ?, relative_growth = ? WHERE id = ?`
	return s.updateBatch(ctx, q, sortedKeys(batch), func(id string) ([]any, error) {
		g := batch[id]
		var rel sql.NullFloat64
		if g.RelativeGrowth != nil {
			rel = sql.NullFloat64{Float64: *g.RelativeGrowth, Valid: true}
		}
		return []any{g.ScorePastYr, g.ScoreYrB4, g.AbsoluteGrowth, rel}, nil
	})
}

// SaveNormalized implements ScoreStore.
func (s *SQLStore) SaveNormalized(ctx context.Context, batch map[string]model.NormalizedMap) error {
	defer observe(sqlStoreName, "save_normalized", time.Now())
	return s.updateBatch(ctx, "UPDATE entities SET normalized_score = ? WHERE id = ?", sortedKeys(batch),
		func(id string) ([]any, error) {
			raw, err := json.Marshal(batch[id])
			return []any{string(raw)}, err
		})
}

// updateBatch runs one prepared UPDATE per id inside a single transaction.
// args returns every placeholder value except the trailing id.
func (s *SQLStore) updateBatch(ctx context.Context, query string, ids []string, args func(string) ([]any, error)) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, tx.Rebind(query))
		if err != nil {
			return fmt.Errorf("prepare batch: %w", err)
		}
		defer stmt.Close()
		for _, id := range ids {
			vals, err := args(id)
			if err != nil {
				return fmt.Errorf("encode %s: %w", id, err)
			}
			res, err := stmt.ExecContext(ctx, append(vals, id)...)
			if err != nil {
				return fmt.Errorf("update %s: %w", id, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return fmt.Errorf("update %s: %w", id, ErrNotFound)
			}
		}
		return nil
	})
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type forestRow struct {
	entityRow
	WorkCount int64 `db:"work_count"`
}

// LoadForest implements TreeStore.
func (s *SQLStore) LoadForest(ctx context.Context, workSet string) ([]tree.Row, error) {
	defer observe(sqlStoreName, "load_forest", time.Now())
	q := s.db.Rebind(`SELECT ` + entityColumns + `,
		(SELECT COUNT(*) FROM memberships m WHERE m.topic_id = e.id) AS work_count
		FROM entities e WHERE e.kind = ? AND e.work_set = ? ORDER BY e.id`)
	var rows []forestRow
	if err := s.db.SelectContext(ctx, &rows, q, string(model.KindSubjectCategory), workSet); err != nil {
		return nil, fmt.Errorf("select forest %s: %w", workSet, err)
	}
	out := make([]tree.Row, len(rows))
	for i, r := range rows {
		e, err := r.entity()
		if err != nil {
			return nil, err
		}
		out[i] = tree.Row{Entity: e, WorkCount: r.WorkCount}
	}
	return out, nil
}

// SubjectCandidates implements TreeStore.
func (s *SQLStore) SubjectCandidates(ctx context.Context, f model.CandidateFilter) (map[string][]string, error) {
	var rels []relationRow
	q := "SELECT candidate_id, topic_id, kind FROM candidate_topics ORDER BY candidate_id, topic_id"
	if err := s.db.SelectContext(ctx, &rels, q); err != nil {
		return nil, fmt.Errorf("select candidate topics: %w", err)
	}
	byCandidate := groupRelations(rels)
	ids := sortedKeys(byCandidate)
	out := make(map[string][]string)
	for _, id := range ids {
		topics := byCandidate[id]
		if !f.Matches(topics) {
			continue
		}
		for _, topic := range topics[model.KindSubjectCategory] {
			out[topic] = append(out[topic], id)
		}
	}
	return out, nil
}

// StreamCandidates implements CandidateStore.
func (s *SQLStore) StreamCandidates(ctx context.Context, chunk int, fn func([]CandidateRecord) error) error {
	if chunk <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunk, chunk)
	}
	after := ""
	for {
		var rows []candidateRow
		q := s.db.Rebind("SELECT id, title, static_axes, normalized_axes FROM candidates WHERE id > ? ORDER BY id LIMIT ?")
		if err := s.db.SelectContext(ctx, &rows, q, after, chunk); err != nil {
			return fmt.Errorf("select candidates: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		recs, err := s.resolveCandidates(ctx, rows)
		if err != nil {
			return err
		}
		if err := fn(recs); err != nil {
			return err
		}
		if len(rows) < chunk {
			return nil
		}
		after = rows[len(rows)-1].ID
	}
}

// GetCandidate implements CandidateStore.
func (s *SQLStore) GetCandidate(ctx context.Context, id string) (CandidateRecord, error) {
	var rows []candidateRow
	q := s.db.Rebind("SELECT id, title, static_axes, normalized_axes FROM candidates WHERE id = ?")
	if err := s.db.SelectContext(ctx, &rows, q, id); err != nil {
		return CandidateRecord{}, fmt.Errorf("get candidate %s: %w", id, err)
	}
	if len(rows) == 0 {
		metrics.RecordErrorByComponent("repository", "not_found")
		return CandidateRecord{}, fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	recs, err := s.resolveCandidates(ctx, rows)
	if err != nil {
		return CandidateRecord{}, err
	}
	return recs[0], nil
}

type candidateTopicRow struct {
	CandidateID string `db:"candidate_id"`
	entityRow
}

// resolveCandidates loads relations and related topic entities for a page.
func (s *SQLStore) resolveCandidates(ctx context.Context, rows []candidateRow) ([]CandidateRecord, error) {
	defer observe(sqlStoreName, "resolve_candidates", time.Now())
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	q, args, err := sqlx.In("SELECT candidate_id, topic_id, kind FROM candidate_topics WHERE candidate_id IN (?) ORDER BY candidate_id, topic_id", ids)
	if err != nil {
		return nil, fmt.Errorf("expand relation query: %w", err)
	}
	var rels []relationRow
	if err := s.db.SelectContext(ctx, &rels, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("select relations: %w", err)
	}
	relations := groupRelations(rels)

	q, args, err = sqlx.In(`SELECT ct.candidate_id AS candidate_id, `+entityColumns+`
		FROM candidate_topics ct JOIN entities e ON e.id = ct.topic_id
		WHERE ct.candidate_id IN (?) ORDER BY ct.candidate_id, e.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("expand topic query: %w", err)
	}
	var topicRows []candidateTopicRow
	if err := s.db.SelectContext(ctx, &topicRows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("select candidate topics: %w", err)
	}
	topics := make(map[string][]model.Entity, len(rows))
	for _, r := range topicRows {
		e, err := r.entity()
		if err != nil {
			return nil, err
		}
		topics[r.CandidateID] = append(topics[r.CandidateID], e)
	}

	out := make([]CandidateRecord, len(rows))
	for i, r := range rows {
		c := model.Candidate{ID: r.ID, Title: r.Title, TopicIDs: relations[r.ID]}
		cached, err := decodeAxes(r)
		if err != nil {
			return nil, err
		}
		c.Cached = cached
		out[i] = CandidateRecord{Candidate: c, Topics: topics[r.ID]}
	}
	return out, nil
}

// SaveCandidateAxes implements CandidateStore.
func (s *SQLStore) SaveCandidateAxes(ctx context.Context, batch map[string]map[model.ScoreSource]model.AxisCache) error {
	defer observe(sqlStoreName, "save_candidate_axes", time.Now())
	return s.updateBatch(ctx, "UPDATE candidates SET static_axes = ?, normalized_axes = ? WHERE id = ?", sortedKeys(batch),
		func(id string) ([]any, error) {
			st, err := json.Marshal(batch[id][model.SourceStatic])
			if err != nil {
				return nil, err
			}
			nm, err := json.Marshal(batch[id][model.SourceNormalized])
			if err != nil {
				return nil, err
			}
			return []any{string(st), string(nm)}, nil
		})
}

// PutEntities implements Ingester. Score fields are only written on insert.
func (s *SQLStore) PutEntities(ctx context.Context, entities []model.Entity) error {
	q := `INSERT INTO entities (id, kind, work_set, name, uid, parent_id, controlled,
			static_score, normalized_score, score_past_yr, score_yr_b4, absolute_growth, relative_growth)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			work_set = excluded.work_set,
			name = excluded.name,
			uid = excluded.uid,
			parent_id = excluded.parent_id,
			controlled = excluded.controlled`
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, tx.Rebind(q))
		if err != nil {
			return fmt.Errorf("prepare entity upsert: %w", err)
		}
		defer stmt.Close()
		for _, e := range entities {
			static, _ := json.Marshal(nonNil(e.StaticScore))
			normalized, _ := json.Marshal(nonNil(e.NormalizedScore))
			var rel sql.NullFloat64
			if e.Growth.RelativeGrowth != nil {
				rel = sql.NullFloat64{Float64: *e.Growth.RelativeGrowth, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, e.ID, string(e.Kind), e.WorkSet, e.Name, e.UID, e.ParentID, e.Controlled,
				string(static), string(normalized), e.Growth.ScorePastYr, e.Growth.ScoreYrB4, e.Growth.AbsoluteGrowth, rel); err != nil {
				return fmt.Errorf("upsert entity %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// PutMemberships implements Ingester.
func (s *SQLStore) PutMemberships(ctx context.Context, links []model.Membership) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		q := tx.Rebind("INSERT INTO memberships (work_id, topic_id) VALUES (?, ?) ON CONFLICT DO NOTHING")
		for _, l := range links {
			if _, err := tx.ExecContext(ctx, q, l.WorkID, l.TopicID); err != nil {
				return fmt.Errorf("insert membership %s/%s: %w", l.WorkID, l.TopicID, err)
			}
		}
		return nil
	})
}

// PutUsage implements Ingester. Events without an id get a random one.
func (s *SQLStore) PutUsage(ctx context.Context, events []model.UsageEvent) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`INSERT INTO usage_events (id, work_id, day, value, type) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET work_id = excluded.work_id, day = excluded.day,
				value = excluded.value, type = excluded.type`)
		for _, ev := range events {
			if ev.ID == "" {
				ev.ID = uuid.NewString()
			}
			if _, err := tx.ExecContext(ctx, q, ev.ID, ev.WorkID, ev.Date, ev.Value, ev.Type); err != nil {
				return fmt.Errorf("upsert usage %s: %w", ev.ID, err)
			}
		}
		return nil
	})
}

// PutCandidates implements Ingester. Relations are replaced; materialized
// axes are kept.
func (s *SQLStore) PutCandidates(ctx context.Context, candidates []model.Candidate) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		upsert := tx.Rebind("INSERT INTO candidates (id, title) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET title = excluded.title")
		unlink := tx.Rebind("DELETE FROM candidate_topics WHERE candidate_id = ?")
		link := tx.Rebind("INSERT INTO candidate_topics (candidate_id, topic_id, kind) VALUES (?, ?, ?) ON CONFLICT DO NOTHING")
		for _, c := range candidates {
			if _, err := tx.ExecContext(ctx, upsert, c.ID, c.Title); err != nil {
				return fmt.Errorf("upsert candidate %s: %w", c.ID, err)
			}
			if _, err := tx.ExecContext(ctx, unlink, c.ID); err != nil {
				return fmt.Errorf("clear candidate %s topics: %w", c.ID, err)
			}
			for kind, ids := range c.TopicIDs {
				for _, id := range ids {
					if _, err := tx.ExecContext(ctx, link, c.ID, id, string(kind)); err != nil {
						return fmt.Errorf("link candidate %s to %s: %w", c.ID, id, err)
					}
				}
			}
		}
		return nil
	})
}

func groupRelations(rels []relationRow) map[string]map[model.Kind][]string {
	out := make(map[string]map[model.Kind][]string)
	for _, r := range rels {
		m, ok := out[r.CandidateID]
		if !ok {
			m = make(map[model.Kind][]string)
			out[r.CandidateID] = m
		}
		m[model.Kind(r.Kind)] = append(m[model.Kind(r.Kind)], r.TopicID)
	}
	return out
}

func decodeAxes(r candidateRow) (map[model.ScoreSource]model.AxisCache, error) {
	if r.StaticAxes == "" && r.NormalizedAxes == "" {
		return nil, nil
	}
	out := make(map[model.ScoreSource]model.AxisCache, 2)
	for src, raw := range map[model.ScoreSource]string{
		model.SourceStatic:     r.StaticAxes,
		model.SourceNormalized: r.NormalizedAxes,
	} {
		var cache model.AxisCache
		if err := decodeJSON(raw, &cache); err != nil {
			return nil, fmt.Errorf("candidate %s %s axes: %w", r.ID, src, err)
		}
		if cache != nil {
			out[src] = cache
		}
	}
	return out, nil
}

func decodeJSON(raw string, v any) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func nonNil[M ~map[string]V, V any](m M) M {
	if m == nil {
		return M{}
	}
	return m
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
