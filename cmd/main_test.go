package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v3"
)

const testCatalog = `
entities:
  - {id: w1, kind: work, work_set: ws, name: Cells}
  - {id: ax, kind: author, work_set: ws, name: Author X}
  - {id: psh, kind: subject_category, work_set: ws, name: PSH, uid: PSH-ROOT, controlled: true}
  - {id: s1, kind: subject_category, work_set: ws, name: Biology, uid: PSH-B1, parent_id: psh, controlled: true}
memberships:
  - {work_id: w1, topic_id: ax}
  - {work_id: w1, topic_id: s1}
usage:
  - {id: e1, work_id: w1, date: "2021-06-01", value: 7, type: loan}
candidates:
  - {id: c1, title: Cell Biology, topics: {author: [ax], subject_category: [s1]}}
`

// execute runs the CLI with args and returns what it printed.
func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI(t *testing.T) {
	convey.Convey("Given a catalog file and an empty sqlite store", t, func() {
		dir := t.TempDir()
		catalogPath := filepath.Join(dir, "catalog.yaml")
		convey.So(os.WriteFile(catalogPath, []byte(testCatalog), 0o600), convey.ShouldBeNil)
		t.Setenv("SHELFRANK_CONFIG", "")
		t.Setenv("SHELFRANK_DB_DRIVER", "sqlite")
		t.Setenv("SHELFRANK_DB_DSN", filepath.Join(dir, "shelfrank.db"))
		t.Setenv("SHELFRANK_NOW", "2022-03-01")
		t.Setenv("SHELFRANK_LOG_LEVEL", "error")

		_, err := execute("ingest", "--file", catalogPath)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When recomputing every stage", func() {
			out, err := execute("recompute", "all", "--work-set", "ws")
			convey.So(err, convey.ShouldBeNil)

			var stats []map[string]any
			convey.So(json.Unmarshal([]byte(out), &stats), convey.ShouldBeNil)
			convey.So(len(stats), convey.ShouldBeGreaterThan, 0)
			convey.So(stats[0]["stage"], convey.ShouldEqual, "static")

			convey.Convey("Then the subject tree accumulates usage", func() {
				out, err := execute("export-tree", "--work-set", "ws", "--root", "PSH-ROOT")
				convey.So(err, convey.ShouldBeNil)
				var doc map[string]any
				convey.So(json.Unmarshal([]byte(out), &doc), convey.ShouldBeNil)
				convey.So(doc["uid"], convey.ShouldEqual, "PSH-ROOT")
				convey.So(doc["acc_score"], convey.ShouldEqual, float64(7))
			})

			convey.Convey("Then every configured schema can be exported as YAML", func() {
				out, err := execute("export-tree", "--work-set", "ws", "--mode", "candidates_count", "--format", "yaml")
				convey.So(err, convey.ShouldBeNil)
				var docs []map[string]any
				convey.So(yaml.Unmarshal([]byte(out), &docs), convey.ShouldBeNil)
				convey.So(docs, convey.ShouldHaveLength, 1)
			})

			convey.Convey("Then authors are listed by score", func() {
				out, err := execute("topics", "--work-set", "ws", "--kind", "author")
				convey.So(err, convey.ShouldBeNil)
				var rows []map[string]any
				convey.So(json.Unmarshal([]byte(out), &rows), convey.ShouldBeNil)
				convey.So(rows, convey.ShouldHaveLength, 1)
				convey.So(rows[0]["id"], convey.ShouldEqual, "ax")
			})
		})

		convey.Convey("When the arguments are invalid", func() {
			_, err := execute("recompute", "reindex", "--work-set", "ws")
			convey.So(err, convey.ShouldNotBeNil)

			_, err = execute("export-tree", "--work-set", "ws", "--root", "NOPE-ROOT")
			convey.So(err, convey.ShouldNotBeNil)

			_, err = execute("topics", "--work-set", "ws", "--kind", "shelf")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
