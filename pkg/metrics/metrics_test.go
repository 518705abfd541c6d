package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a custom registry and options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithRequestBuckets([]float64{0.1, 1}),
				WithStageBuckets([]float64{1, 60}),
				WithStoreBuckets([]float64{1, 10}),
				WithRegistry(registry),
			)

			Convey("Then metrics are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.runsTotal.WithLabelValues("static", "ok").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				So(families[0].GetName(), ShouldStartWith, "test_unit_")
			})
		})

		Convey("When empty options are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "shelfrank")
				So(manager.subsystem, ShouldEqual, "engine")
			})
		})

		Convey("When bucket options are empty or unsorted", func() {
			manager := NewManager(
				WithStageBuckets(nil),
				WithStoreBuckets([]float64{10, 1}),
				WithRegistry(prometheus.NewRegistry()),
			)

			Convey("Then the default buckets are kept", func() {
				So(manager.stageBuckets, ShouldHaveLength, 10)
				So(manager.storeBuckets[0], ShouldEqual, 0.1)
				So(manager.requestBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording run counters", func() {
			before := testutil.ToFloat64(globalManager.entitiesUpdated.WithLabelValues("static", "author"))
			RecordScanned("static", "author", 10)
			RecordUpdated("static", "author", 3)
			RecordBatchCommitted("static")
			RecordRun("static", "ok")
			RecordStageDuration("static", 0.2)

			Convey("Then the counters move by the recorded amounts", func() {
				after := testutil.ToFloat64(globalManager.entitiesUpdated.WithLabelValues("static", "author"))
				So(after-before, ShouldEqual, 3)
			})
		})

		Convey("When recording tree metrics", func() {
			UpdateTreeOrphans("ws1", 4)
			So(testutil.ToFloat64(globalManager.treeOrphans.WithLabelValues("ws1")), ShouldEqual, 4)
			So(func() { RecordTreeExport("score", 0.01) }, ShouldNotPanic)
		})

		Convey("When recording request metrics", func() {
			So(func() {
				RecordCompositeRequest("on_demand", "ok")
				RecordStoreLatency("sql", "save_static", 1.5)
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequestDuration("/healthz", "GET", "200", 0.001)
				RecordErrorByComponent("repository", "not_found")
			}, ShouldNotPanic)
		})

		Convey("When reading the registry", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
