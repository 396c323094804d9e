package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func value(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return -1
	}
	if out.Counter != nil {
		return out.GetCounter().GetValue()
	}
	return out.GetGauge().GetValue()
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "shillbot")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then options are applied", func() {
				So(manager.namespace, ShouldEqual, "test-namespace")
				So(manager.subsystem, ShouldEqual, "test-subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			})
		})

		Convey("When registering twice on the same registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then it panics on duplicate collectors", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording transfers", func() {
			before := value(globalManager.lamportsSent.WithLabelValues("winner"))
			RecordTransfer("winner", "sent", 1500)
			RecordTransfer("winner", "failed", 900)

			Convey("Then only sent lamports are summed", func() {
				after := value(globalManager.lamportsSent.WithLabelValues("winner"))
				So(after-before, ShouldEqual, 1500)
			})
		})

		Convey("When recording drops", func() {
			before := value(globalManager.postsDropped.WithLabelValues("blacklisted"))
			RecordPostsDropped("blacklisted", 3)
			after := value(globalManager.postsDropped.WithLabelValues("blacklisted"))
			So(after-before, ShouldEqual, 3)
		})

		Convey("When updating gauges", func() {
			UpdatePot(42)
			UpdateTreasuryBalance(1000)
			UpdateAuthorsRanked(7)
			So(value(globalManager.potLamports), ShouldEqual, 42)
			So(value(globalManager.treasuryBalance), ShouldEqual, 1000)
			So(value(globalManager.authorsRanked), ShouldEqual, 7)
		})

		Convey("When recording the remaining series", func() {
			So(func() {
				RecordClose("closed", 1.5)
				RecordPostsFetched("official", 10)
				RecordHoldingCheck("pass", 0.2)
				RecordRPCRetry("getBalance")
				RecordHTTPRequest("/reports/latest", "GET", "200")
				RecordHTTPRequestDuration("/reports/latest", "GET", "200", 3)
				RecordErrorByComponent("settlement", "transfer")
			}, ShouldNotPanic)
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
