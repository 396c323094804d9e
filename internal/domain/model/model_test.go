package model_test

import (
	"testing"
	"time"

	model "github.com/okian/shillbot/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestWindowContains(t *testing.T) {
	convey.Convey("Given a window", t, func() {
		open := time.Date(2025, 1, 2, 14, 0, 0, 0, time.UTC)
		w := model.Window{ID: "20250102-2300", OpensAt: open, ClosesAt: open.Add(9 * time.Hour)}

		convey.Convey("Then the open bound is inclusive and the close bound exclusive", func() {
			convey.So(w.Contains(open), convey.ShouldBeTrue)
			convey.So(w.Contains(open.Add(time.Hour)), convey.ShouldBeTrue)
			convey.So(w.Contains(open.Add(9*time.Hour)), convey.ShouldBeFalse)
			convey.So(w.Contains(open.Add(-time.Nanosecond)), convey.ShouldBeFalse)
		})
	})
}

func TestPayoutKey(t *testing.T) {
	convey.Convey("Given payouts of different kinds", t, func() {
		convey.Convey("Then winner keys fold case and strip @", func() {
			a := model.Payout{Kind: model.PayeeWinner, Handle: "@Alice"}
			b := model.Payout{Kind: model.PayeeWinner, Handle: "alice"}
			convey.So(a.Key(), convey.ShouldEqual, b.Key())
			convey.So(a.Key(), convey.ShouldEqual, "winner:alice")
		})

		convey.Convey("Then split keys are the kind", func() {
			convey.So(model.Payout{Kind: model.PayeeMarketing}.Key(), convey.ShouldEqual, "marketing")
			convey.So(model.Payout{Kind: model.PayeeDev}.Key(), convey.ShouldEqual, "dev")
		})
	})
}

func TestPayoutStates(t *testing.T) {
	convey.Convey("Given each payout status", t, func() {
		convey.So(model.Payout{Status: model.PayoutSent}.Final(), convey.ShouldBeTrue)
		convey.So(model.Payout{Status: model.PayoutSkippedBelow}.Final(), convey.ShouldBeTrue)
		convey.So(model.Payout{Status: model.PayoutPlanned}.Transferable(), convey.ShouldBeTrue)
		convey.So(model.Payout{Status: model.PayoutFailed}.Transferable(), convey.ShouldBeTrue)
		convey.So(model.Payout{Status: model.PayoutSending}.Transferable(), convey.ShouldBeFalse)
		convey.So(model.Payout{Status: model.PayoutSending}.Final(), convey.ShouldBeFalse)
	})
}

func TestReportFailedPayouts(t *testing.T) {
	convey.Convey("Given a report with mixed outcomes", t, func() {
		r := &model.Report{Payouts: []model.Payout{
			{Status: model.PayoutSent},
			{Status: model.PayoutFailed},
			{Status: model.PayoutSkippedBelow},
			{Status: model.PayoutFailed},
		}}
		convey.So(r.FailedPayouts(), convey.ShouldEqual, 2)
	})
}

func TestNormalizeHandle(t *testing.T) {
	convey.Convey("Given handles in various forms", t, func() {
		convey.So(model.NormalizeHandle(" @Bob "), convey.ShouldEqual, "bob")
		convey.So(model.NormalizeHandle("BOB"), convey.ShouldEqual, "bob")
	})
}
