package ranking_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/shillbot/internal/domain/ranking"
	"github.com/okian/shillbot/internal/domain/scoring"
	"github.com/okian/shillbot/internal/domain/types"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRank(t *testing.T) {
	Convey("Given author totals with ties", t, func() {
		totals := []scoring.AuthorTotal{
			{Handle: "carol", Total: 50, FirstPostAt: t0.Add(2 * time.Minute)},
			{Handle: "bob", Total: 50, FirstPostAt: t0.Add(time.Minute)},
			{Handle: "alice", Total: 50, FirstPostAt: t0.Add(time.Minute)},
			{Handle: "dave", Total: 80, FirstPostAt: t0.Add(5 * time.Minute)},
			{Handle: "erin", Total: 0, FirstPostAt: t0},
		}

		Convey("When ranking", func() {
			out := ranking.Rank(totals, 20)

			Convey("Then score wins, then the earliest post, then the handle", func() {
				So(len(out), ShouldEqual, 4)
				So(out[0].Handle, ShouldEqual, "dave")
				So(out[1].Handle, ShouldEqual, "alice")
				So(out[2].Handle, ShouldEqual, "bob")
				So(out[3].Handle, ShouldEqual, "carol")
				So(out[3].Rank, ShouldEqual, 4)
			})
		})

		Convey("When ranking a permuted copy", func() {
			rev := make([]scoring.AuthorTotal, len(totals))
			for i := range totals {
				rev[len(totals)-1-i] = totals[i]
			}

			Convey("Then the order is identical", func() {
				So(ranking.Rank(rev, 20), ShouldResemble, ranking.Rank(totals, 20))
			})
		})

		Convey("When truncating", func() {
			So(len(ranking.Rank(totals, 2)), ShouldEqual, 2)
		})
	})

	Convey("Given scores that differ below the fixed-point precision", t, func() {
		totals := []scoring.AuthorTotal{
			{Handle: "b", Total: 0.1 + 0.2, FirstPostAt: t0},
			{Handle: "a", Total: 0.3, FirstPostAt: t0},
		}
		Convey("Then they tie and fall back to the handle", func() {
			out := ranking.Rank(totals, 20)
			So(out[0].Handle, ShouldEqual, "a")
		})
	})
}

func TestCurveAllocate(t *testing.T) {
	Convey("Given a pot of 10 SOL and a curve giving rank 2 a quarter of the rest", t, func() {
		curve := ranking.Curve{
			WinnerShare: d("0.5"),
			Bins: []ranking.Bin{
				{From: 2, To: 2, Share: d("0.25")},
				{From: 3, To: 5, Share: d("0.75")},
			},
			StreakCapShare: d("0.25"),
		}
		pot := types.Lamports(10 * types.LamportsPerSOL)

		Convey("When five ranks are present", func() {
			a := curve.Allocate(pot, 5, false)

			Convey("Then rank 1 gets 5.0 and rank 2 gets 1.25", func() {
				So(a.Amounts[0], ShouldEqual, types.Lamports(5*types.LamportsPerSOL))
				So(a.Amounts[1], ShouldEqual, types.Lamports(1_250_000_000))
				So(a.Amounts[2], ShouldEqual, types.Lamports(1_250_000_000))
				So(a.Remainder, ShouldEqual, types.Lamports(0))
			})
		})

		Convey("When only two ranks are present", func() {
			a := curve.Allocate(pot, 2, false)

			Convey("Then rank 2 receives the whole remaining half", func() {
				So(a.Amounts[1], ShouldEqual, types.Lamports(5*types.LamportsPerSOL))
				So(a.Remainder, ShouldEqual, types.Lamports(0))
			})
		})

		Convey("When only the winner is present", func() {
			a := curve.Allocate(pot, 1, false)
			So(a.Amounts[0], ShouldEqual, pot)
		})

		Convey("When the winner is streak-capped", func() {
			a := curve.Allocate(pot, 5, true)

			Convey("Then rank 1 is capped and the excess flows down", func() {
				So(a.Amounts[0], ShouldEqual, types.Lamports(2_500_000_000))
				So(a.Amounts[1], ShouldEqual, types.Lamports(1_875_000_000))
				So(a.Remainder, ShouldEqual, types.Lamports(0))
			})
		})

		Convey("When nobody ranked", func() {
			a := curve.Allocate(pot, 0, false)
			So(a.Amounts, ShouldBeEmpty)
			So(a.Remainder, ShouldEqual, pot)
		})
	})

	Convey("Given pots that do not divide evenly", t, func() {
		curve := ranking.DefaultCurve()
		for _, pot := range []types.Lamports{1, 7, 999_999_999, 123_456_789_013} {
			for n := 1; n <= 20; n++ {
				a := curve.Allocate(pot, n, n%2 == 0)
				var sum types.Lamports
				for _, x := range a.Amounts {
					sum += x
				}
				So(sum+a.Remainder, ShouldEqual, pot)
				So(a.Remainder, ShouldBeGreaterThanOrEqualTo, 0)
				if n%2 == 1 {
					So(int64(a.Remainder), ShouldBeLessThanOrEqualTo, int64(n))
				}
			}
		}
	})
}

func TestCurveValidate(t *testing.T) {
	Convey("Given the default curve", t, func() {
		So(ranking.DefaultCurve().Validate(20), ShouldBeNil)

		Convey("Then a mismatched top-n fails", func() {
			So(errors.Is(ranking.DefaultCurve().Validate(10), ranking.ErrInvalidCurve), ShouldBeTrue)
		})
	})

	cases := []ranking.Curve{
		{WinnerShare: d("0"), Bins: ranking.DefaultCurve().Bins},
		{WinnerShare: d("1.5"), Bins: ranking.DefaultCurve().Bins},
		{WinnerShare: d("0.5"), Bins: []ranking.Bin{{From: 3, To: 20, Share: d("1")}}},
		{WinnerShare: d("0.5"), Bins: []ranking.Bin{{From: 2, To: 10, Share: d("0.5")}, {From: 11, To: 20, Share: d("0.4")}}},
		{WinnerShare: d("0.5"), Bins: []ranking.Bin{{From: 2, To: 10, Share: d("1")}, {From: 11, To: 20, Share: d("0")}}},
		{WinnerShare: d("0.5"), StreakCapShare: d("0.6"), Bins: ranking.DefaultCurve().Bins},
	}
	for i, c := range cases {
		Convey(fmt.Sprintf("Given invalid curve %d", i), t, func() {
			So(errors.Is(c.Validate(20), ranking.ErrInvalidCurve), ShouldBeTrue)
		})
	}
}
