package eligibility_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/shillbot/internal/domain/eligibility"
	"github.com/okian/shillbot/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	walletA = "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi"
	walletB = "8qbHbw2BbbTHBW1sbeqakYXVKRQM8Ne7pLK7m6CVfeR"
	walletC = "CktRuQ2mttgRGkXJtyksdKHjUdc2C4TgDzyB98oEzy8"
	short   = "7DUeBUtEcb7nujVZRJmeBju3X1mo6PpnWNtJ9EBhdY"
)

var (
	opens = time.Date(2025, 1, 2, 5, 0, 0, 0, time.UTC)
	win   = model.Window{ID: "20250102-1400", OpensAt: opens, ClosesAt: opens.Add(15 * time.Hour)}
)

type fakeHoldings struct {
	mu      sync.Mutex
	holders map[string]bool
	err     error
	calls   map[string]int
}

func (f *fakeHoldings) FetchHolding(_ context.Context, wallet, _ string, _ uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[wallet]++
	if f.err != nil {
		return false, f.err
	}
	return f.holders[wallet], nil
}

func p(handle, id string, at time.Duration) model.Post {
	return model.Post{Handle: handle, PostID: id, Text: "gm", CreatedAt: opens.Add(at)}
}

func TestValidWallet(t *testing.T) {
	Convey("Given wallet strings", t, func() {
		So(eligibility.ValidWallet(walletA), ShouldBeTrue)
		So(eligibility.ValidWallet(" "+walletB+" "), ShouldBeTrue)
		So(eligibility.ValidWallet(short), ShouldBeFalse)
		So(eligibility.ValidWallet("0OIl-not-base58"), ShouldBeFalse)
		So(eligibility.ValidWallet(""), ShouldBeFalse)
	})
}

func TestFilterApply(t *testing.T) {
	regs := []model.Registration{
		{Handle: "Alice", Wallet: walletB, RegisteredAt: opens.Add(-48 * time.Hour)},
		{Handle: "@alice", Wallet: walletA, RegisteredAt: opens.Add(-24 * time.Hour)},
		{Handle: "bob", Wallet: walletB, RegisteredAt: opens},
		{Handle: "carol", Wallet: short, RegisteredAt: opens},
		{Handle: "dave", Wallet: walletC, RegisteredAt: opens},
	}

	Convey("Given a filter with a blacklist and excluded posts", t, func() {
		f := eligibility.NewFilter(
			eligibility.WithBlacklist([]string{"@DAVE"}),
			eligibility.WithExcludedPosts([]string{"x1"}),
		)
		posts := []model.Post{
			p("ALICE", "a1", time.Hour),
			p("alice", "x1", 2*time.Hour),
			p("bob", "b1", -time.Minute),
			p("bob", "b2", 15*time.Hour),
			p("carol", "c1", time.Hour),
			p("dave", "d1", time.Hour),
			p("erin", "e1", time.Hour),
			{Handle: "bob", PostID: "", CreatedAt: opens.Add(time.Hour)},
		}

		res, err := f.Apply(context.Background(), win, posts, regs)

		Convey("Then only eligible posts remain", func() {
			So(err, ShouldBeNil)
			So(len(res.Posts), ShouldEqual, 1)
			So(res.Posts[0].PostID, ShouldEqual, "a1")
		})

		Convey("Then the newest registration wins", func() {
			So(res.Wallets["alice"], ShouldEqual, walletA)
		})

		Convey("Then every drop is recorded with its reason", func() {
			So(len(res.Exclusions), ShouldEqual, 7)
			So(res.Dropped[eligibility.ReasonExcludedPost], ShouldEqual, 1)
			So(res.Dropped[eligibility.ReasonOutsideWindow], ShouldEqual, 2)
			So(res.Dropped[eligibility.ReasonInvalidWallet], ShouldEqual, 1)
			So(res.Dropped[eligibility.ReasonBlacklisted], ShouldEqual, 1)
			So(res.Dropped[eligibility.ReasonUnregistered], ShouldEqual, 1)
			So(res.Dropped[eligibility.ReasonMalformed], ShouldEqual, 1)
		})
	})

	Convey("Given a holding requirement", t, func() {
		holdings := &fakeHoldings{holders: map[string]bool{walletA: true}}
		f := eligibility.NewFilter(
			eligibility.WithHoldingRequirement(holdings, "Mint111", 1000),
			eligibility.WithParallelism(2),
			eligibility.WithRequestBudget(100, time.Second),
		)
		posts := []model.Post{
			p("alice", "a1", time.Hour),
			p("alice", "a2", 2*time.Hour),
			p("bob", "b1", time.Hour),
			p("bob", "b2", 3*time.Hour),
			p("dave", "d1", time.Hour),
		}

		Convey("When the checks succeed", func() {
			res, err := f.Apply(context.Background(), win, posts, regs)

			Convey("Then each author is checked once", func() {
				So(err, ShouldBeNil)
				So(holdings.calls[walletA], ShouldEqual, 1)
				So(holdings.calls[walletB], ShouldEqual, 1)
				So(holdings.calls[walletC], ShouldEqual, 1)
			})

			Convey("Then failing authors lose every post", func() {
				So(len(res.Posts), ShouldEqual, 2)
				So(res.Dropped[eligibility.ReasonBelowHolding], ShouldEqual, 3)
				_, kept := res.Wallets["bob"]
				So(kept, ShouldBeFalse)
			})
		})

		Convey("When the holding source is unreachable", func() {
			holdings.err = errors.New("connection refused")
			res, err := f.Apply(context.Background(), win, posts, regs)

			Convey("Then the whole pass fails", func() {
				So(res, ShouldBeNil)
				So(errors.Is(err, eligibility.ErrHoldingUnavailable), ShouldBeTrue)
			})
		})
	})

	Convey("Given a holding requirement with no mint", t, func() {
		holdings := &fakeHoldings{}
		f := eligibility.NewFilter(eligibility.WithHoldingRequirement(holdings, "", 1000))
		res, err := f.Apply(context.Background(), win, []model.Post{p("alice", "a1", time.Hour)}, regs)

		Convey("Then the check is skipped", func() {
			So(err, ShouldBeNil)
			So(len(res.Posts), ShouldEqual, 1)
			So(holdings.calls, ShouldBeNil)
		})
	})
}
