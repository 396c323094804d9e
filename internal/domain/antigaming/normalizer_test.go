package antigaming_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/okian/shillbot/internal/domain/antigaming"
	"github.com/okian/shillbot/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)

func post(handle, id, text string, offset time.Duration) model.Post {
	return model.Post{Handle: handle, PostID: id, Text: text, CreatedAt: base.Add(offset)}
}

func TestRateLimiting(t *testing.T) {
	Convey("Given an author posting every 10 seconds", t, func() {
		n := antigaming.NewNormalizer(antigaming.DefaultPolicy())
		var posts []model.Post
		for i := 0; i < 8; i++ {
			posts = append(posts, post("alice", fmt.Sprintf("p%d", i), fmt.Sprintf("text %d", i), time.Duration(i)*10*time.Second))
		}

		out, excluded := n.Apply(context.Background(), posts)

		Convey("Then only the first post in each 60 second span counts", func() {
			So(len(out), ShouldEqual, 2)
			So(out[0].Post.PostID, ShouldEqual, "p0")
			So(out[1].Post.PostID, ShouldEqual, "p6")
			So(len(excluded), ShouldEqual, 6)
			So(excluded[0].Reason, ShouldEqual, antigaming.ReasonRateLimited)
		})

		Convey("Then author indexes are chronological", func() {
			So(out[0].AuthorIndex, ShouldEqual, 0)
			So(out[1].AuthorIndex, ShouldEqual, 1)
		})
	})

	Convey("Given two authors posting at the same instant", t, func() {
		n := antigaming.NewNormalizer(antigaming.DefaultPolicy())
		out, excluded := n.Apply(context.Background(), []model.Post{
			post("bob", "b1", "hello", 0),
			post("alice", "a1", "hello", 0),
		})

		Convey("Then rate limits are per author", func() {
			So(len(out), ShouldEqual, 2)
			So(excluded, ShouldBeEmpty)
			So(out[0].Post.PostID, ShouldEqual, "a1")
		})
	})
}

func TestDuplicateDetection(t *testing.T) {
	Convey("Given an author repeating the same text with cosmetic edits", t, func() {
		n := antigaming.NewNormalizer(antigaming.DefaultPolicy())
		out, _ := n.Apply(context.Background(), []model.Post{
			post("alice", "p1", "Buy $SHILL https://x.io/1", 0),
			post("alice", "p2", "buy   $shill @bob", 2*time.Minute),
			post("alice", "p3", "BUY $SHILL", 4*time.Minute),
			post("alice", "p4", "something else", 6*time.Minute),
		})

		Convey("Then later copies are flagged as repeats", func() {
			So(len(out), ShouldEqual, 4)
			So(out[0].Duplicate(), ShouldBeFalse)
			So(out[1].Repeats, ShouldEqual, 1)
			So(out[2].Repeats, ShouldEqual, 2)
			So(out[3].Duplicate(), ShouldBeFalse)
		})
	})

	Convey("Given the same text from different authors", t, func() {
		n := antigaming.NewNormalizer(antigaming.DefaultPolicy())
		out, _ := n.Apply(context.Background(), []model.Post{
			post("alice", "p1", "gm", 0),
			post("bob", "p2", "gm", time.Second),
		})

		Convey("Then neither is a duplicate", func() {
			So(out[0].Duplicate(), ShouldBeFalse)
			So(out[1].Duplicate(), ShouldBeFalse)
		})
	})

	Convey("Given the same post id delivered twice", t, func() {
		n := antigaming.NewNormalizer(antigaming.DefaultPolicy())
		out, excluded := n.Apply(context.Background(), []model.Post{
			post("alice", "p1", "gm", 0),
			post("alice", "p1", "gm", 0),
		})

		Convey("Then the copy is excluded", func() {
			So(len(out), ShouldEqual, 1)
			So(excluded[0].Reason, ShouldEqual, antigaming.ReasonDuplicatePostID)
		})
	})
}

func TestPolicy(t *testing.T) {
	Convey("Given the default policy", t, func() {
		p := antigaming.DefaultPolicy()

		Convey("Then originality follows the penalty tiers", func() {
			So(p.Originality(0), ShouldEqual, 1.0)
			So(p.Originality(1), ShouldEqual, 0.25)
			So(p.Originality(2), ShouldEqual, 0.1)
			So(p.Originality(7), ShouldEqual, 0.1)
		})

		Convey("Then dampening decays past the free posts", func() {
			So(p.Dampen(0), ShouldEqual, 1.0)
			So(p.Dampen(2), ShouldEqual, 1.0)
			So(p.Dampen(3), ShouldEqual, 0.5)
			So(p.Dampen(4), ShouldEqual, 0.25)
		})

		Convey("Then the streak cap is off", func() {
			So(p.StreakCapped([]string{"a", "a", "a"}, "a"), ShouldBeFalse)
		})
	})

	Convey("Given a streak length of 2", t, func() {
		p := antigaming.DefaultPolicy()
		p.StreakLength = 2

		So(p.StreakCapped([]string{"Alice", "@alice", "bob"}, "alice"), ShouldBeTrue)
		So(p.StreakCapped([]string{"alice", "bob"}, "alice"), ShouldBeFalse)
		So(p.StreakCapped([]string{"alice"}, "alice"), ShouldBeFalse)
	})

	Convey("Given no penalty tiers", t, func() {
		p := antigaming.Policy{}
		So(p.Originality(3), ShouldEqual, 1.0)
	})
}
