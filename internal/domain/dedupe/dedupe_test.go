package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/shillbot/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalize(t *testing.T) {
	Convey("Given post texts that differ only cosmetically", t, func() {
		a := "Buy $SHILL now!  @friend https://example.com/x"
		b := "buy $shill   NOW! www.example.org @other"

		Convey("Then they normalize to the same string", func() {
			So(dedupe.Normalize(a), ShouldEqual, "buy $shill now!")
			So(dedupe.Normalize(a), ShouldEqual, dedupe.Normalize(b))
		})

		Convey("Then keys are scoped per author", func() {
			So(dedupe.Key("@Alice", a), ShouldEqual, dedupe.Key("alice", b))
			So(dedupe.Key("alice", a), ShouldNotEqual, dedupe.Key("bob", a))
		})
	})

	Convey("Given empty or link-only text", t, func() {
		So(dedupe.Normalize("   "), ShouldEqual, "")
		So(dedupe.Normalize("https://t.co/abc @x"), ShouldEqual, "")
	})
}

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()

		Convey("When counting occurrences", func() {
			first := d.Occurrences(ctx, "k")
			second := d.Occurrences(ctx, "k")
			third := d.Occurrences(ctx, "k")

			Convey("Then the prior count is returned", func() {
				So(first, ShouldEqual, 0)
				So(second, ShouldEqual, 1)
				So(third, ShouldEqual, 2)
				So(d.Occurrences(ctx, "other"), ShouldEqual, 0)
			})
		})

		Convey("When using SeenAndRecord", func() {
			So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "a"), ShouldBeTrue)
		})

		Convey("When used concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					d.Occurrences(ctx, fmt.Sprintf("k-%d", i%5))
				}(i)
			}
			wg.Wait()

			for i := 0; i < 5; i++ {
				So(d.Occurrences(ctx, fmt.Sprintf("k-%d", i)), ShouldEqual, 10)
			}
		})
	})
}
