package source

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCatalog(t *testing.T) {
	Convey("Given a catalog with a counting loader", t, func() {
		ctx := context.Background()
		loads := 0
		fail := false
		loader := func(path string) (*Table, error) {
			loads++
			if fail {
				return nil, errors.New("disk gone")
			}
			return Parse([]byte(sampleCSV))
		}
		c := NewCatalog("incidents.csv", WithLoader(loader))

		Convey("Nothing is read until first use", func() {
			So(loads, ShouldEqual, 0)
			So(c.Path(), ShouldEqual, "incidents.csv")
		})

		Convey("The table is loaded once and reused", func() {
			cols, err := c.Columns(ctx)
			So(err, ShouldBeNil)
			So(cols[0], ShouldEqual, "issue_key")

			list, err := c.List(ctx, 1)
			So(err, ShouldBeNil)
			So(list, ShouldHaveLength, 1)

			inc, err := c.Find(ctx, DefaultColumnMap(), "INC-3")
			So(err, ShouldBeNil)
			So(inc.Resolution, ShouldEqual, "fix")
			So(loads, ShouldEqual, 1)
		})

		Convey("Invalidate forces a reload", func() {
			_, _ = c.Table(ctx)
			c.Invalidate(ctx)
			_, _ = c.Table(ctx)
			So(loads, ShouldEqual, 2)
		})

		Convey("A failed load is retried on the next call", func() {
			fail = true
			_, err := c.Columns(ctx)
			So(err, ShouldNotBeNil)

			fail = false
			_, err = c.Columns(ctx)
			So(err, ShouldBeNil)
			So(loads, ShouldEqual, 2)
		})

		Convey("Returned columns are a copy", func() {
			cols, _ := c.Columns(ctx)
			cols[0] = "mutated"
			again, _ := c.Columns(ctx)
			So(again[0], ShouldEqual, "issue_key")
		})
	})
}
