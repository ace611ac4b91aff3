package balance

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBinomial(t *testing.T) {
	Convey("Given the Pascal table", t, func() {
		So(binomial(4, 2), ShouldEqual, 6)
		So(binomial(20, 10), ShouldEqual, 184756)
		So(binomial(62, 31), ShouldEqual, uint64(465428353255261088))
		So(binomial(5, 6), ShouldEqual, 0)
		So(binomial(5, -1), ShouldEqual, 0)
		So(binomial(0, 0), ShouldEqual, 1)
	})
}

func TestCombinationOrder(t *testing.T) {
	Convey("Given a 2-of-4 walk", t, func() {
		c := newCombination(4, 2)
		var got [][]int
		for {
			got = append(got, append([]int(nil), c.idx...))
			if !c.advance() {
				break
			}
		}

		Convey("Then tuples come in lexicographic order", func() {
			So(got, ShouldResemble, [][]int{
				{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3},
			})
		})
	})

	Convey("Given every rank of a 4-of-10 walk", t, func() {
		walk := newCombination(10, 4)
		var rank uint64

		Convey("Then unrank reproduces the walk at each position", func() {
			for {
				u := newCombination(10, 4)
				u.unrank(rank)
				So(u.idx, ShouldResemble, walk.idx)
				rank++
				if !walk.advance() {
					break
				}
			}
			So(rank, ShouldEqual, binomial(10, 4))
		})
	})
}
