package elo_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/teamelo/internal/domain/elo"
	"github.com/okian/teamelo/internal/domain/model"
	"github.com/okian/teamelo/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

func TestExpectedScore(t *testing.T) {
	tests := []struct {
		name     string
		elo1     float64
		elo2     float64
		expected float64
	}{
		{"equal ratings are a coin flip", 2000, 2000, 0.5},
		{"equal at zero", 0, 0, 0.5},
		{"one scale ahead", 2400, 2000, 10.0 / 11.0},
		{"one scale behind", 2000, 2400, 1.0 / 11.0},
		{"beyond the scale saturates", 3000, 2000, 10.0 / 11.0},
		{"far beyond the scale saturates", -1e12, 1e12, 1.0 / 11.0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.InDelta(t, test.expected, elo.ExpectedScore(test.elo1, test.elo2, 400), tolerance)
		})
	}
}

func TestExpectedScoreProperties(t *testing.T) {
	Convey("Given a grid of rating pairs", t, func() {
		ratings := []float64{-5000, 0, 1200, 1999.5, 2000, 2000.5, 2399, 2400, 2401, 9000, math.Inf(1)}

		Convey("Then every expected score is strictly within (0, 1)", func() {
			for _, a := range ratings {
				for _, b := range ratings {
					if math.IsInf(a, 0) && math.IsInf(b, 0) {
						continue
					}
					e := elo.ExpectedScore(a, b, 400)
					So(e, ShouldBeGreaterThan, 0)
					So(e, ShouldBeLessThan, 1)
				}
			}
		})

		Convey("Then a side against itself expects exactly one half", func() {
			for _, a := range ratings[:len(ratings)-1] {
				So(elo.ExpectedScore(a, a, 400), ShouldEqual, 0.5)
			}
		})

		Convey("Then gaps of at least the scale equal the value at the scale", func() {
			atScale := elo.ExpectedScore(2000, 2400, 400)
			for _, gap := range []float64{400, 401, 800, 1e6} {
				So(elo.ExpectedScore(2000, 2000+gap, 400), ShouldEqual, atScale)
				So(elo.ExpectedScore(2000+gap, 2000, 400), ShouldEqual, elo.ExpectedScore(2400, 2000, 400))
			}
		})
	})
}

func TestProcessEndToEnd(t *testing.T) {
	store := rating.NewStore(rating.WithInitial(map[string]float64{"A": 2000, "B": 2000}))
	p := elo.NewProcessor(store, elo.WithK(60), elo.WithScale(400))

	res := p.Process(model.MustGame(1, model.Team{"A"}, model.Team{"B"}, model.Win))

	require.Equal(t, 0.5, res.Expected)
	require.Equal(t, 30.0, res.Delta)
	assert.Equal(t, 2030.0, store.GetOrDefault("A"))
	assert.Equal(t, 1970.0, store.GetOrDefault("B"))
	assert.Equal(t, 0, res.Registered)
}

func TestProcessor(t *testing.T) {
	Convey("Given a processor over an empty store", t, func() {
		store := rating.NewStore()
		p := elo.NewProcessor(store)

		So(p.K(), ShouldEqual, elo.DefaultK)
		So(p.Scale(), ShouldEqual, elo.DefaultScale)

		Convey("When a game between unseen players is drawn", func() {
			res := p.Process(model.MustGame(1, model.Team{"A", "B"}, model.Team{"C", "D"}, model.Draw))

			Convey("Then every participant is registered at the default", func() {
				So(res.Registered, ShouldEqual, 4)
				So(store.Len(), ShouldEqual, 4)
				So(res.Delta, ShouldEqual, 0)
				for _, id := range []string{"A", "B", "C", "D"} {
					r, ok := store.Lookup(id)
					So(ok, ShouldBeTrue)
					So(r, ShouldEqual, rating.DefaultRating)
				}
			})
		})

		Convey("When first-time players win", func() {
			p.Process(model.MustGame(1, model.Team{"new1"}, model.Team{"new2"}, model.Win))

			Convey("Then they still move by delta", func() {
				So(store.GetOrDefault("new1"), ShouldEqual, 2030)
				So(store.GetOrDefault("new2"), ShouldEqual, 1970)
			})
		})

		Convey("When teammates have different ratings", func() {
			store.Insert("A", 2200)
			store.Insert("B", 1800)
			store.Insert("C", 2000)
			store.Insert("D", 2000)
			res := p.Process(model.MustGame(1, model.Team{"A", "B"}, model.Team{"C", "D"}, model.Win))

			Convey("Then the delta lands on each player's own rating", func() {
				So(res.Mean1, ShouldEqual, 2000)
				So(res.Mean2, ShouldEqual, 2000)
				So(store.GetOrDefault("A"), ShouldEqual, 2230)
				So(store.GetOrDefault("B"), ShouldEqual, 1830)
				So(store.GetOrDefault("C"), ShouldEqual, 1970)
				So(store.GetOrDefault("D"), ShouldEqual, 1970)
			})
		})

		Convey("When a player is listed twice", func() {
			p.Process(model.MustGame(1, model.Team{"A", "A"}, model.Team{"B", "C"}, model.Win))

			Convey("Then that player moves twice", func() {
				So(store.GetOrDefault("A"), ShouldEqual, 2060)
				So(store.GetOrDefault("B"), ShouldEqual, 1970)
			})
		})

		Convey("When predicting", func() {
			store.Insert("A", 2400)
			e := p.Predict(model.Team{"A"}, model.Team{"unseen"})

			Convey("Then the store is not mutated", func() {
				So(e, ShouldAlmostEqual, 10.0/11.0, tolerance)
				So(store.Len(), ShouldEqual, 1)
			})
		})
	})
}

func TestProcessorInvariants(t *testing.T) {
	initial := map[string]float64{"A": 2210, "B": 1890, "C": 2050, "D": 1725, "E": 2600, "F": 1999}
	games := []model.Game{
		model.MustGame(1, model.Team{"A", "B", "C"}, model.Team{"D", "E", "F"}, model.Win),
		model.MustGame(2, model.Team{"A", "E"}, model.Team{"B", "new"}, model.Loss),
		model.MustGame(3, model.Team{"F"}, model.Team{"E"}, model.Draw),
		model.MustGame(4, model.Team{"D", "D"}, model.Team{"A", "C"}, model.Win),
	}

	Convey("Given a series of games", t, func() {
		Convey("Then every game is zero-sum", func() {
			for _, k := range []float64{60, 120} {
				store := rating.NewStore(rating.WithInitial(initial))
				p := elo.NewProcessor(store, elo.WithK(k))
				for _, g := range games {
					before := sum(store, g)
					p.Process(g)
					So(sum(store, g), ShouldAlmostEqual, before, tolerance)
				}
			}
		})

		Convey("Then swapping teams and inverting the outcome changes nothing", func() {
			for _, g := range games {
				s1 := rating.NewStore(rating.WithInitial(initial))
				s2 := rating.NewStore(rating.WithInitial(initial))
				elo.NewProcessor(s1).Process(g)
				elo.NewProcessor(s2).Process(g.Swapped())

				So(s2.Len(), ShouldEqual, s1.Len())
				for id, r := range s1.All() {
					So(s2.GetOrDefault(id), ShouldAlmostEqual, r, tolerance)
				}
			}
		})
	})
}

func TestReplay(t *testing.T) {
	Convey("Given games out of order", t, func() {
		g1 := model.MustGame(1, model.Team{"A"}, model.Team{"B"}, model.Win)
		g2 := model.MustGame(2, model.Team{"A"}, model.Team{"B"}, model.Loss)
		unordered := []model.Game{g2, g1}

		store := rating.NewStore()
		p := elo.NewProcessor(store)
		var seen []int64
		summary, err := p.Replay(context.Background(), unordered, func(r elo.Result) {
			seen = append(seen, r.GameID)
		})

		Convey("Then they are applied in ascending id order", func() {
			So(err, ShouldBeNil)
			So(seen, ShouldResemble, []int64{1, 2})
			So(summary.Games, ShouldEqual, 2)
			So(summary.Registered, ShouldEqual, 2)
			So(summary.Players, ShouldEqual, 2)
			So(unordered[0].ID(), ShouldEqual, 2)
		})

		Convey("Then the result matches sequential processing", func() {
			ref := rating.NewStore()
			rp := elo.NewProcessor(ref)
			rp.Process(g1)
			rp.Process(g2)
			So(store.All(), ShouldResemble, ref.All())
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := elo.NewProcessor(rating.NewStore()).Replay(ctx, []model.Game{
			model.MustGame(1, model.Team{"A"}, model.Team{"B"}, model.Win),
		}, nil)

		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

func TestMeanOf(t *testing.T) {
	store := rating.NewStore()
	store.Insert("A", 2100)

	assert.Equal(t, 2050.0, elo.MeanOf(store, []string{"A", "unseen"}))
	assert.True(t, math.IsNaN(elo.MeanOf(store, nil)))
	assert.Equal(t, 1, store.Len())
}

func sum(store *rating.Store, g model.Game) float64 {
	var total float64
	seen := map[string]bool{}
	g.EachPlayer(func(_ int, id string) {
		if !seen[id] {
			seen[id] = true
			total += store.GetOrDefault(id)
		}
	})
	return total
}
