package calibrate_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/teamelo/internal/domain/calibrate"
	"github.com/okian/teamelo/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// history where the same pair keeps winning, so larger K predicts better
func dominantHistory() []model.Game {
	var games []model.Game
	for i := int64(1); i <= 30; i++ {
		outcome := model.Win
		if i%10 == 0 {
			outcome = model.Draw
		}
		games = append(games, model.MustGame(i, model.Team{"ace", "pro"}, model.Team{"rookie", "novice"}, outcome))
	}
	return games
}

func TestLogLoss(t *testing.T) {
	game := model.MustGame(1, model.Team{"a"}, model.Team{"b"}, model.Win)
	assert.InDelta(t, math.Ln2, calibrate.LogLoss([]model.Game{game}, 60), 1e-12)
	assert.Equal(t, 0.0, calibrate.LogLoss(nil, 60))

	seeded := calibrate.LogLoss([]model.Game{game}, 60, calibrate.WithInitial(map[string]float64{"a": 2400, "b": 2000}))
	assert.InDelta(t, -math.Log(10.0/11.0), seeded, 1e-12)
}

func TestFitKErrors(t *testing.T) {
	_, err := calibrate.FitK(context.Background(), nil)
	assert.True(t, errors.Is(err, calibrate.ErrNoGames))

	_, err = calibrate.FitK(context.Background(), dominantHistory(), calibrate.WithBounds(10, 5))
	assert.True(t, errors.Is(err, calibrate.ErrInvalidBounds))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = calibrate.FitK(ctx, dominantHistory())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitK(t *testing.T) {
	Convey("Given a history dominated by one side", t, func() {
		games := dominantHistory()

		Convey("When K is fitted within bounds", func() {
			fit, err := calibrate.FitK(context.Background(), games, calibrate.WithBounds(5, 200), calibrate.WithStart(20))
			require.NoError(t, err)

			Convey("Then K stays inside the bounds", func() {
				So(fit.K, ShouldBeGreaterThanOrEqualTo, 5)
				So(fit.K, ShouldBeLessThanOrEqualTo, 200)
			})

			Convey("Then the fit is no worse than the starting point", func() {
				So(fit.LogLoss, ShouldBeLessThanOrEqualTo, calibrate.LogLoss(games, 20)+1e-12)
			})

			Convey("Then the run is described", func() {
				So(fit.Games, ShouldEqual, len(games))
				So(fit.Evaluations, ShouldBeGreaterThan, 0)
			})
		})
	})
}
