package service_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/okian/teamelo/internal/adapters/http/api"
	"github.com/okian/teamelo/internal/adapters/mq/queue"
	"github.com/okian/teamelo/internal/adapters/repository"
	service "github.com/okian/teamelo/internal/app"
	"github.com/okian/teamelo/internal/domain/balance"
	"github.com/okian/teamelo/internal/domain/model"
	"github.com/okian/teamelo/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func history() []model.Game {
	return []model.Game{
		model.MustGame(2, model.Team{"C", "D"}, model.Team{"A", "B"}, model.Draw),
		model.MustGame(1, model.Team{"A"}, model.Team{"B"}, model.Win),
	}
}

func TestService_Replay(t *testing.T) {
	Convey("Given a service with no initial ratings", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithRunID("test-run"))

		Convey("When a history is replayed", func() {
			sum, err := svc.Replay(ctx, history())
			So(err, ShouldBeNil)

			Convey("Then every game is applied in id order", func() {
				So(sum.Games, ShouldEqual, 2)
				So(sum.Players, ShouldEqual, 4)
				a, err := svc.Rank(ctx, "A")
				So(err, ShouldBeNil)
				So(a.Rank, ShouldEqual, 1)
			})

			Convey("Then the replayed ids count as seen", func() {
				So(svc.SeenAndRecord(ctx, 1), ShouldBeTrue)
				So(svc.SeenAndRecord(ctx, 3), ShouldBeFalse)
			})

			Convey("Then stats reflect the replay", func() {
				stats := svc.GetStats()
				So(stats["run_id"], ShouldEqual, "test-run")
				So(stats["games_processed"], ShouldEqual, int64(2))
				So(stats["last_game_id"], ShouldEqual, int64(2))
				So(stats["players"], ShouldEqual, 4)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := svc.Replay(cctx, history())

			Convey("Then the replay stops", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestService_ReadsAndBalance(t *testing.T) {
	Convey("Given a service seeded with ratings", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithInitialRatings(map[string]float64{
			"A": 2030, "B": 1970, "C": 2000, "D": 2000,
		}), service.WithBalanceWorkers(1))

		Convey("Then standings honour the limit", func() {
			all, err := svc.Standings(ctx, 0)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 4)
			top, err := svc.Standings(ctx, 2)
			So(err, ShouldBeNil)
			So(top, ShouldHaveLength, 2)
			So(top[0].PlayerID, ShouldEqual, "A")
			So(top[1].PlayerID, ShouldEqual, "C")
		})

		Convey("Then an unknown player is not found and not registered", func() {
			_, err := svc.Rank(ctx, "nobody")
			So(errors.Is(err, service.ErrUnknownPlayer), ShouldBeTrue)
			So(errors.Is(err, api.ErrNotFound), ShouldBeTrue)
			So(svc.Players(), ShouldEqual, 4)
		})

		Convey("Then the example roster splits evenly", func() {
			split, err := svc.Balance(ctx, []string{"A", "B", "C", "D"})
			So(err, ShouldBeNil)
			So(split.TeamA, ShouldResemble, []string{"A", "B"})
			So(split.TeamB, ShouldResemble, []string{"C", "D"})
			So(split.Imbalance, ShouldEqual, 0)
			So(split.Expected, ShouldEqual, 0.5)
		})

		Convey("Then a bad roster is invalid input", func() {
			_, err := svc.Balance(ctx, []string{"A", "B", "C"})
			So(errors.Is(err, api.ErrInvalidInput), ShouldBeTrue)
			So(errors.Is(err, balance.ErrOddRoster), ShouldBeTrue)
		})

		Convey("Then a matchup is predicted without registering anyone", func() {
			p, err := svc.Predict(ctx, []string{"A"}, []string{"unseen"})
			So(err, ShouldBeNil)
			So(p.Mean1, ShouldEqual, 2030)
			So(p.Mean2, ShouldEqual, 2000)
			So(p.Expected, ShouldAlmostEqual, 1/(1+math.Pow(10, -30.0/400)), 1e-12)
			So(svc.Players(), ShouldEqual, 4)
		})

		Convey("Then an unequal matchup is invalid input", func() {
			_, err := svc.Predict(ctx, []string{"A", "B"}, []string{"C"})
			So(errors.Is(err, api.ErrInvalidInput), ShouldBeTrue)
			So(errors.Is(err, model.ErrTeamSizeMismatch), ShouldBeTrue)
			_, err = svc.Predict(ctx, nil, nil)
			So(errors.Is(err, model.ErrEmptyTeam), ShouldBeTrue)
		})

		Convey("When a game is processed", func() {
			res, err := svc.ProcessGame(ctx, model.MustGame(10, model.Team{"B"}, model.Team{"new"}, model.Win))

			Convey("Then the result reports the update", func() {
				So(err, ShouldBeNil)
				So(res.Registered, ShouldEqual, 1)
				So(res.Delta, ShouldBeGreaterThan, 0)
				So(svc.Players(), ShouldEqual, 5)
			})
		})
	})
}

func TestService_Dedupe(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithDedupeSize(10))

		Convey("When the same id is checked twice", func() {
			first := svc.SeenAndRecord(ctx, 42)
			second := svc.SeenAndRecord(ctx, 42)

			Convey("Then only the second is a duplicate", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(svc.GetStats()["duplicates"], ShouldEqual, int64(1))
			})

			Convey("And after Unrecord the id is fresh", func() {
				svc.Unrecord(ctx, 42)
				So(svc.SeenAndRecord(ctx, 42), ShouldBeFalse)
				So(svc.Size(), ShouldEqual, 1)
			})
		})
	})
}

func TestService_Snapshots(t *testing.T) {
	Convey("Given a service without a snapshotter", t, func() {
		svc := service.New()

		Convey("Then snapshot calls fail clearly", func() {
			So(errors.Is(svc.SaveSnapshot(context.Background()), service.ErrNoSnapshotter), ShouldBeTrue)
			So(errors.Is(svc.LoadSnapshot(context.Background()), service.ErrNoSnapshotter), ShouldBeTrue)
		})
	})

	Convey("Given two services sharing a bolt file", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "teamelo.db")

		store, err := repository.NewBoltStore(path)
		So(err, ShouldBeNil)
		first := service.New(service.WithSnapshotter(store))
		So(first.Start(ctx), ShouldBeNil)
		_, err = first.Replay(ctx, history())
		So(err, ShouldBeNil)
		want, _ := first.Standings(ctx, 0)
		So(first.Stop(ctx), ShouldBeNil)

		Convey("When the second starts", func() {
			reopened, err := repository.NewBoltStore(path)
			So(err, ShouldBeNil)
			second := service.New(service.WithSnapshotter(reopened))
			So(second.Start(ctx), ShouldBeNil)
			defer second.Stop(ctx)

			Convey("Then it resumes from the saved ratings", func() {
				So(second.Restored(), ShouldBeTrue)
				got, err := second.Standings(ctx, 0)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, want)
			})

			Convey("Then games already in the snapshot are duplicates", func() {
				So(second.SeenAndRecord(ctx, 1), ShouldBeTrue)
				So(second.SeenAndRecord(ctx, 2), ShouldBeTrue)
				So(second.SeenAndRecord(ctx, 3), ShouldBeFalse)

				got, err := second.Standings(ctx, 0)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, want)
			})
		})
	})
}

func TestService_IngestQueue(t *testing.T) {
	Convey("Given a synchronous service", t, func() {
		svc := service.New()

		Convey("Then Enqueue is unavailable", func() {
			So(svc.Async(), ShouldBeFalse)
			err := svc.Enqueue(context.Background(), history()[0])
			So(errors.Is(err, queue.ErrClosed), ShouldBeTrue)
		})
	})

	Convey("Given a service with an ingest queue", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithIngestQueue(8, 1))
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Async(), ShouldBeTrue)

		Convey("When games are queued and the service stops", func() {
			So(svc.Enqueue(ctx, model.MustGame(1, model.Team{"A"}, model.Team{"B"}, model.Win)), ShouldBeNil)
			So(svc.Enqueue(ctx, model.MustGame(2, model.Team{"A"}, model.Team{"B"}, model.Loss)), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then both were applied in arrival order", func() {
				a, err := svc.Rank(ctx, "A")
				So(err, ShouldBeNil)
				// 2030 after the win, then the loss costs 60*E(2030,1970)
				So(a.Rating, ShouldAlmostEqual, 2030-60/(1+math.Pow(10, -60.0/400)), 1e-9)
				stats := svc.GetStats()
				So(stats["games_processed"], ShouldEqual, int64(2))
				So(stats["ingest_applied"], ShouldEqual, int64(2))
			})

			Convey("And the queue refuses new games", func() {
				So(svc.Async(), ShouldBeFalse)
				err := svc.Enqueue(ctx, model.MustGame(3, model.Team{"A"}, model.Team{"B"}, model.Draw))
				So(errors.Is(err, queue.ErrClosed), ShouldBeTrue)
			})
		})
	})
}
