package synth

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/teamelo/internal/adapters/http/api"
	"github.com/okian/teamelo/internal/adapters/records"
	app "github.com/okian/teamelo/internal/app"
	"github.com/okian/teamelo/internal/domain/model"
	"github.com/okian/teamelo/internal/domain/types"
	"github.com/okian/teamelo/pkg/logger"
)

func init() {
	_ = logger.Init(logger.WithWriter(&bytes.Buffer{}))
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Players = 40
	cfg.Games = 300
	cfg.TeamSize = 2
	cfg.RosterSize = 6
	cfg.Seed = 7
	return cfg
}

func TestConfigValidate(t *testing.T) {
	convey.Convey("Given generator configs", t, func() {
		convey.Convey("Then the defaults are valid", func() {
			convey.So(DefaultConfig().Validate(), convey.ShouldBeNil)
		})

		bad := map[string]func(*Config){
			"zero team size":       func(c *Config) { c.TeamSize = 0 },
			"too few players":      func(c *Config) { c.Players = 2*c.TeamSize - 1 },
			"negative games":       func(c *Config) { c.Games = -1 },
			"odd roster":           func(c *Config) { c.RosterSize = 3 },
			"roster above players": func(c *Config) { c.RosterSize = c.Players + 2 },
			"negative spread":      func(c *Config) { c.Spread = -1 },
			"zero scale":           func(c *Config) { c.Scale = 0 },
			"certain draw":         func(c *Config) { c.DrawRate = 1 },
		}
		for name, mutate := range bad {
			cfg := DefaultConfig()
			mutate(&cfg)
			convey.Convey("Then "+name+" is rejected", func() {
				convey.So(errors.Is(cfg.Validate(), ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}

func TestGenerate(t *testing.T) {
	convey.Convey("Given a seeded config", t, func() {
		ctx := context.Background()
		cfg := smallConfig()

		ds, err := Generate(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then the sizes match the config", func() {
			convey.So(ds.Players, convey.ShouldHaveLength, cfg.Players)
			convey.So(ds.Games, convey.ShouldHaveLength, cfg.Games)
			convey.So(ds.Roster, convey.ShouldHaveLength, cfg.RosterSize)
		})

		convey.Convey("Then game ids ascend from 1 and players never face themselves", func() {
			for i, g := range ds.Games {
				convey.So(g.ID(), convey.ShouldEqual, int64(i+1))
				convey.So(g.Size(), convey.ShouldEqual, cfg.TeamSize)
				seen := map[string]bool{}
				g.EachPlayer(func(_ int, id string) { seen[id] = true })
				convey.So(seen, convey.ShouldHaveLength, 2*cfg.TeamSize)
			}
		})

		convey.Convey("Then the same seed reproduces the dataset", func() {
			again, err := Generate(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(again.Players, convey.ShouldResemble, ds.Players)
			convey.So(again.Roster, convey.ShouldResemble, ds.Roster)
			for i := range ds.Games {
				convey.So(again.Games[i].Team1(), convey.ShouldResemble, ds.Games[i].Team1())
				convey.So(again.Games[i].Outcome(), convey.ShouldEqual, ds.Games[i].Outcome())
			}
		})

		convey.Convey("Then a different seed gives different players", func() {
			cfg.Seed++
			other, err := Generate(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(other.Players[0].ID, convey.ShouldNotEqual, ds.Players[0].ID)
		})

		convey.Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := Generate(cctx, cfg)

			convey.Convey("Then generation stops", func() {
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
			})
		})
	})
}

func TestWriteDataset(t *testing.T) {
	convey.Convey("Given a generated dataset written to disk", t, func() {
		ds, err := Generate(context.Background(), smallConfig())
		convey.So(err, convey.ShouldBeNil)
		dir := filepath.Join(t.TempDir(), "data")

		paths, err := WriteDataset(dir, ds)
		convey.So(err, convey.ShouldBeNil)
		convey.So(paths, convey.ShouldHaveLength, 4)

		convey.Convey("Then the record readers load the same games", func() {
			games, err := records.LoadGames(filepath.Join(dir, ScoresFile), filepath.Join(dir, GamesFile))
			convey.So(err, convey.ShouldBeNil)
			convey.So(games, convey.ShouldHaveLength, len(ds.Games))
			convey.So(games[0].Team1(), convey.ShouldResemble, ds.Games[0].Team1())
			convey.So(games[0].Team2(), convey.ShouldResemble, ds.Games[0].Team2())
			convey.So(games[0].Outcome(), convey.ShouldEqual, ds.Games[0].Outcome())
		})

		convey.Convey("Then the roster and skills load too", func() {
			roster, err := records.LoadRoster(filepath.Join(dir, RosterFile))
			convey.So(err, convey.ShouldBeNil)
			convey.So(roster, convey.ShouldResemble, ds.Roster)

			skills, err := records.LoadInitial(filepath.Join(dir, SkillsFile))
			convey.So(err, convey.ShouldBeNil)
			convey.So(skills, convey.ShouldHaveLength, len(ds.Players))
			convey.So(skills[ds.Players[0].ID], convey.ShouldAlmostEqual, ds.Players[0].Skill, 0.01)
		})
	})
}

func TestSpearman(t *testing.T) {
	convey.Convey("Given hidden skills", t, func() {
		skills := map[string]float64{"a": 2300, "b": 2100, "c": 1900, "d": 1700}
		standings := func(ids ...string) []types.Entry {
			out := make([]types.Entry, len(ids))
			for i, id := range ids {
				out[i] = types.Entry{Rank: i + 1, PlayerID: id}
			}
			return out
		}

		convey.Convey("Then matching order correlates perfectly", func() {
			rho, n, err := Spearman(skills, standings("a", "b", "c", "d"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(n, convey.ShouldEqual, 4)
			convey.So(rho, convey.ShouldAlmostEqual, 1.0, 1e-12)
		})

		convey.Convey("Then reversed order anti-correlates", func() {
			rho, _, err := Spearman(skills, standings("d", "c", "b", "a"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(rho, convey.ShouldAlmostEqual, -1.0, 1e-12)
		})

		convey.Convey("Then unknown players are ignored", func() {
			rho, n, err := Spearman(skills, standings("a", "zz", "b"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(n, convey.ShouldEqual, 2)
			convey.So(rho, convey.ShouldAlmostEqual, 1.0, 1e-12)
		})

		convey.Convey("Then fewer than two common players is an error", func() {
			_, _, err := Spearman(skills, standings("a"))
			convey.So(errors.Is(err, ErrTooFewPlayers), convey.ShouldBeTrue)
		})
	})
}

func newTestServer() *httptest.Server {
	svc := app.New(app.WithLogger(logger.Nop()), app.WithBalanceWorkers(1))
	router := mux.NewRouter()
	api.NewServer(svc, svc, 1000).Register(context.Background(), router)
	return httptest.NewServer(router)
}

func TestClient(t *testing.T) {
	convey.Convey("Given a running teamelo API", t, func() {
		ctx := context.Background()
		srv := newTestServer()
		defer srv.Close()
		client := NewClient(srv.URL, DefaultTimeout)

		convey.Convey("Then it reports healthy", func() {
			convey.So(client.Health(ctx), convey.ShouldBeNil)
		})

		convey.Convey("When a game is posted twice", func() {
			g := model.MustGame(1, model.Team{"a"}, model.Team{"b"}, model.Win)
			first, err1 := client.PostGame(ctx, g)
			second, err2 := client.PostGame(ctx, g)

			convey.Convey("Then the second post is a duplicate", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(first, convey.ShouldEqual, resultApplied)
				convey.So(second, convey.ShouldEqual, resultDuplicate)
			})

			convey.Convey("Then the standings reflect it", func() {
				entries, err := client.Standings(ctx, 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(entries, convey.ShouldHaveLength, 2)
				convey.So(entries[0].PlayerID, convey.ShouldEqual, "a")
				convey.So(entries[0].Rating, convey.ShouldAlmostEqual, 2030, 1e-9)
			})
		})

		convey.Convey("When the server is unreachable", func() {
			bad := NewClient("http://127.0.0.1:1", DefaultTimeout)

			convey.Convey("Then health fails", func() {
				convey.So(bad.Health(ctx), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a generated history with well separated skills", t, func() {
		srv := newTestServer()
		defer srv.Close()

		cfg := smallConfig()
		cfg.Games = 3000
		cfg.Spread = 300
		cfg.DrawRate = 0
		cfg.OutDir = t.TempDir()
		cfg.BaseURL = srv.URL
		cfg.Workers = 1

		convey.Convey("When it is submitted to the server", func() {
			rep, err := Run(context.Background(), cfg)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then every game is applied and the files are written", func() {
				convey.So(rep.Submit.Applied, convey.ShouldEqual, int64(cfg.Games))
				convey.So(rep.Submit.Failed, convey.ShouldEqual, int64(0))
				convey.So(rep.Files, convey.ShouldHaveLength, 4)
			})

			convey.Convey("Then the ratings recover the skill order", func() {
				convey.So(rep.Compared, convey.ShouldEqual, cfg.Players)
				convey.So(rep.Spearman, convey.ShouldBeGreaterThan, 0.5)
			})
		})
	})
}

func TestSubmitCancelled(t *testing.T) {
	convey.Convey("Given a cancelled context", t, func() {
		srv := newTestServer()
		defer srv.Close()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		games := []model.Game{model.MustGame(1, model.Team{"a"}, model.Team{"b"}, model.Draw)}
		_, err := Submit(ctx, NewClient(srv.URL, DefaultTimeout), games, 2, false)

		convey.Convey("Then submission reports the cancellation", func() {
			convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
		})
	})
}
