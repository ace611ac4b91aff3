package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/teamelo/internal/domain/dedupe"
	"github.com/okian/teamelo/internal/domain/elo"
	"github.com/okian/teamelo/internal/domain/model"
)

// GameDependencies defines what POST /games needs.
type GameDependencies interface {
	dedupe.Deduper
	ProcessGame(ctx context.Context, g model.Game) (elo.Result, error)
}

// GameQueue is implemented by dependencies that can apply games in the
// background. When Async reports true, POST /games queues instead of applying.
type GameQueue interface {
	Async() bool
	Enqueue(ctx context.Context, g model.Game) error
}

// GamesHandler handles game submissions.
type GamesHandler struct {
	deps GameDependencies
}

// NewGamesHandler creates a new games handler.
func NewGamesHandler(deps GameDependencies) *GamesHandler {
	return &GamesHandler{deps: deps}
}

// gameRequest mirrors the OpenAPI schema for POST /games.
type gameRequest struct {
	GameID  *int64        `json:"game_id"`
	Team1   []string      `json:"team1"`
	Team2   []string      `json:"team2"`
	Outcome model.Outcome `json:"outcome"`
}

func (g gameRequest) game() (model.Game, error) {
	if g.GameID == nil {
		return model.Game{}, fmt.Errorf("%w: missing game_id", ErrBadRequest)
	}
	if !g.Outcome.Valid() {
		return model.Game{}, fmt.Errorf("%w: missing outcome", ErrBadRequest)
	}
	for _, team := range [][]string{g.Team1, g.Team2} {
		for _, id := range team {
			if id == "" {
				return model.Game{}, fmt.Errorf("%w: empty player id", ErrBadRequest)
			}
		}
	}
	game, err := model.NewGame(*g.GameID, g.Team1, g.Team2, g.Outcome)
	if err != nil {
		return model.Game{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return game, nil
}

type gameResponse struct {
	Status     string  `json:"status"`
	Duplicate  bool    `json:"duplicate"`
	GameID     int64   `json:"game_id"`
	Expected   float64 `json:"expected,omitempty"`
	Delta      float64 `json:"delta,omitempty"`
	Registered int     `json:"registered,omitempty"`
}

// HandlePostGame handles POST /games requests.
func (h *GamesHandler) HandlePostGame(w http.ResponseWriter, r *http.Request) {
	var req gameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	game, err := req.game()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	if h.deps.SeenAndRecord(r.Context(), game.ID()) {
		writeJSON(w, http.StatusOK, gameResponse{Status: "duplicate", Duplicate: true, GameID: game.ID()})
		return
	}

	if q, ok := h.deps.(GameQueue); ok && q.Async() {
		if err := q.Enqueue(r.Context(), game); err != nil {
			h.deps.Unrecord(r.Context(), game.ID())
			writeError(w, http.StatusServiceUnavailable, "queue_unavailable", err)
			return
		}
		writeJSON(w, http.StatusAccepted, gameResponse{Status: "accepted", GameID: game.ID()})
		return
	}

	res, err := h.deps.ProcessGame(r.Context(), game)
	if err != nil {
		// allow the client to retry the same game id
		h.deps.Unrecord(r.Context(), game.ID())
		writeDependencyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{
		Status:     "applied",
		GameID:     game.ID(),
		Expected:   res.Expected,
		Delta:      res.Delta,
		Registered: res.Registered,
	})
}
