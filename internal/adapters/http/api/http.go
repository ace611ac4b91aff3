// Package api serves ratings, game submission and team balancing over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/okian/teamelo/internal/domain/dedupe"
	"github.com/okian/teamelo/internal/domain/elo"
	"github.com/okian/teamelo/internal/domain/model"
	"github.com/okian/teamelo/internal/domain/types"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	dedupe.Deduper

	// ProcessGame applies one game to the ratings.
	ProcessGame(ctx context.Context, g model.Game) (elo.Result, error)

	// Read operations. Rank wraps ErrNotFound for unknown players.
	Standings(ctx context.Context, limit int) ([]Entry, error)
	Rank(ctx context.Context, playerID string) (Entry, error)

	// Balance splits roster; contract violations wrap ErrInvalidInput.
	Balance(ctx context.Context, roster []string) (types.Split, error)
	// Predict rates a matchup without playing it; empty or unequal teams wrap ErrInvalidInput.
	Predict(ctx context.Context, team1, team2 []string) (types.Prediction, error)
}

// Entry mirrors the read shape returned by standings queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	gamesHandler   *GamesHandler
	ratingsHandler *RatingsHandler
	balanceHandler *BalanceHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		gamesHandler:   NewGamesHandler(deps),
		ratingsHandler: NewRatingsHandler(deps, maxLimit),
		balanceHandler: NewBalanceHandler(deps),
	}
}

// Register attaches all business routes to r.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	r.Use(RequestIDMiddleware)
	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)
	r.HandleFunc("/games", MetricsMiddleware(s.gamesHandler.HandlePostGame, "games")).Methods(http.MethodPost)
	r.HandleFunc("/ratings", MetricsMiddleware(s.ratingsHandler.HandleGetStandings, "ratings")).Methods(http.MethodGet)
	r.HandleFunc("/ratings/{id}", MetricsMiddleware(s.ratingsHandler.HandleGetRank, "rank")).Methods(http.MethodGet)
	r.HandleFunc("/balance", MetricsMiddleware(s.balanceHandler.HandlePostBalance, "balance")).Methods(http.MethodPost)
	r.HandleFunc("/predict", MetricsMiddleware(s.balanceHandler.HandlePostPredict, "predict")).Methods(http.MethodPost)
}

// Wrap adds panic recovery and, when accessLog is non-nil, Apache-style access logging.
func Wrap(h http.Handler, accessLog io.Writer) http.Handler {
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
	if accessLog != nil {
		h = handlers.LoggingHandler(accessLog, h)
	}
	return h
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDependencyError maps dependency errors to 404, 400 or 500.
func writeDependencyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
