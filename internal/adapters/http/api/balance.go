package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/teamelo/internal/domain/types"
)

// BalanceDependencies defines the interface for team balancing.
type BalanceDependencies interface {
	Balance(ctx context.Context, roster []string) (types.Split, error)
	PredictDependencies
}

// BalanceHandler handles roster balancing and matchup prediction requests.
type BalanceHandler struct {
	deps BalanceDependencies
}

// NewBalanceHandler creates a new balance handler.
func NewBalanceHandler(deps BalanceDependencies) *BalanceHandler {
	return &BalanceHandler{deps: deps}
}

type balanceRequest struct {
	Roster []string `json:"roster"`
}

// PredictDependencies defines the interface for matchup predictions.
type PredictDependencies interface {
	Predict(ctx context.Context, team1, team2 []string) (types.Prediction, error)
}

type predictRequest struct {
	Team1 []string `json:"team1"`
	Team2 []string `json:"team2"`
}

// HandlePostPredict handles POST /predict requests.
func (h *BalanceHandler) HandlePostPredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	p, err := h.deps.Predict(r.Context(), req.Team1, req.Team2)
	if err != nil {
		writeDependencyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandlePostBalance handles POST /balance requests.
func (h *BalanceHandler) HandlePostBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	split, err := h.deps.Balance(r.Context(), req.Roster)
	if err != nil {
		writeDependencyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, split)
}
