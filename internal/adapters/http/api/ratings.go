package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// RatingsDependencies defines the interface for rating reads.
type RatingsDependencies interface {
	Standings(ctx context.Context, limit int) ([]Entry, error)
	Rank(ctx context.Context, playerID string) (Entry, error)
}

// RatingsHandler handles standings and single-player lookups.
type RatingsHandler struct {
	deps     RatingsDependencies
	maxLimit int
}

// NewRatingsHandler creates a new ratings handler.
func NewRatingsHandler(deps RatingsDependencies, maxLimit int) *RatingsHandler {
	return &RatingsHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetStandings handles GET /ratings?limit=N. Without limit, up to maxLimit rows are returned.
func (h *RatingsHandler) HandleGetStandings(w http.ResponseWriter, r *http.Request) {
	n := h.maxLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		if v > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", fmt.Errorf("%w: limit above %d", ErrBadRequest, h.maxLimit))
			return
		}
		n = v
	}
	entries, err := h.deps.Standings(r.Context(), n)
	if err != nil {
		writeDependencyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetRank handles GET /ratings/{id}.
func (h *RatingsHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	entry, err := h.deps.Rank(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDependencyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
