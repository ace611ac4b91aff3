package synth

import (
	"fmt"
	"sort"

	"github.com/okian/teamelo/internal/domain/types"
)

// Spearman returns the rank correlation between hidden skills and the
// standings, over the players present in both, and how many were compared.
// Ranks come from the standings order; skills are ranked descending.
func Spearman(skills map[string]float64, standings []types.Entry) (float64, int, error) {
	ids := make([]string, 0, len(standings))
	for _, e := range standings {
		if _, ok := skills[e.PlayerID]; ok {
			ids = append(ids, e.PlayerID)
		}
	}
	n := len(ids)
	if n < 2 {
		return 0, n, fmt.Errorf("%w: %d in common", ErrTooFewPlayers, n)
	}

	// ids is already in standings order, so position is the rating rank.
	bySkill := append([]string(nil), ids...)
	sort.SliceStable(bySkill, func(i, j int) bool {
		return skills[bySkill[i]] > skills[bySkill[j]]
	})
	skillRank := make(map[string]int, n)
	for i, id := range bySkill {
		skillRank[id] = i
	}

	var sumSq float64
	for i, id := range ids {
		d := float64(i - skillRank[id])
		sumSq += d * d
	}
	nf := float64(n)
	return 1 - 6*sumSq/(nf*(nf*nf-1)), n, nil
}
