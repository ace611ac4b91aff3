// Package types contains read shapes shared by the service and its adapters.
package types

import "math"

// Entry is one row of the standings.
type Entry struct {
	Rank     int     `json:"rank" yaml:"rank"`
	PlayerID string  `json:"player_id" yaml:"player_id"`
	Rating   float64 `json:"rating" yaml:"rating"`
}

// Rounded returns the rating rounded to the nearest integer for display.
func (e Entry) Rounded() int64 {
	return int64(math.Round(e.Rating))
}

// Split is a balanced partition of a roster.
type Split struct {
	TeamA     []string `json:"team_a"`
	TeamB     []string `json:"team_b"`
	MeanA     float64  `json:"mean_a"`
	MeanB     float64  `json:"mean_b"`
	Target    float64  `json:"target_mean"`
	Imbalance float64  `json:"imbalance"`
	Expected  float64  `json:"expected_outcome"`
	// Candidates is the number of combinations scored.
	Candidates uint64 `json:"candidates"`
}

// Prediction is the expected result of a matchup before it is played.
type Prediction struct {
	Team1 []string `json:"team1"`
	Team2 []string `json:"team2"`
	Mean1 float64  `json:"mean1"`
	Mean2 float64  `json:"mean2"`
	// Expected is team1's expected score in [0,1].
	Expected float64 `json:"expected_outcome"`
}
