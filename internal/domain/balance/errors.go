package balance

import "errors"

// Sentinel kinds for rejected balance requests.
var (
	ErrNoValidSplit   = errors.New("no valid split")
	ErrOddRoster      = errors.New("roster size must be even")
	ErrRosterTooLarge = errors.New("roster exceeds the exhaustive search limit")
)
