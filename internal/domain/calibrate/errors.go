package calibrate

import "errors"

var (
	ErrNoGames       = errors.New("no games to calibrate on")
	ErrInvalidBounds = errors.New("invalid K bounds")
)
