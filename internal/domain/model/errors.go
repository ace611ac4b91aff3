package model

import "errors"

// Sentinel kinds for game construction and outcome parsing.
var (
	ErrEmptyTeam        = errors.New("team must not be empty")
	ErrTeamSizeMismatch = errors.New("teams must have equal size")
	ErrOddParticipants  = errors.New("participant count must be even")
	ErrInvalidOutcome   = errors.New("invalid outcome")
)
