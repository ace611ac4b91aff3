package model

import (
	"fmt"
	"math"
)

// Outcome is a game result from team1's point of view.
type Outcome int

// Outcomes. The zero value is deliberately not a valid result.
const (
	Win Outcome = iota + 1
	Loss
	Draw
)

// ParseOutcome converts a record code into an Outcome.
// Accepted codes are case-sensitive: W or 1 (team1 won), L or 2 (team2 won), D.
func ParseOutcome(code string) (Outcome, error) {
	switch code {
	case "W", "1":
		return Win, nil
	case "L", "2":
		return Loss, nil
	case "D":
		return Draw, nil
	default:
		return 0, fmt.Errorf("%w: cannot convert %q into an outcome", ErrInvalidOutcome, code)
	}
}

// OutcomeFromScore converts a numeric result for team1 (1, 0 or 0.5) into an Outcome.
func OutcomeFromScore(score float64) (Outcome, error) {
	switch {
	case score == 1:
		return Win, nil
	case score == 0:
		return Loss, nil
	case score == 0.5:
		return Draw, nil
	case math.IsNaN(score):
		return 0, fmt.Errorf("%w: score is NaN", ErrInvalidOutcome)
	default:
		return 0, fmt.Errorf("%w: score %v is not one of 0, 0.5, 1", ErrInvalidOutcome, score)
	}
}

// Score returns the numeric result for team1: 1, 0 or 0.5.
func (o Outcome) Score() float64 {
	switch o {
	case Win:
		return 1
	case Loss:
		return 0
	case Draw:
		return 0.5
	default:
		panic(fmt.Sprintf("model: score of invalid outcome %d", int(o)))
	}
}

// Invert returns the same result seen from team2.
func (o Outcome) Invert() Outcome {
	switch o {
	case Win:
		return Loss
	case Loss:
		return Win
	default:
		return o
	}
}

// Code returns the canonical record code (W, L or D).
func (o Outcome) Code() string {
	switch o {
	case Win:
		return "W"
	case Loss:
		return "L"
	case Draw:
		return "D"
	default:
		return "?"
	}
}

// Valid reports whether o is one of Win, Loss, Draw.
func (o Outcome) Valid() bool {
	return o >= Win && o <= Draw
}

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Loss:
		return "loss"
	case Draw:
		return "draw"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText encodes the outcome as its record code.
func (o Outcome) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOutcome, int(o))
	}
	return []byte(o.Code()), nil
}

// UnmarshalText accepts any code ParseOutcome accepts.
func (o *Outcome) UnmarshalText(b []byte) error {
	v, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}
