package records

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord marks a line that cannot be parsed.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrUnmatchedGame marks a game id whose score and team rows do not line up.
	ErrUnmatchedGame = errors.New("unmatched game")
	// ErrUnknownFormat is returned for an unsupported standings encoding.
	ErrUnknownFormat = errors.New("unknown output format")
)

// ParseError locates a malformed record.
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

// Unwrap exposes both the cause and ErrMalformedRecord to errors.Is.
func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformedRecord, e.Err}
}

func malformed(file string, line int, format string, args ...any) error {
	return &ParseError{File: file, Line: line, Err: fmt.Errorf(format, args...)}
}
