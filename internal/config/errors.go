package config

import "errors"

var (
	// ErrInvalidConfig marks a setting the rating engine cannot run with.
	ErrInvalidConfig = errors.New("invalid rating settings")
	// ErrLoadConfig wraps failures reading the YAML file or environment.
	ErrLoadConfig = errors.New("unable to read teamelo settings")
)
