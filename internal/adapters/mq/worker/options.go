package worker

import "github.com/okian/teamelo/pkg/logger"

// Option configures a worker or every worker of a pool.
type Option func(*settings)

type settings struct {
	name   string
	logger logger.Logger
}

// WithName labels the worker in logs. A pool suffixes it with the worker index.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger routes worker logs to l instead of the global logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{name: "worker"}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	return s
}
