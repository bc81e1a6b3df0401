package core

import (
	"log/slog"
	"runtime"
)

type settings struct {
	logger  *slog.Logger
	metrics *Metrics
	workers int
}

// Option configures collections, registries, validators and services.
type Option func(*settings)

// WithLogger sets the structured logger. Nil selects slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithWorkers bounds the goroutines used to compute statistics.
func WithWorkers(n int) Option {
	return func(s *settings) { s.workers = n }
}

func newSettings(opts []Option) settings {
	s := settings{}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.workers <= 0 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	return s
}

func (s settings) options() []Option {
	return []Option{WithLogger(s.logger), WithMetrics(s.metrics), WithWorkers(s.workers)}
}
