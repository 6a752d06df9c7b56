package service

import (
	"time"

	"github.com/okian/jamwheel/internal/adapters/mq/retry"
	"github.com/okian/jamwheel/internal/adapters/repository"
	"github.com/okian/jamwheel/internal/domain/wheel"
	"github.com/okian/jamwheel/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store. Without it Start uses a MemoryStore.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSpinDuration sets how long each spin lasts.
func WithSpinDuration(d time.Duration) Option {
	return func(s *Service) {
		s.spinnerOpts = append(s.spinnerOpts, wheel.WithSpinDuration(d))
	}
}

// WithSpinTurns bounds the extra full turns per spin.
func WithSpinTurns(minTurns, maxTurns int) Option {
	return func(s *Service) {
		s.spinnerOpts = append(s.spinnerOpts, wheel.WithSpinTurns(minTurns, maxTurns))
	}
}

// WithSpinnerOptions passes raw options to every spinner, e.g. a seeded
// random source or a manual scheduler in tests.
func WithSpinnerOptions(opts ...wheel.SpinnerOption) Option {
	return func(s *Service) {
		s.spinnerOpts = append(s.spinnerOpts, opts...)
	}
}

// WithRetryPolicy sets the default policy for background writes.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) {
		s.retryOpts = append(s.retryOpts, retry.WithPolicy(p))
	}
}

// WithRetryOptions passes raw options to the retry queue.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(s *Service) {
		s.retryOpts = append(s.retryOpts, opts...)
	}
}

// WithMaxUploadBytes caps CSV uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}
