package retry

import (
	"time"

	"github.com/okian/jamwheel/pkg/logger"
)

// Option configures a Queue.
type Option func(*Queue)

// WithScheduler replaces time.AfterFunc, mainly for tests.
func WithScheduler(s Scheduler) Option {
	return func(q *Queue) {
		if s != nil {
			q.schedule = s
		}
	}
}

// WithJitter replaces the random [0,500ms) jitter source.
func WithJitter(j func() time.Duration) Option {
	return func(q *Queue) {
		if j != nil {
			q.jitter = j
		}
	}
}

// WithPolicy sets the defaults applied to every task.
func WithPolicy(p Policy) Option {
	return func(q *Queue) {
		q.policy = p.normalize()
	}
}

// WithLogger sets a custom logger for the queue.
func WithLogger(l logger.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// TaskOption overrides the queue policy for one task.
type TaskOption func(*task)

// WithAttempts sets the total number of attempts.
func WithAttempts(n int) TaskOption {
	return func(t *task) {
		if n > 0 {
			t.attemptsLeft = n
		}
	}
}

// WithBaseDelay sets the delay the backoff doubles from.
func WithBaseDelay(d time.Duration) TaskOption {
	return func(t *task) {
		if d > 0 {
			t.base = d
		}
	}
}

// WithMaxDelay caps the backoff before jitter.
func WithMaxDelay(d time.Duration) TaskOption {
	return func(t *task) {
		if d > 0 {
			t.max = d
		}
	}
}

// WithName labels the task in logs.
func WithName(name string) TaskOption {
	return func(t *task) {
		t.name = name
	}
}
