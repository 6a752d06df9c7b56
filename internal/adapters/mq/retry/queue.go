// Package retry runs fire-and-forget actions that may fail transiently,
// retrying each with exponential backoff and jitter until it succeeds or
// runs out of attempts.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/jamwheel/pkg/logger"
	"github.com/okian/jamwheel/pkg/metrics"
)

// Default retry policy.
const (
	DefaultAttempts  = 5
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second
	maxJitter        = 500 * time.Millisecond
)

// TaskID identifies an enqueued task. IDs are unique per Queue.
type TaskID uint64

// Action is one attempt of a task. A nil error ends the task.
type Action func(ctx context.Context) error

// Timer is the part of *time.Timer the queue needs.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d on another goroutine; it must not call f
// inline.
type Scheduler func(d time.Duration, f func()) Timer

func defaultScheduler(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func defaultJitter() time.Duration {
	return rand.N(maxJitter)
}

// Policy holds the per-task retry defaults.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (p Policy) normalize() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

type task struct {
	id           TaskID
	name         string
	action       Action
	attemptsLeft int
	failures     int
	base         time.Duration
	max          time.Duration
	timer        Timer
	running      bool
}

// Queue schedules and retries tasks. The zero value is not usable; call New.
type Queue struct {
	mu     sync.Mutex
	nextID TaskID
	tasks  map[TaskID]*task
	closed bool

	inflight sync.WaitGroup
	ctx      context.Context //nolint:containedctx // parent of every attempt, cancelled on Close
	cancel   context.CancelFunc

	policy   Policy
	schedule Scheduler
	jitter   func() time.Duration
	logger   logger.Logger
}

// New creates a Queue.
func New(opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:    make(map[TaskID]*task),
		ctx:      ctx,
		cancel:   cancel,
		policy:   Policy{}.normalize(),
		schedule: defaultScheduler,
		jitter:   defaultJitter,
		logger:   logger.Get().Named("retry"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue registers action and schedules its first attempt right away. It
// never blocks. After Close the task is dropped but still gets an ID.
func (q *Queue) Enqueue(action Action, opts ...TaskOption) TaskID {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	t := &task{
		id:           q.nextID,
		action:       action,
		attemptsLeft: q.policy.Attempts,
		base:         q.policy.BaseDelay,
		max:          q.policy.MaxDelay,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.max < t.base {
		t.max = t.base
	}

	if q.closed || action == nil {
		metrics.RecordRetryDropped()
		q.logger.Warn(q.ctx, "dropping task",
			logger.Uint64("task_id", uint64(t.id)),
			logger.String("task", t.name),
			logger.Error(ErrQueueClosed))
		return t.id
	}

	q.tasks[t.id] = t
	metrics.RecordRetryEnqueued()
	metrics.UpdateRetryLive(len(q.tasks))
	t.timer = q.schedule(0, func() { q.attempt(t.id) })
	return t.id
}

// Len returns the number of live tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops scheduling, drops tasks waiting on a timer, and waits for
// attempts already running until ctx is done. Running attempts see their
// context cancelled if ctx expires first.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for id, t := range q.tasks {
			if t.running {
				continue
			}
			if t.timer != nil {
				t.timer.Stop()
			}
			q.removeLocked(id)
			metrics.RecordRetryDropped()
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return fmt.Errorf("close retry queue: %w", ctx.Err())
	}
}

func (q *Queue) attempt(id TaskID) {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok || q.closed {
		q.mu.Unlock()
		return
	}
	t.running = true
	t.timer = nil
	q.inflight.Add(1)
	q.mu.Unlock()
	defer q.inflight.Done()

	err := q.run(t)

	q.mu.Lock()
	defer q.mu.Unlock()
	t.running = false

	if err == nil {
		metrics.RecordRetryAttempt("success")
		metrics.RecordRetrySucceeded()
		q.removeLocked(id)
		return
	}

	metrics.RecordRetryAttempt("failure")
	t.attemptsLeft--
	t.failures++
	fields := []logger.Field{
		logger.Uint64("task_id", uint64(id)),
		logger.String("task", t.name),
		logger.Int("failures", t.failures),
		logger.Int("attempts_left", t.attemptsLeft),
		logger.Error(err),
	}

	switch {
	case t.attemptsLeft <= 0:
		metrics.RecordRetryExhausted()
		q.logger.Error(q.ctx, "task failed, giving up", fields...)
		q.removeLocked(id)
	case q.closed:
		metrics.RecordRetryDropped()
		q.logger.Warn(q.ctx, "task failed after close, dropping", fields...)
		q.removeLocked(id)
	default:
		delay := t.backoff() + q.jitter()
		metrics.RecordRetryDelay(float64(delay.Milliseconds()))
		q.logger.Warn(q.ctx, "task failed, retrying", append(fields, logger.Duration("delay", delay))...)
		t.timer = q.schedule(delay, func() { q.attempt(id) })
	}
}

func (q *Queue) run(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrActionPanicked, r)
		}
	}()
	return t.action(q.ctx)
}

func (q *Queue) removeLocked(id TaskID) {
	delete(q.tasks, id)
	metrics.UpdateRetryLive(len(q.tasks))
}

// backoff is base*2^failures capped at max.
func (t *task) backoff() time.Duration {
	d := t.base
	for i := 0; i < t.failures && d < t.max; i++ {
		d *= 2
	}
	if d > t.max {
		d = t.max
	}
	return d
}
