package retry_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/jamwheel/internal/adapters/mq/retry"
	"github.com/okian/jamwheel/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var errTransient = errors.New("db locked")

type fakeTimer struct{ stopped atomic.Bool }

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

// manualScheduler records scheduled attempts; tests fire them by hand.
type manualScheduler struct {
	mu     sync.Mutex
	fns    []func()
	delays []time.Duration
	timers []*fakeTimer
}

func (m *manualScheduler) schedule(d time.Duration, f func()) retry.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &fakeTimer{}
	m.fns = append(m.fns, f)
	m.delays = append(m.delays, d)
	m.timers = append(m.timers, t)
	return t
}

func (m *manualScheduler) fire(i int) {
	m.mu.Lock()
	f := m.fns[i]
	m.mu.Unlock()
	f()
}

func (m *manualScheduler) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fns)
}

func newQueue(clock *manualScheduler, jitter time.Duration) *retry.Queue {
	return retry.New(
		retry.WithScheduler(clock.schedule),
		retry.WithJitter(func() time.Duration { return jitter }),
		retry.WithLogger(logger.Nop()),
	)
}

func TestQueueBackoff(t *testing.T) {
	Convey("Given a queue with a manual clock", t, func() {
		clock := &manualScheduler{}
		q := newQueue(clock, 123*time.Millisecond)

		Convey("When an action fails twice then succeeds", func() {
			calls := 0
			id := q.Enqueue(func(context.Context) error {
				calls++
				if calls <= 2 {
					return errTransient
				}
				return nil
			})
			So(id, ShouldEqual, retry.TaskID(1))
			So(q.Len(), ShouldEqual, 1)
			So(clock.delays[0], ShouldEqual, time.Duration(0))
			So(calls, ShouldEqual, 0)

			clock.fire(0)
			clock.fire(1)
			clock.fire(2)

			Convey("Then it runs three times with doubling delays and is removed", func() {
				So(calls, ShouldEqual, 3)
				So(clock.count(), ShouldEqual, 3)
				So(clock.delays[1], ShouldEqual, 2*time.Second+123*time.Millisecond)
				So(clock.delays[2], ShouldEqual, 4*time.Second+123*time.Millisecond)
				So(q.Len(), ShouldEqual, 0)
			})
		})

		Convey("When an action always fails", func() {
			calls := 0
			q.Enqueue(func(context.Context) error {
				calls++
				return errTransient
			}, retry.WithAttempts(3), retry.WithBaseDelay(10*time.Second), retry.WithMaxDelay(15*time.Second))

			clock.fire(0)
			clock.fire(1)
			clock.fire(2)

			Convey("Then it stops after its attempts with the delay capped", func() {
				So(calls, ShouldEqual, 3)
				So(clock.count(), ShouldEqual, 3)
				So(clock.delays[1], ShouldEqual, 15*time.Second+123*time.Millisecond)
				So(clock.delays[2], ShouldEqual, 15*time.Second+123*time.Millisecond)
				So(q.Len(), ShouldEqual, 0)
			})

			Convey("And a stale timer firing again is ignored", func() {
				clock.fire(2)
				So(calls, ShouldEqual, 3)
			})
		})

		Convey("When an action panics", func() {
			calls := 0
			q.Enqueue(func(context.Context) error {
				calls++
				if calls == 1 {
					panic("boom")
				}
				return nil
			})
			So(func() { clock.fire(0) }, ShouldNotPanic)

			Convey("Then the panic counts as a failed attempt", func() {
				So(clock.count(), ShouldEqual, 2)
				clock.fire(1)
				So(calls, ShouldEqual, 2)
				So(q.Len(), ShouldEqual, 0)
			})
		})

		Convey("When several tasks are enqueued", func() {
			a := q.Enqueue(func(context.Context) error { return nil })
			b := q.Enqueue(func(context.Context) error { return nil })

			Convey("Then they get distinct increasing ids", func() {
				So(b, ShouldBeGreaterThan, a)
				So(q.Len(), ShouldEqual, 2)
			})
		})
	})
}

func TestQueueClose(t *testing.T) {
	Convey("Given a queue with a pending retry", t, func() {
		clock := &manualScheduler{}
		q := newQueue(clock, 0)
		calls := 0
		q.Enqueue(func(context.Context) error {
			calls++
			return errTransient
		})
		clock.fire(0)
		So(q.Len(), ShouldEqual, 1)

		Convey("When closing", func() {
			So(q.Close(context.Background()), ShouldBeNil)

			Convey("Then pending tasks are dropped and their timers stopped", func() {
				So(q.Len(), ShouldEqual, 0)
				So(clock.timers[1].stopped.Load(), ShouldBeTrue)
				clock.fire(1)
				So(calls, ShouldEqual, 1)
			})

			Convey("And later enqueues are dropped", func() {
				id := q.Enqueue(func(context.Context) error { return nil })
				So(id, ShouldEqual, retry.TaskID(2))
				So(q.Len(), ShouldEqual, 0)
				So(clock.count(), ShouldEqual, 2)
			})

			Convey("And closing twice is harmless", func() {
				So(q.Close(context.Background()), ShouldBeNil)
			})
		})
	})

	Convey("Given an attempt in flight on the real clock", t, func() {
		q := retry.New(retry.WithLogger(logger.Nop()))
		started := make(chan struct{})
		release := make(chan struct{})
		var finished atomic.Bool
		q.Enqueue(func(ctx context.Context) error {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
			}
			finished.Store(true)
			return nil
		})
		<-started

		Convey("When the close deadline passes first", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			err := q.Close(ctx)

			Convey("Then Close reports the deadline", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				close(release)
			})
		})

		Convey("When the attempt finishes before the deadline", func() {
			go func() {
				time.Sleep(10 * time.Millisecond)
				close(release)
			}()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			Convey("Then Close waits for it", func() {
				So(q.Close(ctx), ShouldBeNil)
				So(finished.Load(), ShouldBeTrue)
				So(q.Len(), ShouldEqual, 0)
			})
		})
	})
}
