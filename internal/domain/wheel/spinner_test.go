package wheel_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/jamwheel/internal/domain/wheel"
	"github.com/okian/jamwheel/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeTimer struct {
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// manualScheduler captures scheduled callbacks so tests decide when a spin ends.
type manualScheduler struct {
	mu     sync.Mutex
	fns    []func()
	delays []time.Duration
}

func (m *manualScheduler) schedule(d time.Duration, f func()) wheel.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fns = append(m.fns, f)
	m.delays = append(m.delays, d)
	return &fakeTimer{}
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

func themeConfig() wheel.Configuration {
	return wheel.Configuration{
		Title: "Jam Themes",
		Entries: []wheel.Entry{
			{Text: "Robots", Weight: 3, Enabled: true},
			{Text: "Water", Weight: 1, Enabled: true},
			{Text: "Time", Weight: 2, Enabled: true},
		},
	}
}

func TestSpinner(t *testing.T) {
	Convey("Given an idle spinner with a manual clock", t, func() {
		ctx := context.Background()
		clock := &manualScheduler{}
		var mu sync.Mutex
		var winners []wheel.Slice

		s := wheel.NewSpinner(themeConfig(),
			wheel.WithScheduler(clock.schedule),
			wheel.WithRandomSource(wheel.NewSeededRNG(11)),
			wheel.WithSpinDuration(4*time.Second),
			wheel.WithLogger(logger.Nop()),
			wheel.WithOnWinner(func(_ wheel.Configuration, sl wheel.Slice) {
				mu.Lock()
				winners = append(winners, sl)
				mu.Unlock()
			}),
		)
		So(s.CanSpin(), ShouldBeTrue)
		So(len(s.Slices()), ShouldEqual, 6)

		Convey("When spinning", func() {
			h, err := s.Spin(ctx)
			So(err, ShouldBeNil)

			Convey("Then the spinner is Spinning with the rotation set", func() {
				st := s.State()
				So(st.Spinning, ShouldBeTrue)
				So(st.RotationDegrees, ShouldEqual, h.Rotation)
				So(clock.delays[0], ShouldEqual, 4*time.Second)
				So(s.CanSpin(), ShouldBeFalse)
				_, err := h.Result()
				So(err, ShouldEqual, wheel.ErrSpinInProgress)
			})

			Convey("And the rotation decodes to the selected slice", func() {
				idx, err := wheel.DecodeIndex(h.Rotation, len(s.Slices()))
				So(err, ShouldBeNil)
				So(idx, ShouldEqual, h.Index)
			})

			Convey("And a second spin is a no-op", func() {
				h2, err := s.Spin(ctx)
				So(err, ShouldEqual, wheel.ErrSpinInProgress)
				So(h2, ShouldBeNil)
				So(s.State().RotationDegrees, ShouldEqual, h.Rotation)
				So(clock.count(), ShouldEqual, 1)
			})

			Convey("And replacing the configuration is refused", func() {
				So(s.SetConfiguration(wheel.Configuration{}), ShouldEqual, wheel.ErrSpinInProgress)
			})

			Convey("And when the duration elapses the selected slice wins once", func() {
				slicesBefore := s.Slices()
				clock.fire(0)
				clock.fire(0)

				w, err := h.Wait(ctx)
				So(err, ShouldBeNil)
				So(w, ShouldResemble, slicesBefore[h.Index])
				mu.Lock()
				So(len(winners), ShouldEqual, 1)
				So(winners[0], ShouldResemble, w)
				mu.Unlock()

				st := s.State()
				So(st.Spinning, ShouldBeFalse)
				So(st.Winner, ShouldNotBeNil)
				So(st.Winner.Text, ShouldEqual, w.Text)
			})

			Convey("And the next spin keeps turning forward", func() {
				clock.fire(0)
				h2, err := s.Spin(ctx)
				So(err, ShouldBeNil)
				So(h2.Rotation, ShouldBeGreaterThanOrEqualTo, h.Rotation)
			})

			Convey("And a reset suppresses the winner", func() {
				s.Reset()
				clock.fire(0)

				_, err := h.Result()
				So(err, ShouldEqual, wheel.ErrSpinCancelled)
				mu.Lock()
				So(winners, ShouldBeEmpty)
				mu.Unlock()
				st := s.State()
				So(st.Spinning, ShouldBeFalse)
				So(st.RotationDegrees, ShouldEqual, 0)
				So(st.Winner, ShouldBeNil)
			})
		})

		Convey("When every entry is disabled", func() {
			cfg := themeConfig()
			for i := range cfg.Entries {
				cfg.Entries[i].Enabled = false
			}
			So(s.SetConfiguration(cfg), ShouldBeNil)

			Convey("Then spinning is refused without touching state", func() {
				So(s.CanSpin(), ShouldBeFalse)
				h, err := s.Spin(ctx)
				So(h, ShouldBeNil)
				So(err, ShouldEqual, wheel.ErrNoEnabledEntries)
				So(s.State().RotationDegrees, ShouldEqual, 0)
				So(len(s.Configuration().Entries), ShouldEqual, 3)
			})
		})
	})
}

func TestSpinnerRealClock(t *testing.T) {
	Convey("Given a spinner on the real clock", t, func() {
		s := wheel.NewSpinner(themeConfig(), wheel.WithSpinDuration(20*time.Millisecond), wheel.WithLogger(logger.Nop()))

		Convey("When waiting on a spin", func() {
			h, err := s.Spin(context.Background())
			So(err, ShouldBeNil)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			w, err := h.Wait(ctx)

			Convey("Then it resolves after the duration", func() {
				So(err, ShouldBeNil)
				So(w.Text, ShouldNotBeEmpty)
				So(s.CanSpin(), ShouldBeTrue)
			})
		})
	})
}
