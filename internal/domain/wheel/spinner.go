package wheel

import (
	"context"
	"sync"
	"time"

	"github.com/okian/jamwheel/pkg/logger"
	"github.com/okian/jamwheel/pkg/metrics"
)

// DefaultSpinDuration is how long a spin stays in the Spinning state.
const DefaultSpinDuration = 4 * time.Second

// Timer is the part of *time.Timer the spinner needs.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d on another goroutine; it must not call f
// inline. time.AfterFunc is the default.
type Scheduler func(d time.Duration, f func()) Timer

func defaultScheduler(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SpinHandle is the pending result of one spin. Index and Rotation are known
// immediately so a client can animate; the winner is released only when the
// spin duration has elapsed.
type SpinHandle struct {
	Index    int
	Rotation float64
	Duration time.Duration

	slice  Slice
	timer  Timer
	done   chan struct{}
	once   sync.Once
	winner Slice
	err    error
}

func newSpinHandle(idx int, s Slice, rotation float64, d time.Duration) *SpinHandle {
	return &SpinHandle{
		Index:    idx,
		Rotation: rotation,
		Duration: d,
		slice:    s,
		done:     make(chan struct{}),
	}
}

func (h *SpinHandle) resolve(winner Slice, err error) bool {
	resolved := false
	h.once.Do(func() {
		h.winner = winner
		h.err = err
		close(h.done)
		resolved = true
	})
	return resolved
}

// Selected is the slice the spin will land on.
func (h *SpinHandle) Selected() Slice {
	return h.slice
}

// Done is closed once the spin has completed or been cancelled.
func (h *SpinHandle) Done() <-chan struct{} {
	return h.done
}

// Result returns the winner after Done is closed. It returns
// ErrSpinCancelled if the spinner was reset first.
func (h *SpinHandle) Result() (Slice, error) {
	select {
	case <-h.done:
		return h.winner, h.err
	default:
		return Slice{}, ErrSpinInProgress
	}
}

// Wait blocks until the spin resolves or ctx ends.
func (h *SpinHandle) Wait(ctx context.Context) (Slice, error) {
	select {
	case <-h.done:
		return h.winner, h.err
	case <-ctx.Done():
		return Slice{}, ctx.Err()
	}
}

// Spinner is the Idle -> Spinning -> Idle state machine for one wheel.
type Spinner struct {
	mu sync.Mutex

	cfg      Configuration
	slices   []Slice
	rotation float64
	spinning bool
	winner   *Slice
	pending  *SpinHandle

	duration time.Duration
	minSpins int
	maxSpins int
	rng      RandomSource
	schedule Scheduler
	onWinner func(Configuration, Slice)
	logger   logger.Logger
}

// SpinnerOption configures a Spinner.
type SpinnerOption func(*Spinner)

// WithSpinDuration sets how long a spin lasts.
func WithSpinDuration(d time.Duration) SpinnerOption {
	return func(s *Spinner) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithSpinTurns bounds the number of extra full turns per spin.
func WithSpinTurns(minSpins, maxSpins int) SpinnerOption {
	return func(s *Spinner) {
		if minSpins >= 0 && maxSpins >= minSpins {
			s.minSpins = minSpins
			s.maxSpins = maxSpins
		}
	}
}

// WithRandomSource overrides the random source.
func WithRandomSource(rng RandomSource) SpinnerOption {
	return func(s *Spinner) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithScheduler overrides how the end of a spin is timed.
func WithScheduler(sched Scheduler) SpinnerOption {
	return func(s *Spinner) {
		if sched != nil {
			s.schedule = sched
		}
	}
}

// WithOnWinner registers a callback invoked exactly once per completed spin
// with the configuration the spin ran against and the selected slice.
func WithOnWinner(fn func(Configuration, Slice)) SpinnerOption {
	return func(s *Spinner) {
		s.onWinner = fn
	}
}

// WithLogger sets a custom logger for the spinner.
func WithLogger(l logger.Logger) SpinnerOption {
	return func(s *Spinner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSpinner builds an idle spinner for cfg.
func NewSpinner(cfg Configuration, opts ...SpinnerOption) *Spinner {
	s := &Spinner{
		duration: DefaultSpinDuration,
		minSpins: DefaultMinSpins,
		maxSpins: DefaultMaxSpins,
		rng:      DefaultRNG(),
		schedule: defaultScheduler,
		logger:   logger.Get().Named("wheel"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = cfg.Clone()
	s.slices = BuildSlices(s.cfg.Entries, s.rng)
	return s
}

// SetConfiguration replaces the whole configuration and rebuilds slices.
// It is refused while a spin is in flight.
func (s *Spinner) SetConfiguration(cfg Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spinning {
		return ErrSpinInProgress
	}
	s.cfg = cfg.Clone()
	s.slices = BuildSlices(s.cfg.Entries, s.rng)
	s.winner = nil
	return nil
}

// Configuration returns a copy of the current configuration.
func (s *Spinner) Configuration() Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

// Slices returns a copy of the current slice order.
func (s *Spinner) Slices() []Slice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Slice(nil), s.slices...)
}

// CanSpin reports whether Spin would start a new spin right now.
func (s *Spinner) CanSpin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.spinning && len(s.slices) > 0
}

// State returns a snapshot of rotation, spinning flag and last winner.
func (s *Spinner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{RotationDegrees: s.rotation, Spinning: s.spinning}
	if s.winner != nil {
		w := *s.winner
		st.Winner = &w
	}
	return st
}

// Spin selects a winner and starts the timed transition to Idle.
// While Spinning, or with no slices, it changes nothing and returns
// ErrSpinInProgress or ErrNoEnabledEntries.
func (s *Spinner) Spin(ctx context.Context) (*SpinHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spinning {
		metrics.RecordSpinRejected("spinning")
		return nil, ErrSpinInProgress
	}
	n := len(s.slices)
	if n == 0 {
		metrics.RecordSpinRejected("no_enabled_entries")
		return nil, ErrNoEnabledEntries
	}

	idx, err := SelectRandomIndex(n, s.rng)
	if err != nil {
		return nil, err
	}
	rotation, err := TargetRotation(idx, n, s.rotation, s.minSpins, s.maxSpins, s.rng)
	if err != nil {
		return nil, err
	}

	h := newSpinHandle(idx, s.slices[idx], rotation, s.duration)
	s.rotation = rotation
	s.spinning = true
	s.pending = h
	cfg := s.cfg.Clone()
	h.timer = s.schedule(s.duration, func() { s.finish(h, cfg) })

	metrics.RecordSpinStarted(n)
	s.logger.Debug(ctx, "spin started",
		logger.Int("index", idx),
		logger.Int("slices", n),
		logger.Float64("rotation", rotation),
	)
	return h, nil
}

// finish completes h unless a reset has replaced it.
func (s *Spinner) finish(h *SpinHandle, cfg Configuration) {
	s.mu.Lock()
	if s.pending != h {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.spinning = false
	winner := h.slice
	s.winner = &winner
	cb := s.onWinner
	s.mu.Unlock()

	if !h.resolve(winner, nil) {
		return
	}
	metrics.RecordSpinCompleted()
	s.logger.Info(context.Background(), "spin completed", logger.String("winner", winner.Text))
	if cb != nil {
		cb(cfg, winner)
	}
}

// Reset cancels any pending spin, so no winner is delivered for it, and
// returns the wheel to rotation 0.
func (s *Spinner) Reset() {
	s.mu.Lock()
	h := s.pending
	s.pending = nil
	s.spinning = false
	s.rotation = 0
	s.winner = nil
	s.mu.Unlock()

	if h == nil {
		return
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	if h.resolve(Slice{}, ErrSpinCancelled) {
		metrics.RecordSpinCancelled()
	}
}
