// Package service wires the wheel, team parser, retry queue and store into
// the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/okian/jamwheel/internal/adapters/mq/retry"
	"github.com/okian/jamwheel/internal/adapters/repository"
	"github.com/okian/jamwheel/internal/domain/teams"
	"github.com/okian/jamwheel/internal/domain/wheel"
	"github.com/okian/jamwheel/pkg/logger"
	"github.com/okian/jamwheel/pkg/metrics"
)

// RaffleTitle is the title of wheels built from a jam's teams.
const RaffleTitle = "Raffle"

// SpinResult is what a client needs to animate a spin. Winner is the slice
// the rotation lands on; clients reveal it once DurationMS has passed.
type SpinResult struct {
	Index           int           `json:"index"`
	RotationDegrees float64       `json:"rotationDegrees"`
	DurationMS      int64         `json:"durationMs"`
	Slices          []wheel.Slice `json:"slices"`
	Winner          wheel.Slice   `json:"winner"`
}

// SpinView is a snapshot of a jam's spinner.
type SpinView struct {
	wheel.State
	CanSpin bool          `json:"canSpin"`
	Slices  []wheel.Slice `json:"slices"`
}

// TeamImport is the outcome of a stored CSV import.
type TeamImport struct {
	Parse   teams.Result             `json:"parse"`
	Summary repository.ImportSummary `json:"summary"`
}

// Service implements the API dependencies for the jam wheels.
type Service struct {
	mu sync.RWMutex

	store    repository.Store
	retry    *retry.Queue
	parser   *teams.Parser
	spinners map[wheelKey]*wheel.Spinner

	// docMu serializes read-modify-write of wheel documents.
	docMu sync.Mutex

	spinnerOpts    []wheel.SpinnerOption
	retryOpts      []retry.Option
	maxUploadBytes int64

	started bool
	logger  logger.Logger
}

// wheelKey identifies one of a jam's wheels.
type wheelKey struct {
	jamID string
	kind  wheel.Kind
}

// New constructs a Service. Call Start before use.
func New(opts ...Option) *Service {
	s := &Service{
		spinners:       make(map[wheelKey]*wheel.Spinner),
		maxUploadBytes: teams.DefaultUploadLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the retry queue and, if none was given, a memory store.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Warn(ctx, "no store configured, using memory store")
	}
	s.parser = teams.NewParser(teams.WithLogger(s.logger.Named("teams")))
	s.retry = retry.New(append([]retry.Option{retry.WithLogger(s.logger.Named("retry"))}, s.retryOpts...)...)

	s.started = true
	s.logger.Info(ctx, "jamwheel service started")
	return nil
}

// Stop cancels pending spins, drains the retry queue until ctx is done, then
// closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	spinners := make([]*wheel.Spinner, 0, len(s.spinners))
	for _, sp := range s.spinners {
		spinners = append(spinners, sp)
	}
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping jamwheel service...")
	for _, sp := range spinners {
		sp.Reset()
	}

	var errs []error
	if err := s.retry.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	s.logger.Info(ctx, "jamwheel service stopped", logger.Int("pending_writes", s.retry.Len()))
	return errors.Join(errs...)
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// LoadWheel returns the jam's stored document for the wheel kind. A wheel
// that was never saved comes back empty.
func (s *Service) LoadWheel(ctx context.Context, jamID string, kind wheel.Kind) (wheel.Document, error) {
	if err := s.ready(); err != nil {
		return wheel.Document{}, err
	}
	return s.loadDocument(ctx, jamID, kind)
}

func (s *Service) loadDocument(ctx context.Context, jamID string, kind wheel.Kind) (wheel.Document, error) {
	doc, err := s.store.GetWheel(ctx, jamID, kind)
	if errors.Is(err, repository.ErrNotFound) {
		return wheel.Document{WheelConfig: wheel.Configuration{Entries: []wheel.Entry{}}}, nil
	}
	if err != nil {
		return wheel.Document{}, fmt.Errorf("load wheel %s/%s: %w", jamID, kind, err)
	}
	if doc.WheelConfig.Entries == nil {
		doc.WheelConfig.Entries = []wheel.Entry{}
	}
	return doc, nil
}

// SaveWheel replaces the configuration of one of the jam's wheels, keeping
// its theme and last winner. It is refused while that wheel is spinning.
func (s *Service) SaveWheel(ctx context.Context, jamID string, kind wheel.Kind, cfg wheel.Configuration) (wheel.Document, error) {
	if err := s.ready(); err != nil {
		return wheel.Document{}, err
	}
	if err := repository.ValidateWheelKey(jamID, kind); err != nil {
		return wheel.Document{}, err
	}
	if err := cfg.Validate(); err != nil {
		return wheel.Document{}, err
	}
	if cfg.Entries == nil {
		cfg.Entries = []wheel.Entry{}
	}

	sp, err := s.spinner(ctx, jamID, kind)
	if err != nil {
		return wheel.Document{}, err
	}

	s.docMu.Lock()
	defer s.docMu.Unlock()

	doc, err := s.loadDocument(ctx, jamID, kind)
	if err != nil {
		return wheel.Document{}, err
	}
	prev := sp.Configuration()
	if err := sp.SetConfiguration(cfg); err != nil {
		return wheel.Document{}, err
	}
	doc.WheelConfig = cfg.Clone()
	if err := s.store.PutWheel(ctx, jamID, kind, doc); err != nil {
		_ = sp.SetConfiguration(prev)
		return wheel.Document{}, fmt.Errorf("save wheel %s/%s: %w", jamID, kind, err)
	}
	s.logger.Info(ctx, "wheel saved",
		logger.String("jam_id", jamID),
		logger.String("kind", string(kind)),
		logger.Int("entries", len(cfg.Entries)),
		logger.Int("enabled", cfg.EnabledCount()))
	return doc, nil
}

// ImportWheelFile decodes an uploaded .json or .wheel file and saves it. On
// any error the stored configuration is left as it was.
func (s *Service) ImportWheelFile(ctx context.Context, jamID string, kind wheel.Kind, name string, r io.Reader) (wheel.Document, error) {
	if err := s.ready(); err != nil {
		return wheel.Document{}, err
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxUploadBytes+1))
	if err != nil {
		return wheel.Document{}, fmt.Errorf("read wheel file: %w", err)
	}
	if int64(len(data)) > s.maxUploadBytes {
		return wheel.Document{}, teams.ErrFileTooLarge
	}
	cfg, err := wheel.DecodeFile(name, data)
	if err != nil {
		s.logger.Warn(ctx, "wheel import rejected",
			logger.String("jam_id", jamID), logger.String("kind", string(kind)), logger.Error(err))
		return wheel.Document{}, err
	}
	return s.SaveWheel(ctx, jamID, kind, cfg)
}

// ExportWheelFile renders one of the jam's configurations as a downloadable
// file.
func (s *Service) ExportWheelFile(ctx context.Context, jamID string, kind wheel.Kind) (string, []byte, error) {
	doc, err := s.LoadWheel(ctx, jamID, kind)
	if err != nil {
		return "", nil, err
	}
	return wheel.EncodeFile(doc.WheelConfig)
}

// Spin starts a spin on one of the jam's wheels. The winner is saved in the
// background once the spin completes.
func (s *Service) Spin(ctx context.Context, jamID string, kind wheel.Kind) (SpinResult, error) {
	if err := s.ready(); err != nil {
		return SpinResult{}, err
	}
	sp, err := s.spinner(ctx, jamID, kind)
	if err != nil {
		return SpinResult{}, err
	}
	h, err := sp.Spin(ctx)
	if err != nil {
		return SpinResult{}, err
	}
	return SpinResult{
		Index:           h.Index,
		RotationDegrees: h.Rotation,
		DurationMS:      h.Duration.Milliseconds(),
		Slices:          sp.Slices(),
		Winner:          h.Selected(),
	}, nil
}

// SpinState returns the snapshot of one of the jam's spinners.
func (s *Service) SpinState(ctx context.Context, jamID string, kind wheel.Kind) (SpinView, error) {
	if err := s.ready(); err != nil {
		return SpinView{}, err
	}
	sp, err := s.spinner(ctx, jamID, kind)
	if err != nil {
		return SpinView{}, err
	}
	return SpinView{State: sp.State(), CanSpin: sp.CanSpin(), Slices: sp.Slices()}, nil
}

// ResetSpin cancels any spin in flight and returns the wheel to rotation 0.
func (s *Service) ResetSpin(ctx context.Context, jamID string, kind wheel.Kind) error {
	if err := s.ready(); err != nil {
		return err
	}
	sp, err := s.spinner(ctx, jamID, kind)
	if err != nil {
		return err
	}
	sp.Reset()
	s.logger.Info(ctx, "spin reset", logger.String("jam_id", jamID), logger.String("kind", string(kind)))
	return nil
}

// PreviewTeams parses a CSV upload named name without storing anything.
func (s *Service) PreviewTeams(ctx context.Context, name string, r io.Reader) (teams.Result, error) {
	if err := s.ready(); err != nil {
		return teams.Result{}, err
	}
	if err := teams.CheckFileName(name); err != nil {
		return teams.Result{}, err
	}
	text, err := teams.ReadUpload(r, s.maxUploadBytes)
	if err != nil {
		return teams.Result{}, err
	}
	return s.parser.Parse(ctx, text)
}

// ImportTeams parses a CSV upload and stores the teams for the jam.
func (s *Service) ImportTeams(ctx context.Context, jamID, name string, r io.Reader) (TeamImport, error) {
	if err := repository.ValidateJamID(jamID); err != nil {
		return TeamImport{}, err
	}
	res, err := s.PreviewTeams(ctx, name, r)
	if err != nil {
		return TeamImport{Parse: res}, err
	}
	summary, err := s.store.ImportTeams(ctx, jamID, res.Teams)
	if err != nil {
		return TeamImport{Parse: res}, fmt.Errorf("import teams %s: %w", jamID, err)
	}
	return TeamImport{Parse: res, Summary: summary}, nil
}

// ListTeams returns the jam's stored teams.
func (s *Service) ListTeams(ctx context.Context, jamID string) ([]repository.Team, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ListTeams(ctx, jamID)
}

// RaffleWheel rebuilds the jam's raffle wheel with one uniform entry per
// stored team and saves it. The theme wheel is not touched.
func (s *Service) RaffleWheel(ctx context.Context, jamID string) (wheel.Document, error) {
	list, err := s.ListTeams(ctx, jamID)
	if err != nil {
		return wheel.Document{}, err
	}
	if len(list) == 0 {
		return wheel.Document{}, ErrNoTeams
	}
	cfg := wheel.Configuration{Title: RaffleTitle, Entries: make([]wheel.Entry, 0, len(list))}
	for _, t := range list {
		cfg.Entries = append(cfg.Entries, wheel.Entry{Text: t.Name, Weight: 1, Enabled: true})
	}
	return s.SaveWheel(ctx, jamID, wheel.KindRaffle, cfg)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started": s.started,
		"wheels":  len(s.spinners),
	}
	spinning := 0
	for _, sp := range s.spinners {
		if sp.State().Spinning {
			spinning++
		}
	}
	stats["spinning"] = spinning
	if s.retry != nil {
		live := s.retry.Len()
		stats["pendingWrites"] = live
		metrics.UpdateRetryLive(live)
	}
	return stats
}

// spinner returns the spinner of one of the jam's wheels, creating it from
// the stored document on first use.
func (s *Service) spinner(ctx context.Context, jamID string, kind wheel.Kind) (*wheel.Spinner, error) {
	if err := repository.ValidateWheelKey(jamID, kind); err != nil {
		return nil, err
	}
	key := wheelKey{jamID: jamID, kind: kind}
	s.mu.RLock()
	sp, ok := s.spinners[key]
	s.mu.RUnlock()
	if ok {
		return sp, nil
	}

	doc, err := s.loadDocument(ctx, jamID, kind)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sp, ok := s.spinners[key]; ok {
		return sp, nil
	}
	opts := append([]wheel.SpinnerOption{
		wheel.WithLogger(s.logger.Named("wheel").With(logger.String("kind", string(kind)))),
	}, s.spinnerOpts...)
	opts = append(opts, wheel.WithOnWinner(s.persistWinner(jamID, kind)))
	sp = wheel.NewSpinner(doc.WheelConfig, opts...)
	s.spinners[key] = sp
	return sp, nil
}

// persistWinner saves each winner as the wheel's last winner through the
// retry queue so a locked or unavailable store does not lose it. Only theme
// wheel winners become the jam's theme.
func (s *Service) persistWinner(jamID string, kind wheel.Kind) func(wheel.Configuration, wheel.Slice) {
	return func(cfg wheel.Configuration, sl wheel.Slice) {
		entry := cfg.WinnerEntry(sl)
		s.retry.Enqueue(func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			s.docMu.Lock()
			defer s.docMu.Unlock()

			doc, err := s.loadDocument(ctx, jamID, kind)
			if err != nil {
				return err
			}
			if len(doc.WheelConfig.Entries) == 0 {
				doc.WheelConfig = cfg.Clone()
			}
			if kind.SetsTheme() {
				theme := entry.Text
				doc.Theme = &theme
			}
			doc.LastWinner = &entry
			return s.store.PutWheel(ctx, jamID, kind, doc)
		}, retry.WithName("persist-winner:"+jamID+"/"+string(kind)))
	}
}
