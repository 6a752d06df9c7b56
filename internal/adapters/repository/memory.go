package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/jamwheel/internal/domain/teams"
	"github.com/okian/jamwheel/internal/domain/wheel"
)

// MemoryStore is a Store kept in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	wheels map[wheelKey]wheel.Document
	teams  map[string][]Team
	keys   map[string]map[string]struct{}
	closed bool

	now   func() time.Time
	newID func() string
}

type wheelKey struct {
	jamID string
	kind  wheel.Kind
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		wheels: make(map[wheelKey]wheel.Document),
		teams:  make(map[string][]Team),
		keys:   make(map[string]map[string]struct{}),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// GetWheel returns the jam's document for the wheel kind.
func (s *MemoryStore) GetWheel(ctx context.Context, jamID string, kind wheel.Kind) (wheel.Document, error) {
	if err := ctx.Err(); err != nil {
		return wheel.Document{}, err
	}
	if err := ValidateWheelKey(jamID, kind); err != nil {
		return wheel.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return wheel.Document{}, ErrClosed
	}
	doc, ok := s.wheels[wheelKey{jamID, kind}]
	if !ok {
		return wheel.Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// PutWheel replaces the jam's document for the wheel kind.
func (s *MemoryStore) PutWheel(ctx context.Context, jamID string, kind wheel.Kind, doc wheel.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateWheelKey(jamID, kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.wheels[wheelKey{jamID, kind}] = cloneDocument(doc)
	return nil
}

// ImportTeams stores each team whose name is new for the jam.
func (s *MemoryStore) ImportTeams(ctx context.Context, jamID string, in []teams.Team) (ImportSummary, error) {
	if err := ctx.Err(); err != nil {
		return ImportSummary{}, err
	}
	if err := ValidateJamID(jamID); err != nil {
		return ImportSummary{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ImportSummary{}, ErrClosed
	}

	keys := s.keys[jamID]
	if keys == nil {
		keys = make(map[string]struct{})
		s.keys[jamID] = keys
	}
	summary := NewImportSummary()
	for _, t := range in {
		key := NameKey(t.Name)
		if _, dup := keys[key]; dup {
			summary.Add(t, TeamResult{Error: ReasonTeamExists})
			continue
		}
		stored := Team{
			ID:        s.newID(),
			JamID:     jamID,
			Name:      t.Name,
			Members:   slices.Clone(t.Members),
			CreatedAt: s.now(),
		}
		keys[key] = struct{}{}
		s.teams[jamID] = append(s.teams[jamID], stored)
		summary.Add(t, TeamResult{Success: true, TeamID: stored.ID})
	}
	return summary, nil
}

// ListTeams returns the jam's teams in import order.
func (s *MemoryStore) ListTeams(ctx context.Context, jamID string) ([]Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateJamID(jamID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]Team, 0, len(s.teams[jamID]))
	for _, t := range s.teams[jamID] {
		t.Members = slices.Clone(t.Members)
		out = append(out, t)
	}
	return out, nil
}

func cloneDocument(doc wheel.Document) wheel.Document {
	doc.WheelConfig = doc.WheelConfig.Clone()
	if doc.Theme != nil {
		theme := *doc.Theme
		doc.Theme = &theme
	}
	if doc.LastWinner != nil {
		w := *doc.LastWinner
		doc.LastWinner = &w
	}
	return doc
}

var _ Store = (*MemoryStore)(nil)
