// Package repository defines the wheel and team store interfaces, the types
// they exchange, and an in-memory implementation.
package repository

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/cases"

	"github.com/okian/jamwheel/internal/domain/teams"
	"github.com/okian/jamwheel/internal/domain/wheel"
)

// ReasonTeamExists is the failure reason for a name already stored for a jam.
const ReasonTeamExists = "team already exists"

// WheelStore persists one wheel document per jam and wheel kind.
type WheelStore interface {
	// GetWheel returns ErrNotFound if the jam has never saved that wheel.
	GetWheel(ctx context.Context, jamID string, kind wheel.Kind) (wheel.Document, error)
	PutWheel(ctx context.Context, jamID string, kind wheel.Kind, doc wheel.Document) error
}

// TeamStore persists imported teams per jam.
type TeamStore interface {
	ImportTeams(ctx context.Context, jamID string, in []teams.Team) (ImportSummary, error)
	ListTeams(ctx context.Context, jamID string) ([]Team, error)
}

// Store is everything the service needs from storage.
type Store interface {
	WheelStore
	TeamStore
	Close() error
}

// Team is a stored team.
type Team struct {
	ID        string    `json:"id"`
	JamID     string    `json:"jamId"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// TeamResult is the outcome of importing one team.
type TeamResult struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	TeamID  string `json:"teamId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ImportSummary reports a batch import.
type ImportSummary struct {
	SuccessfullyImported int          `json:"successfullyImported"`
	Failed               int          `json:"failed"`
	Warnings             []string     `json:"warnings"`
	Results              []TeamResult `json:"results"`
}

// NewImportSummary returns an empty summary with non-nil slices.
func NewImportSummary() ImportSummary {
	return ImportSummary{Warnings: []string{}, Results: []TeamResult{}}
}

// Add records one result and any warning for it.
func (s *ImportSummary) Add(t teams.Team, r TeamResult) {
	r.Name = t.Name
	s.Results = append(s.Results, r)
	if !r.Success {
		s.Failed++
		return
	}
	s.SuccessfullyImported++
	if w := MemberWarning(t); w != "" {
		s.Warnings = append(s.Warnings, w)
	}
}

// MemberWarning flags a team at the member cap, whose list may have been cut.
func MemberWarning(t teams.Team) string {
	if len(t.Members) < teams.MaxMembers {
		return ""
	}
	return fmt.Sprintf("team %q has %d members; extra members may have been dropped", t.Name, len(t.Members))
}

// NameKey is the case-folded form used to detect duplicate team names.
func NameKey(name string) string {
	return cases.Fold().String(name)
}

// ValidateJamID rejects an empty jam id.
func ValidateJamID(jamID string) error {
	if jamID == "" {
		return ErrInvalidJamID
	}
	return nil
}

// ValidateWheelKey rejects an empty jam id or an unknown wheel kind.
func ValidateWheelKey(jamID string, kind wheel.Kind) error {
	if err := ValidateJamID(jamID); err != nil {
		return err
	}
	_, err := wheel.ParseKind(string(kind))
	return err
}
