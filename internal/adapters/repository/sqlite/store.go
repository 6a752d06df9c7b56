// Package sqlite provides the SQLite-backed wheel and team store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/okian/jamwheel/internal/adapters/repository"
	"github.com/okian/jamwheel/internal/adapters/repository/sqlite/migrate"
	"github.com/okian/jamwheel/internal/adapters/repository/sqlite/migrations"
	"github.com/okian/jamwheel/internal/domain/teams"
	"github.com/okian/jamwheel/internal/domain/wheel"
	"github.com/okian/jamwheel/pkg/logger"
)

const dsnParams = "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// ErrPathRequired is returned by Open for an empty path.
var ErrPathRequired = errors.New("storage path is required")

// Store persists wheels and teams in SQLite.
type Store struct {
	sqlDB  *sql.DB
	now    func() time.Time
	newID  func() string
	logger logger.Logger
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens the database at path and applies the embedded migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}
	sqlDB, err := sql.Open("sqlite", filepath.Clean(path)+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate.Apply(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		sqlDB:  sqlDB,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: logger.Get().Named("sqlite"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Info(ctx, "sqlite store opened", logger.String("path", path))
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetWheel returns the jam's document for the wheel kind.
func (s *Store) GetWheel(ctx context.Context, jamID string, kind wheel.Kind) (wheel.Document, error) {
	if err := ctx.Err(); err != nil {
		return wheel.Document{}, err
	}
	if err := repository.ValidateWheelKey(jamID, kind); err != nil {
		return wheel.Document{}, err
	}

	var raw string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT document FROM wheel_documents WHERE jam_id = ? AND kind = ?`, jamID, string(kind)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return wheel.Document{}, repository.ErrNotFound
	}
	if err != nil {
		return wheel.Document{}, fmt.Errorf("get wheel: %w", err)
	}

	var doc wheel.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return wheel.Document{}, fmt.Errorf("decode wheel %s/%s: %w", jamID, kind, err)
	}
	return doc, nil
}

// PutWheel inserts or replaces the jam's document for the wheel kind.
func (s *Store) PutWheel(ctx context.Context, jamID string, kind wheel.Kind, doc wheel.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := repository.ValidateWheelKey(jamID, kind); err != nil {
		return err
	}
	if doc.WheelConfig.Entries == nil {
		doc.WheelConfig.Entries = []wheel.Entry{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode wheel: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO wheel_documents (jam_id, kind, document, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (jam_id, kind) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		jamID, string(kind), string(raw), toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("put wheel: %w", err)
	}
	return nil
}

// ImportTeams inserts each team in one transaction. A name already stored
// for the jam is reported as a failed result, not an error.
func (s *Store) ImportTeams(ctx context.Context, jamID string, in []teams.Team) (repository.ImportSummary, error) {
	if err := ctx.Err(); err != nil {
		return repository.ImportSummary{}, err
	}
	if err := repository.ValidateJamID(jamID); err != nil {
		return repository.ImportSummary{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return repository.ImportSummary{}, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	summary := repository.NewImportSummary()
	for _, t := range in {
		members, err := json.Marshal(t.Members)
		if err != nil {
			return repository.ImportSummary{}, fmt.Errorf("encode members: %w", err)
		}
		id := s.newID()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO teams (id, jam_id, name, name_key, members, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, jamID, t.Name, repository.NameKey(t.Name), string(members), toMillis(s.now()),
		)
		switch {
		case err == nil:
			summary.Add(t, repository.TeamResult{Success: true, TeamID: id})
		case isUniqueViolation(err):
			summary.Add(t, repository.TeamResult{Error: repository.ReasonTeamExists})
		default:
			return repository.ImportSummary{}, fmt.Errorf("insert team %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return repository.ImportSummary{}, fmt.Errorf("commit import: %w", err)
	}
	s.logger.Info(ctx, "teams imported",
		logger.String("jam_id", jamID),
		logger.Int("imported", summary.SuccessfullyImported),
		logger.Int("failed", summary.Failed))
	return summary, nil
}

// ListTeams returns the jam's teams in import order.
func (s *Store) ListTeams(ctx context.Context, jamID string) ([]repository.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := repository.ValidateJamID(jamID); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, members, created_at FROM teams WHERE jam_id = ? ORDER BY created_at, rowid`, jamID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	out := []repository.Team{}
	for rows.Next() {
		var (
			t       repository.Team
			members string
			created int64
		)
		if err := rows.Scan(&t.ID, &t.Name, &members, &created); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &t.Members); err != nil {
			return nil, fmt.Errorf("decode members of %s: %w", t.ID, err)
		}
		t.JamID = jamID
		t.CreatedAt = fromMillis(created)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ repository.Store = (*Store)(nil)
