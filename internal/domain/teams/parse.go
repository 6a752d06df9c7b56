package teams

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/okian/jamwheel/pkg/logger"
	"github.com/okian/jamwheel/pkg/metrics"
)

const (
	// MaxNameLength is the longest team name kept as is.
	MaxNameLength = 100
	// MaxMemberLength is the longest member name accepted.
	MaxMemberLength = 150
	// MaxMembers caps the members kept per team.
	MaxMembers = 20
	// DefaultUploadLimit is the largest CSV accepted.
	DefaultUploadLimit int64 = 5 << 20

	nameColumn    = 1
	membersColumn = 3
	ellipsis      = "..."
)

// Skip reasons reported for rows that did not produce a team.
const (
	ReasonMissingName   = "missing_name"
	ReasonUnsafeName    = "unsafe_name"
	ReasonDuplicateName = "duplicate_name"
	ReasonNoMembers     = "no_members"
)

// Team is one parsed team.
type Team struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// Skipped describes a data row that was dropped. Row is 1-based and counts
// the header.
type Skipped struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
	Name   string `json:"name,omitempty"`
}

// Result is the outcome of parsing a CSV file.
type Result struct {
	Teams          []Team    `json:"teams"`
	Skipped        []Skipped `json:"skipped"`
	RowsRead       int       `json:"rowsRead"`
	DroppedMembers int       `json:"droppedMembers"`
}

// Parser turns CSV rows into teams.
type Parser struct {
	logger logger.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithLogger sets the logger used to report skipped rows.
func WithLogger(l logger.Logger) ParserOption {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewParser creates a Parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{logger: logger.Get().Named("teams")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseTeams parses rows with a default Parser.
func ParseTeams(rows []string) Result {
	return NewParser().ParseTeams(context.Background(), rows)
}

// Parse parses CSV text with a default Parser.
func Parse(text string) (Result, error) {
	return NewParser().Parse(context.Background(), text)
}

// Parse splits text into rows and parses the teams. A bad row never fails
// the file; only a file without data rows or without any surviving team does.
func (p *Parser) Parse(ctx context.Context, text string) (Result, error) {
	rows := SplitIntoRows(text)
	if len(rows) < 2 {
		return Result{Teams: []Team{}, Skipped: []Skipped{}}, ErrEmptyFile
	}
	res := p.ParseTeams(ctx, rows)
	if len(res.Teams) == 0 {
		return res, ErrNoValidTeams
	}
	return res, nil
}

// ParseTeams skips the header row and reads the name from the second column
// and the members from the fourth.
func (p *Parser) ParseTeams(ctx context.Context, rows []string) Result {
	res := Result{Teams: []Team{}, Skipped: []Skipped{}}
	if len(rows) == 0 {
		return res
	}

	fold := cases.Fold()
	seen := make(map[string]struct{})
	skip := func(row int, reason, name string) {
		res.Skipped = append(res.Skipped, Skipped{Row: row, Reason: reason, Name: name})
		metrics.RecordCSVRowSkipped(reason)
		p.logger.Debug(ctx, "skipping csv row",
			logger.Int("row", row),
			logger.String("reason", reason),
			logger.String("name", name))
	}

	for i, raw := range rows[1:] {
		rowNum := i + 2
		res.RowsRead++
		metrics.RecordCSVRowParsed()

		fields := SplitRowIntoFields(raw)
		name := field(fields, nameColumn)
		if name == "" {
			skip(rowNum, ReasonMissingName, "")
			continue
		}
		if hasUnsafeChars(name) {
			skip(rowNum, ReasonUnsafeName, name)
			continue
		}
		name = truncateName(name)

		key := fold.String(name)
		if _, dup := seen[key]; dup {
			skip(rowNum, ReasonDuplicateName, name)
			continue
		}

		members, dropped := parseMembers(field(fields, membersColumn))
		res.DroppedMembers += dropped
		if len(members) == 0 {
			skip(rowNum, ReasonNoMembers, name)
			continue
		}

		seen[key] = struct{}{}
		res.Teams = append(res.Teams, Team{Name: name, Members: members})
		metrics.RecordCSVTeamAccepted()
	}

	if len(res.Skipped) > 0 {
		p.logger.Info(ctx, "csv parsed with skipped rows",
			logger.Int("teams", len(res.Teams)),
			logger.Int("skipped", len(res.Skipped)))
	}
	return res
}

// FileExtension is the only upload extension accepted.
const FileExtension = ".csv"

// CheckFileName rejects uploads whose name does not end in .csv.
func CheckFileName(name string) error {
	if !strings.EqualFold(filepath.Ext(name), FileExtension) {
		return fmt.Errorf("%w: got %q", ErrNotCSV, name)
	}
	return nil
}

// ReadUpload reads at most limit bytes of CSV text. A leading byte order
// mark is stripped.
func ReadUpload(r io.Reader, limit int64) (string, error) {
	if limit <= 0 {
		limit = DefaultUploadLimit
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, limit)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", ErrInvalidEncoding
	}
	return string(data), nil
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

func hasUnsafeChars(s string) bool {
	return strings.ContainsAny(s, `<>"`)
}

func truncateName(name string) string {
	r := []rune(name)
	if len(r) <= MaxNameLength {
		return name
	}
	return string(r[:MaxNameLength-len(ellipsis)]) + ellipsis
}

// parseMembers splits a members cell on commas and line breaks and returns
// the accepted names plus how many were dropped.
func parseMembers(cell string) ([]string, int) {
	parts := strings.FieldsFunc(cell, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	members := make([]string, 0, len(parts))
	dropped := 0
	for _, m := range parts {
		m = strings.TrimSpace(m)
		switch {
		case m == "":
		case hasUnsafeChars(m), utf8.RuneCountInString(m) > MaxMemberLength:
			dropped++
		case len(members) >= MaxMembers:
			dropped++
		default:
			members = append(members, m)
		}
	}
	return members, dropped
}
