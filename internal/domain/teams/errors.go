package teams

import "errors"

// Sentinel kinds for CSV import errors. Only whole-file problems are errors;
// a bad row is skipped and reported in Result.Skipped.
var (
	ErrEmptyFile       = errors.New("no data rows")
	ErrNoValidTeams    = errors.New("no valid teams in file")
	ErrFileTooLarge    = errors.New("file too large")
	ErrInvalidEncoding = errors.New("file is not valid UTF-8")
	ErrNotCSV          = errors.New("file must be a .csv")
)
