package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrMissingFile = errors.New("missing file")
	ErrInvalidMode = errors.New("mode must be preview or store")
)
