package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidJamID  = errors.New("jam id is required")
	ErrClosed        = errors.New("store closed")
)
