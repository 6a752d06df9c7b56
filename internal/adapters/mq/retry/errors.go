package retry

import "errors"

// Sentinel kinds for retry queue errors.
var (
	ErrQueueClosed    = errors.New("retry queue closed")
	ErrActionPanicked = errors.New("retry action panicked")
)
