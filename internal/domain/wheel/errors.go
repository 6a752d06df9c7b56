package wheel

import "errors"

// Sentinel kinds for wheel errors.
var (
	// ErrNoEnabledEntries reports a wheel with nothing to land on. It is a
	// precondition, not a fault: callers check CanSpin before spinning.
	ErrNoEnabledEntries = errors.New("wheel has no enabled entries")
	ErrSpinInProgress   = errors.New("spin already in progress")
	ErrSpinCancelled    = errors.New("spin cancelled")
	ErrInvalidWheelFile = errors.New("invalid wheel file")
	ErrIndexOutOfRange  = errors.New("slice index out of range")
	ErrUnknownKind      = errors.New("unknown wheel kind")
)
