package domain

import "errors"

var (
	// ErrAlreadyRunning is returned when monitoring is started twice
	ErrAlreadyRunning = errors.New("monitoring already running")

	// ErrNotRunning is returned when stopping monitoring that is not active
	ErrNotRunning = errors.New("monitoring not running")

	// ErrNotFound is returned for unknown alert ids or subscription handles
	ErrNotFound = errors.New("not found")

	// ErrAlreadyResolved is returned when resolving an alert a second time
	ErrAlreadyResolved = errors.New("alert already resolved")

	// ErrForbidden is returned when the caller may not perform a privileged action
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for malformed input or an empty report window
	ErrValidation = errors.New("validation failed")
)
