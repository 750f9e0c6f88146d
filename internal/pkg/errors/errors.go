package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConfig marks a missing or unusable configuration. It aborts the phase
	// that needed the configuration, never the whole run.
	ErrConfig = errors.New("configuration error")
	// ErrLocked is returned when another process holds the store lock.
	ErrLocked = errors.New("store locked by another process")
)
