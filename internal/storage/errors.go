package storage

import "errors"

// Sentinel errors shared by all store implementations. Both stores are
// append-only: reports and bars are written once and never updated.
var (
	// ErrNotFound is returned when a requested report or series does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned on an insert whose key already exists.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
