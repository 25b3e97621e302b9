package store

import "errors"

var (
	// ErrNotFound indicates the queried row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists indicates a unique-constraint conflict, used by the
	// Idempotency Guard's insert-on-conflict check.
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrLeaseMismatch indicates a caller tried to act on a queue item or
	// lock using a lease token that no longer matches the current holder.
	ErrLeaseMismatch = errors.New("store: lease token mismatch")

	// ErrStaleTransition indicates a status update lost a race against a
	// concurrent writer (affected rows was 0 on a WHERE status = ... guard).
	ErrStaleTransition = errors.New("store: stale status transition")
)
