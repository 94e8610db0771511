package storage

import "errors"

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrImmutabilityViolation is returned when a write attempts to replace
// persisted derived truth with different content at the same key. Fatal to
// the invoking run: it signals non-determinism or a bug, never a retryable
// condition.
var ErrImmutabilityViolation = errors.New("storage: immutability violation")
