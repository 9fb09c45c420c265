package storage

import "errors"

// Storage errors for append-only stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to append a record
	// with a key that already exists. The log does not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// StorageError wraps a backend failure (connection loss, query error,
// timeout). Callers may retry the operation; duplicate-key and invalid-input
// failures are never wrapped in it.
type StorageError struct {
	Op  string // operation that failed, e.g. "append events"
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying backend error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a backend failure worth retrying.
func IsRetryable(err error) bool {
	var sErr *StorageError
	return errors.As(err, &sErr)
}
