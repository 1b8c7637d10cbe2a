package docstore

import "errors"

var (
	// ErrNotFound is returned when a document has no backing file.
	ErrNotFound = errors.New("document not found")

	// ErrExists is returned when adding a document that is already stored.
	ErrExists = errors.New("document already exists")

	// ErrLockTimeout is returned when a document lock could not be acquired
	// before the configured timeout.
	ErrLockTimeout = errors.New("timed out waiting for document lock")

	// ErrQueueFull is returned when the background save queue is full.
	ErrQueueFull = errors.New("save queue is full")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("store is closed")
)
