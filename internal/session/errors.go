package session

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by HotStore and BlobStore implementations.
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrVersionConflict = errors.New("record version conflict")
	ErrBlobNotFound    = errors.New("blob not found")
)

// NotFoundError indicates the session does not exist.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// AlreadyExistsError indicates a session with the requested id already exists.
type AlreadyExistsError struct {
	SessionID string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("session already exists: %s", e.SessionID)
}

// StorageError is returned when a read or write could not be completed after
// bounded retries. It is fatal for the current turn.
type StorageError struct {
	Op        string
	SessionID string
	Attempts  int
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s session %s failed after %d attempt(s): %v", e.Op, e.SessionID, e.Attempts, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// EditError indicates a path-addressed edit or section patch could not be
// applied. Nothing is written when it is returned.
type EditError struct {
	Path    string
	Message string
	Cause   error
}

func (e *EditError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid edit %q: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid edit %q: %s", e.Path, e.Message)
}

func (e *EditError) Unwrap() error {
	return e.Cause
}
