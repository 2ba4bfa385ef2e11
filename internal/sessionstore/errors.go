package sessionstore

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable indicates the local cache could not be written or
// read. The caller still holds its in-memory session.
var ErrStorageUnavailable = errors.New("local session storage unavailable")

// ErrNotFound indicates neither store has the requested session.
var ErrNotFound = errors.New("session not found")

// StorageUnavailableError reports a failed local cache operation.
type StorageUnavailableError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("%s session %s: %v: %v", e.Op, e.SessionID, ErrStorageUnavailable, e.Err)
}

func (e *StorageUnavailableError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.Err}
}

// MismatchError describes local and remote disagreeing on which session is
// active. It is resolved in favour of the remote and only ever logged.
type MismatchError struct {
	LocalID  string
	RemoteID string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("active session mismatch: local %s, remote %s", e.LocalID, e.RemoteID)
}
