package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrPersonaRequired = errors.New("persona id is required")
)

// StorageError reports a failed read or write of the persisted collection.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}
