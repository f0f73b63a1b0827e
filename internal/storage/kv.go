package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrKeyNotFound is returned by Get when nothing has been written under the key yet.
var ErrKeyNotFound = errors.New("storage key not found")

// Backend is a durable key/value record store. Put replaces the whole value atomically:
// after a failed Put the previous value is still readable.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Kind names a backend implementation.
type Kind string

const (
	KindSQLite Kind = "sqlite"
	KindFile   Kind = "file"
	KindMemory Kind = "memory"
)

// Open creates the backend selected by kind. path is the database file for sqlite and the
// directory for file; memory ignores it.
func Open(kind Kind, path string) (Backend, error) {
	switch kind {
	case KindSQLite, "":
		return NewSQLiteBackend(path)
	case KindFile:
		return NewFileBackend(path)
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("storage key is empty")
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("storage key %q contains %q", key, r)
		}
	}
	return nil
}
