package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// BlobStore is the minimal persistence API used by the schedule store.
//
// Get reports ok=false for an absent blob; that is not an error.
// Put replaces the whole blob. There is no delete: documents live as long as
// the account they belong to.
type BlobStore interface {
	Get(ctx context.Context, namespace, key string) (data []byte, ok bool, err error)
	Put(ctx context.Context, namespace, key string, data []byte) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "memory" (default when empty)
//   - "file": Path is the base directory
//   - "sqlite": Path is the database file
//   - "postgres": DSN is the connection string
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
