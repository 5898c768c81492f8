// Package artifact persists backtest output artifacts to local or S3 storage.
package artifact

import "context"

// Store defines the interface for artifact storage backends
type Store interface {
	// Put stores data under the given key
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get retrieves the data stored under key
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all keys under the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if data exists under key
	Exists(ctx context.Context, key string) (bool, error)

	// Location returns a human-readable location for key
	Location(key string) string
}
