// Package storage provides whole-document persistence behind a pluggable
// backend interface. Documents are flat-to-nested JSON maps addressed by a
// fixed document key; loads of absent documents yield an empty map, and
// writes replace the document atomically.
package storage

import "context"

// Well-known document keys.
const (
	// DocCredentials holds one entry per credential id, each a nested map of
	// credential material plus runtime state.
	DocCredentials = "credentials"
	// DocConfig holds the dynamic configuration key/value map.
	DocConfig = "config"
)

// Backend defines the interface for storage implementations.
type Backend interface {
	// Initialize sets up the storage backend (connects, creates schema).
	Initialize(ctx context.Context) error

	// Close releases backend resources.
	Close() error

	// Health checks if the storage backend is reachable.
	Health(ctx context.Context) error

	// Name returns a short backend label for logs and metrics.
	Name() string

	// LoadDocument returns the full document for docKey. A document that has
	// never been written is an empty map, not an error.
	LoadDocument(ctx context.Context, docKey string) (map[string]interface{}, error)

	// WriteDocument replaces the full document for docKey.
	WriteDocument(ctx context.Context, docKey string, doc map[string]interface{}) error
}
