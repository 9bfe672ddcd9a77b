package speechcache

import (
	"context"
	"errors"
	"time"
)

// Common index errors.
var (
	// ErrNotFound is returned when a key has no index entry.
	ErrNotFound = errors.New("cache entry not found")

	// ErrInvalidKey is returned when an empty key is provided.
	ErrInvalidKey = errors.New("invalid cache key")
)

// Entry is the index record for one cached artifact.
type Entry struct {
	// Key is the content-addressed cache key.
	Key string `json:"key"`

	// Path is the artifact location on disk.
	Path string `json:"path"`

	// Provider is the provider that generated the artifact. Empty for
	// entries rehydrated from disk, where provenance is unknown.
	Provider string `json:"provider,omitempty"`

	// Text is the normalized source text. Empty for rehydrated entries.
	Text string `json:"text,omitempty"`

	// Params is the canonical parameter string the key was derived from.
	// Empty for rehydrated entries.
	Params string `json:"params,omitempty"`

	// Size is the artifact size in bytes.
	Size int64 `json:"size"`

	// CreatedAt orders entries for oldest-first eviction.
	CreatedAt time.Time `json:"created_at"`
}

// Index is the metadata store mapping cache keys to artifact records.
// The memory implementation serves single-instance deployments; the Redis
// implementation shares an index across replicas.
type Index interface {
	// Put inserts or replaces an entry.
	Put(ctx context.Context, entry *Entry) error

	// Get retrieves an entry by key. Returns ErrNotFound when absent.
	Get(ctx context.Context, key string) (*Entry, error)

	// Delete removes an entry. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// All returns every entry, in no particular order.
	All(ctx context.Context) ([]*Entry, error)

	// Len returns the number of entries.
	Len(ctx context.Context) (int, error)

	// Close releases index resources.
	Close() error
}
