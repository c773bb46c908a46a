// Package cache provides a generic, thread-safe lookup cache with built-in
// statistics and optional Prometheus metrics integration.
//
// The cache deliberately has no eviction policy: entries live until they are
// explicitly deleted or the cache is cleared. The table engine populates it on
// insert and evicts on delete only, so unbounded growth is bounded by the
// number of live records per table.
package cache

import (
	"github.com/TotoCodeFR/DaaD/errors"
)

// Cache is a generic cache interface parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found,
	// zero value and false otherwise.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new entry was
	// created, false if an existing entry was updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries in the cache.
	Size() int

	// Keys returns a slice of all keys currently in the cache.
	Keys() []string

	// Stats returns cache statistics. Never nil.
	Stats() *Statistics
}

// EvictCallback is called when an entry is removed from the cache.
// It receives the key and value of the removed entry.
type EvictCallback[V any] func(key string, value V)

// validateKey validates a cache key for basic requirements.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidRecord, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
