// Package kv provides a key-value store abstraction with per-key expiry.
// This allows swapping backends (Valkey/Redis, no-op) without changing the
// progress publisher.
package kv

import (
	"context"
	"time"
)

// Store defines a minimal write-side key-value interface.
type Store interface {
	// Set stores a value with the given key and TTL.
	// If TTL is 0, the key does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close closes the connection to the store.
	Close() error
}

// NoopStore drops every write. It stands in when no store is reachable.
type NoopStore struct{}

func (NoopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopStore) Close() error { return nil }

// Ensure NoopStore implements Store.
var _ Store = NoopStore{}
