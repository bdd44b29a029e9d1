// Package storage defines the key-value state store the payment layer keeps
// its pending-payment records and provider-opaque challenge data in.
//
// The store is the single source of truth across processes. Implementations
// range from the in-memory reference (storage/memory) to distributed
// backends (storage/redis); the payment layer treats them interchangeably.
package storage

import (
	"context"
	"errors"
	"time"
)

// Store is the contract the payment layer persists through.
//
// Get on a missing or expired key returns (nil, nil) — absence is not an
// error. Set and Delete failures are storage system failures and MUST be
// surfaced; a flow that cannot persist its record fails the invocation
// rather than proceeding untracked.
type Store interface {
	// Get retrieves the item stored under key, or nil if absent.
	Get(ctx context.Context, key string) (*Item, error)

	// Set stores data under key. WithTTL bounds the item's lifetime.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes the item stored under key. Deleting an absent key is a
	// no-op.
	Delete(ctx context.Context, key string) error

	// Lock runs fn with exclusive access to key's scope, releasing on all
	// exit paths and propagating fn's error. It exists to make
	// read-check-act sequences atomic even when the store is shared across
	// processes: distributed implementations back it with the store's
	// native lease/transaction primitives.
	Lock(ctx context.Context, key string, fn func(ctx context.Context) error) error

	// Close releases backend resources.
	Close() error
}

// Item represents a stored piece of data with metadata.
type Item struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt *time.Time // nil = no expiration
}

// Expired reports whether the item's lifetime has elapsed.
func (it *Item) Expired() bool {
	return it.ExpiresAt != nil && time.Now().After(*it.ExpiresAt)
}

// Option configures storage operations.
type Option func(*Options)

// Options contains configuration for storage operations.
type Options struct {
	TTL *time.Duration
}

// WithTTL sets a time-to-live for the stored data.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = &ttl
	}
}

// ErrLockHeld is returned by Lock implementations that give up waiting for
// a contended key (e.g. a distributed lease that cannot be acquired before
// the context deadline).
var ErrLockHeld = errors.New("storage: lock held")
