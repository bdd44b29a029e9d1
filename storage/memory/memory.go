// Package memory provides the in-process reference implementation of the
// storage interface, backed by github.com/hashicorp/golang-lru/v2 with TTL
// support. Lock is a per-key in-memory mutex, which is only correct in a
// single-process deployment; distributed deployments use storage/redis.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paymcp/paymcp-go/storage"
)

// Store implements the storage.Store interface using in-memory storage.
type Store struct {
	mu    sync.RWMutex
	cache *lru.Cache[string, *storage.Item]

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	done chan struct{}
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store holding at most maxItems entries.
func New(maxItems int) (*Store, error) {
	cache, err := lru.New[string, *storage.Item](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	s := &Store{
		cache: cache,
		locks: make(map[string]*sync.Mutex),
		done:  make(chan struct{}),
	}

	// Background cleanup of expired items.
	go s.cleanupExpired()

	return s, nil
}

// Get retrieves the item stored under key, or nil if absent or expired.
func (s *Store) Get(ctx context.Context, key string) (*storage.Item, error) {
	s.mu.RLock()
	item, exists := s.cache.Get(key)
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}

	if item.Expired() {
		s.mu.Lock()
		s.cache.Remove(key)
		s.mu.Unlock()
		return nil, nil
	}

	return item, nil
}

// Set stores data under key.
func (s *Store) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options := &storage.Options{}
	for _, opt := range opts {
		opt(options)
	}

	now := time.Now()
	item := &storage.Item{
		Data:      make([]byte, len(data)),
		CreatedAt: now,
	}
	copy(item.Data, data)

	if options.TTL != nil {
		expiresAt := now.Add(*options.TTL)
		item.ExpiresAt = &expiresAt
	}

	s.mu.Lock()
	s.cache.Add(key, item)
	s.mu.Unlock()

	return nil
}

// Delete removes the item stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.cache.Remove(key)
	s.mu.Unlock()
	return nil
}

// Lock runs fn while holding an in-memory mutex scoped to key. Lock entries
// are retained for the life of the store; the key space here is small
// (one entry per in-flight payment).
func (s *Store) Lock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s.lockMu.Lock()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	s.lockMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	return fn(ctx)
}

// Close purges the cache and stops the cleanup goroutine.
func (s *Store) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Lock()
	s.cache.Purge()
	s.mu.Unlock()
	return nil
}

// cleanupExpired periodically removes expired items so that abandoned
// records do not linger until their key is next read.
func (s *Store) cleanupExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		now := time.Now()
		for _, key := range s.cache.Keys() {
			if item, exists := s.cache.Peek(key); exists {
				if item.ExpiresAt != nil && now.After(*item.ExpiresAt) {
					s.cache.Remove(key)
				}
			}
		}
		s.mu.Unlock()
	}
}
