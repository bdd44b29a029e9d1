// Package redis provides a Redis-backed implementation of the storage
// interface. Values are stored as JSON envelopes with Redis-native TTLs;
// Lock is a SET NX PX lease with an owner token so that the payment layer's
// read-check-act sequences stay atomic across processes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"github.com/paymcp/paymcp-go/storage"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis store. Defaults can
// be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: PAYMCP_KEY_PREFIX
	KeyPrefix string `env:"PAYMCP_KEY_PREFIX,default=paymcp:"`

	// Client, when set, is used instead of dialing RedisAddr.
	Client *redis.Client

	// LockTTL bounds how long a crashed process can hold a lease.
	// ENV: PAYMCP_LOCK_TTL
	LockTTL time.Duration `env:"PAYMCP_LOCK_TTL,default=30s"`
	// LockRetry is the polling interval while waiting for a contended lease.
	LockRetry time.Duration `env:"PAYMCP_LOCK_RETRY,default=50ms"`
}

// Store implements the storage.Store interface using Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
	lockTTL   time.Duration
	lockRetry time.Duration
}

var _ storage.Store = (*Store)(nil)

// storedItem is the JSON envelope persisted in Redis.
type storedItem struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// New creates a Redis-backed store.
func New(cfg Config) (*Store, error) {
	cl := cfg.Client
	if cl == nil {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		cl = redis.NewClient(&redis.Options{Addr: addr})
		if err := cl.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "paymcp:"
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	lockRetry := cfg.LockRetry
	if lockRetry <= 0 {
		lockRetry = 50 * time.Millisecond
	}
	return &Store{client: cl, keyPrefix: prefix, lockTTL: lockTTL, lockRetry: lockRetry}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode redis store config: %w", err)
	}
	return New(cfg)
}

func (s *Store) dataKey(key string) string { return s.keyPrefix + "kv:" + key }
func (s *Store) lockKey(key string) string { return s.keyPrefix + "lock:" + key }

// Get retrieves the item stored under key, or nil if absent.
func (s *Store) Get(ctx context.Context, key string) (*storage.Item, error) {
	res := s.client.Get(ctx, s.dataKey(key))
	if err := res.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	var item storedItem
	if err := json.Unmarshal([]byte(res.Val()), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored data: %w", err)
	}

	out := &storage.Item{Data: item.Data, CreatedAt: item.CreatedAt, ExpiresAt: item.ExpiresAt}
	if out.Expired() {
		// Redis TTL normally beats us here; this covers clock skew.
		s.client.Del(ctx, s.dataKey(key))
		return nil, nil
	}
	return out, nil
}

// Set stores data under key, with a Redis-native TTL when one is given.
func (s *Store) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options := &storage.Options{}
	for _, opt := range opts {
		opt(options)
	}

	now := time.Now()
	item := storedItem{Data: data, CreatedAt: now}
	var ttl time.Duration
	if options.TTL != nil {
		ttl = *options.TTL
		expiresAt := now.Add(ttl)
		item.ExpiresAt = &expiresAt
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := s.client.Set(ctx, s.dataKey(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes the item stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.dataKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// releaseScript deletes the lease only if the caller still owns it, so a
// slow fn cannot release a lease that already expired and was re-acquired.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lock acquires a SET NX PX lease for key, runs fn, and releases the lease
// on all exit paths. Contended leases are retried until the context ends.
func (s *Store) Lock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	lk := s.lockKey(key)

	for {
		ok, err := s.client.SetNX(ctx, lk, token, s.lockTTL).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock for %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", storage.ErrLockHeld, key, ctx.Err())
		case <-time.After(s.lockRetry):
		}
	}

	defer func() {
		// Best-effort release against a background context so a canceled
		// request context does not leak the lease until TTL.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(relCtx, s.client, []string{lk}, token).Err()
	}()

	return fn(ctx)
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }
