package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/paymcp/paymcp-go/storage"
)

func TestSetGet(t *testing.T) {
	s, err := New(100)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	key := "payment:abc"
	data := []byte(`{"paymentId":"abc"}`)

	if err := s.Set(ctx, key, data); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	item, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if item == nil {
		t.Fatal("Get() returned nil item")
	}
	if string(item.Data) != string(data) {
		t.Fatalf("Get() returned wrong data: got %s, want %s", string(item.Data), string(data))
	}
}

func TestGetAbsent(t *testing.T) {
	s, err := New(100)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	item, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get() should not return error for absent key: %v", err)
	}
	if item != nil {
		t.Fatal("Get() should return nil for absent key")
	}
}

func TestTTL(t *testing.T) {
	s, err := New(100)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	ttl := 50 * time.Millisecond

	if err := s.Set(ctx, "ttl-key", []byte("data"), storage.WithTTL(ttl)); err != nil {
		t.Fatalf("Set() with TTL failed: %v", err)
	}

	item, err := s.Get(ctx, "ttl-key")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if item == nil {
		t.Fatal("Get() returned nil item before expiration")
	}

	time.Sleep(ttl + 30*time.Millisecond)

	item, err = s.Get(ctx, "ttl-key")
	if err != nil {
		t.Fatalf("Get() failed after expiration: %v", err)
	}
	if item != nil {
		t.Fatal("Get() returned non-nil item after expiration")
	}
}

func TestDelete(t *testing.T) {
	s, err := New(100)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	item, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() failed after deletion: %v", err)
	}
	if item != nil {
		t.Fatal("Data should not exist after deletion")
	}

	// Deleting an absent key is a no-op.
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() of absent key failed: %v", err)
	}
}

func TestLockSerializes(t *testing.T) {
	s, err := New(100)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	const workers = 8

	var inside, max int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			err := s.Lock(ctx, "contended", func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > max {
					max = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("Lock() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if max != 1 {
		t.Fatalf("Lock() admitted %d concurrent holders, want 1", max)
	}
}

func TestLockPropagatesError(t *testing.T) {
	s, err := New(100)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	wantErr := context.DeadlineExceeded
	err = s.Lock(context.Background(), "k", func(ctx context.Context) error {
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("Lock() returned %v, want %v", err, wantErr)
	}

	// The lock must be reacquirable after fn returns an error.
	err = s.Lock(context.Background(), "k", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Lock() after error failed: %v", err)
	}
}
