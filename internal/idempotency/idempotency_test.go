package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/tour-booking-dashboard/internal/adapters/redis"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]redisadapter.IdempResponse
	locks   map[string]bool
}

func newMemStore() *memStore {
	return &memStore{records: map[string]redisadapter.IdempResponse{}, locks: map[string]bool{}}
}

func (m *memStore) Get(_ context.Context, key string) (*redisadapter.IdempResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStore) Set(_ context.Context, key string, resp redisadapter.IdempResponse, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = resp
	return nil
}

func (m *memStore) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *memStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

func TestIdempotencyLifecycle(t *testing.T) {
	ctx := context.Background()
	idemp := NewIdempotency(newMemStore(), time.Hour)
	key := "0123456789abcdef"

	if got, err := idemp.Get(ctx, key); err != nil || got != nil {
		t.Fatalf("expected no record, got %v %v", got, err)
	}
	if err := idemp.Begin(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := idemp.Begin(ctx, key); !errors.Is(err, ErrInFlight) {
		t.Errorf("expected ErrInFlight, got %v", err)
	}
	if err := idemp.Set(ctx, key, Response{Status: 201, ContentType: "application/json", Result: []byte(`{"id":"x"}`)}); err != nil {
		t.Fatal(err)
	}

	got, err := idemp.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Status != 201 || string(got.Result) != `{"id":"x"}` {
		t.Errorf("unexpected replay %+v", got)
	}
	if err := idemp.Begin(ctx, key); err != nil {
		t.Errorf("claim should be released after Set, got %v", err)
	}
}

func TestAbortReleasesClaim(t *testing.T) {
	ctx := context.Background()
	idemp := NewIdempotency(newMemStore(), time.Hour)
	key := "fedcba9876543210"

	if err := idemp.Begin(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := idemp.Abort(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := idemp.Begin(ctx, key); err != nil {
		t.Errorf("expected claim to be free after Abort, got %v", err)
	}
}
