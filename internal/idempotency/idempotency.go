package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/tour-booking-dashboard/internal/adapters/redis"
)

// MinKeyLength rejects keys too short to be unique per client.
const MinKeyLength = 16

var ErrInFlight = errors.New("request with this idempotency key is in flight")

// Store is the persistence the replay cache needs. The redis adapter
// implements it.
type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Idempotency struct {
	store Store
	ttl   time.Duration
	lock  time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl, lock: 30 * time.Second}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
}

// Get returns the stored response for key, or nil when there is none.
func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	rec, err := i.store.Get(ctx, key)
	if err != nil || rec == nil {
		return nil, err
	}
	return &Response{Status: rec.Status, ContentType: rec.ContentType, Result: rec.Result}, nil
}

// Begin claims key. ErrInFlight means a request with the same key has not
// finished yet.
func (i *Idempotency) Begin(ctx context.Context, key string) error {
	ok, err := i.store.Reserve(ctx, key, i.lock)
	if err != nil {
		return errors.Wrap(err, "reserve idempotency key")
	}
	if !ok {
		return ErrInFlight
	}
	return nil
}

// Set records resp for replay and releases the claim taken by Begin.
func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	err := i.store.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
	}, i.ttl)
	return errors.CombineErrors(err, i.store.Release(ctx, key))
}

// Abort releases the claim without recording anything, so the client may retry.
func (i *Idempotency) Abort(ctx context.Context, key string) error {
	return i.store.Release(ctx, key)
}
