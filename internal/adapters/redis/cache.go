package redis

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix   = "dash:"
	fillTimeout = 30 * time.Second
)

// Backend is the collaborator the cache sits in front of.
type Backend interface {
	ListBookings(ctx context.Context) ([]domain.Booking, error)
	ListBookRequests(ctx context.Context) ([]domain.BookRequest, error)
	CountCustomers(ctx context.Context) (int, error)
	MonthlyRevenue(ctx context.Context, year int) ([]domain.StatisticalPoint, error)
	YearsWithData(ctx context.Context) ([]int, error)
}

// Cache is a read-through cache of collaborator responses shared by every
// view. Book requests are never cached: they back the figure the live
// channel refreshes. A redis failure degrades to a direct fetch.
//
// Concurrent misses on one key share a single fill. The fill does not
// inherit any caller's cancellation; each caller stops waiting when its
// own context ends.
type Cache struct {
	client  *redis.Client
	backend Backend
	ttl     time.Duration
	loc     *time.Location
	logger  observability.Logger
	group   singleflight.Group
}

func NewCache(client *redis.Client, backend Backend, ttl time.Duration, loc *time.Location, logger observability.Logger) *Cache {
	if loc == nil {
		loc = time.UTC
	}
	return &Cache{client: client, backend: backend, ttl: ttl, loc: loc, logger: logger}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	shared, err := readThrough(ctx, c, "bookings", c.backend.ListBookings)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(shared)
	for i := range out {
		if out[i].OrderTime != nil {
			t := out[i].OrderTime.In(c.loc)
			out[i].OrderTime = &t
		}
	}
	return out, nil
}

func (c *Cache) ListBookRequests(ctx context.Context) ([]domain.BookRequest, error) {
	return c.backend.ListBookRequests(ctx)
}

func (c *Cache) CountCustomers(ctx context.Context) (int, error) {
	return readThrough(ctx, c, "customers", c.backend.CountCustomers)
}

func (c *Cache) MonthlyRevenue(ctx context.Context, year int) ([]domain.StatisticalPoint, error) {
	return readThrough(ctx, c, "stats:"+strconv.Itoa(year), func(ctx context.Context) ([]domain.StatisticalPoint, error) {
		return c.backend.MonthlyRevenue(ctx, year)
	})
}

func (c *Cache) YearsWithData(ctx context.Context) ([]int, error) {
	return readThrough(ctx, c, "years", c.backend.YearsWithData)
}

// Invalidate drops every cached response.
func (c *Cache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "scan cache keys")
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func readThrough[T any](ctx context.Context, c *Cache, name string, fetch func(context.Context) (T, error)) (T, error) {
	key := keyPrefix + name

	var cached T
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if jerr := json.Unmarshal(data, &cached); jerr == nil {
			observability.CacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		}
		c.logger.WithField("key", key).Warn("dropping undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.WithField("key", key).Warn("cache read failed: " + err.Error())
	}
	observability.CacheLookups.WithLabelValues("miss").Inc()

	fill := c.group.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()
		fresh, err := fetch(fctx)
		if err != nil {
			return fresh, err
		}
		if data, err := json.Marshal(fresh); err == nil {
			if err := c.client.Set(fctx, key, data, c.ttl).Err(); err != nil {
				c.logger.WithField("key", key).Warn("cache write failed: " + err.Error())
			}
		}
		return fresh, nil
	})

	var zero T
	select {
	case res := <-fill:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
