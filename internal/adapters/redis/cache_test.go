package redis_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/tour-booking-dashboard/internal/adapters/redis"
	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T, ctx context.Context) *goredis.Client {
	t.Helper()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { redisContainer.Terminate(context.Background()) })

	addr, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	return client
}

type countingBackend struct {
	bookings, requests, stats atomic.Int32
	loc                       *time.Location
}

func (b *countingBackend) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	b.bookings.Add(1)
	at := time.Date(2025, 1, 31, 23, 30, 0, 0, b.loc)
	return []domain.Booking{{ID: 7, Name: "An", TotalPrice: decimal.RequireFromString("12.50"), OrderTime: &at}}, nil
}

func (b *countingBackend) ListBookRequests(ctx context.Context) ([]domain.BookRequest, error) {
	b.requests.Add(1)
	return []domain.BookRequest{{ID: 1, Status: 0}}, nil
}

func (b *countingBackend) CountCustomers(ctx context.Context) (int, error) {
	return 3, nil
}

func (b *countingBackend) MonthlyRevenue(ctx context.Context, year int) ([]domain.StatisticalPoint, error) {
	b.stats.Add(1)
	time.Sleep(50 * time.Millisecond)
	return []domain.StatisticalPoint{{Month: 1, Amount: decimal.NewFromInt(int64(year))}}, nil
}

func (b *countingBackend) YearsWithData(ctx context.Context) ([]int, error) {
	return []int{2025}, nil
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t, ctx)
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		t.Fatal(err)
	}
	backend := &countingBackend{loc: loc}
	cache := redisadapter.NewCache(client, backend, time.Minute, loc, observability.NopLogger())

	t.Run("read through", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			got, err := cache.ListBookings(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].TotalPrice.String() != "12.5" {
				t.Fatalf("unexpected bookings %+v", got)
			}
			if got[0].OrderTime.Location() != loc || got[0].OrderTime.Day() != 31 {
				t.Errorf("order time not in dashboard calendar: %v", got[0].OrderTime)
			}
		}
		if n := backend.bookings.Load(); n != 1 {
			t.Errorf("backend called %d times, want 1", n)
		}
	})

	t.Run("book requests bypass cache", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if _, err := cache.ListBookRequests(ctx); err != nil {
				t.Fatal(err)
			}
		}
		if n := backend.requests.Load(); n != 2 {
			t.Errorf("backend called %d times, want 2", n)
		}
	})

	t.Run("concurrent fills coalesce", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				points, err := cache.MonthlyRevenue(ctx, 2025)
				if err != nil || len(points) != 1 {
					t.Errorf("unexpected result %v %v", points, err)
				}
			}()
		}
		wg.Wait()
		if n := backend.stats.Load(); n != 1 {
			t.Errorf("backend called %d times, want 1", n)
		}
	})

	t.Run("invalidate", func(t *testing.T) {
		if err := cache.Invalidate(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := cache.ListBookings(ctx); err != nil {
			t.Fatal(err)
		}
		if n := backend.bookings.Load(); n != 2 {
			t.Errorf("backend called %d times after invalidate, want 2", n)
		}
	})
}

func TestIdempotency(t *testing.T) {
	ctx := context.Background()
	idemp := redisadapter.NewIdempotency(startRedis(t, ctx))

	got, err := idemp.Get(ctx, "missing-key-000000")
	if err != nil || got != nil {
		t.Fatalf("expected nothing, got %v %v", got, err)
	}

	ok, err := idemp.Reserve(ctx, "key-0000000000001", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first reserve: %v %v", ok, err)
	}
	ok, err = idemp.Reserve(ctx, "key-0000000000001", time.Minute)
	if err != nil || ok {
		t.Fatalf("second reserve should fail: %v %v", ok, err)
	}

	want := redisadapter.IdempResponse{Status: 201, ContentType: "application/json", Result: []byte(`{"id":"a"}`)}
	if err := idemp.Set(ctx, "key-0000000000001", want, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := idemp.Release(ctx, "key-0000000000001"); err != nil {
		t.Fatal(err)
	}
	got, err = idemp.Get(ctx, "key-0000000000001")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != 201 || string(got.Result) != `{"id":"a"}` || got.ContentType != "application/json" {
		t.Errorf("unexpected record %+v", got)
	}
}

// gatedBackend holds every bookings fetch until release is closed.
type gatedBackend struct {
	countingBackend
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedBackend() *gatedBackend {
	return &gatedBackend{
		countingBackend: countingBackend{loc: time.UTC},
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
}

func (b *gatedBackend) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.countingBackend.ListBookings(ctx)
}

// unreachableRedis makes every lookup a miss without a container.
func unreachableRedis(t *testing.T) *goredis.Client {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { client.Close() })
	return client
}

type fetchResult struct {
	bookings []domain.Booking
	err      error
}

func TestCache_SharedFillGivesEachCallerItsOwnBookings(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		t.Fatal(err)
	}
	backend := newGatedBackend()
	cache := redisadapter.NewCache(unreachableRedis(t), backend, time.Minute, loc, observability.NopLogger())

	results := make(chan fetchResult, 2)
	fetch := func() {
		got, err := cache.ListBookings(context.Background())
		results <- fetchResult{got, err}
	}
	go fetch()
	<-backend.entered
	go fetch()
	time.Sleep(100 * time.Millisecond)
	close(backend.release)

	a, b := <-results, <-results
	if a.err != nil || b.err != nil {
		t.Fatalf("unexpected errors %v %v", a.err, b.err)
	}
	if n := backend.bookings.Load(); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}
	if &a.bookings[0] == &b.bookings[0] {
		t.Fatal("callers share one backing array")
	}
	a.bookings[0].Name = "changed"
	if b.bookings[0].Name != "An" {
		t.Errorf("change by one caller visible to the other: %q", b.bookings[0].Name)
	}
	for _, r := range []fetchResult{a, b} {
		if r.bookings[0].OrderTime.Location() != loc {
			t.Errorf("order time not in dashboard calendar: %v", r.bookings[0].OrderTime)
		}
	}
}

func TestCache_CancelledCallerDoesNotFailSharedFill(t *testing.T) {
	backend := newGatedBackend()
	cache := redisadapter.NewCache(unreachableRedis(t), backend, time.Minute, time.UTC, observability.NopLogger())

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	resA := make(chan fetchResult, 1)
	resB := make(chan fetchResult, 1)
	go func() {
		got, err := cache.ListBookings(ctxA)
		resA <- fetchResult{got, err}
	}()
	<-backend.entered
	go func() {
		got, err := cache.ListBookings(context.Background())
		resB <- fetchResult{got, err}
	}()
	time.Sleep(100 * time.Millisecond)

	cancelA()
	select {
	case a := <-resA:
		if !errors.Is(a.err, context.Canceled) {
			t.Errorf("expected cancelled caller to stop with context.Canceled, got %v", a.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting on the shared fill")
	}

	close(backend.release)
	select {
	case b := <-resB:
		if b.err != nil || len(b.bookings) != 1 {
			t.Errorf("expected other caller to get bookings, got %v %v", b.bookings, b.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shared fill never completed")
	}
}
