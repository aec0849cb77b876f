package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/tour-booking-dashboard/internal/adapters/redis"
	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	"github.com/robertarktes/tour-booking-dashboard/internal/idempotency"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
	"github.com/robertarktes/tour-booking-dashboard/internal/session"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type stubBackend struct {
	mu   sync.Mutex
	fail bool
}

func (b *stubBackend) setFail(v bool) {
	b.mu.Lock()
	b.fail = v
	b.mu.Unlock()
}

func (b *stubBackend) failing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fail
}

func ordered(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
	return &t
}

func (b *stubBackend) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	if b.failing() {
		return nil, errors.Mark(errors.New("backend down"), domain.ErrBackendUnavailable)
	}
	return []domain.Booking{
		{ID: 1, Name: "An", TotalPrice: decimal.NewFromInt(100), OrderTime: ordered(2025, 6, 1),
			Tour: domain.Tour{Name: "Hanoi Food Walk", StartDate: "2025-06-15"}},
		{ID: 2, Name: "Binh", TotalPrice: decimal.NewFromInt(50), OrderTime: ordered(2025, 6, 10),
			Tour: domain.Tour{Name: "Ha Long Cruise", StartDate: "2025-07-01"}},
		{ID: 3, Name: "Chi", TotalPrice: decimal.NewFromInt(30), OrderTime: ordered(2025, 2, 10), Note: "vegan",
			Tour: domain.Tour{Name: "hanoi by night", StartDate: "2025-02-20"}},
	}, nil
}

func (b *stubBackend) ListBookRequests(ctx context.Context) ([]domain.BookRequest, error) {
	return []domain.BookRequest{{ID: 1, Status: 0}, {ID: 2, Status: 0}, {ID: 3, Status: 1}}, nil
}

func (b *stubBackend) CountCustomers(ctx context.Context) (int, error) { return 5, nil }

func (b *stubBackend) MonthlyRevenue(ctx context.Context, year int) ([]domain.StatisticalPoint, error) {
	return []domain.StatisticalPoint{{Month: 6, Amount: decimal.NewFromInt(150)}, {Month: 2, Amount: decimal.NewFromInt(30)}}, nil
}

func (b *stubBackend) YearsWithData(ctx context.Context) ([]int, error) { return []int{2025}, nil }

type memStore struct {
	mu      sync.Mutex
	records map[string]redisadapter.IdempResponse
	locks   map[string]bool
}

func (m *memStore) Get(_ context.Context, key string) (*redisadapter.IdempResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key]; ok {
		return &rec, nil
	}
	return nil, nil
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

func newTestServer(t *testing.T, backend *stubBackend) (*httptest.Server, *session.Registry) {
	t.Helper()
	classifier := domain.NewClassifier(domain.DefaultTourDuration, time.UTC).
		WithClock(func() time.Time { return testNow })
	views := session.NewRegistry(backend, classifier, nil, session.Options{ChartYear: 2025}, observability.NopLogger())
	idemp := idempotency.NewIdempotency(&memStore{records: map[string]redisadapter.IdempResponse{}, locks: map[string]bool{}}, time.Hour)

	h := NewHandlers(views, map[string]Check{"backend": func(context.Context) error { return nil }}, nil)
	srv := httptest.NewServer(SetupRouter(h, observability.NopLogger(), nil, idemp))
	t.Cleanup(func() {
		srv.Close()
		views.Shutdown()
	})
	return srv, views
}

func do(t *testing.T, method, url string, body string, header map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]interface{}{}
	if resp.StatusCode != http.StatusNoContent {
		json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func openView(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, srv.URL+"/v1/views", "", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open view: status %d", resp.StatusCode)
	}
	return body["id"].(string)
}

func TestOpenViewAndDashboard(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	id := openView(t, srv)

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/views/"+id+"/dashboard", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if body["pendingRequests"].(float64) != 2 || body["orders"].(float64) != 3 || body["customers"].(float64) != 5 {
		t.Errorf("unexpected counters %v", body)
	}
	if body["revenueYear"] != "180" || body["revenueMonth"] != "150" {
		t.Errorf("revenue year=%v month=%v", body["revenueYear"], body["revenueMonth"])
	}
	chart := body["chart"].(map[string]interface{})
	labels := chart["labels"].([]interface{})
	if len(labels) != 2 || labels[0] != "Tháng 6" || labels[1] != "Tháng 2" {
		t.Errorf("labels = %v", labels)
	}

	resp, body = do(t, http.MethodPut, srv.URL+"/v1/views/"+id+"/dashboard/year", `{"year": 2024}`, nil)
	if resp.StatusCode != http.StatusOK || body["chart"].(map[string]interface{})["year"].(float64) != 2024 {
		t.Errorf("set year: %d %v", resp.StatusCode, body["chart"])
	}
	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/views/"+id+"/dashboard/year", `{"year": -1}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid year: status %d", resp.StatusCode)
	}
}

func TestBookingsFlow(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	id := openView(t, srv)
	base := srv.URL + "/v1/views/" + id

	resp, body := do(t, http.MethodGet, base+"/bookings?size=2", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	rows := body["rows"].([]interface{})
	if body["total"].(float64) != 3 || len(rows) != 2 {
		t.Fatalf("unexpected page %v", body)
	}
	if first := rows[0].(map[string]interface{}); first["orderId"].(float64) != 2 || first["status"] != "upcoming" || first["statusColor"] != "orange" {
		t.Errorf("newest booking should come first: %v", first)
	}

	resp, body = do(t, http.MethodPost, base+"/bookings/filter?status=ongoing", "", nil)
	if resp.StatusCode != http.StatusOK || body["count"].(float64) != 1 {
		t.Errorf("filter ongoing: %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodPost, base+"/bookings/filter?status=cancelled", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown status: %d", resp.StatusCode)
	}

	resp, body = do(t, http.MethodPost, base+"/bookings/search?q=HANOI", "", nil)
	if resp.StatusCode != http.StatusOK || body["count"].(float64) != 2 || body["term"] != "HANOI" {
		t.Errorf("search: %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, base+"/bookings?sort=amount&dir=asc", "", nil)
	rows = body["rows"].([]interface{})
	if resp.StatusCode != http.StatusOK || len(rows) != 2 || rows[0].(map[string]interface{})["orderId"].(float64) != 3 {
		t.Errorf("sorted search result: %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodGet, base+"/bookings?sort=bogus", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown sort: %d", resp.StatusCode)
	}

	resp, body = do(t, http.MethodGet, base+"/bookings/3", "", nil)
	if resp.StatusCode != http.StatusOK || body["note"] != "vegan" || body["endDate"] != "23/02/2025" || body["status"] != "finished" {
		t.Errorf("detail: %d %v", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodGet, base+"/bookings/1", "", nil)
	if resp.StatusCode != http.StatusOK || body["note"] != "Không có" || body["statusLabel"] != "Đang diễn ra" {
		t.Errorf("detail fallback note: %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodGet, base+"/bookings/99", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing booking: %d", resp.StatusCode)
	}
}

func TestReloadFailureKeepsStateAndNotifies(t *testing.T) {
	backend := &stubBackend{}
	srv, _ := newTestServer(t, backend)
	id := openView(t, srv)
	base := srv.URL + "/v1/views/" + id

	backend.setFail(true)
	resp, _ := do(t, http.MethodPost, base+"/bookings/reload", "", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("reload against failing backend: %d", resp.StatusCode)
	}

	_, body := do(t, http.MethodGet, base+"/bookings", "", nil)
	if body["total"].(float64) != 3 {
		t.Errorf("previous bookings should survive a failed reload: %v", body["total"])
	}
	_, body = do(t, http.MethodGet, base+"/dashboard", "", nil)
	notes := body["notices"].([]interface{})
	if len(notes) != 1 || notes[0].(map[string]interface{})["message"] != "Lỗi server" {
		t.Errorf("notices = %v", notes)
	}
}

func TestCloseView(t *testing.T) {
	srv, views := newTestServer(t, &stubBackend{})
	id := openView(t, srv)

	resp, _ := do(t, http.MethodDelete, srv.URL+"/v1/views/"+id, "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("close: %d", resp.StatusCode)
	}
	if views.Len() != 0 {
		t.Errorf("view still registered")
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/views/"+id+"/dashboard", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("closed view: %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/views/not-a-uuid/dashboard", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed id: %d", resp.StatusCode)
	}
}

func TestOpenViewIdempotency(t *testing.T) {
	srv, views := newTestServer(t, &stubBackend{})
	header := map[string]string{"Idempotency-Key": "3f1c9a8e-7d6b-4c2a"}

	resp, first := do(t, http.MethodPost, srv.URL+"/v1/views", "", header)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first open: %d", resp.StatusCode)
	}
	resp, second := do(t, http.MethodPost, srv.URL+"/v1/views", "", header)
	if resp.StatusCode != http.StatusCreated || resp.Header.Get("Idempotent-Replayed") != "true" {
		t.Fatalf("replay: %d %v", resp.StatusCode, resp.Header)
	}
	if first["id"] != second["id"] {
		t.Errorf("replay returned a different view: %v vs %v", first["id"], second["id"])
	}
	if views.Len() != 1 {
		t.Errorf("expected one view, got %d", views.Len())
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/views", "", map[string]string{"Idempotency-Key": "short"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short key: %d", resp.StatusCode)
	}
}

func TestProbes(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})
	for _, path := range []string{"/v1/healthz", "/v1/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", path, resp.StatusCode)
		}
	}
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func TestReloadDropsCachedResponses(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"cache cleared", nil},
		{"cache unavailable", errors.New("redis down")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := domain.NewClassifier(domain.DefaultTourDuration, time.UTC).
				WithClock(func() time.Time { return testNow })
			views := session.NewRegistry(&stubBackend{}, classifier, nil, session.Options{ChartYear: 2025}, observability.NopLogger())
			inv := &countingInvalidator{err: tt.err}
			srv := httptest.NewServer(SetupRouter(NewHandlers(views, nil, inv), observability.NopLogger(), nil, nil))
			defer func() {
				srv.Close()
				views.Shutdown()
			}()

			id := openView(t, srv)
			if inv.calls != 0 {
				t.Fatalf("opening a view invalidated the cache %d times", inv.calls)
			}
			resp, body := do(t, http.MethodPost, srv.URL+"/v1/views/"+id+"/bookings/reload", "", nil)
			if resp.StatusCode != http.StatusOK || body["count"].(float64) != 3 {
				t.Errorf("reload: %d %v", resp.StatusCode, body)
			}
			inv.mu.Lock()
			defer inv.mu.Unlock()
			if inv.calls != 1 {
				t.Errorf("invalidate called %d times, want 1", inv.calls)
			}
		})
	}
}
