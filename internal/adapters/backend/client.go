// Package backend reads dashboard data from the booking backend's REST API.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

const (
	pathOrders      = "/api/orders"
	pathBooks       = "/api/books"
	pathCustomers   = "/api/customers"
	pathStatsByYear = "/api/statistical/%d"
	pathStatsYears  = "/api/statistical/countYear"
)

// StatusError is a non-200 answer from the backend.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s: status %d", e.Path, e.Code)
}

func (e *StatusError) StatusCode() int { return e.Code }

type Client struct {
	base string
	http *http.Client
	loc  *time.Location
}

func NewClient(baseURL string, timeout time.Duration, loc *time.Location) *Client {
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
		loc:  loc,
	}
}

func (c *Client) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	var dtos []orderDTO
	if err := c.getJSON(ctx, "bookings", pathOrders, &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.Booking, len(dtos))
	for i, d := range dtos {
		out[i] = d.toDomain(c.loc)
	}
	return out, nil
}

func (c *Client) ListBookRequests(ctx context.Context) ([]domain.BookRequest, error) {
	var dtos []bookDTO
	if err := c.getJSON(ctx, "book_requests", pathBooks, &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.BookRequest, len(dtos))
	for i, d := range dtos {
		out[i] = domain.BookRequest{ID: d.BookID, Status: d.Status}
	}
	return out, nil
}

// CountCustomers counts the customer records; their content is not needed.
func (c *Client) CountCustomers(ctx context.Context) (int, error) {
	var customers []json.RawMessage
	if err := c.getJSON(ctx, "customers", pathCustomers, &customers); err != nil {
		return 0, err
	}
	return len(customers), nil
}

func (c *Client) MonthlyRevenue(ctx context.Context, year int) ([]domain.StatisticalPoint, error) {
	var dtos []statisticalDTO
	if err := c.getJSON(ctx, "statistics", fmt.Sprintf(pathStatsByYear, year), &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.StatisticalPoint, len(dtos))
	for i, d := range dtos {
		out[i] = domain.StatisticalPoint{Month: d.Month, Amount: d.Amount}
	}
	return out, nil
}

func (c *Client) YearsWithData(ctx context.Context) ([]int, error) {
	var years []int
	if err := c.getJSON(ctx, "statistics", pathStatsYears, &years); err != nil {
		return nil, err
	}
	return years, nil
}

func (c *Client) getJSON(ctx context.Context, collaborator, path string, out interface{}) error {
	ctx, span := observability.Tracer("backend").Start(ctx, "GET "+path)
	defer span.End()
	span.SetAttributes(attribute.String("collaborator", collaborator))

	start := time.Now()
	defer func() {
		observability.FetchDuration.WithLabelValues(collaborator).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errors.Mark(errors.Wrapf(err, "GET %s", path), domain.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return errors.Mark(&StatusError{Code: resp.StatusCode, Path: path}, domain.ErrBackendUnavailable)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errors.Mark(errors.Wrapf(err, "decode %s", path), domain.ErrBackendUnavailable)
	}
	return nil
}
