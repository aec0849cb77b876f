package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const dateLayout = "2006-01-02"

// Repository reads the booking backend's tables directly. It never writes.
type Repository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

func NewRepository(pool *pgxpool.Pool, loc *time.Location) *Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &Repository{pool: pool, loc: loc}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) ListBookings(ctx context.Context) (out []domain.Booking, err error) {
	ctx, done := r.observe(ctx, "bookings")
	defer func() { done(err) }()

	rows, err := r.pool.Query(ctx, `
		SELECT o.order_id, o.name, o.email, o.phone, COALESCE(o.note, ''), o.address,
		       o.total_price::TEXT, o.start_date, o.order_time,
		       COALESCE(t.name, ''), COALESCE(t.image, ''), t.start_date
		FROM orders o LEFT JOIN tours t ON t.tour_id = o.tour_id
		ORDER BY o.order_id
	`)
	if err != nil {
		return nil, unavailable(err, "list bookings")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b                    domain.Booking
			price                string
			startDate, tourStart *time.Time
			orderTime            *time.Time
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Email, &b.Phone, &b.Note, &b.Address,
			&price, &startDate, &orderTime, &b.Tour.Name, &b.Tour.Image, &tourStart); err != nil {
			return nil, unavailable(err, "scan booking")
		}
		if b.TotalPrice, err = decimal.NewFromString(price); err != nil {
			return nil, errors.Wrapf(err, "booking %d total price", b.ID)
		}
		b.StartDate = formatDate(startDate)
		b.Tour.StartDate = formatDate(tourStart)
		if orderTime != nil {
			t := orderTime.In(r.loc)
			b.OrderTime = &t
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "list bookings")
	}
	return out, nil
}

func (r *Repository) ListBookRequests(ctx context.Context) (out []domain.BookRequest, err error) {
	ctx, done := r.observe(ctx, "book_requests")
	defer func() { done(err) }()

	rows, err := r.pool.Query(ctx, `SELECT book_id, status FROM books ORDER BY book_id`)
	if err != nil {
		return nil, unavailable(err, "list book requests")
	}
	out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.BookRequest, error) {
		var br domain.BookRequest
		err := row.Scan(&br.ID, &br.Status)
		return br, err
	})
	if err != nil {
		return nil, unavailable(err, "scan book request")
	}
	return out, nil
}

func (r *Repository) CountCustomers(ctx context.Context) (n int, err error) {
	ctx, done := r.observe(ctx, "customers")
	defer func() { done(err) }()

	if err = r.pool.QueryRow(ctx, `SELECT count(*) FROM customers`).Scan(&n); err != nil {
		return 0, unavailable(err, "count customers")
	}
	return n, nil
}

// MonthlyRevenue sums order totals per month of year, months taken in the
// dashboard calendar.
func (r *Repository) MonthlyRevenue(ctx context.Context, year int) (out []domain.StatisticalPoint, err error) {
	ctx, done := r.observe(ctx, "statistics")
	defer func() { done(err) }()

	rows, err := r.pool.Query(ctx, `
		SELECT EXTRACT(MONTH FROM order_time AT TIME ZONE $2)::INT8 AS month,
		       SUM(total_price)::TEXT
		FROM orders
		WHERE order_time IS NOT NULL
		  AND EXTRACT(YEAR FROM order_time AT TIME ZONE $2)::INT8 = $1
		GROUP BY month
		ORDER BY month
	`, year, r.loc.String())
	if err != nil {
		return nil, unavailable(err, "monthly revenue")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p      domain.StatisticalPoint
			amount string
		)
		if err := rows.Scan(&p.Month, &amount); err != nil {
			return nil, unavailable(err, "scan monthly revenue")
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrapf(err, "month %d amount", p.Month)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "monthly revenue")
	}
	return out, nil
}

func (r *Repository) YearsWithData(ctx context.Context) (out []int, err error) {
	ctx, done := r.observe(ctx, "statistics")
	defer func() { done(err) }()

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT EXTRACT(YEAR FROM order_time AT TIME ZONE $1)::INT8 AS year
		FROM orders
		WHERE order_time IS NOT NULL
		ORDER BY year
	`, r.loc.String())
	if err != nil {
		return nil, unavailable(err, "years with data")
	}
	out, err = pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, unavailable(err, "scan years")
	}
	return out, nil
}

func (r *Repository) observe(ctx context.Context, collaborator string) (context.Context, func(error)) {
	ctx, span := observability.Tracer("crdb").Start(ctx, "crdb."+collaborator)
	span.SetAttributes(attribute.String("collaborator", collaborator))
	start := time.Now()
	return ctx, func(err error) {
		observability.FetchDuration.WithLabelValues(collaborator).Observe(time.Since(start).Seconds())
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func unavailable(err error, op string) error {
	return errors.Mark(errors.Wrap(err, op), domain.ErrBackendUnavailable)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
