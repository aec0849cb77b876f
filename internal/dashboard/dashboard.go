// Package dashboard holds the figures of the admin dashboard view and keeps
// the pending booking-request count fresh from the live channel.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-booking-dashboard/internal/chart"
	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	"github.com/robertarktes/tour-booking-dashboard/internal/live"
	"github.com/robertarktes/tour-booking-dashboard/internal/notice"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Backend is every collaborator the dashboard reads from.
type Backend interface {
	chart.StatsFetcher
	ListBookings(ctx context.Context) ([]domain.Booking, error)
	ListBookRequests(ctx context.Context) ([]domain.BookRequest, error)
	CountCustomers(ctx context.Context) (int, error)
}

type Summary struct {
	PendingRequests     int             `json:"pendingRequests"`
	Orders              int             `json:"orders"`
	Customers           int             `json:"customers"`
	RevenueYear         decimal.Decimal `json:"revenueYear"`
	RevenueMonth        decimal.Decimal `json:"revenueMonth"`
	RevenueSelectedYear decimal.Decimal `json:"revenueSelectedYear"`
	Chart               chart.Data      `json:"chart"`
	Live                string          `json:"live"`
}

type Dashboard struct {
	backend    Backend
	classifier *domain.Classifier
	chart      *chart.Chart
	channel    *live.Channel
	notices    *notice.Board
	logger     observability.Logger
	onRefresh  func(pending int)

	mu            sync.Mutex
	closed        bool
	pending       int
	pendingSeq    uint64
	pendingCommit uint64
	customers     int
	bookings      []domain.Booking

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a dashboard for year. channel may be nil when no live source is
// configured.
func New(backend Backend, classifier *domain.Classifier, channel *live.Channel, year int, notices *notice.Board, logger observability.Logger) *Dashboard {
	return &Dashboard{
		backend:    backend,
		classifier: classifier,
		chart:      chart.New(backend, year, notices, logger),
		channel:    channel,
		notices:    notices,
		logger:     logger,
	}
}

// OnRefresh registers fn to run after every live-triggered refresh.
func (d *Dashboard) OnRefresh(fn func(pending int)) {
	d.mu.Lock()
	d.onRefresh = fn
	d.mu.Unlock()
}

// Load fetches every figure concurrently. Failures are reported as notices
// and leave the previous value in place.
func (d *Dashboard) Load(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs error
	)
	collect := func(err error) {
		mu.Lock()
		errs = errors.CombineErrors(errs, err)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		collect(d.RefreshPendingCount(gctx))
		return nil
	})
	g.Go(func() error {
		bookings, err := d.backend.ListBookings(gctx)
		if err != nil {
			collect(d.fail("bookings", err))
			return nil
		}
		d.mu.Lock()
		if !d.closed {
			d.bookings = bookings
		}
		d.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		n, err := d.backend.CountCustomers(gctx)
		if err != nil {
			collect(d.fail("customers", err))
			return nil
		}
		d.mu.Lock()
		if !d.closed {
			d.customers = n
		}
		d.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		collect(d.chart.Load(gctx))
		return nil
	})
	_ = g.Wait()
	return errs
}

// RefreshPendingCount asks the booking-count collaborator once and stores
// the number of unhandled requests. A response older than the last stored
// one is dropped.
func (d *Dashboard) RefreshPendingCount(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return domain.ErrClosed
	}
	d.pendingSeq++
	seq := d.pendingSeq
	d.mu.Unlock()

	reqs, err := d.backend.ListBookRequests(ctx)
	if err != nil {
		return d.fail("book_requests", err)
	}
	n := domain.CountPending(reqs)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || seq < d.pendingCommit {
		return nil
	}
	d.pendingCommit = seq
	d.pending = n
	return nil
}

// Start subscribes to the live channel. Every signal triggers exactly one
// RefreshPendingCount, handled in arrival order.
func (d *Dashboard) Start(ctx context.Context) error {
	if d.channel == nil {
		return nil
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return domain.ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()

	signals, err := d.channel.Subscribe(ctx)
	if err != nil {
		cancel()
		close(d.done)
		return err
	}
	go d.consume(ctx, signals)
	return nil
}

func (d *Dashboard) consume(ctx context.Context, signals <-chan live.Signal) {
	defer close(d.done)
	for sig := range signals {
		if err := d.RefreshPendingCount(ctx); err != nil {
			if errors.Is(err, domain.ErrClosed) {
				return
			}
			continue
		}
		d.mu.Lock()
		pending, hook := d.pending, d.onRefresh
		d.mu.Unlock()
		d.logger.WithField("seq", sig.Seq).Debug("pending requests refreshed")
		if hook != nil {
			hook(pending)
		}
	}
}

// SetYear switches the chart to year and reloads it.
func (d *Dashboard) SetYear(ctx context.Context, year int) error {
	return d.chart.SetYear(ctx, year)
}

func (d *Dashboard) Summary() Summary {
	now := d.classifier.Now()
	data := d.chart.Data()

	d.mu.Lock()
	bookings := d.bookings
	s := Summary{
		PendingRequests: d.pending,
		Orders:          len(bookings),
		Customers:       d.customers,
	}
	d.mu.Unlock()

	s.RevenueYear = domain.SumCurrentYear(bookings, now)
	s.RevenueMonth = domain.SumCurrentMonth(bookings, now)
	s.RevenueSelectedYear = domain.SumByYear(bookings, data.Year)
	s.Chart = data
	s.Live = live.StateClosed.String()
	if d.channel != nil {
		s.Live = d.channel.State().String()
	}
	return s
}

// Close stops listening and waits for an in-progress refresh to finish.
// Later fetch results are ignored.
func (d *Dashboard) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	var err error
	if d.channel != nil {
		err = d.channel.Close()
	}
	if cancel != nil {
		cancel()
		<-done
	}
	return err
}

func (d *Dashboard) fail(what string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	d.notices.Push(notice.ServerError(time.Now()))
	observability.FetchErrors.WithLabelValues(what).Inc()
	d.logger.WithField("fetch", what).Error(err)
	return errors.Wrap(err, what)
}
