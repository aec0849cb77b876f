// Package session keeps the open dashboard views of the service. A view owns
// a booking list presenter and a dashboard with its live channel; closing
// the view tears both down.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-booking-dashboard/internal/bookings"
	"github.com/robertarktes/tour-booking-dashboard/internal/dashboard"
	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	"github.com/robertarktes/tour-booking-dashboard/internal/live"
	"github.com/robertarktes/tour-booking-dashboard/internal/notice"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
	"golang.org/x/sync/errgroup"
)

const (
	ReasonTeardown = "teardown"
	ReasonIdle     = "idle"
	ReasonShutdown = "shutdown"

	noticeLimit  = 20
	auditTimeout = 5 * time.Second
)

// Auditor records view lifecycle events. The mongo adapter implements it.
type Auditor interface {
	ViewOpened(ctx context.Context, viewID uuid.UUID, chartYear int) error
	ViewClosed(ctx context.Context, viewID uuid.UUID, reason string) error
	ChartYearChanged(ctx context.Context, viewID uuid.UUID, year int) error
	LiveRefresh(ctx context.Context, viewID uuid.UUID, pending int) error
}

type nopAuditor struct{}

func (nopAuditor) ViewOpened(context.Context, uuid.UUID, int) error       { return nil }
func (nopAuditor) ViewClosed(context.Context, uuid.UUID, string) error    { return nil }
func (nopAuditor) ChartYearChanged(context.Context, uuid.UUID, int) error { return nil }
func (nopAuditor) LiveRefresh(context.Context, uuid.UUID, int) error      { return nil }

// NopAuditor discards every event.
func NopAuditor() Auditor { return nopAuditor{} }

type View struct {
	ID        uuid.UUID
	OpenedAt  time.Time
	Presenter *bookings.Presenter
	Dashboard *dashboard.Dashboard
	Notices   *notice.Board

	auditor  Auditor
	logger   observability.Logger
	lastSeen atomic.Int64
}

func (v *View) touch(now time.Time) { v.lastSeen.Store(now.UnixNano()) }

func (v *View) LastSeen() time.Time { return time.Unix(0, v.lastSeen.Load()) }

// SetYear switches the dashboard chart to year.
func (v *View) SetYear(ctx context.Context, year int) error {
	if err := v.Dashboard.SetYear(ctx, year); err != nil {
		return err
	}
	v.audit(func(ctx context.Context) error { return v.auditor.ChartYearChanged(ctx, v.ID, year) })
	return nil
}

func (v *View) close() error {
	v.Presenter.Close()
	return v.Dashboard.Close()
}

func (v *View) audit(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		v.logger.Warn("audit failed: " + err.Error())
	}
}

type Options struct {
	ChartYear int
	IdleTTL   time.Duration
	// NewChannel builds the live channel of a new view. Nil disables live
	// updates.
	NewChannel func() *live.Channel
}

type Registry struct {
	backend    dashboard.Backend
	classifier *domain.Classifier
	auditor    Auditor
	logger     observability.Logger
	opts       Options
	now        func() time.Time

	mu     sync.Mutex
	views  map[uuid.UUID]*View
	closed bool
}

func NewRegistry(backend dashboard.Backend, classifier *domain.Classifier, auditor Auditor, opts Options, logger observability.Logger) *Registry {
	if auditor == nil {
		auditor = NopAuditor()
	}
	return &Registry{
		backend:    backend,
		classifier: classifier,
		auditor:    auditor,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		views:      make(map[uuid.UUID]*View),
	}
}

// Open creates a view, runs its initial loads and starts listening for live
// updates. Load failures show up as notices on the view, not as an error.
func (r *Registry) Open(ctx context.Context) (*View, error) {
	id := uuid.New()
	logger := r.logger.WithField("view_id", id.String())
	board := notice.NewBoard(noticeLimit)

	var channel *live.Channel
	if r.opts.NewChannel != nil {
		channel = r.opts.NewChannel()
	}

	v := &View{
		ID:        id,
		OpenedAt:  r.now(),
		Presenter: bookings.NewPresenter(r.backend, r.classifier, board, logger),
		Dashboard: dashboard.New(r.backend, r.classifier, channel, r.opts.ChartYear, board, logger),
		Notices:   board,
		auditor:   r.auditor,
		logger:    logger,
	}
	v.touch(v.OpenedAt)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_ = v.Presenter.Load(gctx)
		return nil
	})
	g.Go(func() error {
		_ = v.Dashboard.Load(gctx)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		v.close()
		return nil, errors.Wrap(err, "open view")
	}

	v.Dashboard.OnRefresh(func(pending int) {
		v.audit(func(ctx context.Context) error { return v.auditor.LiveRefresh(ctx, v.ID, pending) })
	})
	// The live channel outlives the request that opened the view.
	if err := v.Dashboard.Start(context.Background()); err != nil {
		v.close()
		return nil, errors.Wrap(err, "start live channel")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		v.close()
		return nil, domain.ErrClosed
	}
	r.views[id] = v
	r.mu.Unlock()

	observability.ViewsOpen.Inc()
	v.audit(func(ctx context.Context) error { return v.auditor.ViewOpened(ctx, id, r.opts.ChartYear) })
	logger.Info("view opened")
	return v, nil
}

// Get returns an open view and marks it as used.
func (r *Registry) Get(id uuid.UUID) (*View, error) {
	r.mu.Lock()
	v, ok := r.views[id]
	r.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "view %s", id)
	}
	v.touch(r.now())
	return v, nil
}

// Close tears the view down. Fetches it started are ignored from now on.
func (r *Registry) Close(id uuid.UUID, reason string) error {
	r.mu.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "view %s", id)
	}

	err := v.close()
	observability.ViewsOpen.Dec()
	v.audit(func(ctx context.Context) error { return v.auditor.ViewClosed(ctx, id, reason) })
	v.logger.WithField("reason", reason).Info("view closed")
	return err
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Run evicts views unused for longer than the idle TTL, checking every
// interval, until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.opts.IdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reap(r.now())
		}
	}
}

func (r *Registry) reap(now time.Time) int {
	r.mu.Lock()
	var idle []uuid.UUID
	for id, v := range r.views {
		if now.Sub(v.LastSeen()) > r.opts.IdleTTL {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, id := range idle {
		if err := r.Close(id, ReasonIdle); err != nil && !errors.Is(err, domain.ErrNotFound) {
			r.logger.WithField("view_id", id.String()).Error("failed to close idle view: ", err)
			continue
		}
		n++
	}
	return n
}

// Shutdown closes every view and refuses new ones.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	r.closed = true
	ids := make([]uuid.UUID, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var errs error
	for _, id := range ids {
		if err := r.Close(id, ReasonShutdown); err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}
