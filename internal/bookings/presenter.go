// Package bookings is the booking list screen: it keeps the fetched bookings
// of one view and derives the filtered, searched, sorted and paged table.
package bookings

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	"github.com/robertarktes/tour-booking-dashboard/internal/notice"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
)

const noteFallback = "Không có"

// Fetcher returns every booking known to the backend.
type Fetcher interface {
	ListBookings(ctx context.Context) ([]domain.Booking, error)
}

// Presenter owns the working copy of the bookings for a single view.
//
// Load and Search fetch; each fetch takes a token when it starts and its
// result is committed only if no fetch started later has committed already.
// A new Search cancels the previous one still in flight.
type Presenter struct {
	fetcher    Fetcher
	classifier *domain.Classifier
	notices    *notice.Board
	logger     observability.Logger

	mu           sync.Mutex
	snap         *Snapshot
	issued       uint64
	committed    uint64
	cancelSearch context.CancelFunc
	closed       bool
}

func NewPresenter(fetcher Fetcher, classifier *domain.Classifier, notices *notice.Board, logger observability.Logger) *Presenter {
	return &Presenter{
		fetcher:    fetcher,
		classifier: classifier,
		notices:    notices,
		logger:     logger,
		snap:       &Snapshot{},
	}
}

// Snapshot returns the current view state.
func (p *Presenter) Snapshot() *Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Load fetches all bookings, orders them newest first and clears any filter
// or search term. On failure the previous state stays in place.
func (p *Presenter) Load(ctx context.Context) error {
	token, err := p.begin()
	if err != nil {
		return err
	}
	data, err := p.fetcher.ListBookings(ctx)
	if err != nil {
		return p.fail(ctx, "load bookings", err)
	}
	sorted := SortByOrderTimeDesc(data)
	p.commit(token, func(version uint64) *Snapshot {
		return &Snapshot{Loaded: sorted, Visible: sorted, Version: version, LoadedAt: p.classifier.Now()}
	})
	return nil
}

// Search refetches and keeps the bookings whose tour name contains term.
// The matches become the loaded collection, so a later FilterByStatus
// narrows them further.
func (p *Presenter) Search(ctx context.Context, term string) error {
	p.mu.Lock()
	if p.cancelSearch != nil {
		p.cancelSearch()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancelSearch = cancel
	p.mu.Unlock()
	defer cancel()

	token, err := p.begin()
	if err != nil {
		return err
	}
	data, err := p.fetcher.ListBookings(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "search superseded")
		}
		return p.fail(ctx, "search bookings", err)
	}
	matched := SortByOrderTimeDesc(MatchTourName(data, term))
	p.commit(token, func(version uint64) *Snapshot {
		return &Snapshot{Loaded: matched, Visible: matched, Term: term, Version: version, LoadedAt: p.classifier.Now()}
	})
	return nil
}

// FilterByStatus narrows the loaded collection to one status. StatusNone
// restores the whole loaded collection.
func (p *Presenter) FilterByStatus(st domain.Status) *Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := p.snap
	next := &Snapshot{
		Loaded:   cur.Loaded,
		Visible:  FilterByStatus(cur.Loaded, st, p.classifier, p.classifier.Now()),
		Status:   st,
		Term:     cur.Term,
		Version:  cur.Version + 1,
		LoadedAt: cur.LoadedAt,
	}
	if !p.closed {
		p.snap = next
	}
	return p.snap
}

// View returns one page of the visible bookings in the requested order.
func (p *Presenter) View(req PageRequest) (Page, error) {
	if !validSort(req.Sort) {
		return Page{}, errors.Wrapf(domain.ErrInvalidInput, "unknown sort key %q", req.Sort)
	}
	req = req.normalize()
	snap := p.Snapshot()
	now := p.classifier.Now()

	rows := make([]Row, len(snap.Visible))
	for i, b := range snap.Visible {
		st := p.classifier.ClassifyAt(b, now)
		rows[i] = Row{Booking: b, Status: st, StatusLabel: st.Label(), StatusColor: st.Color()}
	}
	sortRows(rows, req.Sort, req.Desc)

	from := min(req.Page*req.Size, len(rows))
	to := min(from+req.Size, len(rows))
	return Page{
		Rows:   rows[from:to],
		Total:  len(rows),
		Page:   req.Page,
		Size:   req.Size,
		Sort:   req.Sort,
		Desc:   req.Desc,
		Status: snap.Status,
		Term:   snap.Term,
	}, nil
}

// Detail is the read-only booking dialog.
type Detail struct {
	Booking     domain.Booking
	Status      domain.Status
	StatusLabel string
	StatusColor string
	EndDate     string
	Note        string
}

// OpenDetail looks a booking up in the loaded collection. It changes nothing.
func (p *Presenter) OpenDetail(id int64) (Detail, error) {
	b, ok := p.Snapshot().find(id)
	if !ok {
		return Detail{}, errors.Wrapf(domain.ErrNotFound, "booking %d", id)
	}
	st := p.classifier.Classify(b)
	d := Detail{Booking: b, Status: st, StatusLabel: st.Label(), StatusColor: st.Color(), Note: b.Note}
	if d.Note == "" {
		d.Note = noteFallback
	}
	if end, err := p.classifier.EndDate(b); err == nil {
		d.EndDate = end.Format("02/01/2006")
	}
	return d, nil
}

// Close detaches the presenter from its view; fetches still in flight
// complete without touching the state.
func (p *Presenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.cancelSearch != nil {
		p.cancelSearch()
	}
}

func (p *Presenter) begin() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, domain.ErrClosed
	}
	p.issued++
	return p.issued, nil
}

func (p *Presenter) commit(token uint64, build func(version uint64) *Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || token < p.committed {
		p.logger.Debug("discarding superseded booking fetch")
		return
	}
	p.committed = token
	p.snap = build(p.snap.Version + 1)
}

func (p *Presenter) fail(ctx context.Context, op string, err error) error {
	if ctx.Err() == nil {
		p.notices.Push(notice.ServerError(time.Now()))
	}
	observability.FetchErrors.WithLabelValues("bookings").Inc()
	p.logger.WithField("op", op).Error(err)
	return errors.Wrap(err, op)
}
