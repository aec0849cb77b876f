package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-booking-dashboard/internal/bookings"
	"github.com/robertarktes/tour-booking-dashboard/internal/dashboard"
	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	"github.com/robertarktes/tour-booking-dashboard/internal/idempotency"
	"github.com/robertarktes/tour-booking-dashboard/internal/notice"
	"github.com/robertarktes/tour-booking-dashboard/internal/session"
)

// Check is one readiness probe dependency.
type Check func(ctx context.Context) error

// Invalidator drops cached collaborator responses.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Handlers struct {
	views  *session.Registry
	checks map[string]Check
	cache  Invalidator
}

// NewHandlers builds the API handlers. cache may be nil when responses are
// not cached.
func NewHandlers(views *session.Registry, checks map[string]Check, cache Invalidator) *Handlers {
	return &Handlers{views: views, checks: checks, cache: cache}
}

type rowResponse struct {
	domain.Booking
	Status      string `json:"status"`
	StatusLabel string `json:"statusLabel"`
	StatusColor string `json:"statusColor"`
}

type snapshotResponse struct {
	Count    int       `json:"count"`
	Status   string    `json:"status,omitempty"`
	Term     string    `json:"term,omitempty"`
	Version  uint64    `json:"version"`
	LoadedAt time.Time `json:"loadedAt"`
}

type pageResponse struct {
	Rows   []rowResponse `json:"rows"`
	Total  int           `json:"total"`
	Page   int           `json:"page"`
	Size   int           `json:"size"`
	Sort   string        `json:"sort,omitempty"`
	Dir    string        `json:"dir,omitempty"`
	Status string        `json:"status,omitempty"`
	Term   string        `json:"term,omitempty"`
}

type detailResponse struct {
	rowResponse
	EndDate string `json:"endDate"`
	Note    string `json:"note"`
}

type dashboardResponse struct {
	dashboard.Summary
	Notices []notice.Notice `json:"notices"`
}

type viewResponse struct {
	ID        uuid.UUID         `json:"id"`
	OpenedAt  time.Time         `json:"openedAt"`
	Bookings  snapshotResponse  `json:"bookings"`
	Dashboard dashboardResponse `json:"dashboard"`
}

func (h *Handlers) OpenView(w http.ResponseWriter, r *http.Request) {
	v, err := h.views.Open(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewResponse{
		ID:        v.ID,
		OpenedAt:  v.OpenedAt,
		Bookings:  toSnapshot(v.Presenter.Snapshot()),
		Dashboard: toDashboard(v),
	})
}

func (h *Handlers) CloseView(w http.ResponseWriter, r *http.Request) {
	id, err := viewID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.views.Close(id, session.ReasonTeardown); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	v, err := h.view(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboard(v))
}

func (h *Handlers) SetYear(w http.ResponseWriter, r *http.Request) {
	v, err := h.view(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Year int `json:"year"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errors.Mark(errors.Wrap(err, "decode year"), domain.ErrInvalidInput))
		return
	}
	// Statistics failures are reported as notices; the new year stays selected.
	if err := v.SetYear(r.Context(), req.Year); err != nil && errors.Is(err, domain.ErrInvalidInput) {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboard(v))
}

func (h *Handlers) ReloadBookings(w http.ResponseWriter, r *http.Request) {
	v, err := h.view(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// An explicit reload reads through to the collaborator.
	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context()); err != nil {
			loggerFrom(r.Context()).Warn("failed to invalidate cache before reload: " + err.Error())
		}
	}
	if err := v.Presenter.Load(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshot(v.Presenter.Snapshot()))
}

func (h *Handlers) FilterBookings(w http.ResponseWriter, r *http.Request) {
	v, err := h.view(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := domain.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshot(v.Presenter.FilterByStatus(st)))
}

func (h *Handlers) SearchBookings(w http.ResponseWriter, r *http.Request) {
	v, err := h.view(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := v.Presenter.Search(r.Context(), r.URL.Query().Get("q")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshot(v.Presenter.Snapshot()))
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	v, err := h.view(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	req := bookings.PageRequest{Sort: q.Get("sort")}
	if req.Page, err = optionalInt(q.Get("page")); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Size, err = optionalInt(q.Get("size")); err != nil {
		writeError(w, r, err)
		return
	}
	switch q.Get("dir") {
	case "", "asc":
	case "desc":
		req.Desc = true
	default:
		writeError(w, r, errors.Wrapf(domain.ErrInvalidInput, "dir %q", q.Get("dir")))
		return
	}

	page, err := v.Presenter.View(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := pageResponse{
		Rows:   make([]rowResponse, len(page.Rows)),
		Total:  page.Total,
		Page:   page.Page,
		Size:   page.Size,
		Sort:   page.Sort,
		Status: page.Status.String(),
		Term:   page.Term,
	}
	if page.Sort != "" {
		resp.Dir = "asc"
		if page.Desc {
			resp.Dir = "desc"
		}
	}
	for i, row := range page.Rows {
		resp.Rows[i] = rowResponse{Booking: row.Booking, Status: row.Status.String(), StatusLabel: row.StatusLabel, StatusColor: row.StatusColor}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	v, err := h.view(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "bookingID"), 10, 64)
	if err != nil {
		writeError(w, r, errors.Wrap(domain.ErrInvalidInput, "invalid booking id"))
		return
	}
	d, err := v.Presenter.OpenDetail(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{
		rowResponse: rowResponse{Booking: d.Booking, Status: d.Status.String(), StatusLabel: d.StatusLabel, StatusColor: d.StatusColor},
		EndDate:     d.EndDate,
		Note:        d.Note,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable", "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) view(r *http.Request) (*session.View, error) {
	id, err := viewID(r)
	if err != nil {
		return nil, err
	}
	return h.views.Get(id)
}

func viewID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errors.Wrap(domain.ErrInvalidInput, "invalid view id")
	}
	return id, nil
}

func optionalInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrInvalidInput, "invalid number %q", v)
	}
	return n, nil
}

func toSnapshot(s *bookings.Snapshot) snapshotResponse {
	return snapshotResponse{
		Count:    s.Count(),
		Status:   s.Status.String(),
		Term:     s.Term,
		Version:  s.Version,
		LoadedAt: s.LoadedAt,
	}
}

func toDashboard(v *session.View) dashboardResponse {
	notes := v.Notices.Drain()
	if notes == nil {
		notes = []notice.Notice{}
	}
	return dashboardResponse{Summary: v.Dashboard.Summary(), Notices: notes}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrClosed):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, idempotency.ErrInFlight):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrBackendUnavailable):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		loggerFrom(r.Context()).Error(err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
