package bookings

import (
	"slices"
	"strings"
	"time"

	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
)

// Snapshot is an immutable view state. Presenter replaces it wholesale and
// never mutates a published one.
type Snapshot struct {
	// Loaded is the collection the last load or search produced.
	Loaded []domain.Booking
	// Visible is Loaded narrowed by the active status filter.
	Visible  []domain.Booking
	Status   domain.Status
	Term     string
	Version  uint64
	LoadedAt time.Time
}

func (s *Snapshot) Count() int { return len(s.Visible) }

func (s *Snapshot) find(id int64) (domain.Booking, bool) {
	for _, b := range s.Loaded {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Booking{}, false
}

// SortByOrderTimeDesc returns a copy of in ordered newest first. Bookings
// without an order time come before every timestamped one; ties keep their
// input order.
func SortByOrderTimeDesc(in []domain.Booking) []domain.Booking {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b domain.Booking) int {
		switch {
		case a.OrderTime == nil && b.OrderTime == nil:
			return 0
		case a.OrderTime == nil:
			return -1
		case b.OrderTime == nil:
			return 1
		}
		return b.OrderTime.Compare(*a.OrderTime)
	})
	return out
}

// FilterByStatus keeps the bookings c classifies as st at now. StatusNone
// keeps everything.
func FilterByStatus(in []domain.Booking, st domain.Status, c *domain.Classifier, now time.Time) []domain.Booking {
	if st == domain.StatusNone {
		return slices.Clone(in)
	}
	out := make([]domain.Booking, 0, len(in))
	for _, b := range in {
		if c.ClassifyAt(b, now) == st {
			out = append(out, b)
		}
	}
	return out
}

// MatchTourName keeps the bookings whose tour name contains term, ignoring case.
func MatchTourName(in []domain.Booking, term string) []domain.Booking {
	term = strings.ToLower(term)
	out := make([]domain.Booking, 0, len(in))
	for _, b := range in {
		if strings.Contains(strings.ToLower(b.Tour.Name), term) {
			out = append(out, b)
		}
	}
	return out
}
