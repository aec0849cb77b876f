package bookings

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Sort keys accepted by PageRequest, named after the bookings table columns.
const (
	SortID       = "id"
	SortTourName = "nameTour"
	SortEmail    = "email"
	SortPhone    = "phone"
	SortAmount   = "amount"
	SortBookDate = "bookDate"
	SortStatus   = "status"
)

type PageRequest struct {
	Page int // zero based
	Size int
	Sort string
	Desc bool
}

func (r PageRequest) normalize() PageRequest {
	if r.Page < 0 {
		r.Page = 0
	}
	if r.Size <= 0 {
		r.Size = DefaultPageSize
	}
	if r.Size > MaxPageSize {
		r.Size = MaxPageSize
	}
	return r
}

// Row is one table line: the booking plus its derived status.
type Row struct {
	Booking     domain.Booking
	Status      domain.Status
	StatusLabel string
	StatusColor string
}

type Page struct {
	Rows   []Row
	Total  int
	Page   int
	Size   int
	Sort   string
	Desc   bool
	Status domain.Status
	Term   string
}

func validSort(key string) bool {
	switch key {
	case "", SortID, SortTourName, SortEmail, SortPhone, SortAmount, SortBookDate, SortStatus:
		return true
	}
	return false
}

func sortRows(rows []Row, key string, desc bool) {
	if key == "" {
		return
	}
	slices.SortStableFunc(rows, func(a, b Row) int {
		c := compareBy(key, a, b)
		if desc {
			return -c
		}
		return c
	})
}

func compareBy(key string, a, b Row) int {
	switch key {
	case SortID:
		return cmp.Compare(a.Booking.ID, b.Booking.ID)
	case SortTourName:
		return strings.Compare(strings.ToLower(a.Booking.Tour.Name), strings.ToLower(b.Booking.Tour.Name))
	case SortEmail:
		return strings.Compare(a.Booking.Email, b.Booking.Email)
	case SortPhone:
		return strings.Compare(a.Booking.Phone, b.Booking.Phone)
	case SortAmount:
		return a.Booking.TotalPrice.Cmp(b.Booking.TotalPrice)
	case SortBookDate:
		return compareTime(a.Booking.OrderTime, b.Booking.OrderTime)
	case SortStatus:
		return cmp.Compare(a.Status, b.Status)
	}
	return 0
}

func compareTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}
