package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tour is the product a booking refers to. It is embedded in every Booking.
type Tour struct {
	Name      string `json:"name"`
	Image     string `json:"image"`
	StartDate string `json:"startDate"`
}

// Booking is one customer order for a tour, as returned by the backend.
// OrderTime is nil when the backend did not record it; otherwise it is
// expressed in the dashboard calendar (see config.Location).
type Booking struct {
	ID         int64           `json:"orderId"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone"`
	Note       string          `json:"note"`
	Address    string          `json:"address"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	StartDate  string          `json:"startDate"`
	Tour       Tour            `json:"tour"`
	OrderTime  *time.Time      `json:"orderTime,omitempty"`
}

// TourStartDate returns the date the status classifier works from: the
// tour's start date, or the booking's own start date when the tour has none.
func (b Booking) TourStartDate() string {
	if b.Tour.StartDate != "" {
		return b.Tour.StartDate
	}
	return b.StartDate
}

// BookRequestPending is the status of a booking request nobody has handled yet.
const BookRequestPending = 0

// BookRequest is a booking request awaiting back-office handling.
type BookRequest struct {
	ID     int64 `json:"bookId"`
	Status int   `json:"status"`
}

// CountPending returns how many requests are still unhandled.
func CountPending(requests []BookRequest) int {
	n := 0
	for _, r := range requests {
		if r.Status == BookRequestPending {
			n++
		}
	}
	return n
}

// StatisticalPoint is one month's revenue for the year it was queried for.
type StatisticalPoint struct {
	Month  int             `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}
