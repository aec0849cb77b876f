package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SumByYear adds up TotalPrice of the bookings ordered in year. Bookings
// without an order time never match.
func SumByYear(bookings []Booking, year int) decimal.Decimal {
	return sumWhere(bookings, func(t time.Time) bool {
		return t.Year() == year
	})
}

// SumCurrentYear is SumByYear for the year of now.
func SumCurrentYear(bookings []Booking, now time.Time) decimal.Decimal {
	return SumByYear(bookings, now.Year())
}

// SumCurrentMonth adds up the bookings ordered in the calendar month of now.
func SumCurrentMonth(bookings []Booking, now time.Time) decimal.Decimal {
	return sumWhere(bookings, func(t time.Time) bool {
		return t.Year() == now.Year() && t.Month() == now.Month()
	})
}

func sumWhere(bookings []Booking, match func(time.Time) bool) decimal.Decimal {
	total := decimal.Zero
	for _, b := range bookings {
		if b.OrderTime == nil || !match(*b.OrderTime) {
			continue
		}
		total = total.Add(b.TotalPrice)
	}
	return total
}
