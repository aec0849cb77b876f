package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	"github.com/shopspring/decimal"
)

// flexTime accepts the shapes the backend serializes dates in: an ISO
// string, a [y, m, d, h, min, s] array, or null.
type flexTime struct {
	raw json.RawMessage
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	f.raw = append(f.raw[:0], b...)
	return nil
}

func (f flexTime) empty() bool {
	t := bytes.TrimSpace(f.raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// Time resolves the value in loc. Missing or malformed values yield nil.
func (f flexTime) Time(loc *time.Location) *time.Time {
	if f.empty() {
		return nil
	}
	var s string
	if err := json.Unmarshal(f.raw, &s); err == nil {
		t, err := domain.ParseDate(s, loc)
		if err != nil {
			return nil
		}
		return &t
	}
	var parts []int
	if err := json.Unmarshal(f.raw, &parts); err != nil || len(parts) < 3 {
		return nil
	}
	for len(parts) < 6 {
		parts = append(parts, 0)
	}
	t := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, loc)
	return &t
}

// Date renders the value as the date string the domain keeps, passing
// strings through untouched.
func (f flexTime) Date() string {
	if f.empty() {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.raw, &s); err == nil {
		return s
	}
	var parts []int
	if err := json.Unmarshal(f.raw, &parts); err != nil || len(parts) < 3 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", parts[0], parts[1], parts[2])
}

type tourDTO struct {
	Name      string   `json:"name"`
	Image     string   `json:"image"`
	StartDate flexTime `json:"startDate"`
}

type orderDTO struct {
	OrderID    int64           `json:"orderId"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone"`
	Note       string          `json:"note"`
	Address    string          `json:"address"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	StartDate  flexTime        `json:"startDate"`
	Tour       *tourDTO        `json:"tour"`
	OrderTime  flexTime        `json:"orderTime"`
}

func (o orderDTO) toDomain(loc *time.Location) domain.Booking {
	b := domain.Booking{
		ID:         o.OrderID,
		Name:       o.Name,
		Email:      o.Email,
		Phone:      o.Phone,
		Note:       o.Note,
		Address:    o.Address,
		TotalPrice: o.TotalPrice,
		StartDate:  o.StartDate.Date(),
		OrderTime:  o.OrderTime.Time(loc),
	}
	if o.Tour != nil {
		b.Tour = domain.Tour{Name: o.Tour.Name, Image: o.Tour.Image, StartDate: o.Tour.StartDate.Date()}
	}
	return b
}

type bookDTO struct {
	BookID int64 `json:"bookId"`
	Status int   `json:"status"`
}

type statisticalDTO struct {
	Month  int             `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}
