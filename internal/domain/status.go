package domain

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultTourDuration is the number of days a tour lasts when not configured.
const DefaultTourDuration = 3

// Status is the lifecycle phase of a booking relative to the current time.
type Status int

const (
	StatusNone Status = iota
	StatusUpcoming
	StatusOngoing
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusUpcoming:
		return "upcoming"
	case StatusOngoing:
		return "ongoing"
	case StatusFinished:
		return "finished"
	}
	return ""
}

// Label is the text shown in the bookings table.
func (s Status) Label() string {
	switch s {
	case StatusUpcoming:
		return "Chưa diễn ra"
	case StatusOngoing:
		return "Đang diễn ra"
	case StatusFinished:
		return "Đã kết thúc"
	}
	return ""
}

func (s Status) Color() string {
	switch s {
	case StatusUpcoming:
		return "orange"
	case StatusOngoing:
		return "green"
	}
	return "red"
}

// ParseStatus maps a filter value to a Status. The empty string is StatusNone.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return StatusNone, nil
	case "upcoming":
		return StatusUpcoming, nil
	case "ongoing":
		return StatusOngoing, nil
	case "finished":
		return StatusFinished, nil
	}
	return StatusNone, errors.Wrapf(ErrInvalidInput, "unknown status %q", v)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"02/01/2006",
}

// ParseDate parses the date formats the backend emits. Values without an
// explicit offset are read in loc.
func ParseDate(v string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, errors.Wrapf(ErrInvalidDate, "parse %q", v)
}

// Classifier derives a booking's Status from its tour start date.
type Classifier struct {
	duration int
	loc      *time.Location
	now      func() time.Time
}

func NewClassifier(durationDays int, loc *time.Location) *Classifier {
	if durationDays <= 0 {
		durationDays = DefaultTourDuration
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Classifier{duration: durationDays, loc: loc, now: time.Now}
}

// WithClock returns a copy of c reading the current time from now.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Classifier) Location() *time.Location { return c.loc }

func (c *Classifier) Duration() int { return c.duration }

func (c *Classifier) Now() time.Time { return c.now().In(c.loc) }

// Classify returns the status of b at the classifier's current time.
func (c *Classifier) Classify(b Booking) Status {
	return c.ClassifyAt(b, c.now())
}

// ClassifyAt returns Upcoming before the start date, Ongoing from the start
// through start+(duration-1) days, and Finished afterwards. A start date that
// cannot be parsed is never upcoming nor ongoing, so it reports Finished.
func (c *Classifier) ClassifyAt(b Booking, now time.Time) Status {
	start, err := ParseDate(b.TourStartDate(), c.loc)
	if err != nil {
		return StatusFinished
	}
	end := start.AddDate(0, 0, c.duration-1)
	switch {
	case now.Before(start):
		return StatusUpcoming
	case !now.After(end):
		return StatusOngoing
	}
	return StatusFinished
}

// EndDate is the day the tour finishes, start + duration days, the way the
// detail view shows it.
func (c *Classifier) EndDate(b Booking) (time.Time, error) {
	start, err := ParseDate(b.TourStartDate(), c.loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 0, c.duration), nil
}
