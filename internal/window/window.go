// Package window implements the bidding window: bidding is allowed only during
// a few whole local hours of the day and requirement edits only outside them.
package window

import (
	"fmt"
	"sort"
	"time"
)

// DefaultHours are the local hours during which the window is open (08:00-08:59, 20:00-20:59)
var DefaultHours = []int{8, 20}

// Policy decides whether the bidding window is open at a given instant.
// A nil Location evaluates each instant in its own location.
type Policy struct {
	Location *time.Location
	hours    []int
}

// Status is a snapshot of the window at one instant
type Status struct {
	Open        bool          `json:"open"`
	NextOpening time.Time     `json:"next_opening"`
	TimeToNext  time.Duration `json:"time_to_next"`
	Countdown   string        `json:"countdown"`
	ClosesAt    *time.Time    `json:"closes_at,omitempty"`
}

// NewPolicy creates a policy for the given location and opening hours.
// Without hours it uses DefaultHours.
func NewPolicy(loc *time.Location, hours ...int) (*Policy, error) {
	if len(hours) == 0 {
		hours = DefaultHours
	}
	sorted := make([]int, len(hours))
	copy(sorted, hours)
	sort.Ints(sorted)
	for i, h := range sorted {
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("window hour %d out of range 0-23", h)
		}
		if i > 0 && sorted[i-1] == h {
			return nil, fmt.Errorf("window hour %d listed twice", h)
		}
	}
	return &Policy{Location: loc, hours: sorted}, nil
}

var defaultPolicy = &Policy{hours: DefaultHours}

// IsWindowOpen reports whether now falls in a default window, using the location attached to now
func IsWindowOpen(now time.Time) bool {
	return defaultPolicy.IsOpen(now)
}

// TimeToNextWindow returns the time from now until the next default window opens
func TimeToNextWindow(now time.Time) time.Duration {
	return defaultPolicy.TimeToNext(now)
}

// Hours returns the opening hours in ascending order
func (p *Policy) Hours() []int {
	out := make([]int, len(p.hours))
	copy(out, p.hours)
	return out
}

func (p *Policy) local(now time.Time) time.Time {
	if p.Location == nil {
		return now
	}
	return now.In(p.Location)
}

// IsOpen reports whether the hour of now is one of the window hours.
// Only the hour matters: 08:59:59 is open, 09:00:00 is not.
func (p *Policy) IsOpen(now time.Time) bool {
	hour := p.local(now).Hour()
	for _, h := range p.hours {
		if h == hour {
			return true
		}
	}
	return false
}

// NextOpening returns the start of the next window strictly after the current hour.
// While a window is open this is the following window, not the current one.
func (p *Policy) NextOpening(now time.Time) time.Time {
	t := p.local(now)
	y, m, d := t.Date()
	for _, h := range p.hours {
		if h > t.Hour() {
			return time.Date(y, m, d, h, 0, 0, 0, t.Location())
		}
	}
	return time.Date(y, m, d+1, p.hours[0], 0, 0, 0, t.Location())
}

// TimeToNext returns how long until NextOpening
func (p *Policy) TimeToNext(now time.Time) time.Duration {
	return p.NextOpening(now).Sub(now)
}

// Status summarises the window at now
func (p *Policy) Status(now time.Time) Status {
	next := p.NextOpening(now)
	st := Status{
		Open:        p.IsOpen(now),
		NextOpening: next,
		TimeToNext:  next.Sub(now),
		Countdown:   FormatCountdown(next.Sub(now)),
	}
	if st.Open {
		t := p.local(now)
		y, m, d := t.Date()
		closes := time.Date(y, m, d, t.Hour()+1, 0, 0, 0, t.Location())
		st.ClosesAt = &closes
	}
	return st
}

// FormatCountdown renders a duration as "Xh Ym", truncating seconds
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
