// Package policy derives booking windows from restaurant service definitions.
//
// All arithmetic happens in the restaurant's own time zone. Interval
// comparisons use half-open [start, end) semantics so touching windows never
// count as overlapping, and local times that fall inside a DST gap are
// coerced forward to the next valid instant.
package policy

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrServiceNotFound is returned when no service covers the requested start.
	ErrServiceNotFound = errors.New("policy: no service covers requested time")
	// ErrServiceOverrun is returned when the dining window would exceed the
	// service close boundary.
	ErrServiceOverrun = errors.New("policy: dining window exceeds service close")
)

// ClockTime is a wall-clock time of day in the restaurant's zone.
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Minutes returns the clock time as minutes after midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Service is a named seating period such as lunch or dinner. A Close at or
// before Open means the service runs past midnight into the next day. An
// empty Weekdays slice matches every day.
type Service struct {
	Key      string         `json:"key"`
	Open     ClockTime      `json:"open"`
	Close    ClockTime      `json:"close"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
}

func (s Service) matchesWeekday(day time.Weekday) bool {
	if len(s.Weekdays) == 0 {
		return true
	}
	for _, d := range s.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// DurationBand maps a party-size bucket within a service to a dining
// duration. Bounds are inclusive.
type DurationBand struct {
	ServiceKey string `json:"service_key"`
	MinParty   int    `json:"min_party"`
	MaxParty   int    `json:"max_party"`
	Minutes    int    `json:"minutes"`
}

// Policy bundles the service definitions and duration bands for one
// restaurant.
type Policy struct {
	Location       *time.Location `json:"-"`
	Services       []Service      `json:"services"`
	Bands          []DurationBand `json:"bands"`
	DefaultMinutes int            `json:"default_minutes"`
	BufferMinutes  int            `json:"buffer_minutes"`
}

// BookingWindow is the derived seating interval for one booking.
type BookingWindow struct {
	DiningStart time.Time
	DiningEnd   time.Time
	ServiceKey  string
	BufferEnd   time.Time
}

// Resolve computes the booking window for a requested start and party size.
func (p Policy) Resolve(start time.Time, partySize int) (BookingWindow, error) {
	if partySize <= 0 {
		return BookingWindow{}, fmt.Errorf("policy: party size must be positive, got %d", partySize)
	}

	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	local := start.In(loc)

	service, serviceDay, ok := p.findService(local)
	if !ok {
		return BookingWindow{}, ErrServiceNotFound
	}

	minutes := p.durationMinutes(service.Key, partySize)
	diningStart := local
	diningEnd := diningStart.Add(time.Duration(minutes) * time.Minute)

	closeAt := serviceClose(service, serviceDay, loc)
	if diningEnd.After(closeAt) {
		return BookingWindow{}, ErrServiceOverrun
	}

	buffer := time.Duration(p.BufferMinutes) * time.Minute
	return BookingWindow{
		DiningStart: diningStart,
		DiningEnd:   diningEnd,
		ServiceKey:  service.Key,
		BufferEnd:   diningEnd.Add(buffer),
	}, nil
}

// findService locates the service whose open interval covers the local start.
// For services crossing midnight the covering interval may have opened on the
// previous calendar day; serviceDay reports the day the service opened.
func (p Policy) findService(local time.Time) (Service, time.Time, bool) {
	day := startOfDay(local)
	prev := day.AddDate(0, 0, -1)

	for _, svc := range p.Services {
		open := svc.Open.Minutes()
		close := svc.Close.Minutes()
		minute := local.Hour()*60 + local.Minute()

		if close > open {
			if svc.matchesWeekday(local.Weekday()) && minute >= open && minute < close {
				return svc, day, true
			}
			continue
		}

		// Service crosses midnight: covers [open, 24h) on the opening day and
		// [0, close) on the following day.
		if svc.matchesWeekday(local.Weekday()) && minute >= open {
			return svc, day, true
		}
		if svc.matchesWeekday(prev.Weekday()) && minute < close {
			return svc, prev, true
		}
	}

	return Service{}, time.Time{}, false
}

func (p Policy) durationMinutes(serviceKey string, partySize int) int {
	for _, band := range p.Bands {
		if band.ServiceKey != serviceKey {
			continue
		}
		if partySize < band.MinParty {
			continue
		}
		if band.MaxParty > 0 && partySize > band.MaxParty {
			continue
		}
		return band.Minutes
	}
	if p.DefaultMinutes > 0 {
		return p.DefaultMinutes
	}
	return 90
}

func serviceClose(svc Service, serviceDay time.Time, loc *time.Location) time.Time {
	day := serviceDay
	if svc.Close.Minutes() <= svc.Open.Minutes() {
		day = day.AddDate(0, 0, 1)
	}
	return NormalizeLocal(day.Year(), day.Month(), day.Day(), svc.Close, loc)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NormalizeLocal builds an absolute instant from a local calendar date and
// clock time. When the wall-clock time does not exist because a DST
// transition skipped it, the result is pushed forward to the first valid
// instant after the gap.
func NormalizeLocal(year int, month time.Month, day int, clock ClockTime, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	candidate := time.Date(year, month, day, clock.Hour, clock.Minute, 0, 0, loc)
	if candidate.Hour() == clock.Hour && candidate.Minute() == clock.Minute {
		return candidate
	}

	// Inside a DST gap time.Date lands on a nearby valid instant whose clock
	// reading differs from the request. Walk forward until the reading
	// round-trips; gaps are at most a few hours.
	probe := time.Date(year, month, day, clock.Hour, clock.Minute, 0, 0, time.UTC)
	for i := 0; i < 6*60; i++ {
		probe = probe.Add(time.Minute)
		attempt := time.Date(probe.Year(), probe.Month(), probe.Day(), probe.Hour(), probe.Minute(), 0, 0, loc)
		if attempt.Hour() == probe.Hour() && attempt.Minute() == probe.Minute() {
			return attempt
		}
	}
	return candidate
}

// Overlaps reports whether two half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Both operands are compared as absolute instants,
// so intervals spanning a DST transition behave correctly.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
