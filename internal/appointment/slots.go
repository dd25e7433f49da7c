package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type bookedLister interface {
	BookedInstants(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)
}

// SlotClock derives bookable instants for a doctor. Nothing is cached; every
// call reads the booked set afresh.
type SlotClock struct {
	booked    bookedLister
	interval  time.Duration
	startHour int
	endHour   int
	loc       *time.Location
}

func NewSlotClock(booked bookedLister, interval time.Duration, startHour, endHour int, loc *time.Location) *SlotClock {
	if loc == nil {
		loc = time.UTC
	}
	return &SlotClock{
		booked:    booked,
		interval:  interval,
		startHour: startHour,
		endHour:   endHour,
		loc:       loc,
	}
}

// Window is [reference day at the start hour, last day of the reference month at the end hour].
func (c *SlotClock) Window(reference time.Time) (time.Time, time.Time) {
	ref := reference.In(c.loc)
	y, m, d := ref.Date()
	start := time.Date(y, m, d, c.startHour, 0, 0, 0, c.loc)
	// day 0 of the next month is the last day of this one
	end := time.Date(y, m+1, 0, c.endHour, 0, 0, 0, c.loc)
	return start, end
}

// AvailableSlots returns every lattice instant inside working hours, not before
// reference and not already booked for doctorID (uuid.Nil means any doctor).
// The lattice restarts at the start hour of each local day, so every day offers
// the same wall-clock times whatever the interval or DST shifts.
func (c *SlotClock) AvailableSlots(ctx context.Context, doctorID uuid.UUID, reference time.Time) ([]time.Time, error) {
	start, end := c.Window(reference)

	booked, err := c.booked.BookedInstants(ctx, doctorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("available slots: %w", err)
	}
	taken := make(map[int64]struct{}, len(booked))
	for _, b := range booked {
		taken[b.UnixNano()] = struct{}{}
	}

	slots := []time.Time{}
	for day := start; !day.After(end); day = c.nextDay(day) {
		y, m, d := day.Date()
		dayEnd := time.Date(y, m, d, c.endHour, 0, 0, 0, c.loc)
		for t := day; !t.After(dayEnd); t = t.Add(c.interval) {
			if t.Before(reference) || !c.inWorkingHours(t) {
				continue
			}
			if _, ok := taken[t.UnixNano()]; ok {
				continue
			}
			slots = append(slots, t)
		}
	}
	return slots, nil
}

func (c *SlotClock) nextDay(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+1, c.startHour, 0, 0, 0, c.loc)
}

func (c *SlotClock) inWorkingHours(t time.Time) bool {
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= c.startHour*60 && minutes <= c.endHour*60
}

// RoundToQuarterHour rounds to the nearest 15 minute boundary after dropping
// seconds: a remainder under 8 minutes rounds down, otherwise up.
func RoundToQuarterHour(t time.Time) time.Time {
	t = t.Truncate(time.Minute)
	rem := t.Minute() % 15
	if rem < 8 {
		return t.Add(-time.Duration(rem) * time.Minute)
	}
	return t.Add(time.Duration(15-rem) * time.Minute)
}
