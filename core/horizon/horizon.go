package horizon

import (
	"errors"
	"fmt"
	"time"
)

// Slot is one scheduling interval.
type Slot struct {
	Start    time.Time
	Duration time.Duration
}

// End returns the exclusive end of the slot.
func (s Slot) End() time.Time { return s.Start.Add(s.Duration) }

// Horizon is an ordered, gapless, non-overlapping sequence of equal-length
// slots covering a scheduling window.
type Horizon struct {
	Slots      []Slot
	Resolution time.Duration
}

// Window returns the covered event window as [start, end).
func (h Horizon) Window() (time.Time, time.Time) {
	if len(h.Slots) == 0 {
		return time.Time{}, time.Time{}
	}
	return h.Slots[0].Start, h.Slots[len(h.Slots)-1].End()
}

// Resolve builds the discrete slot index for a scheduling window. The window
// end is derived on the wall clock: whole days of the nominal duration are
// added calendar-wise, so a nominal 24h window spanning a daylight-saving
// transition covers 23 or 25 absolute hours and yields a slot count
// consistent with the wall-clock span, not a fixed nominal count.
func Resolve(start time.Time, duration, resolution time.Duration) (Horizon, error) {
	if resolution <= 0 {
		return Horizon{}, errors.New("horizon: resolution must be positive")
	}
	if duration <= 0 {
		return Horizon{}, errors.New("horizon: duration must be positive")
	}

	days := int(duration / (24 * time.Hour))
	rem := duration % (24 * time.Hour)
	end := start.AddDate(0, 0, days).Add(rem)

	span := end.Sub(start)
	if span <= 0 {
		return Horizon{}, fmt.Errorf("horizon: empty wall-clock span for %s from %s", duration, start)
	}
	if span%resolution != 0 {
		return Horizon{}, fmt.Errorf("horizon: span %s not divisible by resolution %s", span, resolution)
	}

	n := int(span / resolution)
	slots := make([]Slot, n)
	for i := range slots {
		slots[i] = Slot{Start: start.Add(time.Duration(i) * resolution), Duration: resolution}
	}
	return Horizon{Slots: slots, Resolution: resolution}, nil
}
