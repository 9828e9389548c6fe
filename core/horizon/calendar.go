package horizon

import (
	"fmt"
	"time"
)

// Calendar defines workable periods: working weekdays, daily working hours
// and holidays. It is consulted only when a constraint explicitly restricts
// activity to working periods; absent such a constraint every slot is
// eligible.
type Calendar struct {
	// WorkingDays lists eligible weekdays. Empty means Monday through Friday.
	WorkingDays []time.Weekday `json:"working_days"`
	// DayStart and DayEnd bound working hours within a day, as minutes from
	// midnight local time. Both zero means the whole day.
	DayStart int `json:"day_start"`
	DayEnd   int `json:"day_end"`
	// Holidays are non-working dates in "2006-01-02" form, interpreted in the
	// slot's location.
	Holidays []string `json:"holidays"`
}

// DefaultCalendar works Monday to Friday, whole days, no holidays.
func DefaultCalendar() Calendar { return Calendar{} }

// Validate checks the day-hour bounds and holiday date formats.
func (c Calendar) Validate() error {
	if c.DayStart < 0 || c.DayEnd < 0 || c.DayStart > 24*60 || c.DayEnd > 24*60 {
		return fmt.Errorf("calendar: day bounds out of range: %d..%d", c.DayStart, c.DayEnd)
	}
	if c.DayEnd != 0 && c.DayStart >= c.DayEnd {
		return fmt.Errorf("calendar: day start %d not before day end %d", c.DayStart, c.DayEnd)
	}
	for _, h := range c.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("calendar: bad holiday %q: %w", h, err)
		}
	}
	return nil
}

func (c Calendar) workingWeekday(d time.Weekday) bool {
	if len(c.WorkingDays) == 0 {
		return d != time.Saturday && d != time.Sunday
	}
	for _, wd := range c.WorkingDays {
		if wd == d {
			return true
		}
	}
	return false
}

// IsWorkingTime reports whether t falls inside a workable period.
func (c Calendar) IsWorkingTime(t time.Time) bool {
	if !c.workingWeekday(t.Weekday()) {
		return false
	}
	date := t.Format("2006-01-02")
	for _, h := range c.Holidays {
		if h == date {
			return false
		}
	}
	if c.DayStart == 0 && c.DayEnd == 0 {
		return true
	}
	mins := t.Hour()*60 + t.Minute()
	return mins >= c.DayStart && mins < c.DayEnd
}

// WorkingMask returns per-slot eligibility of h under the calendar. A slot is
// workable when its start falls inside a workable period.
func (c Calendar) WorkingMask(h Horizon) []bool {
	mask := make([]bool, len(h.Slots))
	for i, s := range h.Slots {
		mask[i] = c.IsWorkingTime(s.Start)
	}
	return mask
}
