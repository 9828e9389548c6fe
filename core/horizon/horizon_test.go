package horizon

import (
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestResolveUTC(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	h, err := Resolve(start, 24*time.Hour, 15*time.Minute)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(h.Slots) != 96 {
		t.Fatalf("expected 96 slots, got %d", len(h.Slots))
	}
	// Gapless and non-overlapping.
	for i := 1; i < len(h.Slots); i++ {
		if !h.Slots[i].Start.Equal(h.Slots[i-1].End()) {
			t.Fatalf("gap between slot %d and %d", i-1, i)
		}
	}
	ws, we := h.Window()
	if !ws.Equal(start) || !we.Equal(start.Add(24*time.Hour)) {
		t.Fatalf("window mismatch: %s..%s", ws, we)
	}
}

func TestResolveSpringForward(t *testing.T) {
	loc := mustLoad(t, "Europe/Paris")
	// 2025-03-30: 02:00 jumps to 03:00, the day has 23 absolute hours.
	start := time.Date(2025, 3, 30, 0, 0, 0, 0, loc)
	h, err := Resolve(start, 24*time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(h.Slots) != 23 {
		t.Fatalf("spring-forward day should yield 23 slots, got %d", len(h.Slots))
	}
	_, end := h.Window()
	if end.In(loc).Hour() != 0 || end.In(loc).Day() != 31 {
		t.Fatalf("window should end at next local midnight, got %s", end.In(loc))
	}
}

func TestResolveFallBack(t *testing.T) {
	loc := mustLoad(t, "Europe/Paris")
	// 2025-10-26: 03:00 falls back to 02:00, the day has 25 absolute hours.
	start := time.Date(2025, 10, 26, 0, 0, 0, 0, loc)
	h, err := Resolve(start, 24*time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(h.Slots) != 25 {
		t.Fatalf("fall-back day should yield 25 slots, got %d", len(h.Slots))
	}
}

func TestResolveIndivisible(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if _, err := Resolve(start, time.Hour, 7*time.Minute); err == nil {
		t.Fatalf("expected divisibility error")
	}
	if _, err := Resolve(start, 0, time.Hour); err == nil {
		t.Fatalf("expected duration error")
	}
}

func TestCalendarWorkingTime(t *testing.T) {
	cal := Calendar{DayStart: 8 * 60, DayEnd: 18 * 60, Holidays: []string{"2025-06-09"}}
	if err := cal.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	mon := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	if !cal.IsWorkingTime(mon) {
		t.Fatalf("Monday 09:00 should be workable")
	}
	if cal.IsWorkingTime(mon.Add(12 * time.Hour)) {
		t.Fatalf("Monday 21:00 should not be workable")
	}
	sat := time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC)
	if cal.IsWorkingTime(sat) {
		t.Fatalf("Saturday should not be workable")
	}
	holiday := time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)
	if cal.IsWorkingTime(holiday) {
		t.Fatalf("holiday should not be workable")
	}
}

func TestCalendarValidate(t *testing.T) {
	if err := (Calendar{DayStart: 600, DayEnd: 300}).Validate(); err == nil {
		t.Fatalf("inverted day bounds accepted")
	}
	if err := (Calendar{Holidays: []string{"06/09/2025"}}).Validate(); err == nil {
		t.Fatalf("bad holiday format accepted")
	}
}

func TestWorkingMask(t *testing.T) {
	cal := DefaultCalendar()
	// Friday through Monday, daily resolution.
	start := time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC)
	h, err := Resolve(start, 4*24*time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	mask := cal.WorkingMask(h)
	want := []bool{true, false, false, true}
	for i := range want {
		if mask[i] != want[i] {
			t.Fatalf("mask[%d] = %v, want %v", i, mask[i], want[i])
		}
	}
}
