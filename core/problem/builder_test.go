package problem

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/gridflex/flexcore/core/belief"
	"github.com/gridflex/flexcore/core/horizon"
	"github.com/gridflex/flexcore/core/unit"
)

var start = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func hourly(t *testing.T, n int) horizon.Horizon {
	t.Helper()
	h, err := horizon.Resolve(start, time.Duration(n)*time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return h
}

func battery() ConstraintSet {
	return ConstraintSet{
		MinPower:            unit.Q(-2, unit.Kilowatt),
		MaxPower:            unit.Q(2, unit.Kilowatt),
		MinEnergy:           unit.Q(0, unit.KilowattHour),
		MaxEnergy:           unit.Q(10, unit.KilowattHour),
		InitialEnergy:       unit.Q(5, unit.KilowattHour),
		RoundTripEfficiency: 0.9,
	}
}

func priceBelief(slot time.Time, source string, beliefTime time.Time, v float64) belief.Belief {
	return belief.Belief{
		SensorID:   "prices",
		EventStart: slot,
		Resolution: time.Hour,
		BeliefTime: beliefTime,
		Source:     source,
		Value:      unit.Q(v, unit.PerKilowattHour("EUR")),
	}
}

func prices(t *testing.T, h horizon.Horizon, vals []float64) []belief.Belief {
	t.Helper()
	bt := start.Add(-time.Hour)
	out := make([]belief.Belief, len(vals))
	for i, v := range vals {
		out[i] = priceBelief(h.Slots[i].Start, "market", bt, v)
	}
	return out
}

func TestBuildNormalizesUnits(t *testing.T) {
	h := hourly(t, 4)
	cs := battery()
	cs.MaxPower = unit.Q(0.002, unit.Megawatt)
	cs.MaxEnergy = unit.Q(10000, unit.WattHour)
	p, err := Build(cs, h, Inputs{Objective: MinimizeCost, PriceBeliefs: prices(t, h, []float64{1, 2, 3, 4})})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.MaxPower[0] != 2 {
		t.Fatalf("MW not normalized to kW: %v", p.MaxPower[0])
	}
	if p.MaxEnergy != 10 {
		t.Fatalf("Wh not normalized to kWh: %v", p.MaxEnergy)
	}
	if want := math.Sqrt(0.9); p.ChargeEfficiency != want || p.DischargeEfficiency != want {
		t.Fatalf("round-trip efficiency not split: %v / %v", p.ChargeEfficiency, p.DischargeEfficiency)
	}
	if p.Currency != "EUR" {
		t.Fatalf("currency not carried: %q", p.Currency)
	}
}

func TestBuildRejectsContradictoryBounds(t *testing.T) {
	h := hourly(t, 2)
	in := Inputs{Objective: MinimizeCost, PriceBeliefs: prices(t, h, []float64{1, 1})}

	cs := battery()
	cs.MinPower, cs.MaxPower = unit.Q(3, unit.Kilowatt), unit.Q(2, unit.Kilowatt)
	_, err := Build(cs, h, in)
	if !errors.Is(err, ErrInfeasibleSpecification) {
		t.Fatalf("expected ErrInfeasibleSpecification, got %v", err)
	}
	if !strings.Contains(err.Error(), string(ClassPowerBounds)) {
		t.Fatalf("diagnostic should name the constraint class: %v", err)
	}

	cs = battery()
	cs.InitialEnergy = unit.Q(50, unit.KilowattHour)
	_, err = Build(cs, h, in)
	if !errors.Is(err, ErrInfeasibleSpecification) || !strings.Contains(err.Error(), string(ClassEnergyBounds)) {
		t.Fatalf("initial energy outside bounds not classified: %v", err)
	}

	cs = battery()
	cs.RoundTripEfficiency = 1.2
	if _, err := Build(cs, h, in); !errors.Is(err, ErrInfeasibleSpecification) {
		t.Fatalf("efficiency > 1 accepted: %v", err)
	}
}

func TestBuildMissingPriceSlot(t *testing.T) {
	h := hourly(t, 3)
	pb := prices(t, h, []float64{1, 2, 3})[:2] // drop the last slot
	_, err := Build(battery(), h, Inputs{Objective: MinimizeCost, PriceBeliefs: pb})
	if !errors.Is(err, ErrInfeasibleSpecification) {
		t.Fatalf("expected ErrInfeasibleSpecification for missing price, got %v", err)
	}
	if !strings.Contains(err.Error(), string(ClassPrices)) {
		t.Fatalf("diagnostic should name the prices class: %v", err)
	}
}

func TestBuildLatestPriceBeliefWins(t *testing.T) {
	h := hourly(t, 1)
	slot := h.Slots[0].Start
	pb := []belief.Belief{
		priceBelief(slot, "market", start.Add(-2*time.Hour), 10),
		priceBelief(slot, "market", start.Add(-1*time.Hour), 20),
	}
	p, err := Build(battery(), h, Inputs{Objective: MinimizeCost, PriceBeliefs: pb})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Prices[0] != 20 {
		t.Fatalf("stale price belief used: %v", p.Prices[0])
	}
}

func TestBuildMixedCurrencies(t *testing.T) {
	h := hourly(t, 2)
	pb := prices(t, h, []float64{1, 1})
	pb[1].Value = unit.Q(1, unit.PerKilowattHour("USD"))
	if _, err := Build(battery(), h, Inputs{Objective: MinimizeCost, PriceBeliefs: pb}); !errors.Is(err, unit.ErrUnitMismatch) {
		t.Fatalf("mixed currencies accepted: %v", err)
	}
}

func TestBuildCapOverride(t *testing.T) {
	h := hourly(t, 2)
	caps := []belief.Belief{{
		SensorID:   "cap",
		EventStart: h.Slots[1].Start,
		Resolution: time.Hour,
		BeliefTime: start.Add(-time.Hour),
		Source:     "grid-operator",
		Value:      unit.Q(0.5, unit.Kilowatt),
	}}
	p, err := Build(battery(), h, Inputs{
		Objective:    MinimizeCost,
		PriceBeliefs: prices(t, h, []float64{1, 1}),
		CapBeliefs:   caps,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.MaxPower[0] != 2 || p.MaxPower[1] != 0.5 {
		t.Fatalf("cap override not applied: %v", p.MaxPower)
	}
}

func TestBuildWorkingHoursOnly(t *testing.T) {
	// Friday through Monday, daily slots: weekend slots must be forced idle.
	fri := time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC)
	h, err := horizon.Resolve(fri, 4*24*time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	cs := battery()
	cs.WorkingHoursOnly = true
	bt := fri.Add(-time.Hour)
	pb := make([]belief.Belief, len(h.Slots))
	for i, s := range h.Slots {
		pb[i] = priceBelief(s.Start, "market", bt, 1)
	}
	p, err := Build(cs, h, Inputs{Objective: MinimizeCost, PriceBeliefs: pb, Calendar: horizon.DefaultCalendar()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.MinPower[1] != 0 || p.MaxPower[1] != 0 || p.MaxPower[2] != 0 {
		t.Fatalf("weekend slots not forced idle: min=%v max=%v", p.MinPower, p.MaxPower)
	}
	if p.MaxPower[0] != 2 || p.MaxPower[3] != 2 {
		t.Fatalf("working slots clobbered: %v", p.MaxPower)
	}

	// A positive minimum on a non-workable slot cannot be satisfied.
	cs.MinPower = unit.Q(1, unit.Kilowatt)
	if _, err := Build(cs, h, Inputs{Objective: MinimizeCost, PriceBeliefs: pb, Calendar: horizon.DefaultCalendar()}); !errors.Is(err, ErrInfeasibleSpecification) {
		t.Fatalf("forced activity outside working hours accepted: %v", err)
	}
}

func TestBuildTrackProfile(t *testing.T) {
	h := hourly(t, 2)
	target := []unit.Quantity{unit.Q(1, unit.Kilowatt), unit.Q(1000, unit.Watt)}
	p, err := Build(battery(), h, Inputs{Objective: TrackProfile, Target: target})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Target[0] != 1 || p.Target[1] != 1 {
		t.Fatalf("target not normalized: %v", p.Target)
	}
	if _, err := Build(battery(), h, Inputs{Objective: TrackProfile, Target: target[:1]}); !errors.Is(err, ErrInfeasibleSpecification) {
		t.Fatalf("short target profile accepted: %v", err)
	}
}

func TestBuildUnsetBoundsReadAsZero(t *testing.T) {
	h := hourly(t, 2)
	cs := ConstraintSet{
		MinPower:            unit.Q(-2, unit.Kilowatt),
		MaxPower:            unit.Q(2, unit.Kilowatt),
		MaxEnergy:           unit.Q(10, unit.KilowattHour),
		RoundTripEfficiency: 1,
		// MinEnergy, InitialEnergy and Ramp deliberately left zero-value.
	}
	p, err := Build(cs, h, Inputs{Objective: MinimizeCost, PriceBeliefs: prices(t, h, []float64{1, 1})})
	if err != nil {
		t.Fatalf("build with unset optional bounds: %v", err)
	}
	if p.MinEnergy != 0 || p.InitialEnergy != 0 || p.Ramp != 0 {
		t.Fatalf("unset bounds not read as zero: minE=%v initE=%v ramp=%v", p.MinEnergy, p.InitialEnergy, p.Ramp)
	}

	// A nonzero value still demands a unit of the right dimension.
	cs.InitialEnergy = unit.Quantity{Value: 3}
	if _, err := Build(cs, h, Inputs{Objective: MinimizeCost, PriceBeliefs: prices(t, h, []float64{1, 1})}); !errors.Is(err, unit.ErrUnitMismatch) {
		t.Fatalf("unitless nonzero bound accepted: %v", err)
	}
}
