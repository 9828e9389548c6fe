package problem

import (
	"fmt"
	"math"
	"time"

	"github.com/gridflex/flexcore/core/belief"
	"github.com/gridflex/flexcore/core/horizon"
	"github.com/gridflex/flexcore/core/unit"
)

// ConstraintSet holds the physical bounds of a schedulable sensor. Bounds are
// quantities so unit discipline is enforced at build time, not by field-name
// convention.
type ConstraintSet struct {
	// Power bounds per slot. Positive power charges/consumes, negative
	// discharges/produces.
	MinPower unit.Quantity
	MaxPower unit.Quantity

	// Stored-energy bounds and the level entering the horizon.
	MinEnergy     unit.Quantity
	MaxEnergy     unit.Quantity
	InitialEnergy unit.Quantity

	// Ramp bounds the power change between consecutive slots. Zero value
	// means unlimited.
	Ramp unit.Quantity

	// RoundTripEfficiency in (0, 1].
	RoundTripEfficiency float64

	// WorkingHoursOnly restricts activity to the calendar's workable periods.
	WorkingHoursOnly bool
}

// Inputs carries the economic signals for one build, queried from the belief
// store at a fixed as-of cutoff so the whole problem sees one consistent
// snapshot.
type Inputs struct {
	Objective ObjectiveKind
	// PriceBeliefs supply the cost vector for MinimizeCost. Multiple sources
	// may be present; per slot the most recently formed belief wins.
	PriceBeliefs []belief.Belief
	// Target supplies the profile for TrackProfile, one power quantity per
	// slot.
	Target []unit.Quantity
	// CapBeliefs optionally override MaxPower per slot with a time-varying
	// capacity limit.
	CapBeliefs []belief.Belief
	// Calendar is consulted only when the constraint set restricts activity
	// to working periods.
	Calendar horizon.Calendar
}

// Build assembles the abstract optimization problem and runs the mandatory
// local feasibility pre-check. Contradictory bounds fail with
// ErrInfeasibleSpecification before any solver runs, so specification bugs
// are not masked as solver failures.
func Build(cs ConstraintSet, h horizon.Horizon, in Inputs) (*Problem, error) {
	n := len(h.Slots)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty horizon", ErrInfeasibleSpecification)
	}
	if cs.RoundTripEfficiency <= 0 || cs.RoundTripEfficiency > 1 {
		return nil, fmt.Errorf("%w: %s: round-trip efficiency %v out of (0,1]",
			ErrInfeasibleSpecification, ClassStateUpdate, cs.RoundTripEfficiency)
	}

	minP, err := toBase(cs.MinPower, unit.Kilowatt)
	if err != nil {
		return nil, err
	}
	maxP, err := toBase(cs.MaxPower, unit.Kilowatt)
	if err != nil {
		return nil, err
	}
	minE, err := toBase(cs.MinEnergy, unit.KilowattHour)
	if err != nil {
		return nil, err
	}
	maxE, err := toBase(cs.MaxEnergy, unit.KilowattHour)
	if err != nil {
		return nil, err
	}
	initE, err := toBase(cs.InitialEnergy, unit.KilowattHour)
	if err != nil {
		return nil, err
	}
	ramp, err := toBase(cs.Ramp, unit.Kilowatt)
	if err != nil {
		return nil, err
	}
	if ramp < 0 {
		return nil, fmt.Errorf("%w: %s: negative ramp limit %v", ErrInfeasibleSpecification, ClassRamp, ramp)
	}

	p := &Problem{
		Horizon:             h,
		MinPower:            fill(n, minP),
		MaxPower:            fill(n, maxP),
		MinEnergy:           minE,
		MaxEnergy:           maxE,
		InitialEnergy:       initE,
		Ramp:                ramp,
		Objective:           in.Objective,
		ChargeEfficiency:    math.Sqrt(cs.RoundTripEfficiency),
		DischargeEfficiency: math.Sqrt(cs.RoundTripEfficiency),
	}

	if err := applyCapOverrides(p, in.CapBeliefs); err != nil {
		return nil, err
	}
	if cs.WorkingHoursOnly {
		mask := in.Calendar.WorkingMask(h)
		for i, workable := range mask {
			if !workable {
				if p.MinPower[i] > 0 {
					return nil, fmt.Errorf("%w: %s: slot %d requires power >= %v but falls outside working hours",
						ErrInfeasibleSpecification, ClassPowerBounds, i, p.MinPower[i])
				}
				p.MinPower[i], p.MaxPower[i] = 0, 0
			}
		}
	}

	switch in.Objective {
	case MinimizeCost:
		prices, currency, err := priceVector(h, in.PriceBeliefs)
		if err != nil {
			return nil, err
		}
		p.Prices, p.Currency = prices, currency
	case TrackProfile:
		if len(in.Target) != n {
			return nil, fmt.Errorf("%w: target profile has %d slots, horizon has %d",
				ErrInfeasibleSpecification, len(in.Target), n)
		}
		p.Target = make([]float64, n)
		for i, q := range in.Target {
			if p.Target[i], err = toBase(q, unit.Kilowatt); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown objective %d", ErrInfeasibleSpecification, in.Objective)
	}

	if err := precheck(p); err != nil {
		return nil, err
	}
	return p, nil
}

// precheck is the fast local consistency pass over the assembled bounds.
func precheck(p *Problem) error {
	for i := range p.MinPower {
		if p.MinPower[i] > p.MaxPower[i] {
			return fmt.Errorf("%w: %s: slot %d min %v > max %v",
				ErrInfeasibleSpecification, ClassPowerBounds, i, p.MinPower[i], p.MaxPower[i])
		}
	}
	if p.MinEnergy > p.MaxEnergy {
		return fmt.Errorf("%w: %s: min %v > max %v",
			ErrInfeasibleSpecification, ClassEnergyBounds, p.MinEnergy, p.MaxEnergy)
	}
	if p.InitialEnergy < p.MinEnergy || p.InitialEnergy > p.MaxEnergy {
		return fmt.Errorf("%w: %s: initial energy %v outside [%v, %v]",
			ErrInfeasibleSpecification, ClassEnergyBounds, p.InitialEnergy, p.MinEnergy, p.MaxEnergy)
	}
	return nil
}

// priceVector maps price beliefs onto the horizon. A missing slot price is an
// error: the pipeline never substitutes defaults for absent data.
func priceVector(h horizon.Horizon, beliefs []belief.Belief) ([]float64, string, error) {
	best := make(map[int64]belief.Belief, len(beliefs))
	for _, b := range beliefs {
		k := b.EventStart.UTC().UnixNano()
		if prev, ok := best[k]; !ok || b.BeliefTime.After(prev.BeliefTime) ||
			(b.BeliefTime.Equal(prev.BeliefTime) && b.Source < prev.Source) {
			best[k] = b
		}
	}

	prices := make([]float64, len(h.Slots))
	currency := ""
	for i, s := range h.Slots {
		b, ok := best[s.Start.UTC().UnixNano()]
		if !ok {
			return nil, "", fmt.Errorf("%w: %s: no price belief for slot %d (%s)",
				ErrInfeasibleSpecification, ClassPrices, i, s.Start.Format(time.RFC3339))
		}
		cur := b.Value.Unit.Dim.Currency
		if cur == "" || b.Value.Unit.Dim.Energy != -1 {
			return nil, "", fmt.Errorf("%w: slot %d price has unit %s", unit.ErrUnitMismatch, i, b.Value.Unit.Symbol)
		}
		if currency == "" {
			currency = cur
		} else if currency != cur {
			return nil, "", fmt.Errorf("%w: mixed price currencies %s and %s", unit.ErrUnitMismatch, currency, cur)
		}
		q, err := unit.Convert(b.Value, unit.PerKilowattHour(cur))
		if err != nil {
			return nil, "", err
		}
		prices[i] = q.Value
	}
	return prices, currency, nil
}

// applyCapOverrides lowers MaxPower per slot from capacity beliefs.
func applyCapOverrides(p *Problem, caps []belief.Belief) error {
	if len(caps) == 0 {
		return nil
	}
	best := make(map[int64]belief.Belief, len(caps))
	for _, b := range caps {
		k := b.EventStart.UTC().UnixNano()
		if prev, ok := best[k]; !ok || b.BeliefTime.After(prev.BeliefTime) {
			best[k] = b
		}
	}
	for i, s := range p.Horizon.Slots {
		b, ok := best[s.Start.UTC().UnixNano()]
		if !ok {
			continue
		}
		kw, err := unit.Convert(b.Value, unit.Kilowatt)
		if err != nil {
			return err
		}
		if kw.Value < p.MaxPower[i] {
			p.MaxPower[i] = kw.Value
		}
	}
	return nil
}

// toBase converts q to the base unit. A zero-value Quantity reads as zero in
// the base unit so optional bounds can be left unset.
func toBase(q unit.Quantity, base unit.Unit) (float64, error) {
	if q.Unit.Symbol == "" && q.Value == 0 {
		return 0, nil
	}
	conv, err := unit.Convert(q, base)
	if err != nil {
		return 0, err
	}
	return conv.Value, nil
}

func fill(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

