package problem

import (
	"errors"

	"github.com/gridflex/flexcore/core/horizon"
)

// ErrInfeasibleSpecification indicates constraint bounds that contradict each
// other before any solver is involved. It is reported to the requester for
// specification correction and never retried.
var ErrInfeasibleSpecification = errors.New("infeasible specification")

// ConstraintClass names the family of constraints a failure belongs to, so
// diagnostics can point callers at the right knob.
type ConstraintClass string

const (
	ClassPowerBounds  ConstraintClass = "power_bounds"
	ClassEnergyBounds ConstraintClass = "energy_bounds"
	ClassRamp         ConstraintClass = "ramp"
	ClassStateUpdate  ConstraintClass = "state_update"
	ClassPrices       ConstraintClass = "prices"
)

// ObjectiveKind selects the scalar objective.
type ObjectiveKind int

const (
	// MinimizeCost minimizes the sum over slots of price x energy.
	MinimizeCost ObjectiveKind = iota
	// TrackProfile minimizes total absolute deviation from a target power
	// profile.
	TrackProfile
)

func (k ObjectiveKind) String() string {
	switch k {
	case MinimizeCost:
		return "minimize_cost"
	case TrackProfile:
		return "track_profile"
	}
	return "unknown"
}

// Problem is the abstract optimization problem handed to a solver backend.
// All values are normalized: power in kW, energy in kWh, prices in
// Currency/kWh. One decision variable per slot (signed power, positive =
// charging/consumption) plus one state variable per slot (stored energy at
// slot end), linked by the efficiency-scaled state-update equation.
type Problem struct {
	Horizon horizon.Horizon

	// Per-slot power bounds, kW. MinPower is typically negative (discharge).
	MinPower []float64
	MaxPower []float64

	// Stored-energy bounds, kWh, constant over the horizon.
	MinEnergy float64
	MaxEnergy float64
	// InitialEnergy is the stored energy entering the first slot, kWh.
	InitialEnergy float64

	// Ramp bounds |p[i]-p[i-1]|, kW per step. Zero means unlimited.
	Ramp float64

	// ChargeEfficiency and DischargeEfficiency scale flows into and out of
	// storage. Both are sqrt(round-trip) when only a round-trip figure is
	// known.
	ChargeEfficiency    float64
	DischargeEfficiency float64

	Objective ObjectiveKind
	// Prices per slot, Currency/kWh. Required for MinimizeCost.
	Prices   []float64
	Currency string
	// Target profile per slot, kW. Required for TrackProfile.
	Target []float64
}

// NumSlots returns the number of decision variables.
func (p *Problem) NumSlots() int { return len(p.Horizon.Slots) }

// SlotHours returns the duration of slot i in hours.
func (p *Problem) SlotHours(i int) float64 { return p.Horizon.Slots[i].Duration.Hours() }
