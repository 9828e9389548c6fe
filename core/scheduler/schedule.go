package scheduler

import (
	"time"

	"github.com/gridflex/flexcore/core/belief"
	"github.com/gridflex/flexcore/core/problem"
	"github.com/gridflex/flexcore/core/solver"
	"github.com/gridflex/flexcore/core/unit"
)

// State tracks one scheduling job through its lifecycle. Solving is the only
// blocking state; all other transitions are synchronous.
type State int

const (
	StateBuilt State = iota
	StateSolving
	StateSolved
	StateInfeasible
	StateSolverError
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateSolving:
		return "solving"
	case StateSolved:
		return "solved"
	case StateInfeasible:
		return "infeasible"
	case StateSolverError:
		return "solver_error"
	}
	return "unknown"
}

// Entry is one scheduled slot value.
type Entry struct {
	SlotStart time.Time     `json:"slot_start"`
	Value     unit.Quantity `json:"value"`
}

// Schedule is the optimizer's output for one request: one quantity per slot,
// the outcome status, and the achieved objective. A schedule is persisted by
// writing it back as beliefs, tagged with the scheduler's source identity.
type Schedule struct {
	SensorID   string        `json:"sensor_id"`
	Resolution time.Duration `json:"resolution"`
	Entries    []Entry       `json:"entries"`
	Feasible   bool          `json:"feasible"`
	Status     solver.Status `json:"status"`
	Objective  float64       `json:"objective"`
	// Cost is the objective expressed as money when the objective was
	// cost-based.
	Cost       *unit.Money `json:"cost,omitempty"`
	Diagnostic string      `json:"diagnostic,omitempty"`
	Source     string      `json:"source"`
	ComputedAt time.Time   `json:"computed_at"`
}

// Request is a scheduling request as received from the application layer.
type Request struct {
	// Sensor is the controllable channel being scheduled. Its unit must be a
	// power and its resolution is the default slot duration.
	Sensor belief.Sensor

	Start    time.Time
	Duration time.Duration
	// Resolution overrides the sensor's event resolution when non-zero.
	Resolution time.Duration
	// BeliefCutoff fixes the as-of time for all belief queries feeding the
	// problem. Zero means now.
	BeliefCutoff time.Time
	// TimeBudget bounds the total solve wall time. Zero selects the
	// scheduler's default.
	TimeBudget time.Duration

	Constraints problem.ConstraintSet
	Objective   problem.ObjectiveKind
	// Target is required for TrackProfile, one power quantity per slot.
	Target []unit.Quantity

	// PriceSensorID names the sensor carrying price beliefs (MinimizeCost).
	PriceSensorID string
	// PriceSources optionally restricts which sources' price beliefs count.
	PriceSources []string
	// CapSensorID optionally names a sensor carrying a time-varying capacity
	// limit.
	CapSensorID string
}
