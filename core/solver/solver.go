package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/gridflex/flexcore/core/factory"
	"github.com/gridflex/flexcore/core/problem"
)

// ErrSolver indicates a numerical or runtime failure inside a backend. It is
// a different failure class from infeasibility: solver errors are eligible
// for bounded retries, infeasibility is reported to the requester.
var ErrSolver = errors.New("solver failure")

// ErrTimeout is the timeout variant of ErrSolver.
var ErrTimeout = fmt.Errorf("%w: wall-time budget exceeded", ErrSolver)

// Status is the terminal outcome of one solve.
type Status int

const (
	StatusSolved Status = iota
	StatusInfeasible
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSolved:
		return "solved"
	case StatusInfeasible:
		return "infeasible"
	case StatusError:
		return "solver_error"
	}
	return "unknown"
}

// Result is the output of one backend invocation. Power is kW per slot,
// StoredEnergy the kWh level at each slot end. On StatusInfeasible the value
// slices are nil and Diagnostic carries the best available explanation.
type Result struct {
	Status       Status
	Power        []float64
	StoredEnergy []float64
	FinalEnergy  float64
	Objective    float64
	Diagnostic   string
}

// Backend is a swappable numeric solver. Implementations must honor ctx
// cancellation at least between internal phases. A non-nil error always
// belongs to the ErrSolver class; infeasibility is a Result status, not an
// error.
type Backend interface {
	Name() string
	Solve(ctx context.Context, p *problem.Problem) (Result, error)
}

var registry = factory.NewRegistry[Backend]()

// Register adds a backend factory identified by name.
func Register(name string, f factory.Factory[Backend]) error {
	return registry.Register(name, f)
}

// New creates a Backend from the provided configuration. An empty type
// selects the simplex backend.
func New(cfg factory.ModuleConfig) (Backend, error) {
	if cfg.Type == "" {
		cfg.Type = "simplex"
	}
	return registry.Create(cfg)
}

// classifyInfeasible attempts a best-effort diagnostic by propagating the
// reachable stored-energy interval through the horizon using only power
// bounds. When the interval detaches from the energy bounds the conflict is
// in the energy constraint class; otherwise a generic diagnostic is returned.
func classifyInfeasible(p *problem.Problem) string {
	lo, hi := p.InitialEnergy, p.InitialEnergy
	for i := 0; i < p.NumSlots(); i++ {
		dt := p.SlotHours(i)
		maxIn := p.MaxPower[i]
		if maxIn < 0 {
			maxIn = 0
		}
		maxOut := -p.MinPower[i]
		if maxOut < 0 {
			maxOut = 0
		}
		hi += p.ChargeEfficiency * maxIn * dt
		lo -= maxOut * dt / p.DischargeEfficiency
		// Clip to the energy bounds where the intervals still intersect.
		if hi < p.MinEnergy || lo > p.MaxEnergy {
			return fmt.Sprintf("%s: stored-energy bounds unreachable at slot %d", problem.ClassEnergyBounds, i)
		}
		if lo < p.MinEnergy {
			lo = p.MinEnergy
		}
		if hi > p.MaxEnergy {
			hi = p.MaxEnergy
		}
	}
	return "no feasible solution over the horizon"
}
