package solver

import (
	"context"
	"fmt"
	"sort"

	"github.com/gridflex/flexcore/core/factory"
	"github.com/gridflex/flexcore/core/problem"
)

func init() {
	_ = Register("greedy", func(conf map[string]any) (Backend, error) {
		var c greedyConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.ChargeQuantile == 0 {
			c.ChargeQuantile = 0.3
		}
		if c.DischargeQuantile == 0 {
			c.DischargeQuantile = 0.7
		}
		return &GreedyBackend{cfg: c}, nil
	})
}

type greedyConfig struct {
	ChargeQuantile    float64 `json:"charge_quantile"`
	DischargeQuantile float64 `json:"discharge_quantile"`
}

// GreedyBackend is a price-ranked heuristic: charge at full rate in the
// cheapest slots, discharge in the dearest, clipped by a forward simulation
// of the stored-energy level. It produces feasible but not necessarily
// optimal schedules and serves as a fallback when the LP backend is
// unavailable or untrusted.
type GreedyBackend struct {
	cfg greedyConfig
}

func (b *GreedyBackend) Name() string { return "greedy" }

func (b *GreedyBackend) Solve(ctx context.Context, p *problem.Problem) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Status: StatusError}, fmt.Errorf("%w: %v", ErrSolver, err)
	}
	if p.Objective != problem.MinimizeCost {
		return Result{Status: StatusError}, fmt.Errorf("%w: greedy backend supports %s only",
			ErrSolver, problem.MinimizeCost)
	}

	n := p.NumSlots()
	sorted := append([]float64(nil), p.Prices...)
	sort.Float64s(sorted)
	chargeBelow := sorted[quantileIndex(n, b.cfg.ChargeQuantile)]
	dischargeAbove := sorted[quantileIndex(n, b.cfg.DischargeQuantile)]

	res := Result{
		Status:       StatusSolved,
		Power:        make([]float64, n),
		StoredEnergy: make([]float64, n),
	}
	e := p.InitialEnergy
	prev := 0.0
	for j := 0; j < n; j++ {
		want := 0.0
		switch {
		case p.Prices[j] <= chargeBelow:
			want = p.MaxPower[j]
		case p.Prices[j] >= dischargeAbove:
			want = p.MinPower[j]
		}
		pw := clamp(want, p.MinPower[j], p.MaxPower[j])
		if p.Ramp > 0 && j > 0 {
			pw = clamp(pw, prev-p.Ramp, prev+p.Ramp)
			// Ramp clipping may leave the power bounds; a horizon where that
			// happens is beyond the heuristic.
			if pw < p.MinPower[j] || pw > p.MaxPower[j] {
				return Result{Status: StatusInfeasible, Diagnostic: string(problem.ClassRamp)}, nil
			}
		}

		dt := p.SlotHours(j)
		if pw >= 0 {
			room := (p.MaxEnergy - e) / (p.ChargeEfficiency * dt)
			if pw > room {
				pw = room
			}
			e += p.ChargeEfficiency * pw * dt
		} else {
			avail := (e - p.MinEnergy) * p.DischargeEfficiency / dt
			if -pw > avail {
				pw = -avail
			}
			e += pw * dt / p.DischargeEfficiency
		}
		if pw < p.MinPower[j] || pw > p.MaxPower[j] {
			return Result{Status: StatusInfeasible, Diagnostic: classifyInfeasible(p)}, nil
		}
		res.Power[j] = pw
		res.StoredEnergy[j] = e
		res.Objective += p.Prices[j] * pw * dt
		prev = pw
	}
	res.FinalEnergy = e
	return res, nil
}

func quantileIndex(n int, q float64) int {
	i := int(q * float64(n-1))
	if i < 0 {
		i = 0
	}
	if i > n-1 {
		i = n - 1
	}
	return i
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
