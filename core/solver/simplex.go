package solver

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/gridflex/flexcore/core/factory"
	"github.com/gridflex/flexcore/core/problem"
)

func init() {
	// Registration cannot fail on an empty registry.
	_ = Register("simplex", func(conf map[string]any) (Backend, error) {
		var c simplexConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Tol == 0 {
			c.Tol = 1e-7
		}
		return &SimplexBackend{tol: c.Tol}, nil
	})
}

type simplexConfig struct {
	Tol float64 `json:"tol"`
}

// SimplexBackend solves the linear program with gonum's simplex
// implementation. Signed slot power p is split into charge c and discharge d
// variables (p = c - d, both nonnegative) so the efficiency-scaled state
// update stays linear. One stored-energy variable per slot links consecutive
// slots through the state-update equality.
//
// The split is a relaxation: under negative prices the optimum may set c and
// d nonzero in the same slot, round-tripping energy through the loss to earn
// the negative price. A physical battery cannot do both at once; dispatch
// layers that face negative prices should clip to the net power p.
type SimplexBackend struct {
	tol float64
}

// NewSimplex returns a simplex backend with the default tolerance.
func NewSimplex() *SimplexBackend { return &SimplexBackend{tol: 1e-7} }

func (s *SimplexBackend) Name() string { return "simplex" }

// lpSolve points to the function invoking the simplex algorithm. It can be
// overridden in tests to simulate numerical failures.
var lpSolve = runSimplex

func runSimplex(c []float64, g *mat.Dense, h []float64, a *mat.Dense, b []float64, tol float64) ([]float64, error) {
	nv := len(c)
	cStd, aStd, bStd := lp.Convert(c, g, h, a, b)
	_, sol, err := lp.Simplex(cStd, aStd, bStd, tol, nil)
	if err != nil {
		return nil, err
	}
	// Convert splits each free variable v into v+ and v-; recover v = v+ - v-.
	x := make([]float64, nv)
	for i := range x {
		x[i] = sol[i] - sol[nv+i]
	}
	return x, nil
}

func (s *SimplexBackend) Solve(ctx context.Context, p *problem.Problem) (Result, error) {
	n := p.NumSlots()
	nv := 3 * n
	if p.Objective == problem.TrackProfile {
		nv = 4 * n
	}
	// Variable layout: c[0..n) charge, d[n..2n) discharge, e[2n..3n) stored
	// energy at slot end, t[3n..4n) absolute-deviation slack (TrackProfile).
	ci := func(j int) int { return j }
	di := func(j int) int { return n + j }
	ei := func(j int) int { return 2*n + j }
	ti := func(j int) int { return 3*n + j }

	obj := make([]float64, nv)
	switch p.Objective {
	case problem.MinimizeCost:
		for j := 0; j < n; j++ {
			dt := p.SlotHours(j)
			obj[ci(j)] = p.Prices[j] * dt
			obj[di(j)] = -p.Prices[j] * dt
		}
	case problem.TrackProfile:
		for j := 0; j < n; j++ {
			obj[ti(j)] = 1
		}
	}

	// State-update equalities: e_j - e_{j-1} = etaC*dt*c_j - dt/etaD*d_j.
	a := mat.NewDense(n, nv, nil)
	b := make([]float64, n)
	for j := 0; j < n; j++ {
		dt := p.SlotHours(j)
		a.Set(j, ei(j), 1)
		a.Set(j, ci(j), -p.ChargeEfficiency*dt)
		a.Set(j, di(j), dt/p.DischargeEfficiency)
		if j > 0 {
			a.Set(j, ei(j-1), -1)
		} else {
			b[j] = p.InitialEnergy
		}
	}

	var rows []([]float64)
	var h []float64
	addRow := func(rhs float64, idx []int, coef []float64) {
		row := make([]float64, nv)
		for k, i := range idx {
			row[i] = coef[k]
		}
		rows = append(rows, row)
		h = append(h, rhs)
	}

	for j := 0; j < n; j++ {
		cMax, dMax := p.MaxPower[j], -p.MinPower[j]
		if cMax < 0 {
			cMax = 0
		}
		if dMax < 0 {
			dMax = 0
		}
		cMin, dMin := p.MinPower[j], -p.MaxPower[j]
		if cMin < 0 {
			cMin = 0
		}
		if dMin < 0 {
			dMin = 0
		}
		addRow(cMax, []int{ci(j)}, []float64{1})
		addRow(dMax, []int{di(j)}, []float64{1})
		addRow(-cMin, []int{ci(j)}, []float64{-1})
		addRow(-dMin, []int{di(j)}, []float64{-1})
		addRow(p.MaxEnergy, []int{ei(j)}, []float64{1})
		addRow(-p.MinEnergy, []int{ei(j)}, []float64{-1})
	}
	if p.Ramp > 0 {
		for j := 1; j < n; j++ {
			idx := []int{ci(j), di(j), ci(j - 1), di(j - 1)}
			addRow(p.Ramp, idx, []float64{1, -1, -1, 1})
			addRow(p.Ramp, idx, []float64{-1, 1, 1, -1})
		}
	}
	if p.Objective == problem.TrackProfile {
		for j := 0; j < n; j++ {
			idx := []int{ci(j), di(j), ti(j)}
			addRow(p.Target[j], idx, []float64{1, -1, -1})
			addRow(-p.Target[j], idx, []float64{-1, 1, -1})
			addRow(0, []int{ti(j)}, []float64{-1})
		}
	}

	g := mat.NewDense(len(rows), nv, nil)
	for r, row := range rows {
		g.SetRow(r, row)
	}

	type outcome struct {
		x   []float64
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		x, err := lpSolve(obj, g, h, a, b, s.tol)
		ch <- outcome{x: x, err: err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{Status: StatusError}, ErrTimeout
		}
		return Result{Status: StatusError}, fmt.Errorf("%w: %v", ErrSolver, ctx.Err())
	case out = <-ch:
	}

	if out.err != nil {
		if errors.Is(out.err, lp.ErrInfeasible) {
			return Result{Status: StatusInfeasible, Diagnostic: classifyInfeasible(p)}, nil
		}
		return Result{Status: StatusError}, fmt.Errorf("%w: simplex: %v", ErrSolver, out.err)
	}

	res := Result{
		Status:       StatusSolved,
		Power:        make([]float64, n),
		StoredEnergy: make([]float64, n),
	}
	for j := 0; j < n; j++ {
		res.Power[j] = out.x[ci(j)] - out.x[di(j)]
		res.StoredEnergy[j] = out.x[ei(j)]
		res.Objective += obj[ci(j)]*out.x[ci(j)] + obj[di(j)]*out.x[di(j)]
		if p.Objective == problem.TrackProfile {
			res.Objective += out.x[ti(j)]
		}
	}
	res.FinalEnergy = res.StoredEnergy[n-1]
	return res, nil
}
