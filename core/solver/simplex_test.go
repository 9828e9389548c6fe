package solver

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/gridflex/flexcore/core/factory"
	"github.com/gridflex/flexcore/core/horizon"
	"github.com/gridflex/flexcore/core/problem"
)

var start = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func storageProblem(t *testing.T, prices []float64) *problem.Problem {
	t.Helper()
	h, err := horizon.Resolve(start, time.Duration(len(prices))*time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	eta := math.Sqrt(0.9)
	p := &problem.Problem{
		Horizon:             h,
		MinPower:            fillSlice(len(prices), -2),
		MaxPower:            fillSlice(len(prices), 2),
		MinEnergy:           0,
		MaxEnergy:           10,
		InitialEnergy:       0,
		ChargeEfficiency:    eta,
		DischargeEfficiency: eta,
		Objective:           problem.MinimizeCost,
		Prices:              prices,
		Currency:            "EUR",
	}
	return p
}

func fillSlice(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestSimplexStorageArbitrage(t *testing.T) {
	p := storageProblem(t, []float64{10, 5, 20, 5})
	res, err := NewSimplex().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != StatusSolved {
		t.Fatalf("expected solved, got %s (%s)", res.Status, res.Diagnostic)
	}
	// Charge at full rate in the cheap slot before the price spike, discharge
	// at the spike.
	if res.Power[1] < 1.99 {
		t.Fatalf("expected full charge in the 5-price slot, got %v", res.Power[1])
	}
	if res.Power[2] > -1.5 {
		t.Fatalf("expected discharge in the 20-price slot, got %v", res.Power[2])
	}
	for i, pw := range res.Power {
		if pw < p.MinPower[i]-1e-6 || pw > p.MaxPower[i]+1e-6 {
			t.Fatalf("power bound violated at slot %d: %v", i, pw)
		}
	}
	for i, e := range res.StoredEnergy {
		if e < p.MinEnergy-1e-6 || e > p.MaxEnergy+1e-6 {
			t.Fatalf("energy bound violated at slot %d: %v", i, e)
		}
	}
	if res.Objective >= 0 {
		t.Fatalf("arbitrage should be profitable, objective %v", res.Objective)
	}
	// All stored energy is sold at the spike: nothing left at the end.
	if math.Abs(res.FinalEnergy) > 1e-6 {
		t.Fatalf("expected empty storage at the end, got %v kWh", res.FinalEnergy)
	}
}

func TestSimplexStateUpdateEquation(t *testing.T) {
	p := storageProblem(t, []float64{1, 2, 3})
	p.InitialEnergy = 5
	res, err := NewSimplex().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	prev := p.InitialEnergy
	for j := 0; j < p.NumSlots(); j++ {
		dt := p.SlotHours(j)
		var want float64
		if res.Power[j] >= 0 {
			want = prev + p.ChargeEfficiency*res.Power[j]*dt
		} else {
			want = prev + res.Power[j]*dt/p.DischargeEfficiency
		}
		if math.Abs(res.StoredEnergy[j]-want) > 1e-6 {
			t.Fatalf("state update broken at slot %d: have %v want %v", j, res.StoredEnergy[j], want)
		}
		prev = res.StoredEnergy[j]
	}
}

func TestSimplexRampLimit(t *testing.T) {
	p := storageProblem(t, []float64{10, 5, 20, 5})
	p.Ramp = 1
	res, err := NewSimplex().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != StatusSolved {
		t.Fatalf("expected solved, got %s", res.Status)
	}
	prev := 0.0
	for j, pw := range res.Power {
		if j > 0 && math.Abs(pw-prev) > p.Ramp+1e-6 {
			t.Fatalf("ramp violated between slots %d and %d: %v -> %v", j-1, j, prev, pw)
		}
		prev = pw
	}
}

func TestSimplexTrackProfile(t *testing.T) {
	p := storageProblem(t, []float64{0, 0, 0})
	p.InitialEnergy = 5
	p.Objective = problem.TrackProfile
	p.Prices = nil
	p.Target = []float64{1, -1, 0.5}
	res, err := NewSimplex().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != StatusSolved {
		t.Fatalf("expected solved, got %s", res.Status)
	}
	// The target is reachable, so total deviation is zero.
	if res.Objective > 1e-6 {
		t.Fatalf("reachable target should have zero deviation, got %v", res.Objective)
	}
	for j := range p.Target {
		if math.Abs(res.Power[j]-p.Target[j]) > 1e-6 {
			t.Fatalf("slot %d tracks %v, want %v", j, res.Power[j], p.Target[j])
		}
	}
}

func TestSimplexInfeasible(t *testing.T) {
	// Forced discharge from an empty store.
	p := storageProblem(t, []float64{1, 1})
	p.MinPower = fillSlice(2, -2)
	p.MaxPower = fillSlice(2, -2)
	res, err := NewSimplex().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("infeasibility must not be an error: %v", err)
	}
	if res.Status != StatusInfeasible {
		t.Fatalf("expected infeasible, got %s", res.Status)
	}
	if res.Diagnostic == "" {
		t.Fatalf("expected a diagnostic")
	}
	if res.Power != nil || res.StoredEnergy != nil {
		t.Fatalf("infeasible result must carry no values")
	}
}

func TestSimplexNumericalFailure(t *testing.T) {
	orig := lpSolve
	lpSolve = func([]float64, *mat.Dense, []float64, *mat.Dense, []float64, float64) ([]float64, error) {
		return nil, errors.New("singular basis")
	}
	defer func() { lpSolve = orig }()

	p := storageProblem(t, []float64{1, 2})
	_, err := NewSimplex().Solve(context.Background(), p)
	if !errors.Is(err, ErrSolver) {
		t.Fatalf("expected ErrSolver, got %v", err)
	}
}

func TestSimplexTimeout(t *testing.T) {
	orig := lpSolve
	block := make(chan struct{})
	lpSolve = func([]float64, *mat.Dense, []float64, *mat.Dense, []float64, float64) ([]float64, error) {
		<-block
		return nil, nil
	}
	defer func() {
		close(block)
		lpSolve = orig
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	p := storageProblem(t, []float64{1, 2})
	_, err := NewSimplex().Solve(ctx, p)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !errors.Is(err, ErrSolver) {
		t.Fatalf("timeout must belong to the solver error class")
	}
}

func TestBackendFactory(t *testing.T) {
	b, err := New(factory.ModuleConfig{})
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if b.Name() != "simplex" {
		t.Fatalf("default backend should be simplex, got %s", b.Name())
	}
	if _, err := New(factory.ModuleConfig{Type: "annealing"}); err == nil {
		t.Fatalf("unknown backend accepted")
	}
}
