package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/gridflex/flexcore/core/belief"
	"github.com/gridflex/flexcore/core/horizon"
	"github.com/gridflex/flexcore/core/logger"
	"github.com/gridflex/flexcore/core/problem"
	"github.com/gridflex/flexcore/core/solver"
	"github.com/gridflex/flexcore/core/unit"
)

// Scheduler computes operational schedules for flexible assets. One instance
// serves many requests; requests are independent and may run concurrently.
type Scheduler struct {
	store   belief.Store
	backend solver.Backend
	cfg     Config
	log     logger.Logger

	instanceID string
	now        func() time.Time
}

// New returns a Scheduler with a fresh instance identity used as belief
// provenance for the schedules it emits.
func New(store belief.Store, backend solver.Backend, cfg Config, log logger.Logger) *Scheduler {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Scheduler{
		store:      store,
		backend:    backend,
		cfg:        cfg,
		log:        log,
		instanceID: uuid.NewString(),
		now:        time.Now,
	}
}

// Source returns the provenance identifier under which this scheduler writes
// schedule beliefs.
func (s *Scheduler) Source() string { return "scheduler:" + s.instanceID }

// BackendName reports which solver backend serves this scheduler.
func (s *Scheduler) BackendName() string { return s.backend.Name() }

// Schedule runs the full pipeline for one request: horizon resolution,
// belief snapshot, problem construction, rolling-horizon solving. An
// infeasible outcome is not an error: the returned Schedule carries the
// status and diagnostic. Errors abort the job and identify the failing
// stage; nothing is silently defaulted.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (Schedule, error) {
	resolution := req.Resolution
	if resolution == 0 {
		resolution = req.Sensor.Resolution
	}
	if !req.Sensor.Unit.Dim.Equal(unit.Kilowatt.Dim) {
		return Schedule{}, fmt.Errorf("%w: sensor %s has unit %s, expected a power",
			unit.ErrUnitMismatch, req.Sensor.ID, req.Sensor.Unit.Symbol)
	}

	h, err := horizon.Resolve(req.Start, req.Duration, resolution)
	if err != nil {
		return Schedule{}, fmt.Errorf("sensor %s: %w", req.Sensor.ID, err)
	}
	start, end := h.Window()
	window := belief.TimeWindow{Start: start, End: end}

	cutoff := req.BeliefCutoff
	if cutoff.IsZero() {
		cutoff = s.now()
	}

	var prices, caps []belief.Belief
	if req.Objective == problem.MinimizeCost {
		prices, err = s.store.Query(ctx, req.PriceSensorID, window, cutoff, req.PriceSources)
		if err != nil {
			return Schedule{}, fmt.Errorf("query prices for %s: %w", req.Sensor.ID, err)
		}
	}
	if req.CapSensorID != "" {
		caps, err = s.store.Query(ctx, req.CapSensorID, window, cutoff, nil)
		if err != nil {
			return Schedule{}, fmt.Errorf("query capacity for %s: %w", req.Sensor.ID, err)
		}
	}

	// One deadline bounds the whole job: every sub-horizon solve and every
	// retry runs under it, so total wall time never exceeds the budget.
	budget := req.TimeBudget
	if budget == 0 {
		budget = time.Duration(s.cfg.TimeBudgetSeconds) * time.Second
	}
	jctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	sched := Schedule{
		SensorID:   req.Sensor.ID,
		Resolution: resolution,
		Source:     s.Source(),
	}
	if req.Objective == problem.TrackProfile && len(req.Target) < len(h.Slots) {
		return Schedule{}, fmt.Errorf("%w: target profile shorter than horizon",
			problem.ErrInfeasibleSpecification)
	}

	cs := req.Constraints
	chunk := s.cfg.SubHorizonSlots
	for offset, sub := 0, 0; offset < len(h.Slots); sub++ {
		// Coarse-grained cancellation checkpoint between sub-horizons.
		if err := jctx.Err(); err != nil {
			return Schedule{}, fmt.Errorf("sensor %s: schedule canceled: %w", req.Sensor.ID, err)
		}
		commit := len(h.Slots) - offset
		if chunk > 0 && chunk < commit {
			commit = chunk
		}

		// Each sub-horizon solves over the full remaining window so early
		// slots see later price structure, then commits only its leading
		// chunk. Chunking without the lookahead is myopic: a window cannot
		// pre-charge for a spike it never sees.
		lookahead := horizon.Horizon{Slots: h.Slots[offset:], Resolution: h.Resolution}
		in := problem.Inputs{
			Objective:    req.Objective,
			PriceBeliefs: prices,
			CapBeliefs:   caps,
			Calendar:     s.cfg.Calendar,
		}
		if req.Objective == problem.TrackProfile {
			in.Target = req.Target[offset:]
		}

		p, err := problem.Build(cs, lookahead, in)
		if err != nil {
			return Schedule{}, fmt.Errorf("build problem for %s: %w", req.Sensor.ID, err)
		}
		s.logState(req.Sensor.ID, sub, StateBuilt)

		s.logState(req.Sensor.ID, sub, StateSolving)
		res, err := s.solve(jctx, p, budget)
		if err != nil {
			s.logState(req.Sensor.ID, sub, StateSolverError)
			return Schedule{}, fmt.Errorf("solve for %s: %w", req.Sensor.ID, err)
		}
		if res.Status == solver.StatusInfeasible {
			s.logState(req.Sensor.ID, sub, StateInfeasible)
			sched.Status = solver.StatusInfeasible
			sched.Feasible = false
			sched.Entries = nil
			sched.Diagnostic = res.Diagnostic
			sched.ComputedAt = s.now()
			return sched, nil
		}
		s.logState(req.Sensor.ID, sub, StateSolved)

		for j := 0; j < commit; j++ {
			q, err := unit.Convert(unit.Q(res.Power[j], unit.Kilowatt), req.Sensor.Unit)
			if err != nil {
				return Schedule{}, err
			}
			sched.Entries = append(sched.Entries, Entry{SlotStart: lookahead.Slots[j].Start, Value: q})
			switch req.Objective {
			case problem.MinimizeCost:
				sched.Objective += p.Prices[j] * p.SlotHours(j) * res.Power[j]
			case problem.TrackProfile:
				sched.Objective += math.Abs(res.Power[j] - p.Target[j])
			}
		}

		// Hand the exact solved state at the commit boundary to the next
		// sub-horizon; deriving it again from the power profile would
		// compound numerical drift.
		cs.InitialEnergy = unit.Q(res.StoredEnergy[commit-1], unit.KilowattHour)
		offset += commit
	}

	sched.Status = solver.StatusSolved
	sched.Feasible = true
	if req.Objective == problem.MinimizeCost && len(prices) > 0 {
		currency := prices[0].Value.Unit.Dim.Currency
		cost := unit.MoneyFromFloat(sched.Objective, currency)
		sched.Cost = &cost
	}
	sched.ComputedAt = s.now()
	return sched, nil
}

// solve invokes the backend with the wall-time budget, retrying a bounded
// number of times with a relaxed budget on solver errors only.
func (s *Scheduler) solve(ctx context.Context, p *problem.Problem, budget time.Duration) (solver.Result, error) {
	for attempt := 0; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, budget)
		res, err := s.backend.Solve(cctx, p)
		cancel()
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, solver.ErrSolver) || attempt >= s.cfg.MaxRetries || ctx.Err() != nil {
			return res, err
		}
		budget = time.Duration(float64(budget) * s.cfg.RetryBudgetFactor)
		s.log.Warnf("solver error (attempt %d/%d), retrying with budget %s: %v",
			attempt+1, s.cfg.MaxRetries, budget, err)
	}
}

func (s *Scheduler) logState(sensorID string, sub int, st State) {
	s.log.Debugw("job state", map[string]any{
		"sensor":      sensorID,
		"sub_horizon": sub,
		"state":       st.String(),
	})
}
