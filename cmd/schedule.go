package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridflex/flexcore/core/belief"
	"github.com/gridflex/flexcore/core/factory"
	"github.com/gridflex/flexcore/core/problem"
	"github.com/gridflex/flexcore/core/scheduler"
	"github.com/gridflex/flexcore/core/solver"
	"github.com/gridflex/flexcore/core/unit"
	"github.com/gridflex/flexcore/infra/logger"
	"github.com/gridflex/flexcore/pkg/export"
)

var scheduleFlags struct {
	sensorID   string
	sensorUnit string
	start      string
	duration   time.Duration
	resolution time.Duration

	minPower      float64
	maxPower      float64
	minEnergy     float64
	maxEnergy     float64
	initialEnergy float64
	ramp          float64
	rte           float64

	objective   string
	priceSensor string
	beliefsPath string
	backend     string
	budget      time.Duration

	format string
	out    string
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Solve one scheduling request offline and print the result",
	Long: `Loads beliefs from a JSON file into an in-memory store, solves a single
scheduling request against them and writes the schedule as JSON or CSV.`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	f := scheduleCmd.Flags()
	f.StringVar(&scheduleFlags.sensorID, "sensor", "", "controllable sensor ID (required)")
	f.StringVar(&scheduleFlags.sensorUnit, "unit", "kW", "sensor unit symbol")
	f.StringVar(&scheduleFlags.start, "start", "", "horizon start, RFC3339 (required)")
	f.DurationVar(&scheduleFlags.duration, "duration", 24*time.Hour, "horizon length")
	f.DurationVar(&scheduleFlags.resolution, "resolution", 15*time.Minute, "slot resolution")
	f.Float64Var(&scheduleFlags.minPower, "min-power", 0, "minimum power, kW")
	f.Float64Var(&scheduleFlags.maxPower, "max-power", 0, "maximum power, kW")
	f.Float64Var(&scheduleFlags.minEnergy, "min-energy", 0, "minimum stored energy, kWh")
	f.Float64Var(&scheduleFlags.maxEnergy, "max-energy", 0, "maximum stored energy, kWh")
	f.Float64Var(&scheduleFlags.initialEnergy, "initial-energy", 0, "stored energy entering the horizon, kWh")
	f.Float64Var(&scheduleFlags.ramp, "ramp", 0, "max power change per slot, kW (0 = unlimited)")
	f.Float64Var(&scheduleFlags.rte, "rte", 1, "round-trip efficiency in (0, 1]")
	f.StringVar(&scheduleFlags.objective, "objective", "minimize_cost", "objective: minimize_cost or track_profile")
	f.StringVar(&scheduleFlags.priceSensor, "price-sensor", "", "sensor ID carrying price beliefs")
	f.StringVar(&scheduleFlags.beliefsPath, "beliefs", "", "JSON file of beliefs to preload")
	f.StringVar(&scheduleFlags.backend, "solver", "simplex", "solver backend")
	f.DurationVar(&scheduleFlags.budget, "budget", 30*time.Second, "solve wall-time budget")
	f.StringVar(&scheduleFlags.format, "format", "json", "output format: json or csv")
	f.StringVar(&scheduleFlags.out, "out", "", "output file (default stdout)")
	_ = scheduleCmd.MarkFlagRequired("sensor")
	_ = scheduleCmd.MarkFlagRequired("start")
}

// beliefRecord mirrors the broker wire format so the same fixture files work
// for offline runs and for publishing.
type beliefRecord struct {
	SensorID              string    `json:"sensor_id"`
	EventStart            time.Time `json:"event_start"`
	ResolutionSeconds     int       `json:"resolution_s"`
	BeliefTime            time.Time `json:"belief_time"`
	Source                string    `json:"source"`
	Value                 float64   `json:"value"`
	Unit                  string    `json:"unit"`
	CumulativeProbability *float64  `json:"cumulative_probability"`
}

func runSchedule(cmd *cobra.Command, args []string) error {
	start, err := time.Parse(time.RFC3339, scheduleFlags.start)
	if err != nil {
		return fmt.Errorf("parse start: %w", err)
	}
	su, err := unit.Parse(scheduleFlags.sensorUnit)
	if err != nil {
		return fmt.Errorf("parse unit: %w", err)
	}

	store := belief.NewMemoryStore()
	if scheduleFlags.beliefsPath != "" {
		if err := loadBeliefs(store, scheduleFlags.beliefsPath); err != nil {
			return err
		}
	}

	backend, err := solver.New(factory.ModuleConfig{Type: scheduleFlags.backend})
	if err != nil {
		return err
	}
	cfg := scheduler.Config{}
	cfg.SetDefaults()
	sched := scheduler.New(store, backend, cfg, logger.New("schedule"))

	obj := problem.MinimizeCost
	if scheduleFlags.objective == "track_profile" {
		obj = problem.TrackProfile
	}
	req := scheduler.Request{
		Sensor: belief.Sensor{
			ID:         scheduleFlags.sensorID,
			Unit:       su,
			Kind:       belief.Controllable,
			Resolution: scheduleFlags.resolution,
		},
		Start:      start,
		Duration:   scheduleFlags.duration,
		TimeBudget: scheduleFlags.budget,
		Constraints: problem.ConstraintSet{
			MinPower:            unit.Q(scheduleFlags.minPower, unit.Kilowatt),
			MaxPower:            unit.Q(scheduleFlags.maxPower, unit.Kilowatt),
			MinEnergy:           unit.Q(scheduleFlags.minEnergy, unit.KilowattHour),
			MaxEnergy:           unit.Q(scheduleFlags.maxEnergy, unit.KilowattHour),
			InitialEnergy:       unit.Q(scheduleFlags.initialEnergy, unit.KilowattHour),
			Ramp:                unit.Q(scheduleFlags.ramp, unit.Kilowatt),
			RoundTripEfficiency: scheduleFlags.rte,
		},
		Objective:     obj,
		PriceSensorID: scheduleFlags.priceSensor,
	}

	result, err := sched.Schedule(cmd.Context(), req)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if scheduleFlags.out != "" {
		f, err := os.Create(scheduleFlags.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if scheduleFlags.format == "csv" {
		return export.WriteCSV(w, &result)
	}
	return export.WriteJSON(w, &result)
}

func loadBeliefs(store belief.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read beliefs: %w", err)
	}
	var records []beliefRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode beliefs: %w", err)
	}
	beliefs := make([]belief.Belief, 0, len(records))
	for _, r := range records {
		u, err := unit.Parse(r.Unit)
		if err != nil {
			return fmt.Errorf("belief %s@%s: %w", r.SensorID, r.EventStart, err)
		}
		bt := r.BeliefTime
		if bt.IsZero() {
			bt = time.Now()
		}
		beliefs = append(beliefs, belief.Belief{
			SensorID:              r.SensorID,
			EventStart:            r.EventStart,
			Resolution:            time.Duration(r.ResolutionSeconds) * time.Second,
			BeliefTime:            bt,
			Source:                r.Source,
			Value:                 unit.Q(r.Value, u),
			CumulativeProbability: r.CumulativeProbability,
		})
	}
	return store.RecordAll(context.Background(), beliefs)
}
