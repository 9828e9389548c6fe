package belief

import (
	"errors"
	"fmt"
	"time"

	"github.com/gridflex/flexcore/core/unit"
)

// ErrDuplicateBelief indicates a belief with the identical (sensor, event
// start, source, belief time) key already exists. Callers treat it as
// success-on-retry.
var ErrDuplicateBelief = errors.New("duplicate belief")

// SourceType classifies who or what formed a belief.
type SourceType string

const (
	SourceUser       SourceType = "user"
	SourceForecaster SourceType = "forecaster"
	SourceScheduler  SourceType = "scheduler"
)

// Source is a data-providing entity.
type Source struct {
	Name string     `json:"name"`
	Type SourceType `json:"type"`
}

// SensorKind distinguishes channels that are measured from channels the
// scheduler may set.
type SensorKind int

const (
	Observable SensorKind = iota
	Controllable
)

// Sensor defines common properties of the events one channel reports or
// accepts: its unit and the fixed resolution of its events. Sensors are
// immutable once created and owned by the surrounding asset domain.
type Sensor struct {
	ID         string
	Unit       unit.Unit
	Kind       SensorKind
	Resolution time.Duration
	Timezone   string
}

// Location resolves the sensor's timezone, defaulting to UTC.
func (s Sensor) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Belief is the atomic fact: a timestamped claim about the value of a sensor
// at a given event time, attributable to a source. Beliefs are never mutated;
// corrections are recorded as new beliefs with a later belief time.
type Belief struct {
	SensorID   string
	EventStart time.Time
	Resolution time.Duration
	BeliefTime time.Time
	Source     string
	Value      unit.Quantity
	// CumulativeProbability marks which point of the predictive distribution
	// the value states. Nil means unset and resolves to the median (0.5);
	// deterministic observations also use the median. An explicit 0 states
	// the 0th percentile and is preserved as such.
	CumulativeProbability *float64
}

// Probability returns a pointer suitable for Belief.CumulativeProbability.
func Probability(p float64) *float64 { return &p }

// CP resolves the cumulative probability, defaulting unset to the median.
func (b Belief) CP() float64 {
	if b.CumulativeProbability == nil {
		return 0.5
	}
	return *b.CumulativeProbability
}

// Key identifies a belief uniquely within the append-only log.
type Key struct {
	SensorID   string
	EventStart int64 // unix nanoseconds, normalized to UTC
	Source     string
	BeliefTime int64
}

// Key returns the composite key of b.
func (b Belief) Key() Key {
	return Key{
		SensorID:   b.SensorID,
		EventStart: b.EventStart.UTC().UnixNano(),
		Source:     b.Source,
		BeliefTime: b.BeliefTime.UTC().UnixNano(),
	}
}

// Validate checks the structural invariants of a belief before it enters the
// log.
func (b Belief) Validate() error {
	if b.SensorID == "" {
		return errors.New("belief: sensor id required")
	}
	if b.Source == "" {
		return errors.New("belief: source required")
	}
	if b.EventStart.IsZero() || b.BeliefTime.IsZero() {
		return errors.New("belief: event start and belief time required")
	}
	if b.Resolution <= 0 {
		return errors.New("belief: resolution must be positive")
	}
	if p := b.CumulativeProbability; p != nil && (*p < 0 || *p > 1) {
		return fmt.Errorf("belief: cumulative probability %v out of [0,1]", *p)
	}
	return nil
}

// normalized fills defaulted fields.
func (b Belief) normalized() Belief {
	if b.CumulativeProbability == nil {
		b.CumulativeProbability = Probability(0.5)
	}
	return b
}

// TimeWindow is the half-open event interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
