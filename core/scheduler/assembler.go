package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gridflex/flexcore/core/belief"
)

// Assembler converts a Schedule into beliefs and records them. The write is
// all-or-nothing from the reader's point of view: a point-in-time query never
// observes a half-written schedule.
type Assembler struct {
	store belief.Store
	now   func() time.Time
}

// NewAssembler returns an Assembler writing to the given store.
func NewAssembler(store belief.Store) *Assembler {
	return &Assembler{store: store, now: time.Now}
}

// Record writes the schedule back as beliefs with the schedule's source and
// belief time = assembly time. Infeasible schedules carry no values and are
// not persisted. A duplicate batch (same schedule recorded twice within one
// belief-time tick) is treated as already recorded.
func (a *Assembler) Record(ctx context.Context, sched Schedule) error {
	if !sched.Feasible {
		return fmt.Errorf("schedule for %s is %s, nothing to record", sched.SensorID, sched.Status)
	}
	beliefTime := a.now()
	bs := make([]belief.Belief, len(sched.Entries))
	for i, e := range sched.Entries {
		bs[i] = belief.Belief{
			SensorID:   sched.SensorID,
			EventStart: e.SlotStart,
			Resolution: sched.Resolution,
			BeliefTime: beliefTime,
			Source:     sched.Source,
			Value:      e.Value,
		}
	}
	if err := a.store.RecordAll(ctx, bs); err != nil {
		if errors.Is(err, belief.ErrDuplicateBelief) {
			return nil
		}
		return fmt.Errorf("record schedule for %s: %w", sched.SensorID, err)
	}
	return nil
}
