package belief

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Store is the append-only belief log. Writers serialize on the append;
// point-in-time queries never block behind writers and never observe a
// partially written batch.
type Store interface {
	// Record appends one belief. It fails with ErrDuplicateBelief when the
	// (sensor, event start, source, belief time) key already exists.
	Record(ctx context.Context, b Belief) error
	// RecordAll appends a batch atomically: either every belief becomes
	// visible at once or none does.
	RecordAll(ctx context.Context, bs []Belief) error
	// Query reconstructs what was known as of the given belief time: for each
	// event slot in the window it returns, per source, the most recent belief
	// at or before asOf. An empty sources filter matches all sources. Results
	// are ordered by event time ascending, ties broken by source name.
	Query(ctx context.Context, sensorID string, window TimeWindow, asOf time.Time, sources []string) ([]Belief, error)
	// Latest is Query with asOf = now.
	Latest(ctx context.Context, sensorID string, window TimeWindow) ([]Belief, error)
}

// snapshot is one immutable view of the log. Appends build a new snapshot and
// swap the pointer, so readers holding an older snapshot stay valid.
type snapshot struct {
	bySensor map[string][]Belief
	keys     map[Key]struct{}
}

func (s *snapshot) clone() *snapshot {
	n := &snapshot{
		bySensor: make(map[string][]Belief, len(s.bySensor)),
		keys:     make(map[Key]struct{}, len(s.keys)),
	}
	for id, bs := range s.bySensor {
		n.bySensor[id] = bs
	}
	for k := range s.keys {
		n.keys[k] = struct{}{}
	}
	return n
}

// MemoryStore keeps the belief log in process memory. It is the reference
// implementation of Store; the relational variant lives in infra/store.
type MemoryStore struct {
	mu   sync.Mutex // serializes writers
	view atomic.Pointer[snapshot]

	now func() time.Time
}

// NewMemoryStore returns an empty in-memory belief log.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	s.view.Store(&snapshot{
		bySensor: map[string][]Belief{},
		keys:     map[Key]struct{}{},
	})
	return s
}

func (s *MemoryStore) Record(ctx context.Context, b Belief) error {
	return s.RecordAll(ctx, []Belief{b})
}

func (s *MemoryStore) RecordAll(_ context.Context, bs []Belief) error {
	if len(bs) == 0 {
		return nil
	}
	for _, b := range bs {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.view.Load()
	seen := make(map[Key]struct{}, len(bs))
	for _, b := range bs {
		k := b.Key()
		if _, ok := cur.keys[k]; ok {
			return fmt.Errorf("%w: sensor=%s event=%s source=%s",
				ErrDuplicateBelief, b.SensorID, b.EventStart.Format(time.RFC3339), b.Source)
		}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("%w: repeated within batch (sensor=%s)", ErrDuplicateBelief, b.SensorID)
		}
		seen[k] = struct{}{}
	}

	next := cur.clone()
	for _, b := range bs {
		nb := b.normalized()
		// Copy the sensor slice so readers of the old snapshot never see the
		// append.
		old := next.bySensor[nb.SensorID]
		bl := make([]Belief, len(old), len(old)+1)
		copy(bl, old)
		next.bySensor[nb.SensorID] = append(bl, nb)
		next.keys[nb.Key()] = struct{}{}
	}
	s.view.Store(next)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, sensorID string, window TimeWindow, asOf time.Time, sources []string) ([]Belief, error) {
	view := s.view.Load()
	return reconstruct(view.bySensor[sensorID], window, asOf, sources), nil
}

func (s *MemoryStore) Latest(ctx context.Context, sensorID string, window TimeWindow) ([]Belief, error) {
	return s.Query(ctx, sensorID, window, s.now(), nil)
}

// reconstruct applies the most-recent-per-source rule at the asOf cutoff.
func reconstruct(log []Belief, window TimeWindow, asOf time.Time, sources []string) []Belief {
	var filter map[string]struct{}
	if len(sources) > 0 {
		filter = make(map[string]struct{}, len(sources))
		for _, src := range sources {
			filter[src] = struct{}{}
		}
	}

	type slotKey struct {
		event  int64
		source string
	}
	best := make(map[slotKey]Belief)
	for _, b := range log {
		if !window.Contains(b.EventStart) || b.BeliefTime.After(asOf) {
			continue
		}
		if filter != nil {
			if _, ok := filter[b.Source]; !ok {
				continue
			}
		}
		k := slotKey{event: b.EventStart.UTC().UnixNano(), source: b.Source}
		if prev, ok := best[k]; !ok || b.BeliefTime.After(prev.BeliefTime) {
			best[k] = b
		}
	}

	out := make([]Belief, 0, len(best))
	for _, b := range best {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EventStart.Equal(out[j].EventStart) {
			return out[i].EventStart.Before(out[j].EventStart)
		}
		return out[i].Source < out[j].Source
	})
	return out
}
