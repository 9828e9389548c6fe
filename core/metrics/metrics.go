package metrics

import (
	"time"
)

// JobResult captures the outcome of one scheduling job for observability.
type JobResult struct {
	JobID     string
	SensorID  string
	Status    string
	Slots     int
	Objective float64
	Backend   string
	Duration  time.Duration
	Time      time.Time
}

// IngestEvent captures a batch of beliefs accepted into the store.
type IngestEvent struct {
	SensorID string
	Source   string
	Count    int
	Time     time.Time
}

// Sink records scheduling events for observability purposes.
type Sink interface {
	RecordJobResult(res JobResult) error
	RecordIngest(ev IngestEvent) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordJobResult(JobResult) error { return nil }
func (NopSink) RecordIngest(IngestEvent) error  { return nil }

// MultiSink fans events out to several sinks, returning the first error.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines the given sinks.
func NewMultiSink(sinks ...Sink) *MultiSink { return &MultiSink{sinks: sinks} }

func (m *MultiSink) RecordJobResult(res JobResult) error {
	for _, s := range m.sinks {
		if err := s.RecordJobResult(res); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordIngest(ev IngestEvent) error {
	for _, s := range m.sinks {
		if err := s.RecordIngest(ev); err != nil {
			return err
		}
	}
	return nil
}
