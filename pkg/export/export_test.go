package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gridflex/flexcore/core/scheduler"
	"github.com/gridflex/flexcore/core/solver"
	"github.com/gridflex/flexcore/core/unit"
)

func sampleSchedule() *scheduler.Schedule {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	return &scheduler.Schedule{
		SensorID:   "battery-power",
		Resolution: time.Hour,
		Entries: []scheduler.Entry{
			{SlotStart: start, Value: unit.Q(2, unit.Kilowatt)},
			{SlotStart: start.Add(time.Hour), Value: unit.Q(-1.5, unit.Kilowatt)},
		},
		Feasible:   true,
		Status:     solver.StatusSolved,
		Objective:  -12.5,
		Source:     "scheduler:abc",
		ComputedAt: start,
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleSchedule()); err != nil {
		t.Fatalf("write: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if decoded["sensor_id"] != "battery-power" {
		t.Fatalf("sensor id missing: %v", decoded)
	}
	if decoded["feasible"] != true {
		t.Fatalf("feasibility missing: %v", decoded)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleSchedule()); err != nil {
		t.Fatalf("write: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("output not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if records[0][0] != "slot_start" {
		t.Fatalf("header wrong: %v", records[0])
	}
	if records[1][1] != "2" || records[1][2] != "kW" {
		t.Fatalf("row wrong: %v", records[1])
	}
	if records[2][1] != "-1.5" {
		t.Fatalf("row wrong: %v", records[2])
	}
}
