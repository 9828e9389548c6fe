// Package export renders schedules for external consumption.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/gridflex/flexcore/core/scheduler"
)

// WriteJSON writes the full schedule, including status and diagnostics, to w.
func WriteJSON(w io.Writer, sched *scheduler.Schedule) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sched)
}

// WriteCSV writes one row per slot with the value in the sensor's unit.
func WriteCSV(w io.Writer, sched *scheduler.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"slot_start", "value", "unit"}); err != nil {
		return err
	}
	for _, e := range sched.Entries {
		rec := []string{
			e.SlotStart.Format(time.RFC3339),
			strconv.FormatFloat(e.Value.Value, 'f', -1, 64),
			e.Value.Unit.Symbol,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
