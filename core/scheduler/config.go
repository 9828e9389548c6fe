package scheduler

import (
	"errors"

	"github.com/gridflex/flexcore/core/horizon"
)

// Config defines planning parameters loaded from configuration. There is no
// process-wide default; the config is threaded explicitly through app wiring.
type Config struct {
	// SubHorizonSlots commits schedules in rolling chunks of this many
	// slots. Each chunk is solved with lookahead over the full remaining
	// window and chained to the next by exact stored-energy hand-off. Zero
	// solves and commits the whole window at once.
	SubHorizonSlots int `json:"sub_horizon_slots"`
	// MaxRetries bounds automatic retries after a solver error. Infeasible
	// outcomes are never retried.
	MaxRetries int `json:"max_retries"`
	// RetryBudgetFactor relaxes the time budget on each retry.
	RetryBudgetFactor float64 `json:"retry_budget_factor"`
	// TimeBudgetSeconds is the default per-job wall-time budget.
	TimeBudgetSeconds int `json:"time_budget_seconds"`
	// Calendar supplies workable periods for constraint sets that restrict
	// activity to working hours.
	Calendar horizon.Calendar `json:"calendar"`
}

// SetDefaults fills unset fields with safe values.
func (c *Config) SetDefaults() {
	if c.RetryBudgetFactor == 0 {
		c.RetryBudgetFactor = 2
	}
	if c.TimeBudgetSeconds == 0 {
		c.TimeBudgetSeconds = 30
	}
}

// Validate rejects out-of-range settings.
func (c *Config) Validate() error {
	if c.SubHorizonSlots < 0 {
		return errors.New("scheduler: sub_horizon_slots must be >= 0")
	}
	if c.MaxRetries < 0 {
		return errors.New("scheduler: max_retries must be >= 0")
	}
	if c.RetryBudgetFactor < 1 {
		return errors.New("scheduler: retry_budget_factor must be >= 1")
	}
	if c.TimeBudgetSeconds <= 0 {
		return errors.New("scheduler: time_budget_seconds must be positive")
	}
	return c.Calendar.Validate()
}
