package run

import (
	"fmt"
	"strings"
	"time"
)

// Outcome records how one item ended, after all retries and jump iterations.
type Outcome struct {
	Status   ItemStatus     `json:"status"`
	Attempts int            `json:"attempts"`
	Reason   string         `json:"reason,omitempty"`
	Outputs  map[string]any `json:"outputs,omitempty"`
}

// Result is the terminal outcome of a run: overall status plus the per-item
// outcome map.
type Result struct {
	RunID     string             `json:"run_id"`
	Status    Status             `json:"status"`
	Outcomes  map[string]Outcome `json:"outcomes"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at"`
}

// Success reports whether every item resolved without permanent failure.
func (r *Result) Success() bool {
	return r.Status == StatusSucceeded
}

// CrashDiagnostic captures one worker crash for end-of-run aggregation.
type CrashDiagnostic struct {
	Item   string `json:"item"`
	Worker string `json:"worker"`
	Value  string `json:"value"`
	Stack  string `json:"stack,omitempty"`
}

// CrashAggregateError bundles every worker crash observed during a run. The
// scheduler returns it once, after the run has otherwise completed; ordinary
// item failures never produce it.
type CrashAggregateError struct {
	RunID   string
	Crashes []CrashDiagnostic
}

func (e *CrashAggregateError) Error() string {
	items := make([]string, 0, len(e.Crashes))
	for _, c := range e.Crashes {
		items = append(items, c.Item)
	}
	return fmt.Sprintf("run %s: %d worker crash(es): %s", e.RunID, len(e.Crashes), strings.Join(items, ", "))
}
