package scheduler

import (
	"time"

	"github.com/weftworks/weft/pkg/domain/run"
	"github.com/weftworks/weft/pkg/domain/workflow"
)

// runContext is the per-run mutable state: item statuses, attempt counts,
// retry budgets, outputs, jump arguments and crash records. It is owned by
// the coordinator goroutine and never shared with workers, so concurrent or
// sequential runs cannot leak state into each other.
type runContext struct {
	id string

	status       map[string]run.ItemStatus
	attempts     map[string]int
	budgets      map[string]int
	outputs      map[string]map[string]any
	jumpArgs     map[string]map[string]any
	reasons      map[string]string
	startedTimes map[string]time.Time

	crashes []run.CrashDiagnostic
	running int

	startedAt time.Time
}

func newRunContext(id string, project *workflow.Project, maxRetries int) *runContext {
	rc := &runContext{
		id:           id,
		status:       make(map[string]run.ItemStatus),
		attempts:     make(map[string]int),
		budgets:      make(map[string]int),
		outputs:      make(map[string]map[string]any),
		jumpArgs:     make(map[string]map[string]any),
		reasons:      make(map[string]string),
		startedTimes: make(map[string]time.Time),
	}
	for _, name := range project.ItemNames() {
		rc.status[name] = run.ItemPending
		rc.budgets[name] = maxRetries
	}
	return rc
}

func (rc *runContext) statusOf(name string) run.ItemStatus {
	return rc.status[name]
}

func (rc *runContext) setStatus(name string, st run.ItemStatus) {
	rc.status[name] = st
}

func (rc *runContext) allTerminal() bool {
	for _, st := range rc.status {
		if !st.Terminal() {
			return false
		}
	}
	return true
}

func (rc *runContext) anyFailed() bool {
	for _, st := range rc.status {
		if st == run.ItemFailed {
			return true
		}
	}
	return false
}

func (rc *runContext) runningItems() []string {
	var out []string
	for name, st := range rc.status {
		if st == run.ItemRunning {
			out = append(out, name)
		}
	}
	return out
}

// reset returns an item to pending for another jump iteration. The retry
// budget is restored; attempt counts stay cumulative across iterations.
func (rc *runContext) reset(name string, maxRetries int) {
	rc.status[name] = run.ItemPending
	rc.budgets[name] = maxRetries
	delete(rc.outputs, name)
	delete(rc.reasons, name)
	delete(rc.startedTimes, name)
}

// mergedInputs merges predecessor outputs in the given order; later
// predecessors overwrite on key collision. Callers pass sorted names, making
// the merge deterministic.
func (rc *runContext) mergedInputs(preds []string) map[string]any {
	if len(preds) == 0 {
		return nil
	}
	out := make(map[string]any)
	for _, p := range preds {
		for k, v := range rc.outputs[p] {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// outcomes builds the per-item outcome map for the terminal result.
func (rc *runContext) outcomes() map[string]run.Outcome {
	out := make(map[string]run.Outcome, len(rc.status))
	for name, st := range rc.status {
		out[name] = run.Outcome{
			Status:   st,
			Attempts: rc.attempts[name],
			Reason:   rc.reasons[name],
			Outputs:  rc.outputs[name],
		}
	}
	return out
}
