package scheduler

import (
	"github.com/weftworks/weft/pkg/domain/run"
	"github.com/weftworks/weft/pkg/domain/workflow"
)

// Planner derives which items are eligible to start: pending items whose
// connection-predecessors have all resolved (succeeded or skipped). Eligible
// items are returned in graph insertion order, which is the engine's
// documented tie-break among simultaneously ready items.
//
// The planner snapshots the graph's items and edges at construction; the
// graph must be complete by then.
type Planner struct {
	order []string
	preds map[string][]string
}

// NewPlanner builds a planner over the project's connection edges.
func NewPlanner(project *workflow.Project) *Planner {
	pl := &Planner{
		order: project.ItemNames(),
		preds: make(map[string][]string, len(project.ItemNames())),
	}
	for _, name := range pl.order {
		pl.preds[name] = project.Predecessors(name)
	}
	return pl
}

// Ready returns the items eligible to start under the given statuses, in
// admission order.
func (pl *Planner) Ready(statusOf func(string) run.ItemStatus) []string {
	var ready []string
	for _, name := range pl.order {
		if statusOf(name) != run.ItemPending {
			continue
		}
		eligible := true
		for _, pre := range pl.preds[name] {
			if !statusOf(pre).Resolved() {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, name)
		}
	}
	return ready
}

// Predecessors returns the cached connection-predecessors of an item, sorted.
func (pl *Planner) Predecessors(name string) []string {
	return pl.preds[name]
}
