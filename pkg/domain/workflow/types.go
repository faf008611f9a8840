package workflow

import (
	"context"

	"github.com/weftworks/weft/pkg/resource"
)

// Item is one executable step definition in a project graph.
//
// Run-time state (pending, running, ...) is not stored here; it belongs to
// the run that executes the item.
type Item struct {
	Name string `json:"name"`
	// Type selects the step implementation that executes this item.
	Type string `json:"type"`

	// SpecType and SpecName reference a Specification by its key. Both empty
	// means the item carries no specification reference.
	SpecType string `json:"spec_type,omitempty"`
	SpecName string `json:"spec_name,omitempty"`

	Params map[string]any `json:"params,omitempty"`

	// Resources declares the shared artifacts this item produces or consumes,
	// with their consumption-order metadata.
	Resources []resource.Resource `json:"resources,omitempty"`
}

// Connection is a directed dependency edge between two items. The target may
// not start before the source has resolved. Filter settings travel with the
// edge and are not interpreted by the engine.
type Connection struct {
	Source  string         `json:"source"`
	Target  string         `json:"target"`
	Filters map[string]any `json:"filters,omitempty"`
}

// BackwardJump is a directed edge from an item back to one of its ancestors.
// It is the sanctioned way to close a cycle: when the source item completes
// and the condition evaluates true, the path from target to source is reset
// and re-executed with Args attached.
type BackwardJump struct {
	Source    string         `json:"source"`
	Target    string         `json:"target"`
	Condition Condition      `json:"-"`
	Args      map[string]any `json:"args,omitempty"`
}

// Condition decides whether a backward jump fires after its source item
// completes. The evaluation mechanism is supplied by the caller; the engine
// only invokes it. A nil condition never fires.
type Condition func(ctx context.Context, eval JumpEvaluation) (bool, error)

// JumpEvaluation carries everything a jump condition may inspect.
type JumpEvaluation struct {
	Source string
	Target string
	// Iteration counts this jump's previous true evaluations in the current
	// run, starting at zero.
	Iteration int
	// Outputs holds the source item's outputs from the attempt that just
	// finished.
	Outputs map[string]any
	Args    map[string]any
}

// Specification is a reusable, typed configuration object referenced, never
// owned, by items. Keyed by (item type, name).
type Specification struct {
	ItemType string         `json:"item_type"`
	Name     string         `json:"name"`
	Settings map[string]any `json:"settings,omitempty"`
}
