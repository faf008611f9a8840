package ports

import (
	"context"

	"github.com/weftworks/weft/pkg/domain/workflow"
	"github.com/weftworks/weft/pkg/resource"
)

// StepContext is everything a step implementation may consult. It is built
// per attempt by the scheduler and never shared between attempts.
type StepContext struct {
	RunID    string
	Item     string
	ItemType string
	// Attempt is 1-based and counts retries as well as jump re-entries.
	Attempt int

	Params map[string]any
	Spec   *workflow.Specification

	// Inputs holds the merged outputs of the item's connection-predecessors.
	Inputs map[string]any
	// JumpArgs is set when the attempt follows a backward jump into this item.
	JumpArgs map[string]any

	Resources []resource.Resource
}

// StepStatus is a step's terminal signal when it did not fail.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepSkipped   StepStatus = "skipped"
)

// StepResult is the terminal report of one step attempt.
type StepResult struct {
	Status  StepStatus
	Outputs map[string]any
}

// EventSink receives a step's intermediate events as they occur. Emit must
// not block on slow observers; delivery is best-effort.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// StepExecutor runs one item attempt: it produces a lazy, finite sequence of
// events through the sink and a terminal result.
//
// A returned error is an ordinary item failure, subject to retry policy. A
// panic is a worker crash: never retried, aggregated at end of run.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, step StepContext, sink EventSink) (*StepResult, error)
}
