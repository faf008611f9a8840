package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/weftworks/weft/pkg/domain/workflow"
	"github.com/weftworks/weft/pkg/ports"
)

type jumpKey struct {
	source string
	target string
}

// Reset instructs the coordinator to return a set of items to pending for
// another pass over a jump's path.
type Reset struct {
	Source string
	Target string
	// Iteration is the 1-based count of this jump's true evaluations.
	Iteration int
	// Items is the target-to-source path, inclusive, in insertion order.
	Items []string
	Args  map[string]any
}

// JumpController evaluates backward jumps when their source item completes.
// It owns the per-jump iteration counts and the optional guard; applying the
// returned resets stays with the coordinator, so all state mutation remains
// single-threaded.
type JumpController struct {
	project *workflow.Project
	// guard caps true evaluations per jump; zero means unbounded.
	guard   int
	publish func(ctx context.Context, severity ports.Severity, item, message string)
	logger  *zap.Logger

	fired    map[jumpKey]int
	disabled map[jumpKey]bool
}

// NewJumpController creates a controller for one run.
func NewJumpController(
	project *workflow.Project,
	guard int,
	publish func(ctx context.Context, severity ports.Severity, item, message string),
	logger *zap.Logger,
) *JumpController {
	return &JumpController{
		project:  project,
		guard:    guard,
		publish:  publish,
		logger:   logger,
		fired:    make(map[jumpKey]int),
		disabled: make(map[jumpKey]bool),
	}
}

// Evaluate runs the conditions of every jump sourced at item and returns the
// resets to apply: at most one per jump, exactly one per true evaluation. A
// condition error never fires the jump; it is reported and the run continues.
func (jc *JumpController) Evaluate(ctx context.Context, item string, outputs map[string]any) []Reset {
	var resets []Reset
	for _, j := range jc.project.JumpsFrom(item) {
		key := jumpKey{source: j.Source, target: j.Target}
		if jc.disabled[key] || j.Condition == nil {
			continue
		}

		fire, err := j.Condition(ctx, workflow.JumpEvaluation{
			Source:    j.Source,
			Target:    j.Target,
			Iteration: jc.fired[key],
			Outputs:   outputs,
			Args:      j.Args,
		})
		if err != nil {
			jc.logger.Error("jump condition evaluation failed",
				zap.String("source", j.Source),
				zap.String("target", j.Target),
				zap.Error(err))
			jc.publish(ctx, ports.SeverityError, j.Source,
				fmt.Sprintf("backward jump %s -> %s condition failed: %v", j.Source, j.Target, err))
			continue
		}
		if !fire {
			continue
		}

		if jc.guard > 0 && jc.fired[key] >= jc.guard {
			jc.disabled[key] = true
			jc.logger.Warn("backward jump reached iteration guard",
				zap.String("source", j.Source),
				zap.String("target", j.Target),
				zap.Int("guard", jc.guard))
			jc.publish(ctx, ports.SeverityWarning, j.Source,
				fmt.Sprintf("backward jump %s -> %s reached its iteration guard (%d), disabling", j.Source, j.Target, jc.guard))
			continue
		}

		path := jc.project.ItemsOnPath(j.Target, j.Source)
		if len(path) == 0 {
			jc.publish(ctx, ports.SeverityWarning, j.Source,
				fmt.Sprintf("backward jump %s -> %s has no connection path back to its source, ignoring", j.Source, j.Target))
			continue
		}

		jc.fired[key]++
		resets = append(resets, Reset{
			Source:    j.Source,
			Target:    j.Target,
			Iteration: jc.fired[key],
			Items:     path,
			Args:      j.Args,
		})
	}
	return resets
}
