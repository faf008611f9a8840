package steps

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/weftworks/weft/pkg/ports"
)

// StepFunc executes one item attempt. An error return is an ordinary,
// retryable failure; a panic is a crash.
type StepFunc func(ctx context.Context, step ports.StepContext, sink ports.EventSink) (*ports.StepResult, error)

// Registry dispatches step execution by item type. It implements
// ports.StepExecutor.
type Registry struct {
	logger *zap.Logger

	mu    sync.RWMutex
	funcs map[string]StepFunc
}

// NewRegistry creates an empty step registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger: logger,
		funcs:  make(map[string]StepFunc),
	}
}

// Register binds a step function to an item type.
func (r *Registry) Register(itemType string, fn StepFunc) error {
	if itemType == "" {
		return fmt.Errorf("item type is required")
	}
	if fn == nil {
		return fmt.Errorf("step function is required for item type %s", itemType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[itemType]; exists {
		return fmt.Errorf("item type already registered: %s", itemType)
	}
	r.funcs[itemType] = fn
	return nil
}

// Types returns every registered item type, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.funcs))
	for t := range r.funcs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ExecuteStep runs the step function registered for the item's type.
func (r *Registry) ExecuteStep(ctx context.Context, step ports.StepContext, sink ports.EventSink) (*ports.StepResult, error) {
	r.mu.RLock()
	fn, ok := r.funcs[step.ItemType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no step registered for item type: %s", step.ItemType)
	}

	r.logger.Debug("executing step",
		zap.String("run_id", step.RunID),
		zap.String("item", step.Item),
		zap.String("item_type", step.ItemType),
		zap.Int("attempt", step.Attempt))

	return fn(ctx, step, sink)
}
