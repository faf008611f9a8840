package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/weftworks/weft/pkg/ports"
)

const defaultDelay = 10 * time.Millisecond

// RegisterBuiltins registers the built-in step types on a registry.
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]StepFunc{
		"delay": delayStep,
		"emit":  emitStep,
		"gate":  gateStep,
		"fail":  failStep,
	}
	for itemType, fn := range builtins {
		if err := r.Register(itemType, fn); err != nil {
			return err
		}
	}
	return nil
}

// delayStep sleeps for params["duration"], honouring cancellation.
func delayStep(ctx context.Context, step ports.StepContext, sink ports.EventSink) (*ports.StepResult, error) {
	d := defaultDelay
	if raw := paramString(step.Params, "duration"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		d = parsed
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &ports.StepResult{
		Status:  ports.StepSucceeded,
		Outputs: map[string]any{"slept": d.String()},
	}, nil
}

// emitStep publishes params["message"] as a process message and returns
// params["outputs"] as the item's outputs.
func emitStep(ctx context.Context, step ports.StepContext, sink ports.EventSink) (*ports.StepResult, error) {
	message := paramString(step.Params, "message")
	if message != "" {
		severity := ports.Severity(paramString(step.Params, "severity"))
		if severity == "" {
			severity = ports.SeverityInfo
		}
		sink.Emit(ctx, ports.Event{
			Category: ports.CategoryProcessMessage,
			Severity: severity,
			Message:  message,
		})
	}

	result := &ports.StepResult{Status: ports.StepSucceeded}
	if outputs, ok := step.Params["outputs"].(map[string]any); ok {
		result.Outputs = outputs
	}
	return result, nil
}

// gateStep succeeds when params["open"] is true or absent, skips otherwise.
func gateStep(ctx context.Context, step ports.StepContext, sink ports.EventSink) (*ports.StepResult, error) {
	open := true
	if v, ok := step.Params["open"].(bool); ok {
		open = v
	}
	if !open {
		return &ports.StepResult{Status: ports.StepSkipped}, nil
	}
	return &ports.StepResult{Status: ports.StepSucceeded}, nil
}

// failStep fails params["failures"] attempts before succeeding; with the
// parameter absent it fails every attempt.
func failStep(ctx context.Context, step ports.StepContext, sink ports.EventSink) (*ports.StepResult, error) {
	failures, ok := paramNumber(step.Params, "failures")
	if !ok || step.Attempt <= int(failures) {
		return nil, fmt.Errorf("induced failure on attempt %d", step.Attempt)
	}
	return &ports.StepResult{
		Status:  ports.StepSucceeded,
		Outputs: map[string]any{"attempts": step.Attempt},
	}, nil
}

func paramString(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// paramNumber reads a numeric parameter. JSON decoding yields float64; ints
// appear when the project was built in-process.
func paramNumber(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
