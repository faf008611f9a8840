package http

import (
	"fmt"
	"time"

	"github.com/weftworks/weft/internal/application/orchestrator"
	"github.com/weftworks/weft/pkg/domain/workflow"
	"github.com/weftworks/weft/pkg/resource"
)

// WorkflowPayload is the wire form of a project graph. Items, connections,
// jumps and specifications are applied in order through the graph operations,
// so the payload cannot express anything the graph invariants forbid.
type WorkflowPayload struct {
	Name           string                 `json:"name" binding:"required"`
	Items          []ItemPayload          `json:"items" binding:"required"`
	Connections    []ConnectionPayload    `json:"connections"`
	Jumps          []JumpPayload          `json:"jumps"`
	Specifications []SpecificationPayload `json:"specifications"`
}

// ItemPayload is the wire form of one item.
type ItemPayload struct {
	Name      string              `json:"name" binding:"required"`
	Type      string              `json:"type" binding:"required"`
	SpecType  string              `json:"spec_type"`
	SpecName  string              `json:"spec_name"`
	Params    map[string]any      `json:"params"`
	Resources []resource.Resource `json:"resources"`
}

// ConnectionPayload is the wire form of one dependency edge.
type ConnectionPayload struct {
	Source  string         `json:"source" binding:"required"`
	Target  string         `json:"target" binding:"required"`
	Filters map[string]any `json:"filters"`
}

// JumpPayload is the wire form of one backward jump. The condition is
// declarative; it maps onto one of the condition constructors.
type JumpPayload struct {
	Source    string            `json:"source" binding:"required"`
	Target    string            `json:"target" binding:"required"`
	Condition *ConditionPayload `json:"condition"`
	Args      map[string]any    `json:"args"`
}

// ConditionPayload selects a jump condition by kind:
//   - max-iterations: fires while the iteration count is below value
//   - output-truthy: fires while the source output under key is truthy
//   - output-equals: fires while the source output under key equals value
type ConditionPayload struct {
	Kind  string `json:"kind" binding:"required"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// SpecificationPayload is the wire form of one item specification.
type SpecificationPayload struct {
	ItemType string         `json:"item_type" binding:"required"`
	Name     string         `json:"name" binding:"required"`
	Settings map[string]any `json:"settings"`
}

// RunOptionsPayload overrides scheduler defaults for one run. Durations are
// Go duration strings.
type RunOptionsPayload struct {
	MaxConcurrent int             `json:"max_concurrent"`
	MaxRetries    *int            `json:"max_retries"`
	JumpGuard     *int            `json:"jump_guard"`
	ResourceWait  string          `json:"resource_wait"`
	Timeout       string          `json:"timeout"`
	Permits       map[string]bool `json:"permits"`
}

// buildProject replays the payload through the graph operations. The first
// violated invariant aborts the build with that operation's error.
func buildProject(payload *WorkflowPayload) (*workflow.Project, error) {
	p := workflow.NewProject(payload.Name)

	for i := range payload.Specifications {
		sp := &payload.Specifications[i]
		err := p.AddItemSpecification(&workflow.Specification{
			ItemType: sp.ItemType,
			Name:     sp.Name,
			Settings: sp.Settings,
		})
		if err != nil {
			return nil, err
		}
	}

	for i := range payload.Items {
		ip := &payload.Items[i]
		err := p.AddItem(&workflow.Item{
			Name:      ip.Name,
			Type:      ip.Type,
			SpecType:  ip.SpecType,
			SpecName:  ip.SpecName,
			Params:    ip.Params,
			Resources: ip.Resources,
		})
		if err != nil {
			return nil, err
		}
	}

	for i := range payload.Connections {
		cp := &payload.Connections[i]
		err := p.AddConnection(cp.Source, cp.Target, &workflow.Connection{
			Source:  cp.Source,
			Target:  cp.Target,
			Filters: cp.Filters,
		})
		if err != nil {
			return nil, err
		}
	}

	for i := range payload.Jumps {
		jp := &payload.Jumps[i]
		cond, err := buildCondition(jp.Condition)
		if err != nil {
			return nil, fmt.Errorf("jump %s -> %s: %w", jp.Source, jp.Target, err)
		}
		err = p.AddBackwardJump(jp.Source, jp.Target, &workflow.BackwardJump{
			Source:    jp.Source,
			Target:    jp.Target,
			Condition: cond,
			Args:      jp.Args,
		})
		if err != nil {
			return nil, err
		}
	}

	return p, nil
}

// buildCondition maps a declarative condition onto a condition constructor.
// A nil payload yields a nil condition, which never fires.
func buildCondition(cp *ConditionPayload) (workflow.Condition, error) {
	if cp == nil {
		return nil, nil
	}
	switch cp.Kind {
	case "max-iterations":
		n, ok := cp.Value.(float64)
		if !ok || n < 1 {
			return nil, fmt.Errorf("max-iterations requires a positive numeric value")
		}
		return workflow.ConditionMaxIterations(int(n)), nil
	case "output-truthy":
		if cp.Key == "" {
			return nil, fmt.Errorf("output-truthy requires a key")
		}
		return workflow.ConditionOutputTruthy(cp.Key), nil
	case "output-equals":
		if cp.Key == "" {
			return nil, fmt.Errorf("output-equals requires a key")
		}
		return workflow.ConditionOutputEquals(cp.Key, cp.Value), nil
	default:
		return nil, fmt.Errorf("unknown condition kind: %s", cp.Kind)
	}
}

// submitOptions converts wire options into manager options.
func submitOptions(op *RunOptionsPayload) (orchestrator.SubmitOptions, error) {
	var opts orchestrator.SubmitOptions
	if op == nil {
		return opts, nil
	}

	opts.MaxConcurrent = op.MaxConcurrent
	opts.MaxRetries = op.MaxRetries
	opts.JumpGuard = op.JumpGuard
	opts.Permits = op.Permits

	if op.ResourceWait != "" {
		d, err := time.ParseDuration(op.ResourceWait)
		if err != nil {
			return opts, fmt.Errorf("invalid resource_wait: %w", err)
		}
		opts.ResourceWait = d
	}
	if op.Timeout != "" {
		d, err := time.ParseDuration(op.Timeout)
		if err != nil {
			return opts, fmt.Errorf("invalid timeout: %w", err)
		}
		opts.Timeout = d
	}

	return opts, nil
}
