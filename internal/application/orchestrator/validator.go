package orchestrator

import (
	"fmt"

	"github.com/weftworks/weft/pkg/domain/workflow"
)

// Validator validates submitted projects
type Validator struct {
	// knownTypes, when non-empty, restricts item types to ones the step
	// executor can dispatch.
	knownTypes map[string]bool
}

// NewValidator creates a project validator. Item types are optional; with
// none given, any type is accepted.
func NewValidator(itemTypes ...string) *Validator {
	known := make(map[string]bool, len(itemTypes))
	for _, t := range itemTypes {
		known[t] = true
	}
	return &Validator{knownTypes: known}
}

// Validate checks a project is executable. Structural invariants (unique
// names, acyclic connections, endpoint existence) hold by construction; this
// covers what the graph type cannot see.
func (v *Validator) Validate(p *workflow.Project) error {
	if p == nil {
		return fmt.Errorf("project is nil")
	}

	if p.Name == "" {
		return fmt.Errorf("project name is required")
	}

	names := p.ItemNames()
	if len(names) == 0 {
		return fmt.Errorf("project must have at least one item")
	}

	for _, name := range names {
		it, err := p.Item(name)
		if err != nil {
			return fmt.Errorf("invalid item %s: %w", name, err)
		}
		if err := v.validateItem(it); err != nil {
			return fmt.Errorf("invalid item %s: %w", name, err)
		}
		if it.SpecType != "" || it.SpecName != "" {
			if _, err := p.ItemSpecification(it.SpecType, it.SpecName); err != nil {
				return fmt.Errorf("item %s references unknown specification %s/%s", name, it.SpecType, it.SpecName)
			}
		}
	}

	return nil
}

// validatePermits rejects permit keys that name no item in the project.
func validatePermits(p *workflow.Project, permits map[string]bool) error {
	for name := range permits {
		if _, err := p.Item(name); err != nil {
			return fmt.Errorf("permit references unknown item: %s", name)
		}
	}
	return nil
}

// validateItem validates a single item
func (v *Validator) validateItem(it *workflow.Item) error {
	if it.Type == "" {
		return fmt.Errorf("item type is required")
	}

	if len(v.knownTypes) > 0 && !v.knownTypes[it.Type] {
		return fmt.Errorf("unknown item type: %s", it.Type)
	}

	for _, res := range it.Resources {
		if res.ID == "" {
			return fmt.Errorf("resource ID is required")
		}
		if res.Consumer == "" {
			return fmt.Errorf("resource %s has no consumer participant", res.ID)
		}
	}

	return nil
}
