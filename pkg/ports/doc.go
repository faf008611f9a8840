// Package ports defines the interfaces between the execution engine and its
// adapters:
//   - EventBus: fixed-category lifecycle/log event dispatch
//   - RunStore: run snapshot persistence
//   - MetricsCollector: operational metrics
//   - StepExecutor: the polymorphic "executable step" capability
//
// Implementations live under pkg/adapters.
package ports
