// Package steps provides the step executor the scheduler dispatches to.
//
// The registry maps item types to step functions. Built-in types:
//   - delay: sleeps for a configured duration
//   - emit: publishes a message and returns configured outputs
//   - gate: succeeds or skips based on a parameter
//   - fail: fails a configured number of attempts before succeeding
//
// Everything beyond the built-ins is registered by the embedding program.
package steps
