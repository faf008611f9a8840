// Package orchestrator implements the run lifecycle around the scheduler.
//
// The orchestrator manager owns every run submitted to the daemon:
//   - Validating a project before any of it executes
//   - Creating a single-use scheduler per run and streaming its events
//   - Persisting a run snapshot to storage after every event
//   - Cancelling runs on request and enforcing the run timeout
//
// The validator checks the concerns graph construction cannot: item types the
// executor knows, specification references that resolve, well-formed resource
// declarations.
package orchestrator
