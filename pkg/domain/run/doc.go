// Package run defines the execution-time model of a workflow run: item and
// run statuses, the event stream a scheduler produces, the terminal result,
// crash diagnostics, and the snapshot persisted by the run store.
package run
