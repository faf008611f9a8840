package run

import "time"

// EventKind labels entries in a run's event stream.
type EventKind string

const (
	EventStart   EventKind = "start"
	EventSuccess EventKind = "success"
	EventFailure EventKind = "failure"
	EventSkip    EventKind = "skip"
	EventSummary EventKind = "run-summary"
)

// Event is one entry in the lazy, finite event sequence produced by a run.
// Item is empty only on the run-summary event, which is always last.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Item      string         `json:"item,omitempty"`
	Attempt   int            `json:"attempt,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Outputs   map[string]any `json:"outputs,omitempty"`
	Summary   *Result        `json:"summary,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
