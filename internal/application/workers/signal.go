package workers

import (
	"github.com/weftworks/weft/pkg/domain/run"
	"github.com/weftworks/weft/pkg/ports"
)

// SignalKind distinguishes what a worker is reporting.
type SignalKind string

const (
	// SignalEvent carries an intermediate step event for the bus.
	SignalEvent SignalKind = "event"
	// SignalResult carries a step's terminal result or ordinary failure.
	SignalResult SignalKind = "result"
	// SignalCrash carries a recovered panic.
	SignalCrash SignalKind = "crash"
)

// Signal is the one-way message a worker sends to the coordinator.
type Signal struct {
	Kind    SignalKind
	Worker  string
	Item    string
	Attempt int

	// Event is set for SignalEvent.
	Event *ports.Event
	// Result and Err are set for SignalResult; Err non-nil means the attempt
	// failed in the ordinary, retryable way.
	Result *ports.StepResult
	Err    error
	// Crash is set for SignalCrash.
	Crash *run.CrashDiagnostic
}
