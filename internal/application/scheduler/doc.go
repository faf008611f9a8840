// Package scheduler executes one workflow run.
//
// A Scheduler instance is single-use: it walks a validated project graph,
// admitting items whose connection-predecessors have resolved, up to the
// run's concurrency bound. Admitted items execute in an isolated worker pool;
// workers report back over a signal channel and the coordinator alone mutates
// run state. Ordinary item failures are retried against a per-item budget,
// worker panics are captured as crashes and aggregated into one error at run
// end, and permanently failed items cascade explicit skips to their
// downstream.
//
// Backward jumps are evaluated when their source item completes: a true
// condition resets the target-to-source path to pending for another pass,
// with the jump's arguments attached to the next invocation.
package scheduler
