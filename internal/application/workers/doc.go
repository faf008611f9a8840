// Package workers implements the per-run worker pool.
//
// A pool holds exactly as many workers as the run's concurrency bound. The
// coordinator hands admitted item attempts to the pool over a dispatch
// channel; workers report everything back over a one-way signal channel and
// never touch coordinator state. Each execution is wrapped in panic recovery:
// a panicking step becomes a crash signal instead of taking the process down.
//
// The health monitor periodically samples worker states and reports the tally
// to the logger and the metrics collector.
package workers
