package ports

import (
	"time"

	"github.com/weftworks/weft/pkg/domain/run"
)

// MetricsCollector records operational metrics. Implementations must be safe
// for concurrent use.
type MetricsCollector interface {
	RecordRunSubmitted(workflow string)
	RecordRunCompleted(workflow string, status run.Status, duration time.Duration)
	RecordItemExecuted(itemType string, status run.ItemStatus, duration time.Duration)
	RecordRetry(itemType string)
	RecordCrash(itemType string)
	IncActiveRuns()
	DecActiveRuns()
	RecordWorkerPoolStatus(runID string, idle, busy, stopped int)
	RecordResourceWait(resourceID string, wait time.Duration)
}

// NopMetrics is a MetricsCollector that records nothing. It backs tests and
// metrics-disabled deployments.
type NopMetrics struct{}

func (NopMetrics) RecordRunSubmitted(string)                              {}
func (NopMetrics) RecordRunCompleted(string, run.Status, time.Duration)   {}
func (NopMetrics) RecordItemExecuted(string, run.ItemStatus, time.Duration) {}
func (NopMetrics) RecordRetry(string)                                     {}
func (NopMetrics) RecordCrash(string)                                     {}
func (NopMetrics) IncActiveRuns()                                         {}
func (NopMetrics) DecActiveRuns()                                         {}
func (NopMetrics) RecordWorkerPoolStatus(string, int, int, int)           {}
func (NopMetrics) RecordResourceWait(string, time.Duration)               {}
