package workers

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weftworks/weft/pkg/domain/run"
	"github.com/weftworks/weft/pkg/ports"
	"github.com/weftworks/weft/pkg/resource"
)

// Pool manages a fixed set of worker goroutines for one run.
type Pool struct {
	runID     string
	size      int
	executor  ports.StepExecutor
	resources *resource.Manager
	metrics   ports.MetricsCollector
	logger    *zap.Logger
	health    *HealthMonitor

	dispatch chan ports.StepContext
	signals  chan Signal

	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// worker represents a single worker goroutine
type worker struct {
	id          string
	pool        *Pool
	status      WorkerStatus
	currentItem string
	mu          sync.RWMutex
	lastJob     time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a worker pool of the given size. The signal channel is
// buffered generously so workers rarely block while the coordinator is busy.
func NewPool(
	runID string,
	size int,
	executor ports.StepExecutor,
	resources *resource.Manager,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		runID:     runID,
		size:      size,
		executor:  executor,
		resources: resources,
		metrics:   metrics,
		logger:    logger,
		dispatch:  make(chan ports.StepContext, size),
		signals:   make(chan Signal, size*8),
		workers:   make([]*worker, size),
		ctx:       ctx,
		cancel:    cancel,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start starts the worker pool
func (p *Pool) Start() error {
	p.logger.Debug("starting worker pool",
		zap.String("run_id", p.runID),
		zap.Int("size", p.size))

	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	p.health.Start()
	return nil
}

// Dispatch hands one admitted item attempt to the pool. The coordinator only
// admits while capacity is free, so the send does not block in normal
// operation; the context guards the shutdown race.
func (p *Pool) Dispatch(ctx context.Context, step ports.StepContext) error {
	select {
	case p.dispatch <- step:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Signals returns the channel workers report on.
func (p *Pool) Signals() <-chan Signal {
	return p.signals
}

// Shutdown gracefully shuts down the worker pool
func (p *Pool) Shutdown(ctx context.Context) error {
	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Debug("worker pool shut down complete", zap.String("run_id", p.runID))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool shutdown timeout")
	}
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// BusyItems returns the items workers are still executing, by worker id.
func (p *Pool) BusyItems() map[string]string {
	items := make(map[string]string)
	for _, w := range p.workers {
		w.mu.RLock()
		if w.status == WorkerStatusBusy && w.currentItem != "" {
			items[w.id] = w.currentItem
		}
		w.mu.RUnlock()
	}
	return items
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.setStatus(WorkerStatusStopped, "")
			return
		case step := <-w.pool.dispatch:
			w.execute(ctx, step)
		}
	}
}

// execute runs one item attempt and reports its terminal signal.
func (w *worker) execute(ctx context.Context, step ports.StepContext) {
	w.setStatus(WorkerStatusBusy, step.Item)
	defer w.setStatus(WorkerStatusIdle, "")

	w.pool.logger.Debug("executing item",
		zap.String("worker_id", w.id),
		zap.String("run_id", step.RunID),
		zap.String("item", step.Item),
		zap.Int("attempt", step.Attempt))

	result, err, crashed := w.invoke(ctx, step)
	if crashed != nil {
		w.send(ctx, Signal{
			Kind:    SignalCrash,
			Worker:  w.id,
			Item:    step.Item,
			Attempt: step.Attempt,
			Crash:   crashed,
		})
		return
	}

	w.send(ctx, Signal{
		Kind:    SignalResult,
		Worker:  w.id,
		Item:    step.Item,
		Attempt: step.Attempt,
		Result:  result,
		Err:     err,
	})
}

// invoke runs the step inside its declared resource scopes, converting a
// panic into a crash diagnostic instead of letting it escape.
func (w *worker) invoke(ctx context.Context, step ports.StepContext) (result *ports.StepResult, err error, crashed *run.CrashDiagnostic) {
	defer func() {
		if r := recover(); r != nil {
			crashed = &run.CrashDiagnostic{
				Item:   step.Item,
				Worker: w.id,
				Value:  fmt.Sprint(r),
				Stack:  string(debug.Stack()),
			}
			w.pool.logger.Error("worker recovered from panic",
				zap.String("worker_id", w.id),
				zap.String("item", step.Item),
				zap.Any("panic", r))
		}
	}()

	sink := &workerSink{worker: w, step: step}
	body := func(ctx context.Context) error {
		res, execErr := w.pool.executor.ExecuteStep(ctx, step, sink)
		result = res
		return execErr
	}

	// Nest the body inside ManagingOrder for each declared resource,
	// outermost first, so precursor ordering holds at the execution boundary.
	for i := len(step.Resources) - 1; i >= 0; i-- {
		res := step.Resources[i]
		inner := body
		body = func(ctx context.Context) error {
			waitStart := time.Now()
			return w.pool.resources.ManagingOrder(ctx, res, func(ctx context.Context) error {
				w.pool.metrics.RecordResourceWait(res.ID, time.Since(waitStart))
				return inner(ctx)
			})
		}
	}

	err = body(ctx)
	return result, err, nil
}

func (w *worker) send(ctx context.Context, sig Signal) {
	select {
	case w.pool.signals <- sig:
	case <-w.pool.ctx.Done():
	case <-ctx.Done():
	}
}

func (w *worker) setStatus(status WorkerStatus, item string) {
	w.mu.Lock()
	w.status = status
	w.currentItem = item
	if status == WorkerStatusBusy {
		w.lastJob = time.Now()
	}
	w.mu.Unlock()
}

// workerSink forwards a step's intermediate events to the coordinator.
type workerSink struct {
	worker *worker
	step   ports.StepContext
}

func (s *workerSink) Emit(ctx context.Context, event ports.Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.RunID == "" {
		event.RunID = s.step.RunID
	}
	if event.Item == "" {
		event.Item = s.step.Item
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.worker.send(ctx, Signal{
		Kind:    SignalEvent,
		Worker:  s.worker.id,
		Item:    s.step.Item,
		Attempt: s.step.Attempt,
		Event:   &event,
	})
}
