package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weftworks/weft/internal/application/workers"
	"github.com/weftworks/weft/pkg/domain/run"
	"github.com/weftworks/weft/pkg/domain/workflow"
	"github.com/weftworks/weft/pkg/ports"
	"github.com/weftworks/weft/pkg/resource"
)

// ErrAlreadyStarted is returned when Start is called twice; a new Scheduler
// instance is required per run.
var ErrAlreadyStarted = errors.New("scheduler already started")

const (
	defaultPollInterval   = 25 * time.Millisecond
	defaultCancelGrace    = 5 * time.Second
	defaultHealthInterval = 30 * time.Second
)

// Config controls one run.
type Config struct {
	// MaxConcurrent bounds how many items execute at once; it is also the
	// worker pool size. Values below one are raised to one.
	MaxConcurrent int
	// MaxRetries is the per-item budget of ordinary-failure re-attempts.
	// Crashes are never retried.
	MaxRetries int
	// PollInterval is the coordinator's admission tick.
	PollInterval time.Duration
	// CancelGrace bounds how long cancellation waits for in-flight workers
	// before treating them as crashed.
	CancelGrace time.Duration
	// HealthInterval is the worker pool health sampling period.
	HealthInterval time.Duration
	// JumpGuard caps true evaluations per backward jump; zero is unbounded.
	JumpGuard int
	// ResourceWait bounds resource precursor waits; zero waits indefinitely.
	ResourceWait time.Duration
	// Permits gates items per name: false means skip without running. Items
	// absent from the map are permitted.
	Permits map[string]bool
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = defaultCancelGrace
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = defaultHealthInterval
	}
	return c
}

// Scheduler executes one project run. Instances are single-use: Start may be
// called once, and the event stream it returns is finite.
type Scheduler struct {
	runID    string
	project  *workflow.Project
	cfg      Config
	executor ports.StepExecutor
	bus      ports.EventBus
	metrics  ports.MetricsCollector
	logger   *zap.Logger

	planner   *Planner
	jumps     *JumpController
	resources *resource.Manager
	pool      *workers.Pool
	rc        *runContext

	events chan run.Event
	done   chan struct{}

	result *run.Result
	runErr error

	started atomic.Bool
}

// New creates a scheduler for one run of the given project. The bus, metrics
// collector and logger may be nil; no-ops are substituted.
func New(
	runID string,
	project *workflow.Project,
	cfg Config,
	executor ports.StepExecutor,
	bus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Scheduler {
	cfg = cfg.withDefaults()
	if bus == nil {
		bus = nopBus{}
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	resources := resource.NewManager(cfg.ResourceWait)
	s := &Scheduler{
		runID:     runID,
		project:   project,
		cfg:       cfg,
		executor:  executor,
		bus:       bus,
		metrics:   metrics,
		logger:    logger,
		planner:   NewPlanner(project),
		resources: resources,
		rc:        newRunContext(runID, project, cfg.MaxRetries),
		events:    make(chan run.Event, 16),
		done:      make(chan struct{}),
	}
	s.jumps = NewJumpController(project, cfg.JumpGuard, s.publishMessage, logger)
	s.pool = workers.NewPool(runID, cfg.MaxConcurrent, executor, resources, metrics, logger, cfg.HealthInterval)
	return s
}

// Start launches the run and returns its event stream. The channel closes
// after the run-summary event, once every item is terminal and no workers
// remain active. The stream must be consumed.
func (s *Scheduler) Start(ctx context.Context) (<-chan run.Event, error) {
	if s.project == nil || len(s.project.ItemNames()) == 0 {
		return nil, errors.New("project has no items")
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	go s.run(ctx)
	return s.events, nil
}

// Result blocks until the run has terminated. The error is non-nil only when
// at least one worker crashed: a single aggregate bundling every crash
// diagnostic. Permanent item failures surface through the result's status and
// outcomes, not through the error.
func (s *Scheduler) Result() (*run.Result, error) {
	<-s.done
	return s.result, s.runErr
}

func (s *Scheduler) run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.rc.startedAt = time.Now()
	s.logger.Info("run started",
		zap.String("run_id", s.runID),
		zap.String("workflow", s.project.Name),
		zap.Int("items", len(s.project.ItemNames())),
		zap.Int("max_concurrent", s.cfg.MaxConcurrent))
	s.publishLifecycle(runCtx, ports.CategoryExecutionStarted, "", "run started")

	if err := s.pool.Start(); err != nil {
		s.logger.Error("failed to start worker pool", zap.Error(err))
	}

	s.applyPermitSkips(runCtx)
	s.admitReady(runCtx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	cancelled := false

loop:
	for {
		if s.rc.allTerminal() && s.rc.running == 0 {
			break
		}
		select {
		case sig := <-s.pool.Signals():
			s.handleSignal(runCtx, sig)
			s.drainSignals(runCtx)
			s.admitReady(runCtx)
		case <-ticker.C:
			s.admitReady(runCtx)
		case <-runCtx.Done():
			cancelled = true
			s.drainAfterCancel()
			break loop
		}
	}

	if cancelled {
		s.accountCancellation()
	}

	s.finalize(runCtx, cancelled)
}

// drainSignals consumes whatever signals are immediately available so a burst
// of worker completions is folded into one admission pass.
func (s *Scheduler) drainSignals(ctx context.Context) {
	for {
		select {
		case sig := <-s.pool.Signals():
			s.handleSignal(ctx, sig)
		default:
			return
		}
	}
}

// drainAfterCancel keeps accounting for in-flight workers after cancellation,
// bounded by the cancel grace period.
func (s *Scheduler) drainAfterCancel() {
	grace := time.NewTimer(s.cfg.CancelGrace)
	defer grace.Stop()

	ctx := context.Background()
	for s.rc.running > 0 {
		select {
		case sig := <-s.pool.Signals():
			s.handleSignal(ctx, sig)
		case <-grace.C:
			return
		}
	}
}

// accountCancellation closes the books on a cancelled run: workers that never
// acknowledged are treated as crashed, and every item that has not reached a
// terminal state is skipped with an explicit event.
func (s *Scheduler) accountCancellation() {
	ctx := context.Background()

	busy := s.pool.BusyItems()
	workerOf := make(map[string]string, len(busy))
	for workerID, item := range busy {
		workerOf[item] = workerID
	}

	for _, name := range s.rc.runningItems() {
		workerID := workerOf[name]
		if workerID == "" {
			workerID = "unknown"
		}
		diag := run.CrashDiagnostic{
			Item:   name,
			Worker: workerID,
			Value:  "worker did not acknowledge cancellation",
		}
		s.rc.crashes = append(s.rc.crashes, diag)
		s.rc.running--
		s.rc.setStatus(name, run.ItemFailed)
		s.rc.reasons[name] = diag.Value
		s.emit(ctx, run.Event{Kind: run.EventFailure, Item: name, Attempt: s.rc.attempts[name], Reason: diag.Value})
		s.resourceCheckout(name)
		if it, err := s.project.Item(name); err == nil {
			s.metrics.RecordCrash(it.Type)
		}
		s.logger.Warn("worker did not acknowledge cancellation",
			zap.String("run_id", s.runID),
			zap.String("item", name),
			zap.String("worker_id", workerID))
	}

	for _, name := range s.project.ItemNames() {
		if s.rc.statusOf(name).Terminal() {
			continue
		}
		s.rc.setStatus(name, run.ItemSkipped)
		s.rc.reasons[name] = "run cancelled"
		s.emit(ctx, run.Event{Kind: run.EventSkip, Item: name, Reason: "run cancelled"})
		s.resourceCheckout(name)
	}
}

// applyPermitSkips marks every item whose execution permit is false as
// skipped before admission begins. Skips resolve the item for downstream
// admission as if it had succeeded.
func (s *Scheduler) applyPermitSkips(ctx context.Context) {
	for _, name := range s.project.ItemNames() {
		if allowed, ok := s.cfg.Permits[name]; !ok || allowed {
			continue
		}
		s.rc.setStatus(name, run.ItemSkipped)
		s.rc.reasons[name] = "execution permit denied"
		s.emit(ctx, run.Event{Kind: run.EventSkip, Item: name, Reason: "execution permit denied"})
		s.publishLifecycle(ctx, ports.CategoryExecutionFinished, name, "execution permit denied")
		s.resourceCheckout(name)
	}
}

// admitReady greedily dispatches eligible items while concurrency capacity is
// free. Admission order is the planner's: graph insertion order.
func (s *Scheduler) admitReady(ctx context.Context) {
	if s.rc.running >= s.cfg.MaxConcurrent {
		return
	}
	for _, name := range s.planner.Ready(s.rc.statusOf) {
		if s.rc.running >= s.cfg.MaxConcurrent {
			return
		}
		s.dispatch(ctx, name)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, name string) {
	it, err := s.project.Item(name)
	if err != nil {
		s.logger.Error("admitted item missing from project", zap.String("item", name))
		return
	}

	attempt := s.rc.attempts[name] + 1
	var spec *workflow.Specification
	if it.SpecType != "" || it.SpecName != "" {
		spec, _ = s.project.ItemSpecification(it.SpecType, it.SpecName)
	}

	step := ports.StepContext{
		RunID:     s.runID,
		Item:      name,
		ItemType:  it.Type,
		Attempt:   attempt,
		Params:    it.Params,
		Spec:      spec,
		Inputs:    s.rc.mergedInputs(s.planner.Predecessors(name)),
		JumpArgs:  s.rc.jumpArgs[name],
		Resources: it.Resources,
	}

	if err := s.pool.Dispatch(ctx, step); err != nil {
		// Cancellation raced the dispatch; the item stays pending for the
		// cancellation sweep.
		return
	}

	delete(s.rc.jumpArgs, name)
	s.rc.attempts[name] = attempt
	s.rc.setStatus(name, run.ItemRunning)
	s.rc.startedTimes[name] = time.Now()
	s.rc.running++
	s.emit(ctx, run.Event{Kind: run.EventStart, Item: name, Attempt: attempt})
	s.publishLifecycle(ctx, ports.CategoryExecutionStarted, name, "item started")
	s.logger.Debug("item admitted",
		zap.String("run_id", s.runID),
		zap.String("item", name),
		zap.Int("attempt", attempt))
}

func (s *Scheduler) handleSignal(ctx context.Context, sig workers.Signal) {
	switch sig.Kind {
	case workers.SignalEvent:
		if sig.Event != nil {
			s.publishEvent(ctx, *sig.Event)
		}
	case workers.SignalResult:
		s.handleResult(ctx, sig)
	case workers.SignalCrash:
		s.handleCrash(ctx, sig)
	}
}

func (s *Scheduler) handleResult(ctx context.Context, sig workers.Signal) {
	name := sig.Item
	if s.rc.statusOf(name) != run.ItemRunning {
		s.logger.Debug("ignoring stale result signal", zap.String("item", name), zap.Int("attempt", sig.Attempt))
		return
	}
	s.rc.running--
	duration := time.Since(s.rc.startedTimes[name])
	itemType := s.itemType(name)

	if sig.Err != nil {
		s.metrics.RecordItemExecuted(itemType, run.ItemFailed, duration)
		s.handleFailure(ctx, name, sig.Attempt, sig.Err)
		return
	}

	if sig.Result != nil && sig.Result.Status == ports.StepSkipped {
		s.rc.setStatus(name, run.ItemSkipped)
		s.rc.reasons[name] = "step skipped"
		s.metrics.RecordItemExecuted(itemType, run.ItemSkipped, duration)
		s.emit(ctx, run.Event{Kind: run.EventSkip, Item: name, Attempt: sig.Attempt, Reason: "step skipped"})
		s.publishLifecycle(ctx, ports.CategoryExecutionFinished, name, "item skipped")
		s.resourceCheckout(name)
		return
	}

	var outputs map[string]any
	if sig.Result != nil {
		outputs = sig.Result.Outputs
	}
	s.rc.setStatus(name, run.ItemSucceeded)
	s.rc.outputs[name] = outputs
	s.metrics.RecordItemExecuted(itemType, run.ItemSucceeded, duration)
	s.emit(ctx, run.Event{Kind: run.EventSuccess, Item: name, Attempt: sig.Attempt, Outputs: outputs})
	s.publishLifecycle(ctx, ports.CategoryExecutionFinished, name, "item succeeded")
	s.resourceCheckout(name)
	s.applyJumps(ctx, name)
}

func (s *Scheduler) handleFailure(ctx context.Context, name string, attempt int, cause error) {
	s.emit(ctx, run.Event{Kind: run.EventFailure, Item: name, Attempt: attempt, Reason: cause.Error()})

	if s.rc.budgets[name] > 0 {
		s.rc.budgets[name]--
		s.rc.setStatus(name, run.ItemPending)
		s.rc.reasons[name] = cause.Error()
		s.metrics.RecordRetry(s.itemType(name))
		s.publishMessage(ctx, ports.SeverityWarning, name,
			fmt.Sprintf("item failed, retrying (%d attempt(s) left): %v", s.rc.budgets[name], cause))
		s.logger.Warn("item failed, retrying",
			zap.String("run_id", s.runID),
			zap.String("item", name),
			zap.Int("attempt", attempt),
			zap.Int("budget_left", s.rc.budgets[name]),
			zap.Error(cause))
		return
	}

	s.rc.setStatus(name, run.ItemFailed)
	s.rc.reasons[name] = cause.Error()
	s.publishLifecycle(ctx, ports.CategoryExecutionFinished, name, "item failed permanently")
	s.logger.Warn("item failed permanently",
		zap.String("run_id", s.runID),
		zap.String("item", name),
		zap.Int("attempt", attempt),
		zap.Error(cause))
	s.resourceCheckout(name)
	s.cascadeSkip(ctx, name)
}

func (s *Scheduler) handleCrash(ctx context.Context, sig workers.Signal) {
	name := sig.Item
	if s.rc.statusOf(name) != run.ItemRunning {
		return
	}
	s.rc.running--
	duration := time.Since(s.rc.startedTimes[name])
	itemType := s.itemType(name)

	reason := "worker crashed: " + sig.Crash.Value
	s.rc.crashes = append(s.rc.crashes, *sig.Crash)
	s.rc.setStatus(name, run.ItemFailed)
	s.rc.reasons[name] = reason
	s.metrics.RecordCrash(itemType)
	s.metrics.RecordItemExecuted(itemType, run.ItemFailed, duration)
	s.emit(ctx, run.Event{Kind: run.EventFailure, Item: name, Attempt: sig.Attempt, Reason: reason})
	s.publishMessage(ctx, ports.SeverityError, name, reason)
	s.publishLifecycle(ctx, ports.CategoryExecutionFinished, name, "item crashed")
	s.logger.Error("worker crashed",
		zap.String("run_id", s.runID),
		zap.String("item", name),
		zap.String("worker_id", sig.Crash.Worker),
		zap.String("panic", sig.Crash.Value))
	s.resourceCheckout(name)
	s.cascadeSkip(ctx, name)
}

// cascadeSkip marks every still-pending transitive successor of a permanently
// failed item as skipped, each with an explicit event. A blocked item can
// never run regardless of its other predecessors, and the run must end with
// every item terminal.
func (s *Scheduler) cascadeSkip(ctx context.Context, failed string) {
	queue := []string{failed}
	seen := map[string]bool{failed: true}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, succ := range s.project.Successors(n) {
			if seen[succ] {
				continue
			}
			seen[succ] = true
			if s.rc.statusOf(succ) == run.ItemPending {
				reason := fmt.Sprintf("skipped due to failed predecessor %q", failed)
				s.rc.setStatus(succ, run.ItemSkipped)
				s.rc.reasons[succ] = reason
				s.emit(ctx, run.Event{Kind: run.EventSkip, Item: succ, Reason: reason})
				s.publishLifecycle(ctx, ports.CategoryExecutionFinished, succ, reason)
				s.resourceCheckout(succ)
			}
			queue = append(queue, succ)
		}
	}
}

// applyJumps evaluates backward jumps sourced at a completed item and applies
// any resets: path items return to pending with restored retry budgets and
// the jump's arguments attached to their next invocation.
func (s *Scheduler) applyJumps(ctx context.Context, completed string) {
	resets := s.jumps.Evaluate(ctx, completed, s.rc.outputs[completed])
	for _, reset := range resets {
		s.publishMessage(ctx, ports.SeverityInfo, reset.Source,
			fmt.Sprintf("backward jump %s -> %s fired (iteration %d), resetting %d item(s)",
				reset.Source, reset.Target, reset.Iteration, len(reset.Items)))
		s.logger.Info("backward jump fired",
			zap.String("run_id", s.runID),
			zap.String("source", reset.Source),
			zap.String("target", reset.Target),
			zap.Int("iteration", reset.Iteration),
			zap.Strings("items", reset.Items))
		for _, name := range reset.Items {
			s.rc.reset(name, s.cfg.MaxRetries)
			if len(reset.Args) > 0 {
				s.rc.jumpArgs[name] = reset.Args
			}
		}
	}
}

// resourceCheckout records the item's declared consumers as checked out once
// the item is terminal, so waiters never hang on a participant that already
// finished, failed, or will never run.
func (s *Scheduler) resourceCheckout(name string) {
	it, err := s.project.Item(name)
	if err != nil {
		return
	}
	for _, res := range it.Resources {
		s.resources.CheckOut(res.ID, res.Consumer)
	}
}

func (s *Scheduler) finalize(ctx context.Context, cancelled bool) {
	status := run.StatusSucceeded
	if s.rc.anyFailed() {
		status = run.StatusFailed
	}
	if cancelled {
		status = run.StatusCancelled
	}

	s.result = &run.Result{
		RunID:     s.runID,
		Status:    status,
		Outcomes:  s.rc.outcomes(),
		StartedAt: s.rc.startedAt,
		EndedAt:   time.Now(),
	}
	if len(s.rc.crashes) > 0 {
		s.runErr = &run.CrashAggregateError{RunID: s.runID, Crashes: s.rc.crashes}
	}

	s.emit(ctx, run.Event{Kind: run.EventSummary, Summary: s.result})
	close(s.events)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.CancelGrace)
	if err := s.pool.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("worker pool shutdown incomplete", zap.String("run_id", s.runID), zap.Error(err))
	}
	cancel()

	s.publishLifecycle(ctx, ports.CategoryExecutionFinished, "", "run "+string(status))
	s.logger.Info("run complete",
		zap.String("run_id", s.runID),
		zap.String("status", string(status)),
		zap.Int("crashes", len(s.rc.crashes)),
		zap.Duration("duration", s.result.EndedAt.Sub(s.result.StartedAt)))

	close(s.done)
}

// emit delivers one event to the run's stream. The first attempt never
// blocks; if the buffer is full the send waits, escaping only when the run
// context is gone and the consumer has stopped draining.
func (s *Scheduler) emit(ctx context.Context, ev run.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case s.events <- ev:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-ctx.Done():
		s.logger.Debug("event dropped after cancellation",
			zap.String("run_id", s.runID),
			zap.String("kind", string(ev.Kind)),
			zap.String("item", ev.Item))
	}
}

func (s *Scheduler) itemType(name string) string {
	if it, err := s.project.Item(name); err == nil {
		return it.Type
	}
	return ""
}

func (s *Scheduler) publishLifecycle(ctx context.Context, category ports.Category, item, message string) {
	s.publishEvent(ctx, ports.Event{Category: category, Item: item, Message: message})
}

func (s *Scheduler) publishMessage(ctx context.Context, severity ports.Severity, item, message string) {
	s.publishEvent(ctx, ports.Event{Category: ports.CategoryMessage, Severity: severity, Item: item, Message: message})
}

func (s *Scheduler) publishEvent(ctx context.Context, ev ports.Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	ev.RunID = s.runID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("category", string(ev.Category)),
			zap.Error(err))
	}
}

type nopBus struct{}

func (nopBus) Publish(context.Context, ports.Event) error { return nil }
func (nopBus) Subscribe(context.Context, ports.Category, ports.EventHandler) error {
	return nil
}
func (nopBus) Unsubscribe(context.Context, ports.Category) error { return nil }
func (nopBus) Close() error                                      { return nil }
