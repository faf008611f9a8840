package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weftworks/weft/internal/application/scheduler"
	"github.com/weftworks/weft/pkg/domain/run"
	"github.com/weftworks/weft/pkg/domain/workflow"
	"github.com/weftworks/weft/pkg/ports"
)

var (
	// ErrRunActive means the run has not reached a terminal status yet, so no
	// final result exists.
	ErrRunActive = errors.New("run still active")
	// ErrRunFinished means cancellation arrived after the run terminated.
	ErrRunFinished = errors.New("run already finished")
)

// SubmitOptions overrides the manager's per-run defaults. Zero values defer
// to the defaults; MaxRetries and JumpGuard use pointers because zero is a
// meaningful setting for both.
type SubmitOptions struct {
	MaxConcurrent int
	MaxRetries    *int
	JumpGuard     *int
	ResourceWait  time.Duration
	Timeout       time.Duration
	Permits       map[string]bool
}

// Manager coordinates run execution
type Manager struct {
	bus       ports.EventBus
	store     ports.RunStore
	metrics   ports.MetricsCollector
	executor  ports.StepExecutor
	validator *Validator
	logger    *zap.Logger

	// Per-run scheduler defaults, overridable at submission.
	defaults   scheduler.Config
	runTimeout time.Duration

	// Track active runs
	runs sync.Map // map[string]*runHandle
	wg   sync.WaitGroup
}

// runHandle holds what the manager needs to cancel and finish one run.
type runHandle struct {
	id        string
	sched     *scheduler.Scheduler
	cancel    context.CancelFunc
	startedAt time.Time
}

// NewManager creates a new run manager
func NewManager(
	bus ports.EventBus,
	store ports.RunStore,
	metrics ports.MetricsCollector,
	executor ports.StepExecutor,
	validator *Validator,
	logger *zap.Logger,
	defaults scheduler.Config,
	runTimeout time.Duration,
) *Manager {
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	return &Manager{
		bus:        bus,
		store:      store,
		metrics:    metrics,
		executor:   executor,
		validator:  validator,
		logger:     logger,
		defaults:   defaults,
		runTimeout: runTimeout,
	}
}

// SubmitRun validates the project and starts a run for it, returning the run
// ID immediately. Execution proceeds in the background; progress is persisted
// to the run store after every event.
func (m *Manager) SubmitRun(ctx context.Context, project *workflow.Project, opts SubmitOptions) (string, error) {
	if err := m.validator.Validate(project); err != nil {
		m.logger.Error("project validation failed", zap.Error(err))
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if err := validatePermits(project, opts.Permits); err != nil {
		m.logger.Error("project validation failed", zap.Error(err))
		return "", fmt.Errorf("validation failed: %w", err)
	}

	runID := uuid.New().String()
	now := time.Now()

	snap := &run.Snapshot{
		ID:        runID,
		Workflow:  project.Name,
		Status:    run.StatusPending,
		Items:     make(map[string]run.Outcome, len(project.ItemNames())),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, name := range project.ItemNames() {
		snap.Items[name] = run.Outcome{Status: run.ItemPending}
	}

	if err := m.store.SaveRun(ctx, snap.Clone()); err != nil {
		m.logger.Error("failed to save initial run state",
			zap.String("run_id", runID),
			zap.Error(err))
		return "", fmt.Errorf("failed to save run state: %w", err)
	}

	timeout := m.runTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	runCtx, cancel := context.WithTimeout(context.Background(), timeout)

	sched := scheduler.New(runID, project, m.runConfig(opts), m.executor, m.bus, m.metrics, m.logger)
	events, err := sched.Start(runCtx)
	if err != nil {
		cancel()
		return "", fmt.Errorf("failed to start run: %w", err)
	}

	handle := &runHandle{
		id:        runID,
		sched:     sched,
		cancel:    cancel,
		startedAt: now,
	}
	m.runs.Store(runID, handle)

	m.metrics.RecordRunSubmitted(project.Name)
	m.metrics.IncActiveRuns()
	m.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.String("workflow", project.Name),
		zap.Int("items", len(snap.Items)))

	m.wg.Add(1)
	go m.monitorRun(runCtx, handle, snap, events)

	return runID, nil
}

// runConfig layers submission options over the manager defaults.
func (m *Manager) runConfig(opts SubmitOptions) scheduler.Config {
	cfg := m.defaults
	if opts.MaxConcurrent > 0 {
		cfg.MaxConcurrent = opts.MaxConcurrent
	}
	if opts.MaxRetries != nil {
		cfg.MaxRetries = *opts.MaxRetries
	}
	if opts.JumpGuard != nil {
		cfg.JumpGuard = *opts.JumpGuard
	}
	if opts.ResourceWait > 0 {
		cfg.ResourceWait = opts.ResourceWait
	}
	if opts.Permits != nil {
		cfg.Permits = opts.Permits
	}
	return cfg
}

// monitorRun consumes the run's event stream, folding each event into the
// snapshot and persisting it, then records the final result.
func (m *Manager) monitorRun(runCtx context.Context, handle *runHandle, snap *run.Snapshot, events <-chan run.Event) {
	defer m.wg.Done()
	defer handle.cancel()

	ctx := context.Background()
	for ev := range events {
		m.applyEvent(snap, ev)
		snap.UpdatedAt = time.Now()
		if err := m.store.SaveRun(ctx, snap.Clone()); err != nil {
			m.logger.Warn("failed to persist run state",
				zap.String("run_id", handle.id),
				zap.Error(err))
		}
	}

	result, runErr := handle.sched.Result()

	snap.Status = result.Status
	snap.Items = result.Outcomes
	snap.StartedAt = result.StartedAt
	ended := result.EndedAt
	snap.EndedAt = &ended
	var agg *run.CrashAggregateError
	if errors.As(runErr, &agg) {
		snap.Crashes = agg.Crashes
	}
	snap.UpdatedAt = time.Now()

	if err := m.store.SaveRun(ctx, snap.Clone()); err != nil {
		m.logger.Error("failed to persist final run state",
			zap.String("run_id", handle.id),
			zap.Error(err))
	}

	m.runs.Delete(handle.id)
	m.metrics.DecActiveRuns()
	m.metrics.RecordRunCompleted(snap.Workflow, result.Status, result.EndedAt.Sub(result.StartedAt))

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		m.logger.Warn("run timed out", zap.String("run_id", handle.id))
	}
	if runErr != nil {
		m.logger.Error("run finished with worker crashes",
			zap.String("run_id", handle.id),
			zap.Error(runErr))
	}
	m.logger.Info("run finished",
		zap.String("run_id", handle.id),
		zap.String("workflow", snap.Workflow),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.EndedAt.Sub(result.StartedAt)))
}

// applyEvent folds one stream event into the snapshot.
func (m *Manager) applyEvent(snap *run.Snapshot, ev run.Event) {
	switch ev.Kind {
	case run.EventStart:
		if snap.Status == run.StatusPending {
			snap.Status = run.StatusRunning
			snap.StartedAt = ev.Timestamp
		}
		o := snap.Items[ev.Item]
		o.Status = run.ItemRunning
		o.Attempts = ev.Attempt
		snap.Items[ev.Item] = o

	case run.EventSuccess:
		o := snap.Items[ev.Item]
		o.Status = run.ItemSucceeded
		o.Attempts = ev.Attempt
		o.Outputs = ev.Outputs
		o.Reason = ""
		snap.Items[ev.Item] = o

	case run.EventFailure:
		o := snap.Items[ev.Item]
		o.Status = run.ItemFailed
		o.Attempts = ev.Attempt
		o.Reason = ev.Reason
		snap.Items[ev.Item] = o

	case run.EventSkip:
		o := snap.Items[ev.Item]
		o.Status = run.ItemSkipped
		o.Reason = ev.Reason
		snap.Items[ev.Item] = o

	case run.EventSummary:
		if ev.Summary != nil {
			snap.Status = ev.Summary.Status
			snap.Items = ev.Summary.Outcomes
			snap.StartedAt = ev.Summary.StartedAt
			ended := ev.Summary.EndedAt
			snap.EndedAt = &ended
		}
	}
}

// ValidateProject runs submission validation without starting anything.
func (m *Manager) ValidateProject(project *workflow.Project) error {
	return m.validator.Validate(project)
}

// RunStatus retrieves the persisted snapshot of a run.
func (m *Manager) RunStatus(ctx context.Context, runID string) (*run.Snapshot, error) {
	return m.store.LoadRun(ctx, runID)
}

// RunResult returns the final result of a terminated run. ErrRunActive is
// returned while the run is still executing.
func (m *Manager) RunResult(ctx context.Context, runID string) (*run.Result, error) {
	snap, err := m.store.LoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !snap.Status.Terminal() {
		return nil, ErrRunActive
	}
	res := &run.Result{
		RunID:     snap.ID,
		Status:    snap.Status,
		Outcomes:  snap.Items,
		StartedAt: snap.StartedAt,
	}
	if snap.EndedAt != nil {
		res.EndedAt = *snap.EndedAt
	}
	return res, nil
}

// CancelRun requests cancellation of a running run. The scheduler skips
// everything not yet terminal and the run settles as cancelled.
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	val, ok := m.runs.Load(runID)
	if !ok {
		snap, err := m.store.LoadRun(ctx, runID)
		if err != nil {
			return err
		}
		if snap.Status.Terminal() {
			return ErrRunFinished
		}
		return fmt.Errorf("run %s has no active scheduler", runID)
	}

	handle := val.(*runHandle)
	handle.cancel()

	m.logger.Info("run cancellation requested", zap.String("run_id", runID))
	return nil
}

// ListRuns lists every persisted run snapshot.
func (m *Manager) ListRuns(ctx context.Context) ([]*run.Snapshot, error) {
	return m.store.ListRuns(ctx)
}

// Shutdown cancels every active run and waits for their monitors to drain,
// bounded by the context.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down run manager")

	m.runs.Range(func(key, value interface{}) bool {
		handle := value.(*runHandle)
		handle.cancel()
		return true
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("run manager shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("run manager shutdown timeout")
	}
}
