package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weftworks/weft/internal/application/scheduler"
	eventsmemory "github.com/weftworks/weft/pkg/adapters/events/memory"
	storagememory "github.com/weftworks/weft/pkg/adapters/storage/memory"
	"github.com/weftworks/weft/pkg/domain/run"
	"github.com/weftworks/weft/pkg/domain/workflow"
	"github.com/weftworks/weft/pkg/ports"
)

type execFunc func(ctx context.Context, step ports.StepContext, sink ports.EventSink) (*ports.StepResult, error)

func (f execFunc) ExecuteStep(ctx context.Context, step ports.StepContext, sink ports.EventSink) (*ports.StepResult, error) {
	return f(ctx, step, sink)
}

var succeedAll = execFunc(func(context.Context, ports.StepContext, ports.EventSink) (*ports.StepResult, error) {
	return &ports.StepResult{Status: ports.StepSucceeded}, nil
})

func newTestManager(t *testing.T, exec ports.StepExecutor) (*Manager, *storagememory.Store) {
	t.Helper()
	store := storagememory.NewStore()
	bus := eventsmemory.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	defaults := scheduler.Config{
		MaxConcurrent: 2,
		PollInterval:  5 * time.Millisecond,
		CancelGrace:   100 * time.Millisecond,
	}
	m := NewManager(bus, store, ports.NopMetrics{}, exec, NewValidator(), zap.NewNop(), defaults, time.Minute)
	return m, store
}

func chainProject(t *testing.T, names ...string) *workflow.Project {
	t.Helper()
	p := workflow.NewProject("pipeline")
	for _, n := range names {
		require.NoError(t, p.AddItem(&workflow.Item{Name: n, Type: "test"}))
	}
	for i := 1; i < len(names); i++ {
		require.NoError(t, p.AddConnection(names[i-1], names[i], nil))
	}
	return p
}

func waitTerminal(t *testing.T, store *storagememory.Store, runID string) *run.Snapshot {
	t.Helper()
	var snap *run.Snapshot
	require.Eventually(t, func() bool {
		s, err := store.LoadRun(context.Background(), runID)
		if err != nil {
			return false
		}
		snap = s
		return s.Status.Terminal()
	}, 10*time.Second, 10*time.Millisecond, "run %s never reached a terminal status", runID)
	return snap
}

func TestManager_SubmitRejectsInvalidProject(t *testing.T) {
	m, store := newTestManager(t, succeedAll)

	_, err := m.SubmitRun(context.Background(), workflow.NewProject("empty"), SubmitOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "validation failed")

	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestManager_SubmitRejectsUnknownPermitKey(t *testing.T) {
	m, store := newTestManager(t, succeedAll)

	_, err := m.SubmitRun(context.Background(), chainProject(t, "a", "b"), SubmitOptions{
		Permits: map[string]bool{"ghost": false},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "validation failed")
	require.Contains(t, err.Error(), `permit references unknown item: ghost`)

	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestManager_SubmitRunsToCompletion(t *testing.T) {
	m, store := newTestManager(t, succeedAll)
	p := chainProject(t, "extract", "transform", "load")

	runID, err := m.SubmitRun(context.Background(), p, SubmitOptions{})
	require.NoError(t, err)
	_, err = uuid.Parse(runID)
	require.NoError(t, err, "run id is not a uuid")

	snap := waitTerminal(t, store, runID)
	require.Equal(t, run.StatusSucceeded, snap.Status)
	require.Equal(t, "pipeline", snap.Workflow)
	require.NotNil(t, snap.EndedAt)
	require.False(t, snap.StartedAt.IsZero())
	for _, name := range []string{"extract", "transform", "load"} {
		require.Equal(t, run.ItemSucceeded, snap.Items[name].Status, "item %s", name)
	}

	result, err := m.RunResult(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, run.StatusSucceeded, result.Status)
	require.Equal(t, runID, result.RunID)
	require.Len(t, result.Outcomes, 3)
}

func TestManager_RunResultWhileActive(t *testing.T) {
	release := make(chan struct{})
	blocker := execFunc(func(context.Context, ports.StepContext, ports.EventSink) (*ports.StepResult, error) {
		<-release
		return &ports.StepResult{Status: ports.StepSucceeded}, nil
	})
	m, store := newTestManager(t, blocker)

	runID, err := m.SubmitRun(context.Background(), chainProject(t, "slow"), SubmitOptions{})
	require.NoError(t, err)

	_, err = m.RunResult(context.Background(), runID)
	require.ErrorIs(t, err, ErrRunActive)

	close(release)
	waitTerminal(t, store, runID)

	result, err := m.RunResult(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, run.StatusSucceeded, result.Status)
}

func TestManager_RunStatusReflectsProgress(t *testing.T) {
	m, store := newTestManager(t, succeedAll)

	runID, err := m.SubmitRun(context.Background(), chainProject(t, "only"), SubmitOptions{})
	require.NoError(t, err)

	// The initial snapshot exists before any event arrives.
	snap, err := m.RunStatus(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, runID, snap.ID)
	require.Contains(t, snap.Items, "only")

	waitTerminal(t, store, runID)
	snap, err = m.RunStatus(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, run.StatusSucceeded, snap.Status)
}

func TestManager_UnknownRunErrors(t *testing.T) {
	m, _ := newTestManager(t, succeedAll)

	_, err := m.RunStatus(context.Background(), "no-such-run")
	require.ErrorIs(t, err, ports.ErrRunNotFound)

	_, err = m.RunResult(context.Background(), "no-such-run")
	require.ErrorIs(t, err, ports.ErrRunNotFound)

	err = m.CancelRun(context.Background(), "no-such-run")
	require.ErrorIs(t, err, ports.ErrRunNotFound)
}

func TestManager_CancelActiveRun(t *testing.T) {
	blocker := execFunc(func(ctx context.Context, _ ports.StepContext, _ ports.EventSink) (*ports.StepResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m, store := newTestManager(t, blocker)
	p := chainProject(t, "first", "second")

	runID, err := m.SubmitRun(context.Background(), p, SubmitOptions{})
	require.NoError(t, err)

	require.NoError(t, m.CancelRun(context.Background(), runID))

	snap := waitTerminal(t, store, runID)
	require.Equal(t, run.StatusCancelled, snap.Status)
	require.Equal(t, run.ItemSkipped, snap.Items["second"].Status)
	require.Equal(t, "run cancelled", snap.Items["second"].Reason)
}

func TestManager_CancelFinishedRun(t *testing.T) {
	m, store := newTestManager(t, succeedAll)

	runID, err := m.SubmitRun(context.Background(), chainProject(t, "only"), SubmitOptions{})
	require.NoError(t, err)
	waitTerminal(t, store, runID)

	err = m.CancelRun(context.Background(), runID)
	require.ErrorIs(t, err, ErrRunFinished)
}

func TestManager_OptionsOverrideDefaults(t *testing.T) {
	var attempts int32
	flaky := execFunc(func(context.Context, ports.StepContext, ports.EventSink) (*ports.StepResult, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, errors.New("transient")
		}
		return &ports.StepResult{Status: ports.StepSucceeded}, nil
	})
	m, store := newTestManager(t, flaky)

	// Manager defaults carry no retries; the submission grants two.
	retries := 2
	runID, err := m.SubmitRun(context.Background(), chainProject(t, "flaky"), SubmitOptions{
		MaxConcurrent: 1,
		MaxRetries:    &retries,
	})
	require.NoError(t, err)

	snap := waitTerminal(t, store, runID)
	require.Equal(t, run.StatusSucceeded, snap.Status)
	require.Equal(t, 3, snap.Items["flaky"].Attempts)
}

func TestManager_SubmissionTimeoutCancelsRun(t *testing.T) {
	blocker := execFunc(func(ctx context.Context, _ ports.StepContext, _ ports.EventSink) (*ports.StepResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m, store := newTestManager(t, blocker)

	runID, err := m.SubmitRun(context.Background(), chainProject(t, "stuck"), SubmitOptions{
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	snap := waitTerminal(t, store, runID)
	require.Equal(t, run.StatusCancelled, snap.Status)
}

func TestManager_ListRuns(t *testing.T) {
	m, store := newTestManager(t, succeedAll)

	first, err := m.SubmitRun(context.Background(), chainProject(t, "a"), SubmitOptions{})
	require.NoError(t, err)
	second, err := m.SubmitRun(context.Background(), chainProject(t, "b"), SubmitOptions{})
	require.NoError(t, err)

	waitTerminal(t, store, first)
	waitTerminal(t, store, second)

	runs, err := m.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestManager_ShutdownCancelsActiveRuns(t *testing.T) {
	blocker := execFunc(func(ctx context.Context, _ ports.StepContext, _ ports.EventSink) (*ports.StepResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m, store := newTestManager(t, blocker)

	runID, err := m.SubmitRun(context.Background(), chainProject(t, "stuck"), SubmitOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	// Shutdown waits for the monitor, so the final snapshot is already saved.
	snap, err := store.LoadRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, run.StatusCancelled, snap.Status)
}
