package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weftworks/weft/pkg/domain/workflow"
	"github.com/weftworks/weft/pkg/ports"
)

type publishRecord struct {
	severity ports.Severity
	item     string
	message  string
}

type publishRecorder struct {
	mu      sync.Mutex
	records []publishRecord
}

func (r *publishRecorder) publish(_ context.Context, severity ports.Severity, item, message string) {
	r.mu.Lock()
	r.records = append(r.records, publishRecord{severity: severity, item: item, message: message})
	r.mu.Unlock()
}

func (r *publishRecorder) all() []publishRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]publishRecord(nil), r.records...)
}

func jumpProject(t *testing.T, cond workflow.Condition, args map[string]any) *workflow.Project {
	t.Helper()
	p := testProject(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}})
	require.NoError(t, p.AddBackwardJump("c", "a", &workflow.BackwardJump{Condition: cond, Args: args}))
	return p
}

func TestJumpController_FiresUntilConditionStops(t *testing.T) {
	p := jumpProject(t, workflow.ConditionMaxIterations(2), nil)
	rec := &publishRecorder{}
	jc := NewJumpController(p, 0, rec.publish, zap.NewNop())

	ctx := context.Background()

	resets := jc.Evaluate(ctx, "c", nil)
	require.Len(t, resets, 1)
	require.Equal(t, "c", resets[0].Source)
	require.Equal(t, "a", resets[0].Target)
	require.Equal(t, 1, resets[0].Iteration)
	require.Equal(t, []string{"a", "b", "c"}, resets[0].Items)

	resets = jc.Evaluate(ctx, "c", nil)
	require.Len(t, resets, 1)
	require.Equal(t, 2, resets[0].Iteration)

	require.Empty(t, jc.Evaluate(ctx, "c", nil))
}

func TestJumpController_OutputConditionSeesLatestOutputs(t *testing.T) {
	p := jumpProject(t, workflow.ConditionOutputTruthy("again"), nil)
	jc := NewJumpController(p, 0, (&publishRecorder{}).publish, zap.NewNop())

	ctx := context.Background()

	resets := jc.Evaluate(ctx, "c", map[string]any{"again": true})
	require.Len(t, resets, 1)

	require.Empty(t, jc.Evaluate(ctx, "c", map[string]any{"again": false}))
	require.Empty(t, jc.Evaluate(ctx, "c", nil))
}

func TestJumpController_ConditionErrorNeverFires(t *testing.T) {
	boom := errors.New("bad expression")
	cond := func(context.Context, workflow.JumpEvaluation) (bool, error) { return true, boom }
	p := jumpProject(t, cond, nil)
	rec := &publishRecorder{}
	jc := NewJumpController(p, 0, rec.publish, zap.NewNop())

	require.Empty(t, jc.Evaluate(context.Background(), "c", nil))

	records := rec.all()
	require.Len(t, records, 1)
	require.Equal(t, ports.SeverityError, records[0].severity)
	require.Contains(t, records[0].message, "condition failed")
	require.Contains(t, records[0].message, "bad expression")
}

func TestJumpController_GuardDisablesJump(t *testing.T) {
	always := func(context.Context, workflow.JumpEvaluation) (bool, error) { return true, nil }
	p := jumpProject(t, always, nil)
	rec := &publishRecorder{}
	jc := NewJumpController(p, 2, rec.publish, zap.NewNop())

	ctx := context.Background()
	require.Len(t, jc.Evaluate(ctx, "c", nil), 1)
	require.Len(t, jc.Evaluate(ctx, "c", nil), 1)

	// Third true evaluation crosses the guard: disabled with a warning.
	require.Empty(t, jc.Evaluate(ctx, "c", nil))
	records := rec.all()
	require.Len(t, records, 1)
	require.Equal(t, ports.SeverityWarning, records[0].severity)
	require.Contains(t, records[0].message, "iteration guard")

	// Once disabled, further completions are silent.
	require.Empty(t, jc.Evaluate(ctx, "c", nil))
	require.Len(t, rec.all(), 1)
}

func TestJumpController_NoPathBackIsIgnored(t *testing.T) {
	p := testProject(t, []string{"a", "b"}, nil)
	require.NoError(t, p.AddBackwardJump("b", "a", &workflow.BackwardJump{
		Condition: workflow.ConditionMaxIterations(1),
	}))
	rec := &publishRecorder{}
	jc := NewJumpController(p, 0, rec.publish, zap.NewNop())

	require.Empty(t, jc.Evaluate(context.Background(), "b", nil))

	records := rec.all()
	require.Len(t, records, 1)
	require.Equal(t, ports.SeverityWarning, records[0].severity)
	require.Contains(t, records[0].message, "no connection path")
}

func TestJumpController_NilConditionNeverFires(t *testing.T) {
	p := jumpProject(t, nil, nil)
	rec := &publishRecorder{}
	jc := NewJumpController(p, 0, rec.publish, zap.NewNop())

	require.Empty(t, jc.Evaluate(context.Background(), "c", nil))
	require.Empty(t, rec.all())
}

func TestJumpController_OtherItemsDoNotTrigger(t *testing.T) {
	p := jumpProject(t, workflow.ConditionMaxIterations(1), nil)
	jc := NewJumpController(p, 0, (&publishRecorder{}).publish, zap.NewNop())

	require.Empty(t, jc.Evaluate(context.Background(), "a", nil))
	require.Empty(t, jc.Evaluate(context.Background(), "b", nil))
}

func TestJumpController_ArgsCarriedOnReset(t *testing.T) {
	args := map[string]any{"mode": "again"}
	p := jumpProject(t, workflow.ConditionMaxIterations(1), args)
	jc := NewJumpController(p, 0, (&publishRecorder{}).publish, zap.NewNop())

	resets := jc.Evaluate(context.Background(), "c", nil)
	require.Len(t, resets, 1)
	require.Equal(t, args, resets[0].Args)
}
