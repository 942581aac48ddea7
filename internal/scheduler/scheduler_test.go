package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dublyo/reciper/internal/recipe"
	"github.com/dublyo/reciper/internal/result"
	"github.com/dublyo/reciper/internal/tools"
)

// newTestRegistry builds a tool registry whose only dependency is an
// action registry, so tests can drive the scheduler with plain Go
// functions instead of real template/codemod side effects.
func newTestRegistry(actions *tools.ActionRegistry) *tools.Registry {
	return tools.NewRegistry(tools.Dependencies{Actions: actions})
}

func parseAndValidate(t *testing.T, yamlDoc string) *recipe.Recipe {
	t.Helper()
	r, err := recipe.LoadFromString(yamlDoc)
	require.NoError(t, err)
	require.NoError(t, recipe.Validate(r))
	return r
}

func TestRunSerialOrderAndParallelFanOut(t *testing.T) {
	var mu sync.Mutex
	var order []string
	var inFlight, maxInFlight int32

	actions := tools.NewActionRegistry()
	actions.Register("record", func(ctx context.Context, params, vars map[string]any, fsys tools.ActionFS, logger tools.Logger) ([]tools.FileChange, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if cur <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)

		mu.Lock()
		order = append(order, params["name"].(string))
		mu.Unlock()
		return nil, nil
	})

	doc := `
name: fan-out
steps:
  - name: first
    tool: action
    action: record
    parameters: { name: first }
  - name: branch-a
    tool: action
    action: record
    depends_on: [first]
    parallel: true
    parameters: { name: branch-a }
  - name: branch-b
    tool: action
    action: record
    depends_on: [first]
    parallel: true
    parameters: { name: branch-b }
  - name: last
    tool: action
    action: record
    depends_on: [branch-a, branch-b]
    parameters: { name: last }
`
	r := parseAndValidate(t, doc)

	sched := New(newTestRegistry(actions))
	rr, err := sched.Run(context.Background(), r, Options{MaxParallelSteps: 4})
	require.NoError(t, err)
	require.Equal(t, result.StatusOK, rr.Status)

	require.Equal(t, "first", order[0])
	require.Equal(t, "last", order[len(order)-1])
	require.GreaterOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2))
}

func TestRunContinueOnErrorFalseSkipsRemaining(t *testing.T) {
	actions := tools.NewActionRegistry()
	var ranAfter bool
	actions.Register("fail", func(ctx context.Context, params, vars map[string]any, fsys tools.ActionFS, logger tools.Logger) ([]tools.FileChange, error) {
		return nil, errBoom
	})
	actions.Register("noop", func(ctx context.Context, params, vars map[string]any, fsys tools.ActionFS, logger tools.Logger) ([]tools.FileChange, error) {
		ranAfter = true
		return nil, nil
	})

	doc := `
name: halts
steps:
  - name: boom
    tool: action
    action: fail
  - name: after
    tool: action
    action: noop
    depends_on: [boom]
`
	r := parseAndValidate(t, doc)
	sched := New(newTestRegistry(actions))
	rr, err := sched.Run(context.Background(), r, Options{})
	require.NoError(t, err)
	require.Equal(t, result.StatusFailed, rr.Status)
	require.False(t, ranAfter)

	var afterResult *result.StepResult
	for i := range rr.Steps {
		if rr.Steps[i].StepName == "after" {
			afterResult = &rr.Steps[i]
		}
	}
	require.NotNil(t, afterResult)
	require.Equal(t, result.StatusSkipped, afterResult.Status)
}

func TestRunContinueOnErrorTrueKeepsGoing(t *testing.T) {
	actions := tools.NewActionRegistry()
	var ranAfter bool
	actions.Register("fail", func(ctx context.Context, params, vars map[string]any, fsys tools.ActionFS, logger tools.Logger) ([]tools.FileChange, error) {
		return nil, errBoom
	})
	actions.Register("noop", func(ctx context.Context, params, vars map[string]any, fsys tools.ActionFS, logger tools.Logger) ([]tools.FileChange, error) {
		ranAfter = true
		return nil, nil
	})

	doc := `
name: continues
settings:
  continue_on_error: true
steps:
  - name: boom
    tool: action
    action: fail
  - name: after
    tool: action
    action: noop
    depends_on: [boom]
`
	r := parseAndValidate(t, doc)
	sched := New(newTestRegistry(actions))
	rr, err := sched.Run(context.Background(), r, Options{})
	require.NoError(t, err)
	require.Equal(t, result.StatusFailed, rr.Status)
	require.True(t, ranAfter)
}

func TestRunWhenFalseSkipsStep(t *testing.T) {
	actions := tools.NewActionRegistry()
	var ran bool
	actions.Register("noop", func(ctx context.Context, params, vars map[string]any, fsys tools.ActionFS, logger tools.Logger) ([]tools.FileChange, error) {
		ran = true
		return nil, nil
	})

	doc := `
name: conditional
variables:
  enabled:
    type: boolean
    default: false
steps:
  - name: maybe
    tool: action
    action: noop
    when: "enabled"
`
	r := parseAndValidate(t, doc)
	sched := New(newTestRegistry(actions))
	rr, err := sched.Run(context.Background(), r, Options{Variables: map[string]any{"enabled": false}})
	require.NoError(t, err)
	require.False(t, ran)
	require.Equal(t, result.StatusSkipped, rr.Steps[0].Status)
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	actions := tools.NewActionRegistry()
	var attempts int32
	actions.Register("flaky", func(ctx context.Context, params, vars map[string]any, fsys tools.ActionFS, logger tools.Logger) ([]tools.FileChange, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, errBoom
		}
		return nil, nil
	})

	doc := `
name: flaky-recipe
steps:
  - name: flaky-step
    tool: action
    action: flaky
    retries: 3
`
	r := parseAndValidate(t, doc)
	sched := New(newTestRegistry(actions))
	rr, err := sched.Run(context.Background(), r, Options{})
	require.NoError(t, err)
	require.Equal(t, result.StatusOK, rr.Status)
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	require.Equal(t, 2, rr.Steps[0].RetriesUsed)
}

func TestRunGlobalTimeoutCascades(t *testing.T) {
	actions := tools.NewActionRegistry()
	actions.Register("slow", func(ctx context.Context, params, vars map[string]any, fsys tools.ActionFS, logger tools.Logger) ([]tools.FileChange, error) {
		select {
		case <-time.After(500 * time.Millisecond):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	doc := `
name: slow-recipe
settings:
  timeout_ms: 20
steps:
  - name: slow-step
    tool: action
    action: slow
  - name: never-started
    tool: action
    action: slow
    depends_on: [slow-step]
`
	r := parseAndValidate(t, doc)
	sched := New(newTestRegistry(actions))
	rr, err := sched.Run(context.Background(), r, Options{})
	require.NoError(t, err)
	require.Equal(t, result.StatusTimedOut, rr.Status)

	var never *result.StepResult
	for i := range rr.Steps {
		if rr.Steps[i].StepName == "never-started" {
			never = &rr.Steps[i]
		}
	}
	require.NotNil(t, never)
	require.Equal(t, result.StatusSkipped, never.Status)
}

func TestRunCycleRejectedBeforeExecuting(t *testing.T) {
	actions := tools.NewActionRegistry()
	ran := false
	actions.Register("noop", func(ctx context.Context, params, vars map[string]any, fsys tools.ActionFS, logger tools.Logger) ([]tools.FileChange, error) {
		ran = true
		return nil, nil
	})

	doc := `
name: cyclic
steps:
  - name: a
    tool: action
    action: noop
    depends_on: [b]
  - name: b
    tool: action
    action: noop
    depends_on: [a]
`
	_, err := recipe.LoadFromString(doc)
	require.Error(t, err) // parsing already rejects the cycle

	// Build the same cyclic graph directly so the scheduler's own check runs.
	r := &recipe.Recipe{Name: "cyclic", Steps: []*recipe.Step{
		{Name: "a", Tool: recipe.ToolAction, DependsOn: []string{"b"}},
		{Name: "b", Tool: recipe.ToolAction, DependsOn: []string{"a"}},
	}}

	sched := New(newTestRegistry(actions))
	_, err = sched.Run(context.Background(), r, Options{})
	require.Error(t, err)
	require.False(t, ran)
}

var errBoom = boomError{}

type boomError struct{}

func (boomError) Error() string { return "boom" }
