// Package scheduler implements the Step Scheduler (spec §2 component D,
// §4.6 — "the heart" of the engine): it walks a recipe's dependency graph
// in layered batches, running independent steps in parallel up to a bound
// and serial steps one at a time, honoring `when` conditions, per-step
// timeouts and retries, and recipe-level cancellation.
//
// The teacher's recipe.Executor.Execute was a flat sequential loop with no
// DAG, no parallel batches, and no cancellation; this package keeps its
// retry-loop shape and per-step result accumulation pattern but replaces
// the loop itself with the layered algorithm below.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	rerrors "github.com/dublyo/reciper/internal/errors"
	"github.com/dublyo/reciper/internal/recipe"
	"github.com/dublyo/reciper/internal/result"
	"github.com/dublyo/reciper/internal/tools"
)

const (
	defaultMaxParallelSteps = 4
	retryBackoffUnit        = 250 * time.Millisecond
	retryBackoffCap         = 2 * time.Second
)

// Options configures one scheduler run (spec §4.6 "Inputs").
type Options struct {
	Variables   map[string]any
	DryRun      bool
	Force       bool
	SkipPrompts bool

	MaxParallelSteps int
	GlobalTimeoutMs  int
	WorkingDir       string

	// ParentRecipeName, ParentStepName, and RecipeStack carry composition
	// context down into every step's StepContext (spec §4.5, §3.1).
	ParentRecipeName string
	ParentStepName   string
	RecipeStack      []string

	Progress result.Callback
	Logger   tools.Logger
}

// Scheduler drives one recipe's steps to completion against a shared tool
// registry. It holds no per-run state itself — each Run call builds its
// own bookkeeping — so one Scheduler can be reused across concurrent
// recipe runs (e.g. nested Recipe-tool compositions).
type Scheduler struct {
	registry *tools.Registry
}

// New builds a Scheduler dispatching through registry.
func New(registry *tools.Registry) *Scheduler {
	return &Scheduler{registry: registry}
}

// Run executes r's steps to completion against opts and returns the
// accumulated RecipeResult. The returned error is non-nil only for
// construction failures (cycle detection); step failures are reported
// through the result's Status field, not as a Go error, since a partial
// run with failures is still a complete, reportable outcome.
func (s *Scheduler) Run(ctx context.Context, r *recipe.Recipe, opts Options) (*result.RecipeResult, error) {
	if cycle := recipe.DetectCycle(r.Steps); cycle != nil {
		return nil, rerrors.New(rerrors.CodeCycleInDependencies,
			fmt.Sprintf("dependency cycle: %s", recipe.CycleMessage(cycle)))
	}

	maxParallel := opts.MaxParallelSteps
	if maxParallel <= 0 {
		maxParallel = r.Settings.MaxParallelSteps
	}
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallelSteps
	}

	timeoutMs := opts.GlobalTimeoutMs
	if timeoutMs <= 0 && r.Settings.TimeoutMs != nil {
		timeoutMs = *r.Settings.TimeoutMs
	}

	runCtx := ctx
	var deadline time.Time
	if timeoutMs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
		deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}

	rr := result.New(r.Name)
	started := time.Now()

	if opts.Logger != nil {
		opts.Logger.Info("recipe execution started", "recipe", r.Name,
			"steps", len(r.Steps), "max_parallel_steps", maxParallel)
	}

	run := &runState{
		sched:       s,
		recipe:      r,
		opts:        opts,
		result:      rr,
		maxParallel: maxParallel,
		deadline:    deadline,
		pending:     append([]*recipe.Step{}, r.Steps...),
		completed:   make(map[string]struct{}, len(r.Steps)),
	}

	run.loop(runCtx)

	rr.Finalize(time.Since(started))
	if run.timedOut {
		rr.Status = result.StatusTimedOut
	}

	if opts.Logger != nil {
		opts.Logger.Info("recipe execution completed", "recipe", r.Name,
			"status", string(rr.Status), "duration_ms", rr.DurationMs)
	}

	if opts.Progress != nil {
		opts.Progress(result.Event{
			Kind:       result.EventRecipeDone,
			RecipeDone: &result.RecipeDoneEvent{Result: rr},
		})
	}

	return rr, nil
}

// runState is the scheduler's bookkeeping for one recipe run (spec §4.6
// steps 1-3: the Pending/Completed sets, plus early-stop flags).
type runState struct {
	sched       *Scheduler
	recipe      *recipe.Recipe
	opts        Options
	result      *result.RecipeResult
	maxParallel int
	deadline    time.Time

	pending   []*recipe.Step
	completed map[string]struct{}

	// mu guards completed and stopped, which a parallel batch's errgroup
	// workers read and write concurrently alongside the loop goroutine.
	mu       sync.Mutex
	stopped  bool // continue_on_error=false failure: skip everything remaining
	timedOut bool
}

// loop runs the layered execution algorithm of spec §4.6 to completion.
func (r *runState) loop(ctx context.Context) {
	for len(r.pending) > 0 {
		if ctx.Err() != nil {
			r.timedOut = true
			r.skipRemaining("recipe timeout exceeded")
			return
		}
		if r.isStopped() {
			r.skipRemaining("a prior step failed and continue_on_error is false")
			return
		}

		ready, rest := r.splitReady()
		if len(ready) == 0 {
			// No progress possible without a cycle (already checked at Run
			// entry) means every remaining step depends on something that
			// will never complete — treat defensively as a stall and bail.
			r.skipRemaining("no ready steps; scheduling stalled")
			return
		}
		r.pending = rest

		var serial, parallel []*recipe.Step
		for _, s := range ready {
			if s.Parallel {
				parallel = append(parallel, s)
			} else {
				serial = append(serial, s)
			}
		}

		r.runSerialBatch(ctx, serial)
		if r.isStopped() || ctx.Err() != nil {
			// This layer's parallel steps have already left Pending; record
			// them skipped like every other remaining step.
			for _, s := range parallel {
				r.complete(s, result.StepResult{StepName: s.Name, Status: result.StatusSkipped})
			}
			continue
		}
		r.runParallelBatch(ctx, parallel)
	}
}

// splitReady computes Ready = {s in Pending | depends_on(s) ⊆ Completed}
// (spec §4.6 step 2a) and returns it alongside the steps still pending,
// both in document order.
func (r *runState) splitReady() (ready, rest []*recipe.Step) {
	for _, s := range r.pending {
		if r.dependenciesSatisfied(s) {
			ready = append(ready, s)
		} else {
			rest = append(rest, s)
		}
	}
	return ready, rest
}

func (r *runState) dependenciesSatisfied(s *recipe.Step) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dep := range s.DependsOn {
		if _, ok := r.completed[dep]; !ok {
			return false
		}
	}
	return true
}

func (r *runState) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// runSerialBatch executes steps one at a time, in document order (spec
// §4.6 step 2d).
func (r *runState) runSerialBatch(ctx context.Context, steps []*recipe.Step) {
	for _, s := range steps {
		if r.isStopped() || ctx.Err() != nil {
			r.complete(s, result.StepResult{StepName: s.Name, Status: result.StatusSkipped})
			continue
		}
		r.runOne(ctx, s)
	}
}

// runParallelBatch executes steps with bounded concurrency
// min(max_parallel_steps, |ParallelBatch|) via an errgroup (spec §4.6
// step 2e). Document order governs scheduling order into the bounded
// pool; completion order is unspecified.
func (r *runState) runParallelBatch(ctx context.Context, steps []*recipe.Step) {
	if len(steps) == 0 {
		return
	}
	limit := r.maxParallel
	if limit > len(steps) {
		limit = len(steps)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, s := range steps {
		s := s
		g.Go(func() error {
			if r.isStopped() {
				r.complete(s, result.StepResult{StepName: s.Name, Status: result.StatusSkipped})
				return nil
			}
			r.runOne(gctx, s)
			return nil
		})
	}
	_ = g.Wait()
}

// runOne evaluates `when`, then runs the attempt/retry loop for a single
// step, and records its outcome (spec §4.6 step 2c, "Per-step execution").
func (r *runState) runOne(ctx context.Context, s *recipe.Step) {
	if s.WhenExpr != nil {
		ok, err := s.WhenExpr.Eval(r.opts.Variables)
		if err != nil {
			r.complete(s, result.StepResult{
				StepName: s.Name,
				Status:   result.StatusFailed,
				Error:    rerrors.New(rerrors.CodeInvalidWhenExpression, err.Error()),
			})
			r.maybeStop(s, false)
			return
		}
		if !ok {
			r.complete(s, result.StepResult{StepName: s.Name, Status: result.StatusSkipped})
			return
		}
	}

	if r.opts.Logger != nil {
		r.opts.Logger.Info("step started", "step", s.Name, "tool", s.Tool)
	}
	if r.opts.Progress != nil {
		r.opts.Progress(result.Event{
			Kind:        result.EventStepStarted,
			StepStarted: &result.StepStartedEvent{StepName: s.Name, Tool: s.Tool},
		})
	}

	tool, err := r.sched.registry.Dispatch(s)
	if err != nil {
		r.complete(s, result.StepResult{StepName: s.Name, Status: result.StatusFailed, Error: err})
		r.maybeStop(s, false)
		return
	}
	defer tool.Cleanup()

	sc := &tools.StepContext{
		Context:          ctx,
		Variables:        r.opts.Variables,
		WorkingDir:       r.opts.WorkingDir,
		DryRun:           r.opts.DryRun,
		Force:            r.opts.Force,
		ParentRecipeName: r.opts.ParentRecipeName,
		ParentStepName:   r.opts.ParentStepName,
		RecipeStack:      r.opts.RecipeStack,
		Logger:           r.opts.Logger,
	}

	if err := tool.Validate(s, sc); err != nil {
		r.complete(s, result.StepResult{StepName: s.Name, Status: result.StatusFailed, Error: err})
		r.maybeStop(s, false)
		return
	}

	sr := r.attempt(ctx, s, tool, sc)
	r.complete(s, sr)
	r.maybeStop(s, sr.Status == result.StatusOK || sr.Status == result.StatusSkipped)
}

// attempt runs the tool's execute/retry loop (spec §4.6 "Per-step
// execution", steps 3-5): a cancellation scope bounded by
// min(step.timeout_ms, remaining recipe time), linear backoff retries
// (attempt*250ms, capped at 2s), and status classification.
func (r *runState) attempt(ctx context.Context, s *recipe.Step, tool tools.Tool, sc *tools.StepContext) result.StepResult {
	retries := s.Retries
	var lastErr error
	var lastSR result.StepResult
	attemptsUsed := 0

	for {
		stepCtx, cancel := r.stepTimeoutContext(ctx, s)
		attemptSC := *sc // fresh StepContext per attempt, same resolved variables
		attemptSC.Context = stepCtx
		start := time.Now()
		sr, err := tool.Execute(s, &attemptSC)
		cancel()
		sr.StepName = s.Name
		sr.DurationMs = time.Since(start).Milliseconds()
		sr.RetriesUsed = attemptsUsed

		switch {
		case stepCtx.Err() == context.DeadlineExceeded:
			sr.Status = result.StatusTimedOut
			lastErr = rerrors.New(rerrors.CodeStepTimedOut, fmt.Sprintf("step %q timed out", s.Name))
		case err != nil:
			sr.Status = result.StatusFailed
			lastErr = err
		default:
			sr.Status = result.StatusOK
		}

		lastSR = sr
		if sr.Status == result.StatusOK {
			return sr
		}
		if attemptsUsed >= retries || ctx.Err() != nil {
			sr.Error = lastErr
			if r.opts.Logger != nil {
				r.opts.Logger.Error("step failed", lastErr, "step", s.Name, "status", string(sr.Status), "retries_used", attemptsUsed)
			}
			return sr
		}

		attemptsUsed++
		backoff := time.Duration(attemptsUsed) * retryBackoffUnit
		if backoff > retryBackoffCap {
			backoff = retryBackoffCap
		}
		if r.opts.Logger != nil {
			r.opts.Logger.Warn("step attempt failed, retrying", "step", s.Name, "attempt", attemptsUsed, "backoff_ms", backoff.Milliseconds())
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			lastSR.Error = lastErr
			return lastSR
		}
	}
}

// stepTimeoutContext bounds a single attempt by
// min(step.timeout_ms, remaining recipe time) (spec §4.6 step 3).
func (r *runState) stepTimeoutContext(ctx context.Context, s *recipe.Step) (context.Context, context.CancelFunc) {
	if s.TimeoutMs == nil || *s.TimeoutMs <= 0 {
		return context.WithCancel(ctx)
	}
	d := time.Duration(*s.TimeoutMs) * time.Millisecond
	if !r.deadline.IsZero() {
		if remaining := time.Until(r.deadline); remaining < d {
			d = remaining
		}
	}
	return context.WithTimeout(ctx, d)
}

// complete records sr into the accumulator, emits a progress event, and
// moves s into Completed (spec §4.6 step 2f).
func (r *runState) complete(s *recipe.Step, sr result.StepResult) {
	r.result.Add(sr)
	r.mu.Lock()
	r.completed[s.Name] = struct{}{}
	r.mu.Unlock()

	if r.opts.Logger != nil {
		if sr.Status == result.StatusSkipped {
			r.opts.Logger.Debug("step skipped", "step", s.Name)
		} else {
			r.opts.Logger.Info("step completed", "step", s.Name,
				"status", string(sr.Status), "duration_ms", sr.DurationMs, "retries_used", sr.RetriesUsed)
		}
	}

	if r.opts.Progress == nil {
		return
	}
	if sr.Status == result.StatusSkipped {
		r.opts.Progress(result.Event{
			Kind:        result.EventStepSkipped,
			StepSkipped: &result.StepSkippedEvent{StepName: s.Name, Reason: "when evaluated false or run was halted"},
		})
		return
	}
	r.opts.Progress(result.Event{
		Kind:          result.EventStepCompleted,
		StepCompleted: &result.StepCompletedEvent{StepName: s.Name, Result: sr},
	})
}

// maybeStop applies spec §4.6 step 2f's continue_on_error decision: a
// failed step with continue_on_error=false halts scheduling and marks
// every remaining pending step skipped.
func (r *runState) maybeStop(s *recipe.Step, ok bool) {
	if ok {
		return
	}
	if s.EffectiveContinueOnError(r.recipe.Settings.ContinueOnError) {
		return
	}
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

// skipRemaining marks every still-pending step skipped, in document
// order, without running it. Only called from the single loop goroutine
// once any in-flight parallel batch has already returned.
func (r *runState) skipRemaining(reason string) {
	remaining := r.pending
	r.pending = nil
	for _, s := range remaining {
		r.mu.Lock()
		_, done := r.completed[s.Name]
		r.mu.Unlock()
		if done {
			continue
		}
		r.complete(s, result.StepResult{StepName: s.Name, Status: result.StatusSkipped, Warnings: []string{reason}})
	}
}
