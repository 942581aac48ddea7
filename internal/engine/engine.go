// Package engine assembles the recipe parser, variable resolver, source
// resolver, and step scheduler behind the single callable surface spec
// §6.3 describes: resolve_and_load, resolve_variables, execute, validate,
// list_steps, show_info. It is the one entry point a driver (CLI, API
// server, test harness) needs — everything else in this module is a
// collaborator it wires together.
package engine

import (
	"context"

	rerrors "github.com/dublyo/reciper/internal/errors"
	"github.com/dublyo/reciper/internal/recipe"
	"github.com/dublyo/reciper/internal/resolver"
	"github.com/dublyo/reciper/internal/result"
	"github.com/dublyo/reciper/internal/scheduler"
	"github.com/dublyo/reciper/internal/source"
	"github.com/dublyo/reciper/internal/tools"
)

// Config bundles the collaborators an Engine needs. Source is required;
// Actions, Codemods, and Renderer may be nil (an engine with no
// registered actions simply can't run Action steps — the Action tool's
// own validation fails each such step with unknown_action when it is
// dispatched; Engine.Validate does not check action registrations).
type Config struct {
	Source   *source.Resolver
	Actions  *tools.ActionRegistry
	Codemods *tools.CodemodRegistry
	Renderer tools.Renderer
	Logger   tools.Logger
}

// Engine is the recipe engine's public entry point (spec §2, §6.3). It
// satisfies tools.RecipeRunner so a Recipe-tool step can recurse back
// into the same engine for composition (spec §4.5) without the tools
// package importing this one.
type Engine struct {
	cfg Config
}

// New builds an Engine against cfg.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Options carries the engine-invocation fields spec §6.3 recognizes for
// resolve_variables/execute: dry_run, force, skip_prompts,
// max_parallel_steps, global_timeout_ms, working_dir, progress_callback,
// interactive_channel, plus the resolve_variables inputs below.
type Options struct {
	DryRun           bool
	Force            bool
	SkipPrompts      bool
	MaxParallelSteps int
	GlobalTimeoutMs  int
	WorkingDir       string

	ProgressCallback   result.Callback
	InteractiveChannel resolver.InteractiveChannel

	// ExampleName selects the named example ResolveVariables draws tier-4
	// values from. Overrides and Positional are not read by
	// ResolveVariables, which takes overrides and positional values as
	// its own arguments.
	ExampleName string
	Overrides   map[string]any
	Positional  []any
}

// registry builds a fresh tool registry for one recipe run, including a
// fresh WriteClaims so conflicting parallel writes to the same
// destination (spec §5/§8) are only detected within this run, never
// leaked across separate Execute/RunChild calls.
func (e *Engine) registry() *tools.Registry {
	return tools.NewRegistry(tools.Dependencies{
		Renderer:    e.cfg.Renderer,
		Actions:     e.cfg.Actions,
		Codemods:    e.cfg.Codemods,
		SourceFetch: e.cfg.Source,
		RecipeRun:   e,
		Writes:      tools.NewWriteClaims(),
	})
}

// ResolveAndLoad fetches ref through the source resolver and parses it
// into a validated Recipe (spec §6.3 "resolve_and_load(recipe_ref,
// options) -> Recipe").
func (e *Engine) ResolveAndLoad(ctx context.Context, ref string, opts Options) (*recipe.Recipe, error) {
	data, canonical, err := e.cfg.Source.FetchRecipeBytes(ctx, ref)
	if err != nil {
		return nil, err
	}
	return recipe.Parse(data, canonical)
}

// ResolveVariables assembles r's variable map from the six precedence
// tiers of spec §4.7 (spec §6.3 "resolve_variables(recipe, inputs,
// options) -> ResolvedVariables").
func (e *Engine) ResolveVariables(r *recipe.Recipe, overrides map[string]any, positional []any, opts Options) (*resolver.Resolved, error) {
	resolved, err := resolver.Resolve(r, resolver.Inputs{
		Overrides:   overrides,
		Positional:  positional,
		ExampleName: opts.ExampleName,
		SkipPrompts: opts.SkipPrompts,
		Channel:     opts.InteractiveChannel,
	})
	if err != nil {
		return nil, err
	}
	workingDir := opts.WorkingDir
	if workingDir == "" {
		workingDir = r.Settings.WorkingDir
	}
	if err := resolver.CheckExistence(r, resolved, workingDir); err != nil {
		return nil, err
	}
	return resolved, nil
}

// Execute runs r's steps to completion against resolved variables (spec
// §6.3 "execute(recipe, resolved, options) -> RecipeResult").
func (e *Engine) Execute(ctx context.Context, r *recipe.Recipe, resolved *resolver.Resolved, opts Options) (*result.RecipeResult, error) {
	workingDir := opts.WorkingDir
	if workingDir == "" {
		workingDir = r.Settings.WorkingDir
	}
	sch := scheduler.New(e.registry())
	return sch.Run(ctx, r, scheduler.Options{
		Variables:        resolved.Values,
		DryRun:           opts.DryRun,
		Force:            opts.Force,
		SkipPrompts:      opts.SkipPrompts,
		MaxParallelSteps: opts.MaxParallelSteps,
		GlobalTimeoutMs:  opts.GlobalTimeoutMs,
		WorkingDir:       workingDir,
		Progress:         opts.ProgressCallback,
		Logger:           e.cfg.Logger,
	})
}

// Validate runs every semantic check spec §4.1 requires, returning the
// batch of problems found (spec §6.3 "validate(recipe) -> list<Problem>").
func (e *Engine) Validate(r *recipe.Recipe) []rerrors.Problem {
	if err := recipe.Validate(r); err != nil {
		var se *rerrors.StructuredError
		if rerrors.As(err, &se) {
			return se.Problems
		}
		return []rerrors.Problem{{Code: rerrors.CodeRecipeParseError, Message: err.Error()}}
	}
	return nil
}

// ListSteps returns the lightweight per-step view spec §6.3 names
// "list_steps(recipe) -> list<StepInfo>", independent of execution state.
func (e *Engine) ListSteps(r *recipe.Recipe) []result.StepInfo {
	out := make([]result.StepInfo, 0, len(r.Steps))
	for _, s := range r.Steps {
		out = append(out, result.StepInfo{
			Name:      s.Name,
			Tool:      s.Tool,
			DependsOn: s.DependsOn,
			Parallel:  s.Parallel,
		})
	}
	return out
}

// ShowInfo returns the recipe-level summary spec §6.3 names
// "show_info(recipe) -> RecipeInfo".
func (e *Engine) ShowInfo(r *recipe.Recipe) result.RecipeInfo {
	names := make([]string, 0, len(r.Variables))
	for name := range r.Variables {
		names = append(names, name)
	}
	return result.RecipeInfo{
		Name:        r.Name,
		Version:     r.Version,
		Description: r.Description,
		Author:      r.Author,
		Variables:   names,
		Steps:       e.ListSteps(r),
	}
}

// RunChild implements tools.RecipeRunner, letting a Recipe-tool step
// (spec §4.5, component J) recurse back into this same engine for one
// level of sub-recipe composition. The scheduler's existing RecipeStack
// threading (spec §4.5 step 2) makes this safe against runaway
// recursion — ChildRunOptions.RecipeStack already carries every ancestor.
func (e *Engine) RunChild(ctx context.Context, ref string, opts tools.ChildRunOptions) (*result.RecipeResult, error) {
	r, err := e.ResolveAndLoad(ctx, ref, Options{WorkingDir: opts.WorkingDir})
	if err != nil {
		return nil, err
	}

	overrides := map[string]any{}
	for name, value := range opts.VariableOverrides {
		overrides[name] = value
	}

	resolved, err := resolver.Resolve(r, resolver.Inputs{
		Overrides: overrides,
		Inherited: opts.InheritedVariables,
		// Composition runs non-interactively regardless of the parent's
		// skip_prompts setting (spec §4.5): a sub-recipe never prompts.
		SkipPrompts: true,
	})
	if err != nil {
		return nil, err
	}
	childWorkingDir := opts.WorkingDir
	if childWorkingDir == "" {
		childWorkingDir = r.Settings.WorkingDir
	}
	if err := resolver.CheckExistence(r, resolved, childWorkingDir); err != nil {
		return nil, err
	}

	sch := scheduler.New(e.registry())
	return sch.Run(ctx, r, scheduler.Options{
		Variables:        resolved.Values,
		DryRun:           opts.DryRun,
		Force:            opts.Force,
		SkipPrompts:      true,
		WorkingDir:       opts.WorkingDir,
		ParentRecipeName: opts.ParentRecipeName,
		ParentStepName:   "",
		RecipeStack:      opts.RecipeStack,
		Logger:           e.cfg.Logger,
	})
}

// ensure Engine satisfies tools.RecipeRunner at compile time.
var _ tools.RecipeRunner = (*Engine)(nil)
