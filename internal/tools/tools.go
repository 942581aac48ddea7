// Package tools defines the tool dispatch contract (spec §2 component E,
// §3.1 "Step Context") and the registry that maps a step's `tool` field to
// an implementation.
package tools

import (
	"context"
	"sync"

	rerrors "github.com/dublyo/reciper/internal/errors"
	"github.com/dublyo/reciper/internal/expr"
	"github.com/dublyo/reciper/internal/recipe"
	"github.com/dublyo/reciper/internal/result"
)

// StepContext is the runtime object passed to a tool (spec §3.1). It is
// built fresh per step attempt; a retry gets a new StepContext sharing the
// same resolved variables.
type StepContext struct {
	Context context.Context

	Variables  map[string]any
	WorkingDir string
	DryRun     bool
	Force      bool

	// ParentRecipeName and ParentStepName identify the enclosing
	// composition for sub-recipe diagnostics (spec §3.1).
	ParentRecipeName string
	ParentStepName   string

	// RecipeStack holds the source reference of every Recipe-tool step
	// currently executing, innermost last, so the Recipe tool can detect
	// re-entrant composition (spec §4.5 step 2).
	RecipeStack []string

	Logger Logger
}

// Logger is the narrow logging surface a tool needs; satisfied by a
// zerolog.Logger through internal/logging's adapter.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, err error, kv ...any)
}

// Eval evaluates a restricted-grammar expression (spec §4.6.a) against this
// context's resolved variables and returns its boolean result, the form a
// `when` condition takes. `{{ }}` parameter substitution does not go
// through here; it uses Expr.EvalValue in internal/recipe.
func (c *StepContext) Eval(e *expr.Expr) (bool, error) {
	return e.Eval(c.Variables)
}

// Tool is the contract every one of the four built-in tools satisfies
// (spec §2 component E, §4.2-§4.5).
type Tool interface {
	// Validate checks the step's tool-specific fields and any referenced
	// registrations (e.g. a named action existing) before Execute runs.
	Validate(step *recipe.Step, sc *StepContext) error
	// Execute performs the tool's effect and returns the resulting
	// StepResult fields (status is set by the caller based on error).
	Execute(step *recipe.Step, sc *StepContext) (result.StepResult, error)
	// Cleanup is called once on each dispatched instance, when its step
	// has finished (validation and every attempt), successfully or not
	// (spec §3.2).
	Cleanup() error
}

// Factory builds a Tool instance, given the directories/registries it
// needs. The registry holds factories, not live instances, so every
// dispatched step gets a fresh tool instance.
type Factory func() Tool

// Registry maps a step's `tool` field to a Factory (spec §2 component E).
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds a Registry with the four built-in tools already
// registered against the given collaborators.
func NewRegistry(deps Dependencies) *Registry {
	r := &Registry{factories: make(map[string]Factory, 4)}
	r.Register(recipe.ToolTemplate, func() Tool { return NewTemplateTool(deps) })
	r.Register(recipe.ToolAction, func() Tool { return NewActionTool(deps) })
	r.Register(recipe.ToolCodemod, func() Tool { return NewCodemodTool(deps) })
	r.Register(recipe.ToolRecipe, func() Tool { return NewRecipeTool(deps) })
	return r
}

// Register adds or replaces the factory for a tool name. Exposed so a
// caller could shadow a built-in tool in tests.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Dispatch looks up and instantiates the tool for step.Tool (spec §2
// component E: "for each step look up the factory, instantiate/reuse a
// tool").
func (r *Registry) Dispatch(step *recipe.Step) (Tool, error) {
	f, ok := r.factories[step.Tool]
	if !ok {
		return nil, rerrors.New(rerrors.CodeUnknownTool, "no tool registered for \""+step.Tool+"\"")
	}
	return f(), nil
}

// Dependencies bundles the collaborators tool factories need. Passed
// explicitly rather than reached for through package-level singletons,
// per the engine's redesign away from global state.
type Dependencies struct {
	Renderer    Renderer
	Actions     *ActionRegistry
	Codemods    *CodemodRegistry
	SourceFetch SourceFetcher
	RecipeRun   RecipeRunner
	Writes      *WriteClaims
}

// WriteClaims is the scheduler-run-scoped record of destination paths a
// Template step has already claimed, detecting the case spec §5/§8 name:
// "parallel steps writing the same destination path are a recipe-author
// bug; the scheduler detects this only lazily (first writer wins, second
// write is reported as failed with conflict)." One Dependencies value —
// and so one WriteClaims — is shared by every tool instance dispatched
// during a single recipe run (engine.registry() builds a fresh one per
// Execute/RunChild call), so claims never leak across runs.
type WriteClaims struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewWriteClaims returns an empty claim set for one recipe run.
func NewWriteClaims() *WriteClaims {
	return &WriteClaims{claimed: make(map[string]struct{})}
}

// Claim records path as written and reports whether this call is the
// first to claim it — the first writer wins, every subsequent claim on
// the same path is a conflict.
func (w *WriteClaims) Claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.claimed[path]; ok {
		return false
	}
	w.claimed[path] = struct{}{}
	return true
}
