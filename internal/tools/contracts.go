package tools

import (
	"context"
	"io/fs"

	"github.com/dublyo/reciper/internal/expr"
	"github.com/dublyo/reciper/internal/result"
)

// SourceFetcher is the narrow surface the Template and Recipe tools need
// from the Source Resolver & Trust Gate (spec §2 component A). The tools
// package depends only on this interface, not on internal/source, so the
// trust gate / cache / fetch backends stay swappable and unit-testable in
// isolation (REDESIGN FLAGS §9: collaborators passed through context, not
// reached for as singletons).
type SourceFetcher interface {
	// Fetch resolves ref (through classification, security validation and
	// the trust gate) and returns its contents as a filesystem rooted at
	// the source, for the Template tool to walk (spec §4.2).
	Fetch(ctx context.Context, ref string) (fs.FS, error)
	// FetchRecipeBytes resolves ref the same way and returns the raw bytes
	// of the recipe document plus the canonical form of ref, for the
	// Recipe tool to parse and for circular-reference detection (spec
	// §4.5 step 2).
	FetchRecipeBytes(ctx context.Context, ref string) (data []byte, canonical string, err error)
}

// FileChange is one file-level effect an Action reported (spec §4.3
// "a list of file-change reports").
type FileChange struct {
	Path string
	Kind ChangeKind
}

// ChangeKind classifies a FileChange the same way StepResult classifies
// writes (spec §3.1).
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// ActionFS is the filesystem handle an Action receives (spec §4.3: "a
// pure function from (parameters, resolved variables, filesystem handle,
// logger)"). It is the only channel through which an Action's effects are
// tracked; anything else an Action does is, per spec, "non-portable and
// not tracked in the result."
type ActionFS interface {
	WorkingDir() string
	Read(relPath string) ([]byte, error)
	Exists(relPath string) bool
	// Write creates or overwrites relPath with content, atomically, and
	// returns the FileChange it produced. Under dry_run no write reaches
	// disk, but the FileChange is still reported.
	Write(relPath string, content []byte) (FileChange, error)
	Delete(relPath string) (FileChange, error)
}

// ActionFunc is the contract of a registered action (spec §4.3). It must
// be deterministic given the same parameters and resolved variables.
type ActionFunc func(ctx context.Context, parameters map[string]any, variables map[string]any, fsys ActionFS, logger Logger) ([]FileChange, error)

// ActionRegistry is the process-local table of named actions (spec §4.3
// "Discovery": "Actions are registered into a process-local registry
// before the engine runs... registration is the caller's responsibility").
type ActionRegistry struct {
	actions map[string]ActionFunc
}

// NewActionRegistry returns an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: make(map[string]ActionFunc)}
}

// Register adds or replaces the function registered under name.
func (r *ActionRegistry) Register(name string, fn ActionFunc) {
	r.actions[name] = fn
}

// Lookup returns the function registered under name, if any.
func (r *ActionRegistry) Lookup(name string) (ActionFunc, bool) {
	fn, ok := r.actions[name]
	return fn, ok
}

// Names lists every registered action name, for show_info/list_steps-style
// diagnostics.
func (r *ActionRegistry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	return names
}

// CodemodFunc is the contract of a registered custom codemod transform
// (spec §4.4 "custom" kind, `transform_ref`). It receives one file's
// existing content and either returns the transformed content with
// changed=true, or changed=false when the transform's target is already
// satisfied (spec §4.4 "Idempotence").
type CodemodFunc func(path string, content []byte, parameters map[string]any) (newContent []byte, changed bool, err error)

// CodemodRegistry is the process-local table of named custom transforms
// (spec §4.4 `custom` kind).
type CodemodRegistry struct {
	transforms map[string]CodemodFunc
}

// NewCodemodRegistry returns an empty registry.
func NewCodemodRegistry() *CodemodRegistry {
	return &CodemodRegistry{transforms: make(map[string]CodemodFunc)}
}

// Register adds or replaces the transform registered under name.
func (r *CodemodRegistry) Register(name string, fn CodemodFunc) {
	r.transforms[name] = fn
}

// Lookup returns the transform registered under name, if any.
func (r *CodemodRegistry) Lookup(name string) (CodemodFunc, bool) {
	fn, ok := r.transforms[name]
	return fn, ok
}

// RecipeRunner lets the Recipe tool (component J) recursively drive the
// same engine over a resolved sub-recipe source, without the tools
// package importing the engine package that assembles scheduler +
// resolver + parser (which would be a cyclic import, since the engine
// package constructs a Registry that needs this tool). Concretely
// implemented by internal/engine.
type RecipeRunner interface {
	RunChild(ctx context.Context, ref string, opts ChildRunOptions) (*result.RecipeResult, error)
}

// ChildRunOptions bundles what the Recipe tool (spec §4.5) needs to hand a
// sub-recipe invocation.
type ChildRunOptions struct {
	InheritedVariables map[string]any
	VariableOverrides  map[string]any
	VariableMapping    map[string]string
	InheritVariables   bool
	WorkingDir         string
	DryRun             bool
	Force              bool
	SkipPrompts        bool
	RecipeStack        []string // ancestors' canonical source refs, innermost last
	ParentRecipeName   string
}

// evalExprString parses and evaluates a restricted-grammar expression
// (spec §4.6.a) on the fly, for the one-off `skip_if` checks the Template
// tool makes against frontmatter and inject directives. Parsing happens
// here rather than at recipe-validate time because these expressions live
// inside template frontmatter, which the parser (spec §4.1) never reads.
func evalExprString(src string, vars map[string]any) (bool, error) {
	e, err := expr.Parse(src)
	if err != nil {
		return false, err
	}
	return e.Eval(vars)
}
