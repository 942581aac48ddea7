// Package recipe provides YAML-based recipe definitions: the typed
// variable schema, the step list, and the settings that govern scheduling
// (spec §3.1, §6.1). It generalizes the teacher's flat
// `Recipe{Variables map[string]string, Steps []Step}` into the rich,
// validated schema the engine's scheduler and tools depend on.
package recipe

import (
	"gopkg.in/yaml.v3"

	"github.com/dublyo/reciper/internal/expr"
	"github.com/dublyo/reciper/internal/schema"
)

// Tool names recognized by the engine (spec §3.1 Step.tool).
const (
	ToolTemplate = "template"
	ToolAction   = "action"
	ToolCodemod  = "codemod"
	ToolRecipe   = "recipe"
)

// Recipe is a parsed, not-yet-validated recipe document (spec §6.1).
type Recipe struct {
	Name        string                        `yaml:"name"`
	Version     string                        `yaml:"version"`
	Description string                        `yaml:"description,omitempty"`
	Author      string                        `yaml:"author,omitempty"`
	Variables   map[string]*schema.Definition `yaml:"variables,omitempty"`
	Settings    Settings                      `yaml:"settings,omitempty"`
	Steps       []*Step                       `yaml:"steps,omitempty"`
	Examples    []Example                     `yaml:"examples,omitempty"`

	// SourcePath is the path or reference this recipe was loaded from; used
	// for diagnostics and for the Recipe tool's circular-reference stack.
	SourcePath string `yaml:"-"`
}

// Settings are whole-recipe execution defaults (spec §3.1).
type Settings struct {
	TimeoutMs        *int   `yaml:"timeout_ms,omitempty"`
	MaxParallelSteps int    `yaml:"max_parallel_steps,omitempty"`
	ContinueOnError  bool   `yaml:"continue_on_error,omitempty"`
	WorkingDir       string `yaml:"working_dir,omitempty"`
}

// Example is a named variable set used for documentation and for
// `examples`-sourced defaults during variable resolution (spec §4.7 step 4).
type Example struct {
	Name      string         `yaml:"name"`
	Variables map[string]any `yaml:"variables"`
}

// Step is one scheduler unit (spec §3.1). Tool-specific fields are decoded
// lazily via Decode, since the set of valid fields depends on Tool.
type Step struct {
	Name            string   `yaml:"name"`
	Tool            string   `yaml:"tool"`
	When            string   `yaml:"when,omitempty"`
	DependsOn       []string `yaml:"depends_on,omitempty"`
	Parallel        bool     `yaml:"parallel,omitempty"`
	ContinueOnError *bool    `yaml:"continue_on_error,omitempty"`
	TimeoutMs       *int     `yaml:"timeout_ms,omitempty"`
	Retries         int      `yaml:"retries,omitempty"`

	// WhenExpr is the parsed form of When, populated by Validate.
	WhenExpr *expr.Expr `yaml:"-"`

	node yaml.Node
}

// UnmarshalYAML decodes the common Step fields and retains the full node so
// Decode can later pull out tool-specific fields (template/action/codemod/
// recipe), matching the way the corpus's config types keep a raw node
// around for discriminated-union-style decoding.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type alias Step
	var a alias
	if err := value.Decode(&a); err != nil {
		return err
	}
	*s = Step(a)
	s.node = *value
	return nil
}

// Decode unmarshals this step's full YAML node (common fields included)
// into target, which should be one of the per-tool field structs in
// internal/tools.
func (s *Step) Decode(target any) error {
	return s.node.Decode(target)
}

// EffectiveContinueOnError resolves the step's continue-on-error policy,
// falling back to the recipe-level default when the step doesn't set one
// (spec §4.6 step f: "effective per step, else global").
func (s *Step) EffectiveContinueOnError(recipeDefault bool) bool {
	if s.ContinueOnError != nil {
		return *s.ContinueOnError
	}
	return recipeDefault
}
