// Package resolver assembles a recipe's variable map from every source
// spec §4.7 recognizes, in precedence order, and validates the result
// against each variable's schema before handing it to the scheduler.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	rerrors "github.com/dublyo/reciper/internal/errors"
	"github.com/dublyo/reciper/internal/recipe"
	"github.com/dublyo/reciper/internal/schema"
)

// InteractiveChannel is the narrow surface the resolver needs to prompt a
// caller for a missing variable (spec §4.7 step 6). The engine ships no
// terminal implementation; see noInteractiveChannel.
type InteractiveChannel interface {
	Prompt(def *schema.Definition) (any, error)
}

// noInteractiveChannel reports every prompt as unavailable, so
// skip_prompts=false with no channel attached behaves like
// skip_prompts=true for every still-unresolved required variable.
type noInteractiveChannel struct{}

func (noInteractiveChannel) Prompt(def *schema.Definition) (any, error) {
	return nil, fmt.Errorf("no interactive channel attached to resolve variable %q", def.Name)
}

// NoInteractiveChannel is the default InteractiveChannel used when an
// engine caller doesn't attach one.
var NoInteractiveChannel InteractiveChannel = noInteractiveChannel{}

// Source identifies which precedence tier (spec §4.7) supplied a
// variable's final value, for provenance reporting.
type Source string

const (
	SourceOverride   Source = "override"
	SourcePositional Source = "positional"
	SourceParent     Source = "parent"
	SourceExample    Source = "example"
	SourceDefault    Source = "default"
	SourcePrompt     Source = "prompt"
)

// Provenance records, for a single variable, which tier supplied its
// value.
type Provenance struct {
	Variable string
	Source   Source
}

// Resolved is the output of Resolve: a fully validated variable map plus
// the provenance of each entry (spec §4.7 "Validation").
type Resolved struct {
	Values     map[string]any
	Provenance map[string]Provenance
}

// Inputs bundles everything a caller can supply toward resolution, in
// precedence order (spec §4.7, highest first).
type Inputs struct {
	// Overrides are explicit caller-supplied bindings (CLI flags / API
	// parameters) — tier 1, the highest precedence.
	Overrides map[string]any
	// Positional are values bound by a variable's declared `position`
	// (tier 2).
	Positional []any
	// Inherited carries parent-recipe values during composition (§4.5),
	// already mapped/renamed by the caller — tier 3.
	Inherited map[string]any
	// ExampleName selects a named example whose variables supply tier 4
	// defaults, when set.
	ExampleName string

	SkipPrompts bool
	Channel     InteractiveChannel
}

// Resolve assembles r's variable map from in following the six-tier
// precedence order and validates the result (spec §4.7).
func Resolve(r *recipe.Recipe, in Inputs) (*Resolved, error) {
	channel := in.Channel
	if channel == nil {
		channel = NoInteractiveChannel
	}

	values := make(map[string]any, len(r.Variables))
	provenance := make(map[string]Provenance, len(r.Variables))
	set := func(name string, value any, src Source) {
		values[name] = value
		provenance[name] = Provenance{Variable: name, Source: src}
	}

	// Tier 5: per-variable default, applied first so every higher tier can
	// freely overwrite it.
	for name, def := range r.Variables {
		if def.Default != nil {
			set(name, def.Default, SourceDefault)
		}
	}

	// Tier 4: recipe-level example defaults, only when the driver named one.
	if in.ExampleName != "" {
		ex, ok := findExample(r.Examples, in.ExampleName)
		if !ok {
			return nil, rerrors.New(rerrors.CodeUnknownVariableReference,
				fmt.Sprintf("recipe %q has no example named %q", r.Name, in.ExampleName))
		}
		for name, value := range ex.Variables {
			if _, known := r.Variables[name]; known {
				set(name, value, SourceExample)
			}
		}
	}

	// Tier 3: parent-recipe inheritance during composition.
	for name, value := range in.Inherited {
		if _, known := r.Variables[name]; known {
			set(name, value, SourceParent)
		}
	}

	// Tier 2: positional arguments, bound by each variable's declared
	// position.
	if len(in.Positional) > 0 {
		for name, def := range r.Variables {
			if def.Position == nil {
				continue
			}
			if *def.Position < len(in.Positional) {
				set(name, in.Positional[*def.Position], SourcePositional)
			}
		}
	}

	// Tier 1: explicit overrides, the highest precedence.
	for name, value := range in.Overrides {
		if _, known := r.Variables[name]; known {
			set(name, value, SourceOverride)
		}
	}

	// Tier 6: interactive prompt, only for variables still missing after
	// tiers 1-5, and only when prompting is permitted.
	var missing []string
	names := make([]string, 0, len(r.Variables))
	for name := range r.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := r.Variables[name]
		if _, ok := values[name]; ok {
			continue
		}
		if !def.Required {
			continue
		}
		if in.SkipPrompts {
			missing = append(missing, name)
			continue
		}
		value, err := channel.Prompt(def)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		set(name, value, SourcePrompt)
	}

	if len(missing) > 0 {
		se := &rerrors.StructuredError{}
		for _, name := range missing {
			se.Add(rerrors.Problem{Code: rerrors.CodeMissingRequiredVariable,
				Message: fmt.Sprintf("missing required variable %q", name), Path: "variables." + name})
		}
		return nil, se
	}

	// Validation is total: every assembled value is checked, and every
	// failure is reported together rather than stopping at the first.
	var errs []error
	validated := make(map[string]any, len(values))
	for name, value := range values {
		def, known := r.Variables[name]
		if !known {
			continue
		}
		v, err := def.Validate(value)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		validated[name] = v
	}
	if merged := rerrors.Batch(errs...); merged != nil {
		return nil, merged
	}

	return &Resolved{Values: validated, Provenance: provenance}, nil
}

// CheckExistence enforces the must_exist constraint on file/directory
// variables (spec §3.1), the one constraint Definition.Validate cannot
// check itself because it requires filesystem access — the schema
// package stays filesystem-free so it can be unit tested in isolation
// (spec §9). The engine calls this once, after Resolve has validated
// every value against its declared schema, so §8 property 4 ("the
// validator accepts a value iff it satisfies every declared constraint")
// holds for must_exist too.
func CheckExistence(r *recipe.Recipe, resolved *Resolved, workingDir string) error {
	var errs []error
	for name, def := range r.Variables {
		if def.Kind != schema.KindFile && def.Kind != schema.KindDirectory {
			continue
		}
		if !def.MustExist {
			continue
		}
		value, ok := resolved.Values[name]
		if !ok {
			continue
		}
		rel, ok := value.(string)
		if !ok {
			continue
		}
		path := rel
		if workingDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(workingDir, path)
		}
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, rerrors.NewAt(rerrors.CodeConstraintViolation,
				fmt.Sprintf("%s %q does not exist", def.Kind, rel), "variables."+name))
			continue
		}
		if def.Kind == schema.KindDirectory && !info.IsDir() {
			errs = append(errs, rerrors.NewAt(rerrors.CodeConstraintViolation,
				fmt.Sprintf("%q is not a directory", rel), "variables."+name))
		}
		if def.Kind == schema.KindFile && info.IsDir() {
			errs = append(errs, rerrors.NewAt(rerrors.CodeConstraintViolation,
				fmt.Sprintf("%q is not a file", rel), "variables."+name))
		}
	}
	return rerrors.Batch(errs...)
}

func findExample(examples []recipe.Example, name string) (recipe.Example, bool) {
	for _, ex := range examples {
		if ex.Name == name {
			return ex, true
		}
	}
	return recipe.Example{}, false
}
