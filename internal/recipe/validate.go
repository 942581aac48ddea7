package recipe

import (
	"fmt"

	"github.com/dublyo/reciper/internal/expr"

	rerrors "github.com/dublyo/reciper/internal/errors"
)

// requiredFieldsByTool lists the step-level fields spec §4.2-§4.5 mark
// "(required)" for each tool. Parse-time validation only checks presence;
// full semantic validation (e.g. a codemod kind actually being registered)
// happens in the tool's own Validate at dispatch time (spec §4.6's
// per-step execution step 2).
var requiredFieldsByTool = map[string][]string{
	ToolTemplate: {"template"},
	ToolAction:   {"action"},
	ToolCodemod:  {"codemod", "files"},
	ToolRecipe:   {"recipe"},
}

// Validate runs every semantic check spec §4.1 requires and batches every
// failure into a single StructuredError. It returns nil when the recipe
// has no problems.
func Validate(r *Recipe) error {
	se := &rerrors.StructuredError{}

	if r.Name == "" {
		se.Add(rerrors.Problem{Code: rerrors.CodeSchemaValidationError, Message: "recipe name is required", Path: "name"})
	}

	validateVariables(r, se)
	validateSettings(r, se)
	validateSteps(r, se)

	if len(se.Problems) > 0 {
		return se
	}
	return nil
}

func validateVariables(r *Recipe, se *rerrors.StructuredError) {
	for name, def := range r.Variables {
		path := fmt.Sprintf("variables.%s", name)
		if def.Default != nil {
			if err := def.ValidateDefault(); err != nil {
				se.Add(rerrors.Problem{Code: rerrors.CodeConstraintViolation,
					Message: fmt.Sprintf("default value for %q is invalid: %v", name, err), Path: path + ".default"})
			}
		}
		if def.Kind == "enum" && len(def.Values) == 0 {
			se.Add(rerrors.Problem{Code: rerrors.CodeSchemaValidationError,
				Message: fmt.Sprintf("enum variable %q declares no values", name), Path: path + ".values"})
		}
	}

	positions := make(map[int]string)
	for name, def := range r.Variables {
		if def.Position == nil {
			continue
		}
		if other, taken := positions[*def.Position]; taken {
			se.Add(rerrors.Problem{Code: rerrors.CodeDuplicateName,
				Message: fmt.Sprintf("variables %q and %q both claim position %d", other, name, *def.Position),
				Path:    fmt.Sprintf("variables.%s.position", name)})
		}
		positions[*def.Position] = name
	}
	if len(positions) > 0 {
		for i := 0; i < len(positions); i++ {
			if _, ok := positions[i]; !ok {
				se.Add(rerrors.Problem{Code: rerrors.CodeSchemaValidationError,
					Message: fmt.Sprintf("positional variables must be dense starting at 0; position %d is missing", i),
					Path:    "variables"})
				break
			}
		}
	}

	for _, ex := range r.Examples {
		for varName, value := range ex.Variables {
			def, known := r.Variables[varName]
			if !known {
				se.Add(rerrors.Problem{Code: rerrors.CodeUnknownVariableReference,
					Message: fmt.Sprintf("example %q references unknown variable %q", ex.Name, varName),
					Path:    fmt.Sprintf("examples[%s].variables.%s", ex.Name, varName)})
				continue
			}
			if _, err := def.Validate(value); err != nil {
				se.Add(rerrors.Problem{Code: rerrors.CodeConstraintViolation,
					Message: fmt.Sprintf("example %q value for %q is invalid: %v", ex.Name, varName, err),
					Path:    fmt.Sprintf("examples[%s].variables.%s", ex.Name, varName)})
			}
		}
	}
}

func validateSettings(r *Recipe, se *rerrors.StructuredError) {
	if r.Settings.MaxParallelSteps == 0 {
		r.Settings.MaxParallelSteps = 4
	}
	if r.Settings.MaxParallelSteps < 1 {
		se.Add(rerrors.Problem{Code: rerrors.CodeSchemaValidationError,
			Message: "settings.max_parallel_steps must be >= 1", Path: "settings.max_parallel_steps"})
	}
	if r.Settings.TimeoutMs != nil && *r.Settings.TimeoutMs < 0 {
		se.Add(rerrors.Problem{Code: rerrors.CodeSchemaValidationError,
			Message: "settings.timeout_ms must be >= 0", Path: "settings.timeout_ms"})
	}
}

func validateSteps(r *Recipe, se *rerrors.StructuredError) {
	seen := make(map[string]struct{}, len(r.Steps))
	for i, s := range r.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		if s.Name == "" {
			se.Add(rerrors.Problem{Code: rerrors.CodeSchemaValidationError, Message: "step name is required", Path: path + ".name"})
			continue
		}
		path = fmt.Sprintf("steps[%s]", s.Name)
		if _, dup := seen[s.Name]; dup {
			se.Add(rerrors.Problem{Code: rerrors.CodeDuplicateName,
				Message: fmt.Sprintf("duplicate step name %q", s.Name), Path: path + ".name"})
		}
		seen[s.Name] = struct{}{}

		validateToolField(s, path, se)
		validateWhenField(s, path, se)
		if s.Retries < 0 {
			se.Add(rerrors.Problem{Code: rerrors.CodeSchemaValidationError, Message: "retries must be >= 0", Path: path + ".retries"})
		}
		if s.TimeoutMs != nil && *s.TimeoutMs < 0 {
			se.Add(rerrors.Problem{Code: rerrors.CodeSchemaValidationError, Message: "timeout_ms must be >= 0", Path: path + ".timeout_ms"})
		}
	}

	if err := ValidateNames(r.Steps); err != nil {
		se.Add(rerrors.Problem{Code: rerrors.CodeUnknownVariableReference, Message: err.Error(), Path: "steps"})
	}

	if cycle := DetectCycle(r.Steps); cycle != nil {
		se.Add(rerrors.Problem{Code: rerrors.CodeCycleInDependencies,
			Message: fmt.Sprintf("dependency cycle detected: %s", CycleMessage(cycle)), Path: "steps"})
	}

	// spec §3.1 invariant / REDESIGN FLAGS §9: a parallel step with no
	// dependency is rejected at validation time rather than silently run
	// concurrently with the root.
	for _, s := range r.Steps {
		if s.Parallel && len(s.DependsOn) == 0 {
			se.Add(rerrors.Problem{Code: rerrors.CodeSchemaValidationError,
				Message: fmt.Sprintf("step %q is parallel but has no depends_on", s.Name),
				Path:    fmt.Sprintf("steps[%s].parallel", s.Name)}).
				WithSuggestion("add at least one depends_on entry, or set parallel: false")
		}
	}
}

func validateToolField(s *Step, path string, se *rerrors.StructuredError) {
	switch s.Tool {
	case ToolTemplate, ToolAction, ToolCodemod, ToolRecipe:
	case "":
		se.Add(rerrors.Problem{Code: rerrors.CodeSchemaValidationError, Message: "step tool is required", Path: path + ".tool"})
		return
	default:
		se.Add(rerrors.Problem{Code: rerrors.CodeUnknownTool,
			Message: fmt.Sprintf("unrecognized tool %q", s.Tool), Path: path + ".tool"}).
			WithSuggestion("tool must be one of: template, action, codemod, recipe")
		return
	}

	var fields map[string]any
	if err := s.Decode(&fields); err != nil {
		se.Add(rerrors.Problem{Code: rerrors.CodeRecipeParseError, Message: err.Error(), Path: path})
		return
	}
	for _, required := range requiredFieldsByTool[s.Tool] {
		if _, ok := fields[required]; !ok {
			se.Add(rerrors.Problem{Code: rerrors.CodeSchemaValidationError,
				Message: fmt.Sprintf("%s step %q is missing required field %q", s.Tool, s.Name, required),
				Path:    path + "." + required})
		}
	}
}

func validateWhenField(s *Step, path string, se *rerrors.StructuredError) {
	if s.When == "" {
		return
	}
	parsed, err := expr.Parse(s.When)
	if err != nil {
		se.Add(rerrors.Problem{Code: rerrors.CodeInvalidWhenExpression,
			Message: err.Error(), Path: path + ".when"})
		return
	}
	s.WhenExpr = parsed
}
