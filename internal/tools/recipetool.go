package tools

import (
	"fmt"
	"path/filepath"

	rerrors "github.com/dublyo/reciper/internal/errors"
	"github.com/dublyo/reciper/internal/recipe"
	"github.com/dublyo/reciper/internal/result"
)

// recipeStepFields are the Recipe tool's step-local fields (spec §4.5).
type recipeStepFields struct {
	Recipe            string            `yaml:"recipe"`
	Version           string            `yaml:"version,omitempty"`
	InheritVariables  *bool             `yaml:"inherit_variables,omitempty"`
	VariableOverrides map[string]any    `yaml:"variable_overrides,omitempty"`
	VariableMapping   map[string]string `yaml:"variable_mapping,omitempty"`
	Isolated          bool              `yaml:"isolated,omitempty"`
}

func (f recipeStepFields) inheritVariables() bool {
	if f.InheritVariables == nil {
		return true
	}
	return *f.InheritVariables
}

// recipeTool implements the Recipe tool — composition (spec §4.5,
// component J).
type recipeTool struct {
	fetch  SourceFetcher
	runner RecipeRunner
}

// NewRecipeTool builds the Recipe tool.
func NewRecipeTool(deps Dependencies) Tool {
	return &recipeTool{fetch: deps.SourceFetch, runner: deps.RecipeRun}
}

func (t *recipeTool) Validate(step *recipe.Step, sc *StepContext) error {
	var f recipeStepFields
	if err := step.Decode(&f); err != nil {
		return rerrors.New(rerrors.CodeInvalidParameters, err.Error())
	}
	if f.Recipe == "" {
		return rerrors.New(rerrors.CodeInvalidParameters, "recipe step requires \"recipe\"")
	}
	if t.runner == nil {
		return rerrors.New(rerrors.CodeInvalidParameters, "no recipe runner configured for composition")
	}
	return nil
}

func (t *recipeTool) Execute(step *recipe.Step, sc *StepContext) (result.StepResult, error) {
	var f recipeStepFields
	if err := step.DecodeResolved(&f, sc.Variables); err != nil {
		return result.StepResult{}, rerrors.New(rerrors.CodeInvalidParameters, err.Error())
	}

	// spec §4.5 step 2: re-entrancy guard. The stack holds canonical
	// source identities: FetchRecipeBytes below resolves the reference to
	// the same canonical form the engine stamps onto a loaded
	// Recipe.SourcePath, so a descendant that resolves to the same
	// canonical source is caught even if it spelled the reference
	// differently.
	_, canonical, err := t.fetch.FetchRecipeBytes(sc.Context, f.Recipe)
	if err != nil {
		return result.StepResult{}, err
	}
	for _, ancestor := range sc.RecipeStack {
		if ancestor == canonical {
			return result.StepResult{}, rerrors.New(rerrors.CodeCircularRecipeReference,
				fmt.Sprintf("circular recipe reference: %s", canonical))
		}
	}

	inherited := map[string]any{}
	if f.inheritVariables() {
		for parentName, value := range sc.Variables {
			childName := parentName
			if mapped, ok := f.VariableMapping[parentName]; ok {
				childName = mapped
			}
			inherited[childName] = value
		}
	}

	workingDir := sc.WorkingDir
	if f.Isolated {
		workingDir = filepath.Join(sc.WorkingDir, step.Name)
	}

	childOpts := ChildRunOptions{
		InheritedVariables: inherited,
		VariableOverrides:  f.VariableOverrides,
		VariableMapping:    f.VariableMapping,
		InheritVariables:   f.inheritVariables(),
		WorkingDir:         workingDir,
		DryRun:             sc.DryRun,
		Force:              sc.Force,
		RecipeStack:        append(append([]string{}, sc.RecipeStack...), canonical),
		ParentRecipeName:   sc.ParentRecipeName,
	}

	childResult, err := t.runner.RunChild(sc.Context, f.Recipe, childOpts)
	if err != nil {
		return result.StepResult{}, err
	}

	sr := result.StepResult{}
	created, modified, deleted := childResult.Files()
	sr.FilesCreated = created
	sr.FilesModified = modified
	sr.FilesDeleted = deleted
	if childResult.Status == result.StatusFailed {
		return sr, rerrors.New(rerrors.CodeStepFailed,
			fmt.Sprintf("sub-recipe %q failed", childResult.RecipeName))
	}
	if childResult.Status == result.StatusTimedOut {
		return sr, rerrors.New(rerrors.CodeRecipeTimedOut,
			fmt.Sprintf("sub-recipe %q timed out", childResult.RecipeName))
	}
	return sr, nil
}

func (t *recipeTool) Cleanup() error { return nil }
