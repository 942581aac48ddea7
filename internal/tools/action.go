package tools

import (
	"fmt"
	"os"
	"path/filepath"

	rerrors "github.com/dublyo/reciper/internal/errors"
	"github.com/dublyo/reciper/internal/recipe"
	"github.com/dublyo/reciper/internal/result"
	"github.com/dublyo/reciper/internal/safepath"
)

// actionStepFields are the Action tool's step-local fields (spec §4.3).
type actionStepFields struct {
	Action     string         `yaml:"action"`
	Parameters map[string]any `yaml:"parameters,omitempty"`
}

// actionTool implements the Action tool (spec §4.3, component H).
type actionTool struct {
	registry *ActionRegistry
}

// NewActionTool builds the Action tool against the engine's action
// registry (spec §4.3 "Discovery").
func NewActionTool(deps Dependencies) Tool {
	return &actionTool{registry: deps.Actions}
}

func (t *actionTool) Validate(step *recipe.Step, sc *StepContext) error {
	var f actionStepFields
	if err := step.Decode(&f); err != nil {
		return rerrors.New(rerrors.CodeInvalidParameters, err.Error())
	}
	if f.Action == "" {
		return rerrors.New(rerrors.CodeInvalidParameters, "action step requires \"action\"")
	}
	if t.registry == nil {
		return rerrors.New(rerrors.CodeUnknownAction, fmt.Sprintf("no action registry configured; cannot resolve %q", f.Action))
	}
	// spec §4.3 "Discovery": "The tool validates that the named action
	// exists at validate-time and fails fast otherwise."
	if _, ok := t.registry.Lookup(f.Action); !ok {
		return rerrors.New(rerrors.CodeUnknownAction, fmt.Sprintf("unregistered action %q", f.Action))
	}
	return nil
}

func (t *actionTool) Execute(step *recipe.Step, sc *StepContext) (result.StepResult, error) {
	var f actionStepFields
	if err := step.DecodeResolved(&f, sc.Variables); err != nil {
		return result.StepResult{}, rerrors.New(rerrors.CodeInvalidParameters, err.Error())
	}
	fn, ok := t.registry.Lookup(f.Action)
	if !ok {
		return result.StepResult{}, rerrors.New(rerrors.CodeUnknownAction, fmt.Sprintf("unregistered action %q", f.Action))
	}

	// parameters (object merged over recipe-level variables with
	// step-local precedence, spec §4.3 "Step fields").
	params := make(map[string]any, len(f.Parameters))
	for k, v := range sc.Variables {
		params[k] = v
	}
	for k, v := range f.Parameters {
		params[k] = v
	}

	afs := &actionFS{baseDir: sc.WorkingDir, dryRun: sc.DryRun}
	changes, err := fn(sc.Context, params, sc.Variables, afs, sc.Logger)
	if err != nil {
		return result.StepResult{}, rerrors.New(rerrors.CodeStepFailed, err.Error()).WithCause(err)
	}

	var sr result.StepResult
	for _, c := range changes {
		switch c.Kind {
		case ChangeCreated:
			sr.FilesCreated = append(sr.FilesCreated, c.Path)
		case ChangeModified:
			sr.FilesModified = append(sr.FilesModified, c.Path)
		case ChangeDeleted:
			sr.FilesDeleted = append(sr.FilesDeleted, c.Path)
		}
	}
	return sr, nil
}

func (t *actionTool) Cleanup() error { return nil }

// actionFS is the default ActionFS implementation, scoped to a step's
// working directory via safepath so an action can never escape it (spec
// §4.3: effects are only tracked, and only trusted, through this handle).
type actionFS struct {
	baseDir string
	dryRun  bool
}

func (a *actionFS) WorkingDir() string { return a.baseDir }

func (a *actionFS) Read(relPath string) ([]byte, error) {
	abs, err := safepath.Resolve(a.baseDir, relPath)
	if err != nil {
		return nil, rerrors.New(rerrors.CodePermissionDenied, err.Error())
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rerrors.New(rerrors.CodeFileNotFound, err.Error())
		}
		return nil, rerrors.New(rerrors.CodePermissionDenied, err.Error())
	}
	return data, nil
}

func (a *actionFS) Exists(relPath string) bool {
	abs, err := safepath.Resolve(a.baseDir, relPath)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(abs)
	return statErr == nil
}

func (a *actionFS) Write(relPath string, content []byte) (FileChange, error) {
	abs, err := safepath.Resolve(a.baseDir, relPath)
	if err != nil {
		return FileChange{}, rerrors.New(rerrors.CodePermissionDenied, err.Error())
	}
	_, statErr := os.Stat(abs)
	kind := ChangeCreated
	if statErr == nil {
		kind = ChangeModified
	}
	if !a.dryRun {
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return FileChange{}, rerrors.New(rerrors.CodePermissionDenied, err.Error())
		}
		if err := writeAtomic(abs, content); err != nil {
			return FileChange{}, err
		}
	}
	return FileChange{Path: abs, Kind: kind}, nil
}

func (a *actionFS) Delete(relPath string) (FileChange, error) {
	abs, err := safepath.Resolve(a.baseDir, relPath)
	if err != nil {
		return FileChange{}, rerrors.New(rerrors.CodePermissionDenied, err.Error())
	}
	if !a.dryRun {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return FileChange{}, rerrors.New(rerrors.CodePermissionDenied, err.Error())
		}
	}
	return FileChange{Path: abs, Kind: ChangeDeleted}, nil
}
