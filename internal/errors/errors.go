// Package errors provides the structured error taxonomy for the recipe
// engine (spec §7). Every error the engine returns across its public
// surface carries a Code, a human message, and optionally a Path into the
// recipe document and a Suggestion for fixing it. Validation failures
// (parse, schema, variables) batch every problem found into a single
// StructuredError rather than stopping at the first one — the parser never
// partially returns a recipe.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a class of failure. Codes are stable strings so callers
// and tests can switch on them without depending on message text.
type Code string

// Recipe errors.
const (
	CodeRecipeParseError      Code = "recipe_parse_error"
	CodeSchemaValidationError Code = "schema_validation_error"
	CodeDuplicateName         Code = "duplicate_name"
	CodeUnknownTool           Code = "unknown_tool"
	CodeCycleInDependencies   Code = "cycle_in_dependencies"
	CodeInvalidWhenExpression Code = "invalid_when_expression"
)

// Variable errors.
const (
	CodeMissingRequiredVariable  Code = "missing_required_variable"
	CodeTypeMismatch             Code = "type_mismatch"
	CodeConstraintViolation      Code = "constraint_violation"
	CodeUnknownVariableReference Code = "unknown_variable_reference"
)

// Source errors.
const (
	CodeUnresolvedReference       Code = "unresolved_reference"
	CodeFetchFailed               Code = "fetch_failed"
	CodeBlockedCreator            Code = "blocked_creator"
	CodeUntrustedSource           Code = "untrusted_source"
	CodeSecurityRejectedReference Code = "security_rejected_reference"
	CodeCircularRecipeReference   Code = "circular_recipe_reference"
)

// Execution errors.
const (
	CodeStepFailed              Code = "step_failed"
	CodeStepTimedOut            Code = "step_timed_out"
	CodeRecipeTimedOut          Code = "recipe_timed_out"
	CodeConflict                Code = "conflict"
	CodeFileNotFound            Code = "file_not_found"
	CodePermissionDenied        Code = "permission_denied"
	CodeSyntaxErrorInSourceFile Code = "syntax_error_in_source_file"
)

// Tool-contract errors.
const (
	CodeUnknownAction      Code = "unknown_action"
	CodeUnknownCodemodKind Code = "unknown_codemod_kind"
	CodeInvalidParameters  Code = "invalid_parameters"
)

// Problem is a single pinned failure inside a StructuredError's batch.
type Problem struct {
	Code       Code
	Message    string
	Path       string // e.g. "steps[2].depends_on[0]", "" if not applicable
	Suggestion string
}

func (p Problem) String() string {
	var b strings.Builder
	b.WriteString(string(p.Code))
	if p.Path != "" {
		b.WriteString(" at ")
		b.WriteString(p.Path)
	}
	b.WriteString(": ")
	b.WriteString(p.Message)
	if p.Suggestion != "" {
		b.WriteString(" (suggestion: ")
		b.WriteString(p.Suggestion)
		b.WriteString(")")
	}
	return b.String()
}

// StructuredError batches one or more Problems (spec §4.1, §7).
type StructuredError struct {
	Problems []Problem
	Cause    error
}

// New creates a StructuredError carrying a single problem.
func New(code Code, message string) *StructuredError {
	return &StructuredError{Problems: []Problem{{Code: code, Message: message}}}
}

// NewAt creates a StructuredError for a single problem pinned to a document path.
func NewAt(code Code, message, path string) *StructuredError {
	return &StructuredError{Problems: []Problem{{Code: code, Message: message, Path: path}}}
}

// WithSuggestion attaches a suggestion to the most recently added problem.
func (e *StructuredError) WithSuggestion(suggestion string) *StructuredError {
	if len(e.Problems) == 0 {
		return e
	}
	e.Problems[len(e.Problems)-1].Suggestion = suggestion
	return e
}

// WithCause attaches the underlying error this StructuredError wraps.
func (e *StructuredError) WithCause(cause error) *StructuredError {
	e.Cause = cause
	return e
}

// Add appends another problem to the batch and returns the receiver.
func (e *StructuredError) Add(p Problem) *StructuredError {
	e.Problems = append(e.Problems, p)
	return e
}

// HasCode reports whether any problem in the batch carries the given code.
func (e *StructuredError) HasCode(code Code) bool {
	for _, p := range e.Problems {
		if p.Code == code {
			return true
		}
	}
	return false
}

func (e *StructuredError) Error() string {
	if len(e.Problems) == 1 {
		msg := e.Problems[0].String()
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", msg, e.Cause)
		}
		return msg
	}
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("%d problems: %s", len(e.Problems), strings.Join(parts, "; "))
}

func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Batch merges zero or more errors into one StructuredError. A nil is
// returned if every argument was nil. Used by validators that run a series
// of independent checks and want to report every failure together, per
// spec §4.1's "the parser never partially returns a recipe."
func Batch(errs ...error) error {
	var merged *StructuredError
	for _, err := range errs {
		if err == nil {
			continue
		}
		var se *StructuredError
		if errors.As(err, &se) {
			if merged == nil {
				merged = &StructuredError{}
			}
			merged.Problems = append(merged.Problems, se.Problems...)
			continue
		}
		if merged == nil {
			merged = &StructuredError{}
		}
		merged.Problems = append(merged.Problems, Problem{Code: CodeRecipeParseError, Message: err.Error()})
	}
	if merged == nil {
		return nil
	}
	return merged
}

// As re-exports errors.As so call sites don't need to import both this
// package and the standard library under conflicting names.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is re-exports errors.Is for the same reason.
func Is(err, target error) bool { return errors.Is(err, target) }
