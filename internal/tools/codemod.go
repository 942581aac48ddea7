package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	rerrors "github.com/dublyo/reciper/internal/errors"
	"github.com/dublyo/reciper/internal/recipe"
	"github.com/dublyo/reciper/internal/result"
	"github.com/dublyo/reciper/internal/safepath"
)

// Built-in codemod kinds (spec §4.4).
const (
	CodemodAddImport   = "add-import"
	CodemodAddExport   = "add-export"
	CodemodAddProperty = "add-property"
	CodemodReplaceText = "replace-text"
	CodemodCustom      = "custom"
)

// ASTTransformer is the pluggable surface the add-import / add-export /
// add-property kinds dispatch through when parser is typescript or
// javascript. Per spec §1 ("the engine only specifies the interfaces to
// [AST libraries], not their grammar") the engine ships exactly one
// implementation — lineTransformer, a conservative line-oriented
// transform that treats import/export/property statements as single
// lines rather than parsing a real AST. A caller wanting true AST-aware
// edits supplies its own ASTTransformer over the TypeScript/Babel parser
// of its choice.
type ASTTransformer interface {
	AddImport(content []byte, spec ImportSpec) (newContent []byte, changed bool, err error)
	AddExport(content []byte, spec ExportSpec) (newContent []byte, changed bool, err error)
	AddProperty(content []byte, spec PropertySpec) (newContent []byte, changed bool, err error)
}

// ImportSpec mirrors the add-import kind's parameters (spec §4.4).
type ImportSpec struct {
	Import     string
	From       string
	ImportType string // default | named | namespace | side_effect
	Alias      string
}

// ExportSpec mirrors the add-export kind's parameters (spec §4.4).
type ExportSpec struct {
	Export     string
	ExportType string // default | named
}

// PropertySpec mirrors the add-property kind's parameters (spec §4.4).
type PropertySpec struct {
	PropertyName  string
	PropertyValue string
	ClassName     string
	ObjectName    string
}

// codemodStepFields are the CodeMod tool's step-local fields (spec §4.4).
type codemodStepFields struct {
	Codemod    string         `yaml:"codemod"`
	Files      []string       `yaml:"files"`
	Parser     string         `yaml:"parser,omitempty"`
	Parameters map[string]any `yaml:"parameters,omitempty"`
	Backup     *bool          `yaml:"backup,omitempty"`
}

func (f codemodStepFields) backup() bool {
	if f.Backup == nil {
		return true
	}
	return *f.Backup
}

// codemodTool implements the CodeMod tool (spec §4.4, component I).
type codemodTool struct {
	custom *CodemodRegistry
	ast    ASTTransformer
}

// NewCodemodTool builds the CodeMod tool.
func NewCodemodTool(deps Dependencies) Tool {
	return &codemodTool{custom: deps.Codemods, ast: lineTransformer{}}
}

func (t *codemodTool) Validate(step *recipe.Step, sc *StepContext) error {
	var f codemodStepFields
	if err := step.Decode(&f); err != nil {
		return rerrors.New(rerrors.CodeInvalidParameters, err.Error())
	}
	if f.Codemod == "" {
		return rerrors.New(rerrors.CodeInvalidParameters, "codemod step requires \"codemod\"")
	}
	if len(f.Files) == 0 {
		return rerrors.New(rerrors.CodeInvalidParameters, "codemod step requires \"files\"")
	}
	switch f.Codemod {
	case CodemodAddImport, CodemodAddExport, CodemodAddProperty, CodemodReplaceText:
	case CodemodCustom:
		name, _ := f.Parameters["transform_ref"].(string)
		if name == "" {
			return rerrors.New(rerrors.CodeInvalidParameters, "custom codemod requires parameters.transform_ref")
		}
		if t.custom == nil {
			return rerrors.New(rerrors.CodeUnknownCodemodKind, fmt.Sprintf("no codemod registry configured; cannot resolve %q", name))
		}
		if _, ok := t.custom.Lookup(name); !ok {
			return rerrors.New(rerrors.CodeUnknownCodemodKind, fmt.Sprintf("unregistered custom transform %q", name))
		}
	default:
		return rerrors.New(rerrors.CodeUnknownCodemodKind, fmt.Sprintf("unrecognized codemod kind %q", f.Codemod))
	}
	switch f.Codemod {
	case CodemodAddImport, CodemodAddExport, CodemodAddProperty:
		if f.Parser != "" && f.Parser != "auto" && f.Parser != "typescript" && f.Parser != "javascript" {
			return rerrors.New(rerrors.CodeInvalidParameters,
				fmt.Sprintf("%s requires parser in {auto, typescript, javascript}, got %q", f.Codemod, f.Parser))
		}
	}
	return nil
}

func (t *codemodTool) Execute(step *recipe.Step, sc *StepContext) (result.StepResult, error) {
	var f codemodStepFields
	if err := step.DecodeResolved(&f, sc.Variables); err != nil {
		return result.StepResult{}, rerrors.New(rerrors.CodeInvalidParameters, err.Error())
	}

	matches, err := expandGlobs(sc.WorkingDir, f.Files)
	if err != nil {
		return result.StepResult{}, rerrors.New(rerrors.CodeInvalidParameters, err.Error())
	}

	var sr result.StepResult
	modified := make(map[string]bool, len(matches)) // spec §4.4: "records each modified file exactly once"

	for _, relPath := range matches {
		if sc.Context.Err() != nil {
			return sr, sc.Context.Err()
		}
		abs, err := safepath.Resolve(sc.WorkingDir, relPath)
		if err != nil {
			sr.Warnings = append(sr.Warnings, fmt.Sprintf("%s: %v", relPath, err))
			continue
		}
		original, err := os.ReadFile(abs)
		if err != nil {
			// spec §4.4 "batch-error isolation": a failure on one file
			// doesn't stop the rest of the glob.
			sr.Warnings = append(sr.Warnings, fmt.Sprintf("%s: %v", relPath, err))
			continue
		}

		newContent, changed, err := t.applyKind(f, original)
		if err != nil {
			sr.Warnings = append(sr.Warnings, fmt.Sprintf("%s: %v", relPath, err))
			continue
		}
		if !changed {
			continue
		}

		if sc.DryRun {
			if !modified[abs] {
				modified[abs] = true
				sr.FilesModified = append(sr.FilesModified, abs)
			}
			continue
		}

		if f.backup() {
			bak := fmt.Sprintf("%s.bak.%d", abs, time.Now().UnixNano())
			if err := os.WriteFile(bak, original, 0o644); err != nil {
				return sr, rerrors.New(rerrors.CodePermissionDenied, err.Error())
			}
		}
		if err := writeAtomic(abs, newContent); err != nil {
			return sr, err
		}
		if !modified[abs] {
			modified[abs] = true
			sr.FilesModified = append(sr.FilesModified, abs)
		}
	}
	return sr, nil
}

func (t *codemodTool) Cleanup() error { return nil }

// applyKind dispatches to the codemod's kind-specific logic (spec §4.4
// "Built-in kinds and parameters").
func (t *codemodTool) applyKind(f codemodStepFields, content []byte) ([]byte, bool, error) {
	switch f.Codemod {
	case CodemodAddImport:
		spec := ImportSpec{
			Import:     str(f.Parameters["import"]),
			From:       str(f.Parameters["from"]),
			ImportType: strDefault(f.Parameters["import_type"], "named"),
			Alias:      str(f.Parameters["alias"]),
		}
		return t.ast.AddImport(content, spec)
	case CodemodAddExport:
		spec := ExportSpec{
			Export:     str(f.Parameters["export"]),
			ExportType: strDefault(f.Parameters["export_type"], "named"),
		}
		return t.ast.AddExport(content, spec)
	case CodemodAddProperty:
		spec := PropertySpec{
			PropertyName:  str(f.Parameters["property_name"]),
			PropertyValue: str(f.Parameters["property_value"]),
			ClassName:     str(f.Parameters["class_name"]),
			ObjectName:    str(f.Parameters["object_name"]),
		}
		return t.ast.AddProperty(content, spec)
	case CodemodReplaceText:
		return replaceText(content, f.Parameters)
	case CodemodCustom:
		name := str(f.Parameters["transform_ref"])
		fn, _ := t.custom.Lookup(name)
		return fn("", content, f.Parameters)
	}
	return content, false, rerrors.New(rerrors.CodeUnknownCodemodKind, f.Codemod)
}

// replaceText implements the replace-text kind (spec §4.4): find is a
// literal or regex pattern; idempotence falls out naturally — a
// replacement that no longer matches is simply a no-op.
func replaceText(content []byte, params map[string]any) ([]byte, bool, error) {
	find := str(params["find"])
	replace := str(params["replace"])
	global, _ := params["global"].(bool)

	re, err := regexp.Compile(find)
	if err != nil {
		// not a valid regex: fall back to literal substring replacement.
		if !strings.Contains(string(content), find) {
			return content, false, nil
		}
		if global {
			return []byte(strings.ReplaceAll(string(content), find, replace)), true, nil
		}
		return []byte(strings.Replace(string(content), find, replace, 1)), true, nil
	}
	if !re.Match(content) {
		return content, false, nil
	}
	if global {
		return re.ReplaceAll(content, []byte(replace)), true, nil
	}
	replaced := false
	out := re.ReplaceAllFunc(content, func(m []byte) []byte {
		if replaced {
			return m
		}
		replaced = true
		return []byte(replace)
	})
	return out, true, nil
}

// lineTransformer is the engine's shipped ASTTransformer default: it
// treats each statement kind as a single inserted line and detects
// presence by substring match, rather than parsing a real AST (spec §1
// non-goal: "the engine only specifies the interfaces... not their
// grammar").
type lineTransformer struct{}

func (lineTransformer) AddImport(content []byte, spec ImportSpec) ([]byte, bool, error) {
	line := formatImportLine(spec)
	if bytesContainsLine(content, line) {
		return content, false, nil // spec §4.4 Idempotence: import already present.
	}
	return prependLine(content, line), true, nil
}

func formatImportLine(spec ImportSpec) string {
	switch spec.ImportType {
	case "side_effect":
		return fmt.Sprintf("import %q;", spec.From)
	case "namespace":
		return fmt.Sprintf("import * as %s from %q;", spec.Import, spec.From)
	case "default":
		return fmt.Sprintf("import %s from %q;", spec.Import, spec.From)
	default: // named
		name := spec.Import
		if spec.Alias != "" {
			name = fmt.Sprintf("%s as %s", spec.Import, spec.Alias)
		}
		return fmt.Sprintf("import { %s } from %q;", name, spec.From)
	}
}

func (lineTransformer) AddExport(content []byte, spec ExportSpec) ([]byte, bool, error) {
	var line string
	if spec.ExportType == "default" {
		line = fmt.Sprintf("export default %s;", spec.Export)
	} else {
		line = fmt.Sprintf("export { %s };", spec.Export)
	}
	if bytesContainsLine(content, line) {
		return content, false, nil
	}
	out := append([]byte{}, content...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	out = append(out, []byte(line+"\n")...)
	return out, true, nil
}

func (lineTransformer) AddProperty(content []byte, spec PropertySpec) ([]byte, bool, error) {
	holder := spec.ClassName
	if holder == "" {
		holder = spec.ObjectName
	}
	marker := fmt.Sprintf("%s = %s;", spec.PropertyName, spec.PropertyValue)
	if bytesContainsLine(content, marker) {
		return content, false, nil // property already set.
	}
	braceIdx := findHolderBrace(content, holder)
	if braceIdx < 0 {
		return content, false, rerrors.New(rerrors.CodeInvalidParameters,
			fmt.Sprintf("could not find declaration for %q to add property to", holder))
	}
	inserted := fmt.Sprintf("\n  %s\n", marker)
	out := append([]byte{}, content[:braceIdx+1]...)
	out = append(out, []byte(inserted)...)
	out = append(out, content[braceIdx+1:]...)
	return out, true, nil
}

func findHolderBrace(content []byte, holder string) int {
	idx := strings.Index(string(content), holder)
	if idx < 0 {
		return -1
	}
	rest := content[idx:]
	brace := strings.IndexByte(string(rest), '{')
	if brace < 0 {
		return -1
	}
	return idx + brace
}

func bytesContainsLine(content []byte, line string) bool {
	for _, l := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(l) == strings.TrimSpace(line) {
			return true
		}
	}
	return false
}

func prependLine(content []byte, line string) []byte {
	out := make([]byte, 0, len(content)+len(line)+1)
	out = append(out, []byte(line+"\n")...)
	out = append(out, content...)
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func strDefault(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

// expandGlobs resolves every glob pattern relative to baseDir into
// deduplicated, baseDir-relative matches, using doublestar so `**`
// recursive patterns work (spec §4.4 "globs relative to the working
// directory").
func expandGlobs(baseDir string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	fsys := os.DirFS(baseDir)
	for _, pat := range patterns {
		matches, err := doublestar.Glob(fsys, pat)
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pat, err)
		}
		for _, m := range matches {
			m = filepath.Clean(m)
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}
