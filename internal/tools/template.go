package tools

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	rerrors "github.com/dublyo/reciper/internal/errors"
	"github.com/dublyo/reciper/internal/recipe"
	"github.com/dublyo/reciper/internal/result"
	"github.com/dublyo/reciper/internal/safepath"
)

// Renderer renders a single template file's content against a variable
// map. `auto` picks by extension; the engine ships exactly one renderer
// (Go's text/template) and specifies the interface other engines would
// implement, per spec §1's "the engine only specifies the interfaces to
// these, not their grammar."
type Renderer interface {
	Render(name, content string, vars map[string]any) (string, error)
}

// funcMapRenderer wraps text/template with the same helper FuncMap the
// corpus's own Docker-template generator registered.
type funcMapRenderer struct{}

// NewTextTemplateRenderer returns the engine's default `auto` renderer.
func NewTextTemplateRenderer() Renderer { return funcMapRenderer{} }

func (funcMapRenderer) Render(name, content string, vars map[string]any) (string, error) {
	funcMap := template.FuncMap{
		"default": func(def, val any) any {
			if val == nil || val == "" {
				return def
			}
			return val
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
		"title": func(s string) string {
			if len(s) == 0 {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
		"trimSuffix": strings.TrimSuffix,
		"replace":    strings.ReplaceAll,
		"join":       strings.Join,
	}

	tmpl, err := template.New(name).Funcs(funcMap).Parse(content)
	if err != nil {
		return "", rerrors.New(rerrors.CodeSyntaxErrorInSourceFile, fmt.Sprintf("template %q: %v", name, err))
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", rerrors.New(rerrors.CodeSyntaxErrorInSourceFile, fmt.Sprintf("template %q execution failed: %v", name, err))
	}
	return buf.String(), nil
}

// frontmatter is the per-file routing/override block spec §6.2 allows at
// the head of a template file, delimited by `---` lines.
type frontmatter struct {
	To           string           `yaml:"to,omitempty"`
	SkipIf       string           `yaml:"skip_if,omitempty"`
	UnlessExists bool             `yaml:"unless_exists,omitempty"`
	Inject       *injectDirective `yaml:"inject,omitempty"`
}

type injectDirective struct {
	Before  string `yaml:"before,omitempty"`
	After   string `yaml:"after,omitempty"`
	AtLine  *int   `yaml:"at_line,omitempty"`
	SkipIf  string `yaml:"skip_if,omitempty"`
	Content string `yaml:"content,omitempty"`
}

// splitFrontmatter pulls a leading `---\n...\n---\n` YAML block off of
// content, returning the parsed frontmatter (zero value if none) and the
// remaining body.
func splitFrontmatter(content string) (frontmatter, string) {
	const delim = "---"
	if !strings.HasPrefix(content, delim) {
		return frontmatter{}, content
	}
	rest := content[len(delim):]
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n"+delim)
	if end < 0 {
		return frontmatter{}, content
	}
	block := rest[:end]
	body := rest[end+1+len(delim):]
	body = strings.TrimPrefix(body, "\n")

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return frontmatter{}, content
	}
	return fm, body
}

// templateStepFields are the Template tool's step-local fields (spec
// §4.2), decoded lazily from the step's retained YAML node.
type templateStepFields struct {
	Template  string   `yaml:"template"`
	Engine    string   `yaml:"engine,omitempty"`
	OutputDir string   `yaml:"output_dir,omitempty"`
	Overwrite bool     `yaml:"overwrite,omitempty"`
	Exclude   []string `yaml:"exclude,omitempty"`
}

// templateTool implements the Template tool (spec §4.2, component G),
// consulting the path resolver (component F) for each template file.
type templateTool struct {
	renderer Renderer
	fetch    SourceFetcher
	writes   *WriteClaims
}

// NewTemplateTool builds the Template tool.
func NewTemplateTool(deps Dependencies) Tool {
	renderer := deps.Renderer
	if renderer == nil {
		renderer = NewTextTemplateRenderer()
	}
	return &templateTool{renderer: renderer, fetch: deps.SourceFetch, writes: deps.Writes}
}

func (t *templateTool) Validate(step *recipe.Step, sc *StepContext) error {
	var f templateStepFields
	if err := step.Decode(&f); err != nil {
		return rerrors.New(rerrors.CodeInvalidParameters, err.Error())
	}
	if f.Template == "" {
		return rerrors.New(rerrors.CodeInvalidParameters, "template step requires \"template\"")
	}
	return nil
}

func (t *templateTool) Execute(step *recipe.Step, sc *StepContext) (result.StepResult, error) {
	var f templateStepFields
	if err := step.DecodeResolved(&f, sc.Variables); err != nil {
		return result.StepResult{}, rerrors.New(rerrors.CodeInvalidParameters, err.Error())
	}

	root, err := t.fetch.Fetch(sc.Context, f.Template)
	if err != nil {
		return result.StepResult{}, err
	}

	outputDir := f.OutputDir
	if outputDir == "" {
		outputDir = sc.WorkingDir
	}

	var created, modified []string
	var warnings []string

	walkErr := fs.WalkDir(root, ".", func(relPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if matchesAny(relPath, f.Exclude) {
			return nil
		}
		if sc.Context.Err() != nil {
			return sc.Context.Err()
		}

		raw, err := fs.ReadFile(root, relPath)
		if err != nil {
			return err
		}

		fm, body := splitFrontmatter(string(raw))

		if fm.SkipIf != "" {
			skip, err := evalExprString(fm.SkipIf, sc.Variables)
			if err != nil {
				return err
			}
			if skip {
				return nil
			}
		}

		destRel := resolveOutputPath(relPath, f.Engine, sc.Variables)
		if fm.To != "" {
			destRel = fm.To
		}

		destAbs, err := safepath.Resolve(outputDir, destRel)
		if err != nil {
			return err
		}

		if t.writes != nil && !t.writes.Claim(destAbs) {
			return rerrors.New(rerrors.CodeConflict,
				fmt.Sprintf("destination already written by a concurrent parallel step: %s", destRel))
		}

		rendered, err := t.renderer.Render(relPath, body, sc.Variables)
		if err != nil {
			return err
		}

		_, statErr := os.Stat(destAbs)
		exists := statErr == nil

		if fm.UnlessExists && exists {
			return nil
		}

		if fm.Inject != nil {
			if !exists {
				return rerrors.New(rerrors.CodeFileNotFound, fmt.Sprintf("inject target does not exist: %s", destRel))
			}
			didInject, err := applyInjection(destAbs, rendered, *fm.Inject, sc)
			if err != nil {
				return err
			}
			if didInject {
				modified = append(modified, destAbs)
			}
			return nil
		}

		if exists && !f.Overwrite {
			if sc.Force {
				// force overrides overwrite: false and lets the existing
				// destination be replaced.
			} else {
				return rerrors.New(rerrors.CodeConflict, fmt.Sprintf("destination exists and overwrite is false: %s", destRel))
			}
		}

		if sc.DryRun {
			if exists {
				modified = append(modified, destAbs)
			} else {
				created = append(created, destAbs)
			}
			return nil
		}

		if err := writeAtomic(destAbs, []byte(rendered)); err != nil {
			return err
		}
		if exists {
			modified = append(modified, destAbs)
		} else {
			created = append(created, destAbs)
		}
		return nil
	})
	if walkErr != nil {
		return result.StepResult{FilesCreated: created, FilesModified: modified}, walkErr
	}

	return result.StepResult{
		FilesCreated:  created,
		FilesModified: modified,
		Warnings:      warnings,
	}, nil
}

func (t *templateTool) Cleanup() error { return nil }

// resolveOutputPath applies spec §4.6's path-resolution rules: strip the
// renderer's source extension, then substitute `[name]` / `[[name]]`
// dynamic segments.
func resolveOutputPath(relPath, engineName string, vars map[string]any) string {
	out := stripEngineExtension(relPath, engineName)

	segments := strings.Split(out, string(filepath.Separator))
	for i, seg := range segments {
		segments[i] = substituteSegment(seg, vars)
	}
	return filepath.Join(segments...)
}

func stripEngineExtension(relPath, engineName string) string {
	ext := filepath.Ext(relPath)
	switch ext {
	case ".tmpl", ".tpl", ".gotmpl":
		return strings.TrimSuffix(relPath, ext)
	}
	return relPath
}

func substituteSegment(seg string, vars map[string]any) string {
	if strings.HasPrefix(seg, "[[") && strings.HasSuffix(seg, "]]") {
		name := seg[2 : len(seg)-2]
		if list, ok := vars[name].([]any); ok {
			parts := make([]string, len(list))
			for i, v := range list {
				parts[i] = fmt.Sprintf("%v", v)
			}
			return strings.Join(parts, "/")
		}
		return seg
	}
	if strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]") {
		name := seg[1 : len(seg)-1]
		if v, ok := vars[name]; ok {
			return fmt.Sprintf("%v", v)
		}
		return seg
	}
	return seg
}

func matchesAny(relPath string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, relPath); ok {
			return true
		}
	}
	return false
}

// writeAtomic writes content to a temporary sibling file and renames it
// into place, so a reader never observes a partially written destination
// (spec §5 "Shared-resource policy": "Writers guarantee atomicity by
// writing to a temporary sibling and renaming").
func writeAtomic(dest string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return rerrors.New(rerrors.CodePermissionDenied, err.Error())
	}
	tmp := dest + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return rerrors.New(rerrors.CodePermissionDenied, err.Error())
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return rerrors.New(rerrors.CodePermissionDenied, err.Error())
	}
	return nil
}

// applyInjection inserts content into an existing destination file per an
// inject directive's selector, skipping (idempotently) if the content is
// already present on a matching line.
func applyInjection(dest, content string, dir injectDirective, sc *StepContext) (bool, error) {
	if dir.SkipIf != "" {
		skip, err := evalExprString(dir.SkipIf, sc.Variables)
		if err != nil {
			return false, err
		}
		if skip {
			return false, nil
		}
	}

	existing, err := os.ReadFile(dest)
	if err != nil {
		return false, rerrors.New(rerrors.CodeFileNotFound, err.Error())
	}
	lines := strings.Split(string(existing), "\n")

	marker := strings.TrimSpace(content)
	if marker == "" {
		marker = strings.TrimSpace(dir.Content)
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == marker {
			return false, nil // already injected — idempotent no-op.
		}
	}

	insertAt := len(lines)
	switch {
	case dir.AtLine != nil:
		insertAt = clampInt(*dir.AtLine, 0, len(lines))
	case dir.Before != "":
		if idx := findLine(lines, dir.Before); idx >= 0 {
			insertAt = idx
		}
	case dir.After != "":
		if idx := findLine(lines, dir.After); idx >= 0 {
			insertAt = idx + 1
		}
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insertAt]...)
	out = append(out, marker)
	out = append(out, lines[insertAt:]...)

	if sc.DryRun {
		return true, nil
	}
	return true, writeAtomic(dest, []byte(strings.Join(out, "\n")))
}

func findLine(lines []string, needle string) int {
	for i, l := range lines {
		if strings.Contains(l, needle) {
			return i
		}
	}
	return -1
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
