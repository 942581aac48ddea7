package tools

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dublyo/reciper/internal/recipe"
)

// stubFetcher serves a fs.FS rooted at a fixed directory, standing in for
// the Source Resolver & Trust Gate in Template/Recipe tool tests.
type stubFetcher struct{ dir string }

func (s stubFetcher) Fetch(ctx context.Context, ref string) (fs.FS, error) {
	return os.DirFS(s.dir), nil
}

func (s stubFetcher) FetchRecipeBytes(ctx context.Context, ref string) ([]byte, string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	return data, ref, err
}

func stepFromYAML(t *testing.T, doc string) *recipe.Step {
	t.Helper()
	r, err := recipe.LoadFromString(doc)
	require.NoError(t, err)
	require.Len(t, r.Steps, 1)
	return r.Steps[0]
}

func TestTemplateToolRendersAndResolvesOutputPath(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "[name].tmpl"), []byte("hello {{.name}}"), 0o644))

	outDir := t.TempDir()

	doc := `
name: templating
steps:
  - name: render
    tool: template
    template: "pack"
`
	step := stepFromYAML(t, doc)

	tool := NewTemplateTool(Dependencies{
		Renderer:    NewTextTemplateRenderer(),
		SourceFetch: stubFetcher{dir: srcDir},
	})

	sc := &StepContext{
		Context:    context.Background(),
		Variables:  map[string]any{"name": "widget"},
		WorkingDir: outDir,
	}
	require.NoError(t, tool.Validate(step, sc))

	sr, err := tool.Execute(step, sc)
	require.NoError(t, err)
	require.Len(t, sr.FilesCreated, 1)

	want := filepath.Join(outDir, "widget")
	require.Equal(t, want, sr.FilesCreated[0])

	content, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, "hello widget", string(content))
}

func TestTemplateToolRejectsOverwriteWithoutFlag(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "file.txt"), []byte("v2"), 0o644))

	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "file.txt"), []byte("v1"), 0o644))

	doc := `
name: templating
steps:
  - name: render
    tool: template
    template: "pack"
`
	step := stepFromYAML(t, doc)
	tool := NewTemplateTool(Dependencies{
		Renderer:    NewTextTemplateRenderer(),
		SourceFetch: stubFetcher{dir: srcDir},
	})
	sc := &StepContext{Context: context.Background(), Variables: map[string]any{}, WorkingDir: outDir}

	_, err := tool.Execute(step, sc)
	require.Error(t, err)
}

func TestCodemodReplaceText(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(target, []byte("const version = \"0.1.0\""), 0o644))

	doc := `
name: bump-version
steps:
  - name: bump
    tool: codemod
    codemod: replace-text
    files: ["main.go"]
    parameters:
      find: "0.1.0"
      replace: "0.2.0"
`
	step := stepFromYAML(t, doc)
	tool := NewCodemodTool(Dependencies{})
	sc := &StepContext{Context: context.Background(), Variables: map[string]any{}, WorkingDir: dir}

	require.NoError(t, tool.Validate(step, sc))
	sr, err := tool.Execute(step, sc)
	require.NoError(t, err)
	require.Len(t, sr.FilesModified, 1)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Contains(t, string(content), "0.2.0")
}

func TestCodemodReplaceTextIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(target, []byte("const version = \"0.2.0\""), 0o644))

	doc := `
name: bump-version
steps:
  - name: bump
    tool: codemod
    codemod: replace-text
    files: ["main.go"]
    parameters:
      find: "0.1.0"
      replace: "0.2.0"
`
	step := stepFromYAML(t, doc)
	tool := NewCodemodTool(Dependencies{})
	sc := &StepContext{Context: context.Background(), Variables: map[string]any{}, WorkingDir: dir}

	sr, err := tool.Execute(step, sc)
	require.NoError(t, err)
	require.Empty(t, sr.FilesModified)
}

func TestActionToolMergesParametersOverVariables(t *testing.T) {
	actions := NewActionRegistry()
	var seenName string
	actions.Register("greet", func(ctx context.Context, params, vars map[string]any, fsys ActionFS, logger Logger) ([]FileChange, error) {
		seenName = params["name"].(string)
		return nil, nil
	})

	doc := `
name: greet-recipe
steps:
  - name: greet
    tool: action
    action: greet
    parameters:
      name: "step-local"
`
	step := stepFromYAML(t, doc)
	tool := NewActionTool(Dependencies{Actions: actions})
	sc := &StepContext{Context: context.Background(), Variables: map[string]any{"name": "recipe-level"}, WorkingDir: t.TempDir()}

	require.NoError(t, tool.Validate(step, sc))
	_, err := tool.Execute(step, sc)
	require.NoError(t, err)
	require.Equal(t, "step-local", seenName)
}

func TestActionToolValidateRejectsUnregisteredAction(t *testing.T) {
	doc := `
name: greet-recipe
steps:
  - name: greet
    tool: action
    action: does-not-exist
`
	step := stepFromYAML(t, doc)
	tool := NewActionTool(Dependencies{Actions: NewActionRegistry()})
	sc := &StepContext{Context: context.Background(), Variables: map[string]any{}}

	require.Error(t, tool.Validate(step, sc))
}
