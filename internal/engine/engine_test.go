package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dublyo/reciper/internal/source"
	"github.com/dublyo/reciper/internal/tools"
)

func writeRecipe(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestEngine(t *testing.T) (*Engine, *tools.ActionRegistry) {
	t.Helper()
	dir := t.TempDir()
	resolver := source.New(source.Options{
		Cache: source.NewCache(filepath.Join(dir, "cache"), 0),
	})
	actions := tools.NewActionRegistry()
	return New(Config{
		Source:  resolver,
		Actions: actions,
	}), actions
}

func TestEndToEndResolveExecute(t *testing.T) {
	actions := tools.NewActionRegistry()
	var greeted string
	actions.Register("greet", func(ctx context.Context, params, vars map[string]any, fsys tools.ActionFS, logger tools.Logger) ([]tools.FileChange, error) {
		greeted = params["name"].(string)
		return nil, nil
	})

	dir := t.TempDir()
	recipePath := writeRecipe(t, dir, "recipe.yml", `
name: greeter
version: "1.0.0"
variables:
  name:
    type: string
    required: true
steps:
  - name: say-hello
    tool: action
    action: greet
    parameters:
      name: "{{ name }}"
`)

	resolver := source.New(source.Options{
		Cache: source.NewCache(filepath.Join(dir, "cache"), 0),
	})
	eng := New(Config{Source: resolver, Actions: actions})

	ctx := context.Background()
	r, err := eng.ResolveAndLoad(ctx, recipePath, Options{})
	require.NoError(t, err)
	require.Empty(t, eng.Validate(r))

	resolved, err := eng.ResolveVariables(r, map[string]any{"name": "Ada"}, nil, Options{})
	require.NoError(t, err)

	res, err := eng.Execute(ctx, r, resolved, Options{WorkingDir: dir})
	require.NoError(t, err)
	require.Equal(t, "ok", string(res.Status))
	require.Equal(t, "Ada", greeted)
}

func TestListStepsAndShowInfo(t *testing.T) {
	eng, _ := newTestEngine(t)
	dir := t.TempDir()
	recipePath := writeRecipe(t, dir, "recipe.yml", `
name: info-recipe
version: "2.0.0"
description: demo
variables:
  label:
    type: string
    default: "x"
steps:
  - name: one
    tool: action
    action: noop
  - name: two
    tool: action
    action: noop
    depends_on: [one]
    parallel: true
`)
	ctx := context.Background()
	r, err := eng.ResolveAndLoad(ctx, recipePath, Options{})
	require.NoError(t, err)

	steps := eng.ListSteps(r)
	require.Len(t, steps, 2)
	require.Equal(t, "one", steps[0].Name)
	require.True(t, steps[1].Parallel)

	info := eng.ShowInfo(r)
	require.Equal(t, "info-recipe", info.Name)
	require.Equal(t, "2.0.0", info.Version)
	require.Contains(t, info.Variables, "label")
}

func TestResolveAndLoadRejectsUnknownTool(t *testing.T) {
	eng, _ := newTestEngine(t)
	dir := t.TempDir()
	recipePath := writeRecipe(t, dir, "recipe.yml", `
name: broken
steps:
  - name: mystery
    tool: sorcery
`)
	ctx := context.Background()
	_, err := eng.ResolveAndLoad(ctx, recipePath, Options{})
	require.Error(t, err)
}
