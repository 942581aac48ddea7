package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/dublyo/reciper/internal/errors"
	"github.com/dublyo/reciper/internal/recipe"
	"github.com/dublyo/reciper/internal/schema"
)

func testRecipe() *recipe.Recipe {
	pos0 := 0
	return &recipe.Recipe{
		Name: "demo",
		Variables: map[string]*schema.Definition{
			"name": {Name: "name", Kind: schema.KindString, Required: true, Position: &pos0},
			"lang": {Name: "lang", Kind: schema.KindEnum, Values: []string{"go", "rust"}, Default: "go"},
		},
	}
}

func TestResolvePrecedence(t *testing.T) {
	r := testRecipe()

	resolved, err := Resolve(r, Inputs{
		Positional:  []any{"from-positional"},
		Overrides:   map[string]any{"name": "from-override"},
		SkipPrompts: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "from-override", resolved.Values["name"])
	assert.Equal(t, SourceOverride, resolved.Provenance["name"].Source)
	assert.Equal(t, "go", resolved.Values["lang"])
	assert.Equal(t, SourceDefault, resolved.Provenance["lang"].Source)
}

func TestResolvePositionalFallsBackWhenNoOverride(t *testing.T) {
	r := testRecipe()
	resolved, err := Resolve(r, Inputs{Positional: []any{"widget"}, SkipPrompts: true})
	require.NoError(t, err)
	assert.Equal(t, "widget", resolved.Values["name"])
	assert.Equal(t, SourcePositional, resolved.Provenance["name"].Source)
}

func TestResolveMissingRequiredNonInteractive(t *testing.T) {
	r := testRecipe()
	_, err := Resolve(r, Inputs{SkipPrompts: true})
	require.Error(t, err)
	var se *rerrors.StructuredError
	require.True(t, rerrors.As(err, &se))
	assert.True(t, se.HasCode(rerrors.CodeMissingRequiredVariable))
}

func TestResolveExampleSuppliesDefaults(t *testing.T) {
	r := testRecipe()
	r.Examples = []recipe.Example{
		{Name: "basic", Variables: map[string]any{"name": "from-example"}},
	}
	resolved, err := Resolve(r, Inputs{ExampleName: "basic", SkipPrompts: true})
	require.NoError(t, err)
	assert.Equal(t, "from-example", resolved.Values["name"])
	assert.Equal(t, SourceExample, resolved.Provenance["name"].Source)
}

func TestResolveUnknownExampleName(t *testing.T) {
	r := testRecipe()
	_, err := Resolve(r, Inputs{ExampleName: "nope", SkipPrompts: true})
	require.Error(t, err)
}

func TestResolveInvalidValueIsReported(t *testing.T) {
	r := testRecipe()
	_, err := Resolve(r, Inputs{Overrides: map[string]any{"name": "x", "lang": "cobol"}, SkipPrompts: true})
	require.Error(t, err)
	var se *rerrors.StructuredError
	require.True(t, rerrors.As(err, &se))
	assert.True(t, se.HasCode(rerrors.CodeConstraintViolation))
}

type stubChannel struct{ value any }

func (s stubChannel) Prompt(def *schema.Definition) (any, error) { return s.value, nil }

func TestResolvePromptsWhenInteractive(t *testing.T) {
	r := testRecipe()
	resolved, err := Resolve(r, Inputs{Channel: stubChannel{value: "prompted-value"}})
	require.NoError(t, err)
	assert.Equal(t, "prompted-value", resolved.Values["name"])
	assert.Equal(t, SourcePrompt, resolved.Provenance["name"].Source)
}
