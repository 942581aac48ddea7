package recipe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeResolvedInterpolatesStrings(t *testing.T) {
	doc := `
name: demo
steps:
  - name: one
    tool: action
    action: greet
    parameters:
      greeting: "hello {{ name }}!"
`
	r, err := LoadFromString(doc)
	require.NoError(t, err)

	var fields struct {
		Action     string         `yaml:"action"`
		Parameters map[string]any `yaml:"parameters"`
	}
	require.NoError(t, r.Steps[0].DecodeResolved(&fields, map[string]any{"name": "Ada"}))
	require.Equal(t, "hello Ada!", fields.Parameters["greeting"])
}

func TestDecodeResolvedPreservesNativeType(t *testing.T) {
	doc := `
name: demo
steps:
  - name: one
    tool: action
    action: toggle
    parameters:
      enabled: "{{ flag }}"
`
	r, err := LoadFromString(doc)
	require.NoError(t, err)

	var fields struct {
		Action     string         `yaml:"action"`
		Parameters map[string]any `yaml:"parameters"`
	}
	require.NoError(t, r.Steps[0].DecodeResolved(&fields, map[string]any{"flag": true}))
	require.Equal(t, true, fields.Parameters["enabled"])
}

func TestDecodeResolvedLeavesPlainStringsAlone(t *testing.T) {
	doc := `
name: demo
steps:
  - name: one
    tool: action
    action: noop
    parameters:
      label: "no placeholders here"
`
	r, err := LoadFromString(doc)
	require.NoError(t, err)

	var fields struct {
		Action     string         `yaml:"action"`
		Parameters map[string]any `yaml:"parameters"`
	}
	require.NoError(t, r.Steps[0].DecodeResolved(&fields, map[string]any{}))
	require.Equal(t, "no placeholders here", fields.Parameters["label"])
}
