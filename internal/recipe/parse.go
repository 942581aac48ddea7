package recipe

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	rerrors "github.com/dublyo/reciper/internal/errors"
)

// Load loads and validates a recipe from a YAML file (spec §4.1).
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rerrors.New(rerrors.CodeUnresolvedReference, fmt.Sprintf("recipe file not found: %s", path)).WithCause(err)
		}
		return nil, rerrors.New(rerrors.CodeRecipeParseError, fmt.Sprintf("failed to read recipe: %s", path)).WithCause(err)
	}
	return Parse(data, path)
}

// LoadFromString parses a recipe from a YAML string with no path context.
func LoadFromString(content string) (*Recipe, error) {
	return Parse([]byte(content), "")
}

// Parse parses bytes into a validated Recipe (spec §4.1 contract:
// `parse(bytes, source_path) -> Recipe | StructuredError`). The parser
// never partially returns a recipe: every semantic check runs and every
// failure is batched into one StructuredError.
func Parse(data []byte, sourcePath string) (*Recipe, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, rerrors.New(rerrors.CodeRecipeParseError, err.Error())
	}

	// Discriminate "is a recipe" from "is a plain template descriptor"
	// (spec §4.1): a document with a non-empty `steps` list is a recipe; a
	// document with only variables and metadata is wrapped into a
	// synthetic one-step recipe.
	_, hasSteps := raw["steps"]

	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, rerrors.New(rerrors.CodeRecipeParseError, err.Error())
	}
	r.SourcePath = sourcePath

	if !hasSteps {
		wrapAsLegacyTemplateDescriptor(&r, sourcePath)
	}

	for name, def := range r.Variables {
		def.Name = name
	}

	if err := Validate(&r); err != nil {
		return nil, err
	}
	return &r, nil
}
