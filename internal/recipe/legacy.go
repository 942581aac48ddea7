package recipe

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// wrapAsLegacyTemplateDescriptor wraps a document with only variables and
// metadata into a synthetic one-step recipe whose single Template step
// points at the directory containing the descriptor (spec §4.1: "a
// document with only variables and metadata is a legacy single-template
// descriptor and is wrapped synthetically into a one-step recipe").
func wrapAsLegacyTemplateDescriptor(r *Recipe, sourcePath string) {
	dir := "."
	if sourcePath != "" {
		dir = filepath.Dir(sourcePath)
	}

	node := mustEncodeNode(map[string]any{
		"template": dir,
	})

	r.Steps = []*Step{
		{
			Name: "render",
			Tool: ToolTemplate,
			node: *node,
		},
	}
}

// mustEncodeNode round-trips a plain value through yaml so it can be stored
// as a yaml.Node for Step.Decode to later pull typed fields out of, exactly
// as a parsed step's node would look.
func mustEncodeNode(v any) *yaml.Node {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		panic(fmt.Sprintf("internal: failed to encode synthetic step node: %v", err))
	}
	return &node
}
