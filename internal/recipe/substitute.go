package recipe

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dublyo/reciper/internal/expr"
)

// placeholderPattern matches a `{{ expr }}` parameter-injection site (spec
// §4.6 "Parameter injection").
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// substituteString expands every `{{ expr }}` placeholder in s against
// vars using the restricted expression grammar (spec §4.6.a). A string
// that is *exactly* one placeholder (nothing else around it) yields the
// expression's native value — so `parameters: { force: "{{ force }}" }`
// can inject a boolean, not just its string form. Anything else is
// rendered as an interpolated string.
func substituteString(s string, vars map[string]any) (any, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		src := s[matches[0][2]:matches[0][3]]
		e, err := expr.Parse(src)
		if err != nil {
			return nil, err
		}
		return e.EvalValue(vars)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		src := s[m[2]:m[3]]
		e, err := expr.Parse(src)
		if err != nil {
			return nil, err
		}
		v, err := e.EvalValue(vars)
		if err != nil {
			return nil, err
		}
		b.WriteString(fmt.Sprintf("%v", v))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// substituteNode walks a yaml.Node tree, substituting every scalar string
// value in place. Mapping keys are left untouched — only values carry
// variable references.
func substituteNode(node *yaml.Node, vars map[string]any) (*yaml.Node, error) {
	out := *node
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!str" || node.Tag == "" {
			v, err := substituteString(node.Value, vars)
			if err != nil {
				return nil, err
			}
			if s, ok := v.(string); ok {
				out.Value = s
				return &out, nil
			}
			// Native (non-string) substitution result: re-encode as its
			// own scalar/sequence/mapping node.
			var encoded yaml.Node
			if err := encoded.Encode(v); err != nil {
				return nil, err
			}
			return &encoded, nil
		}
		return &out, nil
	case yaml.SequenceNode:
		content := make([]*yaml.Node, len(node.Content))
		for i, c := range node.Content {
			n, err := substituteNode(c, vars)
			if err != nil {
				return nil, err
			}
			content[i] = n
		}
		out.Content = content
		return &out, nil
	case yaml.MappingNode:
		content := make([]*yaml.Node, len(node.Content))
		for i, c := range node.Content {
			if i%2 == 1 { // value position
				n, err := substituteNode(c, vars)
				if err != nil {
					return nil, err
				}
				content[i] = n
			} else {
				content[i] = c
			}
		}
		out.Content = content
		return &out, nil
	default:
		return &out, nil
	}
}

// DecodeResolved decodes this step's full YAML node into target after
// substituting every `{{ expr }}` placeholder against vars (spec §4.6
// "Parameter injection"). Tools call this from Execute, once variables
// are known; Validate uses the unsubstituted Decode, since presence
// checks don't need resolved values.
func (s *Step) DecodeResolved(target any, vars map[string]any) error {
	resolved, err := substituteNode(&s.node, vars)
	if err != nil {
		return err
	}
	return resolved.Decode(target)
}
