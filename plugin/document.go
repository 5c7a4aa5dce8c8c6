// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package plugin

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	errs "github.com/soothill/budsctl/pkg/errors"
)

// decodeDocument parses a plugin document into a generic mapping with two
// guarantees the stock decode path cannot give:
//
//   - a key that appears twice at the same mapping level is rejected, never
//     silently overwritten
//   - bare scalars that YAML 1.1 would coerce to booleans (yes/no/on/off)
//     stay literal strings, so feature value names like "on" and "off"
//     survive verbatim
func decodeDocument(data []byte, source string) (map[string]interface{}, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errs.NewPluginValidationError(source, "", fmt.Sprintf("invalid YAML: %v", err))
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, errs.NewPluginValidationError(source, "", "document must contain a mapping at root")
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, errs.NewPluginValidationError(source, "", "document must contain a mapping at root")
	}

	value, err := nodeValue(mapping, source)
	if err != nil {
		return nil, err
	}
	return value.(map[string]interface{}), nil
}

// nodeValue converts a yaml.Node tree into generic Go values, enforcing the
// duplicate-key rule at every mapping level.
func nodeValue(n *yaml.Node, source string) (interface{}, error) {
	switch n.Kind {
	case yaml.MappingNode:
		mapping := make(map[string]interface{}, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if _, dup := mapping[key]; dup {
				return nil, errs.NewPluginValidationError(source, "",
					fmt.Sprintf("duplicate key %q in YAML document", key))
			}
			value, err := nodeValue(n.Content[i+1], source)
			if err != nil {
				return nil, err
			}
			mapping[key] = value
		}
		return mapping, nil

	case yaml.SequenceNode:
		seq := make([]interface{}, 0, len(n.Content))
		for _, item := range n.Content {
			value, err := nodeValue(item, source)
			if err != nil {
				return nil, err
			}
			seq = append(seq, value)
		}
		return seq, nil

	case yaml.ScalarNode:
		return scalarValue(n), nil

	case yaml.AliasNode:
		return nodeValue(n.Alias, source)
	}

	return nil, errs.NewPluginValidationError(source, "", fmt.Sprintf("unsupported YAML node kind %d", n.Kind))
}

// scalarValue resolves a scalar node. Only the literal spellings of true and
// false become booleans; every other bool-tagged scalar keeps its raw text.
func scalarValue(n *yaml.Node) interface{} {
	switch n.Tag {
	case "!!bool":
		switch strings.ToLower(n.Value) {
		case "true":
			return true
		case "false":
			return false
		}
		return n.Value
	case "!!int":
		if i, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
			return i
		}
		return n.Value
	case "!!float":
		if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
			return f
		}
		return n.Value
	case "!!null":
		return nil
	default:
		return n.Value
	}
}
