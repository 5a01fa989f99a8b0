package config

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

type kind int

const (
	kindNull kind = iota
	kindBool
	kindNumber
	kindString
	kindObject
	kindArray
)

// node is a decoded config value. Objects keep their keys in document
// order, which decides the definition table order.
type node struct {
	kind   kind
	text   string
	fields []field
	items  []*node
}

type field struct {
	key   string
	value *node
}

func (n *node) get(key string) *node {
	if n == nil || n.kind != kindObject {
		return nil
	}
	for _, f := range n.fields {
		if f.key == key {
			return f.value
		}
	}
	return nil
}

func (n *node) isScalar() bool {
	return n.kind == kindBool || n.kind == kindNumber || n.kind == kindString
}

// strings accepts a single string or a list of strings.
func (n *node) strings() []string {
	switch {
	case n == nil:
		return nil
	case n.kind == kindString:
		return []string{n.text}
	case n.kind == kindArray:
		out := make([]string, 0, len(n.items))
		for _, item := range n.items {
			if item.kind == kindString {
				out = append(out, item.text)
			}
		}
		return out
	}
	return nil
}

// plain converts the node to the generic shape used by the schema
// validator and mapstructure.
func (n *node) plain() any {
	switch n.kind {
	case kindBool:
		return n.text == "true"
	case kindNumber:
		if f, err := strconv.ParseFloat(n.text, 64); err == nil {
			return f
		}
		return n.text
	case kindString:
		return n.text
	case kindObject:
		m := make(map[string]any, len(n.fields))
		for _, f := range n.fields {
			m[f.key] = f.value.plain()
		}
		return m
	case kindArray:
		out := make([]any, 0, len(n.items))
		for _, item := range n.items {
			out = append(out, item.plain())
		}
		return out
	}
	return nil
}

// parseJSON decodes JSON that may contain comments and trailing commas.
func parseJSON(data []byte) (*node, error) {
	stripped := jsonc.ToJSON(data)
	if len(bytes.TrimSpace(stripped)) == 0 {
		return &node{kind: kindObject}, nil
	}
	if !gjson.ValidBytes(stripped) {
		return nil, fmt.Errorf("invalid JSON")
	}
	return fromGJSON(gjson.ParseBytes(stripped)), nil
}

func fromGJSON(r gjson.Result) *node {
	switch r.Type {
	case gjson.False:
		return &node{kind: kindBool, text: "false"}
	case gjson.True:
		return &node{kind: kindBool, text: "true"}
	case gjson.Number:
		return &node{kind: kindNumber, text: r.Raw}
	case gjson.String:
		return &node{kind: kindString, text: r.Str}
	case gjson.JSON:
		if r.IsArray() {
			n := &node{kind: kindArray}
			r.ForEach(func(_, value gjson.Result) bool {
				n.items = append(n.items, fromGJSON(value))
				return true
			})
			return n
		}
		n := &node{kind: kindObject}
		r.ForEach(func(key, value gjson.Result) bool {
			n.fields = append(n.fields, field{key: key.Str, value: fromGJSON(value)})
			return true
		})
		return n
	}
	return &node{kind: kindNull}
}

func parseYAML(data []byte) (*node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || (doc.Kind == yaml.DocumentNode && len(doc.Content) == 0) {
		return &node{kind: kindObject}, nil
	}
	root := &doc
	if doc.Kind == yaml.DocumentNode {
		root = doc.Content[0]
	}
	return fromYAML(root)
}

func fromYAML(y *yaml.Node) (*node, error) {
	switch y.Kind {
	case yaml.AliasNode:
		return fromYAML(y.Alias)
	case yaml.MappingNode:
		n := &node{kind: kindObject}
		for i := 0; i+1 < len(y.Content); i += 2 {
			value, err := fromYAML(y.Content[i+1])
			if err != nil {
				return nil, err
			}
			n.fields = append(n.fields, field{key: y.Content[i].Value, value: value})
		}
		return n, nil
	case yaml.SequenceNode:
		n := &node{kind: kindArray}
		for _, c := range y.Content {
			item, err := fromYAML(c)
			if err != nil {
				return nil, err
			}
			n.items = append(n.items, item)
		}
		return n, nil
	case yaml.ScalarNode:
		switch y.ShortTag() {
		case "!!null":
			return &node{kind: kindNull}, nil
		case "!!bool":
			var b bool
			if err := y.Decode(&b); err != nil {
				return nil, fmt.Errorf("line %d: %w", y.Line, err)
			}
			return &node{kind: kindBool, text: strconv.FormatBool(b)}, nil
		case "!!int", "!!float":
			return &node{kind: kindNumber, text: y.Value}, nil
		default:
			return &node{kind: kindString, text: y.Value}, nil
		}
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", y.Line)
}
