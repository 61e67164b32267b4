package schema

import (
	"bytes"
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"
)

// PlaceholderToken is the wire sentinel marking a value to be substituted
// from context when a request is built.
const PlaceholderToken = "**"

// Node is one element of a request template tree.
type Node interface {
	node()
}

// Literal is a fixed value copied verbatim into requests.
type Literal struct {
	Value any
}

// Placeholder marks a slot resolved at request time.
type Placeholder struct{}

// Object is a keyed group of template nodes.
type Object map[string]Node

// List is an ordered group of template nodes.
type List []Node

func (Literal) node()     {}
func (Placeholder) node() {}
func (Object) node()      {}
func (List) node()        {}

// PlaceholderFunc returns the value substituted for a placeholder found at
// path (object keys and list indexes rendered as strings).
type PlaceholderFunc func(path []string) any

// Template wraps a template tree so it can be decoded from and encoded to the
// sentinel wire form.
type Template struct {
	Root Node
}

// ParseTemplate converts a decoded JSON/YAML value into a template tree.
func ParseTemplate(raw any) Node {
	switch value := raw.(type) {
	case nil:
		return nil
	case string:
		if value == PlaceholderToken {
			return Placeholder{}
		}
		return Literal{Value: value}
	case map[string]any:
		obj := make(Object, len(value))
		for key, child := range value {
			obj[key] = ParseTemplate(child)
		}
		return obj
	case []any:
		list := make(List, 0, len(value))
		for _, child := range value {
			list = append(list, ParseTemplate(child))
		}
		return list
	default:
		return Literal{Value: value}
	}
}

// IsZero reports whether the template is empty.
func (t Template) IsZero() bool {
	return t.Root == nil
}

// Keys returns the sorted top-level keys when the root is an object.
func (t Template) Keys() []string {
	obj, ok := t.Root.(Object)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// HasPlaceholder reports whether any node in the tree is a placeholder.
func (t Template) HasPlaceholder() bool {
	return hasPlaceholder(t.Root)
}

// Resolve evaluates the tree into plain values, calling fn for every
// placeholder. A nil fn resolves placeholders to nil.
func (t Template) Resolve(fn PlaceholderFunc) any {
	return resolveNode(t.Root, nil, fn)
}

// Raw returns the tree in wire form, placeholders rendered as the sentinel.
func (t Template) Raw() any {
	return resolveNode(t.Root, nil, func([]string) any { return PlaceholderToken })
}

// MarshalJSON implements json.Marshaler.
func (t Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Raw())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Template) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		t.Root = nil
		return nil
	}
	var raw any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	t.Root = ParseTemplate(raw)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t Template) MarshalYAML() (any, error) {
	return t.Raw(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Template) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	t.Root = ParseTemplate(normalizeYAML(raw))
	return nil
}

func hasPlaceholder(n Node) bool {
	switch node := n.(type) {
	case Placeholder:
		return true
	case Object:
		for _, child := range node {
			if hasPlaceholder(child) {
				return true
			}
		}
	case List:
		for _, child := range node {
			if hasPlaceholder(child) {
				return true
			}
		}
	}
	return false
}

func resolveNode(n Node, path []string, fn PlaceholderFunc) any {
	switch node := n.(type) {
	case nil:
		return nil
	case Literal:
		return node.Value
	case Placeholder:
		if fn == nil {
			return nil
		}
		return fn(append([]string(nil), path...))
	case Object:
		out := make(map[string]any, len(node))
		for key, child := range node {
			out[key] = resolveNode(child, append(path, key), fn)
		}
		return out
	case List:
		out := make([]any, 0, len(node))
		for idx, child := range node {
			out = append(out, resolveNode(child, append(path, itoa(idx)), fn))
		}
		return out
	default:
		return nil
	}
}

// normalizeYAML rewrites map[any]any values (produced for non-string keys)
// into map[string]any so templates behave the same for YAML and JSON input.
func normalizeYAML(raw any) any {
	switch value := raw.(type) {
	case map[string]any:
		for key, child := range value {
			value[key] = normalizeYAML(child)
		}
		return value
	case map[any]any:
		out := make(map[string]any, len(value))
		for key, child := range value {
			out[Stringify(key)] = normalizeYAML(child)
		}
		return out
	case []any:
		for idx, child := range value {
			value[idx] = normalizeYAML(child)
		}
		return value
	default:
		return raw
	}
}
