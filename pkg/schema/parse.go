package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bundle pairs a schema with its ui schema, the shape used by form documents
// on disk and by the preview service.
type Bundle struct {
	Schema   *Schema  `json:"schema" yaml:"schema"`
	UISchema UISchema `json:"uiSchema,omitempty" yaml:"uiSchema,omitempty"`
}

// Parse decodes a schema from YAML or JSON bytes, keeping property order.
func Parse(data []byte) (*Schema, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("schema: document is empty")
	}
	var out Schema
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	if out.Properties == nil {
		out.Properties = make(map[string]*Field)
	}
	return &out, nil
}

// ParseUISchema decodes a ui schema document. Root keys prefixed with "ui:"
// (for example "ui:order") are not field entries and are skipped.
func ParseUISchema(data []byte) (UISchema, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return UISchema{}, nil
	}
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: decode ui schema: %w", err)
	}
	out := make(UISchema, len(raw))
	for name, node := range raw {
		if strings.HasPrefix(name, "ui:") {
			continue
		}
		var field UIField
		if err := node.Decode(&field); err != nil {
			return nil, fmt.Errorf("schema: decode ui schema %q: %w", name, err)
		}
		out[name] = field
	}
	return out, nil
}

// ParseBundle decodes a {schema, uiSchema} document. A document without a
// "schema" key is decoded as a bare schema.
func ParseBundle(data []byte) (Bundle, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Bundle{}, errors.New("schema: document is empty")
	}
	var probe map[string]yaml.Node
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return Bundle{}, fmt.Errorf("schema: decode bundle: %w", err)
	}
	schemaNode, ok := probe["schema"]
	if !ok {
		s, err := Parse(data)
		if err != nil {
			return Bundle{}, err
		}
		return Bundle{Schema: s, UISchema: UISchema{}}, nil
	}

	var s Schema
	if err := schemaNode.Decode(&s); err != nil {
		return Bundle{}, fmt.Errorf("schema: decode bundle schema: %w", err)
	}
	bundle := Bundle{Schema: &s, UISchema: UISchema{}}
	if uiNode, ok := probe["uiSchema"]; ok {
		encoded, err := yaml.Marshal(&uiNode)
		if err != nil {
			return Bundle{}, fmt.Errorf("schema: decode bundle ui schema: %w", err)
		}
		ui, err := ParseUISchema(encoded)
		if err != nil {
			return Bundle{}, err
		}
		bundle.UISchema = ui
	}
	return bundle, nil
}

// ParseDocument decodes a loaded document as a bundle.
func ParseDocument(doc Document) (Bundle, error) {
	bundle, err := ParseBundle(doc.Raw())
	if err != nil {
		return Bundle{}, fmt.Errorf("%w (%s)", err, doc.Location())
	}
	return bundle, nil
}

type plainSchema Schema

// UnmarshalYAML implements yaml.Unmarshaler, recording property order and
// binding field names.
func (s *Schema) UnmarshalYAML(value *yaml.Node) error {
	node := value
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	var decoded plainSchema
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	*s = Schema(decoded)
	s.Order = yamlMappingKeys(node, "properties")
	s.bindNames()
	return nil
}

// UnmarshalJSON implements json.Unmarshaler, recording property order and
// binding field names.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var decoded plainSchema
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*s = Schema(decoded)
	order, err := jsonPropertyOrder(data)
	if err != nil {
		return err
	}
	s.Order = order
	s.bindNames()
	return nil
}

func (s *Schema) bindNames() {
	for name, field := range s.Properties {
		if field == nil {
			field = &Field{}
			s.Properties[name] = field
		}
		field.Name = name
	}
}

func yamlMappingKeys(node *yaml.Node, key string) []string {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != key {
			continue
		}
		target := node.Content[i+1]
		if target.Kind != yaml.MappingNode {
			return nil
		}
		keys := make([]string, 0, len(target.Content)/2)
		for j := 0; j+1 < len(target.Content); j += 2 {
			keys = append(keys, target.Content[j].Value)
		}
		return keys
	}
	return nil
}

func jsonPropertyOrder(data []byte) ([]string, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	raw, ok := root["properties"]
	if !ok {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("schema: unexpected property token %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	return keys, nil
}
