package openapi

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formflow/pkg/schema"
)

// ExtensionKey is the schema extension holding form hints.
const ExtensionKey = "x-formflow"

// bodyHints is the x-formflow extension of a request body schema.
type bodyHints struct {
	Order []string       `json:"order,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// fieldHints is the x-formflow extension of a property schema.
type fieldHints struct {
	API           *schema.APIDescriptor `json:"api,omitempty"`
	CoreField     *int                  `json:"coreField,omitempty"`
	FieldID       string                `json:"fieldId,omitempty"`
	EnumNames     []string              `json:"enumNames,omitempty"`
	MaxSelections int                   `json:"maxSelections,omitempty"`
	PolicyMsg     string                `json:"policyMsg,omitempty"`
	SkipAndHide   map[string][]string   `json:"skipAndHide,omitempty"`
	Widget        string                `json:"widget,omitempty"`
	Placeholder   string                `json:"placeholder,omitempty"`
}

func convertBody(body *openapi3.Schema) (schema.Bundle, error) {
	var hints bodyHints
	if err := decodeExtension(body.Extensions, &hints); err != nil {
		return schema.Bundle{}, err
	}

	out := schema.NewSchema()
	out.Title = body.Title
	out.Description = body.Description
	out.Meta = hints.Meta
	ui := schema.UISchema{}

	properties, required := flatten(body)
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref := properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		field, uiField, err := convertField(ref.Value)
		if err != nil {
			return schema.Bundle{}, fmt.Errorf("property %q: %w", name, err)
		}
		field.Name = name
		out.Properties[name] = field
		if uiField.Widget != "" || uiField.Placeholder != "" || uiField.Readonly {
			ui[name] = uiField
		}
	}
	for _, name := range required {
		if out.Has(name) {
			out.SetRequired(name, true)
		}
	}
	if len(hints.Order) > 0 {
		out.Order = append([]string(nil), hints.Order...)
	} else {
		out.Order = append([]string(nil), out.Required...)
	}
	return schema.Bundle{Schema: out, UISchema: ui}, nil
}

// flatten merges allOf members into one property set. Later members
// override earlier ones.
func flatten(s *openapi3.Schema) (openapi3.Schemas, []string) {
	properties := openapi3.Schemas{}
	var required []string
	var walk func(*openapi3.Schema)
	walk = func(node *openapi3.Schema) {
		for name, ref := range node.Properties {
			properties[name] = ref
		}
		required = append(required, node.Required...)
		for _, member := range node.AllOf {
			if member != nil && member.Value != nil {
				walk(member.Value)
			}
		}
	}
	walk(s)
	return properties, required
}

func convertField(src *openapi3.Schema) (*schema.Field, schema.UIField, error) {
	var hints fieldHints
	if err := decodeExtension(src.Extensions, &hints); err != nil {
		return nil, schema.UIField{}, err
	}

	field := &schema.Field{
		Type:        schema.FieldType(firstType(src.Type)),
		Title:       src.Title,
		Description: src.Description,
		Format:      src.Format,
		Pattern:     src.Pattern,
		Default:     src.Default,
		ReadOnly:    src.ReadOnly,
		API:         hints.API,
		CoreField:   hints.CoreField,
		FieldID:     hints.FieldID,
		PolicyMsg:   hints.PolicyMsg,
	}
	if src.MinLength > 0 {
		n := int(src.MinLength)
		field.MinLength = &n
	}
	if src.MaxLength != nil {
		n := int(*src.MaxLength)
		field.MaxLength = &n
	}
	if len(hints.SkipAndHide) > 0 {
		field.Extra = &schema.Extra{SkipAndHide: hints.SkipAndHide}
	}

	if field.Type == schema.FieldTypeArray {
		field.IsMultiSelect = true
		field.MaxSelections = hints.MaxSelections
		if field.MaxSelections == 0 && src.MaxItems != nil {
			field.MaxSelections = int(*src.MaxItems)
		}
		items := &schema.Items{Type: schema.FieldTypeString}
		if src.Items != nil && src.Items.Value != nil {
			if t := firstType(src.Items.Value.Type); t != "" {
				items.Type = schema.FieldType(t)
			}
			items.Enum = enumStrings(src.Items.Value.Enum)
			items.EnumNames = hints.EnumNames
		}
		field.Items = items
	} else {
		field.Enum = enumStrings(src.Enum)
		field.EnumNames = hints.EnumNames
	}

	ui := schema.UIField{Widget: hints.Widget, Placeholder: hints.Placeholder, Readonly: src.ReadOnly}
	if ui.Widget == "" {
		ui.Widget = defaultWidget(field)
	}
	return field, ui, nil
}

func defaultWidget(field *schema.Field) string {
	values, _ := field.Options()
	switch {
	case field.IsMultiSelect:
		return schema.WidgetMultiSelect
	case len(values) > 0 || field.API != nil:
		return schema.WidgetSingleSelect
	case field.Format == "email":
		return schema.WidgetEmail
	case field.Format == "date":
		return schema.WidgetDate
	}
	return ""
}

func firstType(types *openapi3.Types) string {
	if types == nil {
		return ""
	}
	if values := types.Slice(); len(values) > 0 {
		return values[0]
	}
	return ""
}

func enumStrings(values []any) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, value := range values {
		out[i] = schema.Stringify(value)
	}
	return out
}

// decodeExtension decodes the x-formflow extension into target. Loaders hand
// extension values over either decoded or as raw JSON.
func decodeExtension(extensions map[string]any, target any) error {
	value, ok := extensions[ExtensionKey]
	if !ok || value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", ExtensionKey, err)
		}
		raw = encoded
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode %s: %w", ExtensionKey, err)
	}
	return nil
}
