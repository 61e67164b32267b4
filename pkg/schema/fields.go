package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FieldDef is one entry of the schema service's field list.
type FieldDef struct {
	Name          string         `json:"name" yaml:"name"`
	Label         string         `json:"label" yaml:"label"`
	Type          string         `json:"type" yaml:"type"`
	IsRequired    bool           `json:"isRequired" yaml:"isRequired"`
	Pattern       string         `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	MinLength     *int           `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength     *int           `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	IsMultiSelect bool           `json:"isMultiSelect,omitempty" yaml:"isMultiSelect,omitempty"`
	MaxSelections int            `json:"maxSelections,omitempty" yaml:"maxSelections,omitempty"`
	Options       []FieldOption  `json:"options,omitempty" yaml:"options,omitempty"`
	API           *APIDescriptor `json:"api,omitempty" yaml:"api,omitempty"`
	CoreField     *int           `json:"coreField,omitempty" yaml:"coreField,omitempty"`
	FieldID       string         `json:"fieldId,omitempty" yaml:"fieldId,omitempty"`
	PolicyMsg     string         `json:"policyMsg,omitempty" yaml:"policyMsg,omitempty"`
	Extra         *Extra         `json:"extra,omitempty" yaml:"extra,omitempty"`
	Placeholder   string         `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	ReadOnly      bool           `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
	Order         int            `json:"order,omitempty" yaml:"order,omitempty"`
}

// FieldOption is a static option of a FieldDef.
type FieldOption struct {
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

// Conversion is the result of FromFieldDefs.
type Conversion struct {
	Schema *Schema
	UI     UISchema
	// FieldIDs maps custom (coreField == 0) field names to their attribute
	// ids, used when building customFields in submissions.
	FieldIDs map[string]string
}

// FromFieldDefs converts a schema-service field list into a schema and ui
// schema. Fields keep their list order unless an explicit order is set.
func FromFieldDefs(defs []FieldDef) (Conversion, error) {
	ordered := append([]FieldDef(nil), defs...)
	rank := func(def FieldDef) int {
		if def.Order <= 0 {
			return int(^uint(0) >> 1)
		}
		return def.Order
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank(ordered[i]) < rank(ordered[j])
	})

	out := Conversion{Schema: NewSchema(), UI: UISchema{}, FieldIDs: map[string]string{}}
	for idx, def := range ordered {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return Conversion{}, fmt.Errorf("schema: field at index %d has no name", idx)
		}
		if out.Schema.Has(name) {
			return Conversion{}, fmt.Errorf("schema: duplicate field %q", name)
		}
		field, ui := convertFieldDef(def)
		out.Schema.AddField(name, field)
		out.UI[name] = ui
		if def.IsRequired {
			out.Schema.SetRequired(name, true)
		}
		if !field.IsCore() && def.FieldID != "" {
			out.FieldIDs[name] = def.FieldID
		}
	}
	if len(out.Schema.Properties) == 0 {
		return Conversion{}, errors.New("schema: field list is empty")
	}
	return out, nil
}

func convertFieldDef(def FieldDef) (*Field, UIField) {
	field := &Field{
		Type:          FieldTypeString,
		Title:         def.Label,
		Pattern:       def.Pattern,
		MinLength:     cloneInt(def.MinLength),
		MaxLength:     cloneInt(def.MaxLength),
		IsMultiSelect: def.IsMultiSelect,
		MaxSelections: def.MaxSelections,
		API:           def.API,
		CoreField:     cloneInt(def.CoreField),
		FieldID:       def.FieldID,
		PolicyMsg:     def.PolicyMsg,
		Extra:         def.Extra,
		ReadOnly:      def.ReadOnly,
	}
	ui := UIField{Placeholder: def.Placeholder, Readonly: def.ReadOnly}

	kind := strings.ToLower(strings.TrimSpace(def.Type))
	switch kind {
	case "multiselect", "multi_select":
		field.IsMultiSelect = true
	case "number", "numeric":
		field.Type = FieldTypeNumber
	case "checkbox", "boolean":
		field.Type = FieldTypeBoolean
	}

	switch {
	case strings.EqualFold(def.Name, "udise"):
		ui.Widget = WidgetUdise
	case kind == "hidden":
		ui.Widget = WidgetHidden
	case field.IsMultiSelect:
		field.Type = FieldTypeArray
		field.Items = &Items{Type: FieldTypeString}
		ui.Widget = WidgetMultiSelect
	case kind == "email":
		field.Format = "email"
		ui.Widget = WidgetEmail
	case kind == "date":
		field.Format = "date"
		ui.Widget = WidgetDate
	case kind == "radio":
		ui.Widget = WidgetRadio
	case field.Type == FieldTypeBoolean:
		ui.Widget = WidgetCheckbox
	case kind == "select", kind == "drop_down", kind == "dropdown", def.API != nil:
		ui.Widget = WidgetSingleSelect
	default:
		ui.Widget = WidgetText
	}

	if len(def.Options) > 0 {
		values := make([]string, 0, len(def.Options))
		labels := make([]string, 0, len(def.Options))
		for _, opt := range def.Options {
			value := Stringify(opt.Value)
			label := strings.TrimSpace(opt.Label)
			if label == "" {
				label = value
			}
			values = append(values, value)
			labels = append(labels, label)
		}
		field.SetOptions(values, labels)
	}
	return field, ui
}
