package schema

import (
	"sort"
	"strings"
)

// FieldType is the simplified enum for form-friendly field kinds.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeArray   FieldType = "array"
	FieldTypeObject  FieldType = "object"
)

// CallType tells the option fetcher when a field's remote enumeration should
// be resolved.
type CallType string

const (
	// CallTypeInitial fields are fetched once when the schema loads.
	CallTypeInitial CallType = "initial"
	// CallTypeDependent fields are re-fetched whenever their controlling
	// field changes value.
	CallTypeDependent CallType = "dependent"
)

// Widget names understood by the form renderers.
const (
	WidgetHidden       = "hidden"
	WidgetText         = "CustomTextFieldWidget"
	WidgetEmail        = "CustomEmailWidget"
	WidgetSingleSelect = "CustomSingleSelectWidget"
	WidgetMultiSelect  = "CustomMultiSelectWidget"
	WidgetDate         = "CustomDateWidget"
	WidgetRadio        = "CustomRadioWidget"
	WidgetCheckbox     = "CustomCheckboxWidget"
	WidgetUdise        = "UdiaseWithButton"
	WidgetSearch       = "SearchTextFieldWidget"
)

// PlaceholderOption is the singleton enumeration used when a remote option
// source cannot be resolved.
const PlaceholderOption = "Select"

// Schema is the RJSF-style form schema: a flat set of field definitions keyed
// by name plus the root required list.
type Schema struct {
	Title       string            `json:"title,omitempty" yaml:"title,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string            `json:"type,omitempty" yaml:"type,omitempty"`
	Required    []string          `json:"required,omitempty" yaml:"required,omitempty"`
	Properties  map[string]*Field `json:"properties" yaml:"properties"`
	Meta        map[string]any    `json:"meta,omitempty" yaml:"meta,omitempty"`

	// Order keeps the document order of Properties. Names missing from Order
	// are appended alphabetically by Names.
	Order []string `json:"-" yaml:"-"`
}

// Field describes a single input. Required is not stored here; see
// Schema.IsRequired.
type Field struct {
	Name          string         `json:"-" yaml:"-"`
	Type          FieldType      `json:"type,omitempty" yaml:"type,omitempty"`
	Title         string         `json:"title,omitempty" yaml:"title,omitempty"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Format        string         `json:"format,omitempty" yaml:"format,omitempty"`
	Pattern       string         `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	MinLength     *int           `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength     *int           `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	IsMultiSelect bool           `json:"isMultiSelect,omitempty" yaml:"isMultiSelect,omitempty"`
	MaxSelections int            `json:"maxSelections,omitempty" yaml:"maxSelections,omitempty"`
	Enum          []string       `json:"enum,omitempty" yaml:"enum,omitempty"`
	EnumNames     []string       `json:"enumNames,omitempty" yaml:"enumNames,omitempty"`
	Items         *Items         `json:"items,omitempty" yaml:"items,omitempty"`
	API           *APIDescriptor `json:"api,omitempty" yaml:"api,omitempty"`
	CoreField     *int           `json:"coreField,omitempty" yaml:"coreField,omitempty"`
	FieldID       string         `json:"fieldId,omitempty" yaml:"fieldId,omitempty"`
	PolicyMsg     string         `json:"policyMsg,omitempty" yaml:"policyMsg,omitempty"`
	Extra         *Extra         `json:"extra,omitempty" yaml:"extra,omitempty"`
	ReadOnly      bool           `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
	Default       any            `json:"default,omitempty" yaml:"default,omitempty"`
}

// Items carries the option lists of multi-select fields.
type Items struct {
	Type      FieldType `json:"type,omitempty" yaml:"type,omitempty"`
	Enum      []string  `json:"enum,omitempty" yaml:"enum,omitempty"`
	EnumNames []string  `json:"enumNames,omitempty" yaml:"enumNames,omitempty"`
}

// Extra holds tenant-specific behaviour hints attached to a field.
type Extra struct {
	// SkipAndHide maps one of the field's own values to the names of other
	// fields that must be hidden while that value is selected.
	SkipAndHide map[string][]string `json:"skipAndHide,omitempty" yaml:"skipAndHide,omitempty"`
}

// APIDescriptor declares a remote data source for a field's options.
type APIDescriptor struct {
	Method    string        `json:"method,omitempty" yaml:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH get post put patch"`
	URL       string        `json:"url" yaml:"url" validate:"required,apiurl"`
	Payload   Template      `json:"payload,omitempty" yaml:"payload,omitempty"`
	Header    Template      `json:"header,omitempty" yaml:"header,omitempty"`
	Options   OptionMapping `json:"options" yaml:"options"`
	CallType  CallType      `json:"callType" yaml:"callType" validate:"required,oneof=initial dependent"`
	Dependent string        `json:"dependent,omitempty" yaml:"dependent,omitempty"`
}

// OptionMapping projects response records onto enum values and labels.
type OptionMapping struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
	// OptionObj is a dotted path into the response body; empty means the
	// whole body is the record list.
	OptionObj string `json:"optionObj" yaml:"optionObj"`
}

// NewSchema returns an empty object schema.
func NewSchema() *Schema {
	return &Schema{Type: "object", Properties: make(map[string]*Field)}
}

// Field returns the named field definition.
func (s *Schema) Field(name string) (*Field, bool) {
	if s == nil || s.Properties == nil {
		return nil, false
	}
	field, ok := s.Properties[name]
	if !ok || field == nil {
		return nil, false
	}
	return field, true
}

// Has reports whether the schema defines the named field.
func (s *Schema) Has(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// AddField appends a field, keeping Order in sync.
func (s *Schema) AddField(name string, field *Field) {
	if s.Properties == nil {
		s.Properties = make(map[string]*Field)
	}
	if field == nil {
		field = &Field{}
	}
	field.Name = name
	if _, exists := s.Properties[name]; !exists {
		s.Order = append(s.Order, name)
	}
	s.Properties[name] = field
}

// RemoveField deletes a field and its required entry.
func (s *Schema) RemoveField(name string) {
	if s == nil || s.Properties == nil {
		return
	}
	delete(s.Properties, name)
	s.Order = removeString(s.Order, name)
	s.Required = removeString(s.Required, name)
}

// IsRequired reports whether name is in the root required list.
func (s *Schema) IsRequired(name string) bool {
	if s == nil {
		return false
	}
	for _, key := range s.Required {
		if key == name {
			return true
		}
	}
	return false
}

// SetRequired adds or removes name from the required list without changing
// the relative order of other entries.
func (s *Schema) SetRequired(name string, required bool) {
	if required {
		if !s.IsRequired(name) {
			s.Required = append(s.Required, name)
		}
		return
	}
	s.Required = removeString(s.Required, name)
}

// Names returns the field names in document order.
func (s *Schema) Names() []string {
	if s == nil || len(s.Properties) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.Properties))
	seen := make(map[string]struct{}, len(s.Properties))
	for _, name := range s.Order {
		if _, ok := s.Properties[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	var rest []string
	for name := range s.Properties {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Label is the human-readable name used in messages.
func (f *Field) Label() string {
	if f == nil {
		return ""
	}
	if title := strings.TrimSpace(f.Title); title != "" {
		return title
	}
	return f.Name
}

// IsCore reports whether the field is a platform-native attribute. Fields
// without a coreField flag are treated as core.
func (f *Field) IsCore() bool {
	if f == nil || f.CoreField == nil {
		return true
	}
	return *f.CoreField != 0
}

// Options returns the enumeration that applies to the field shape: items for
// multi-select fields, the field's own enum otherwise.
func (f *Field) Options() (values, labels []string) {
	if f == nil {
		return nil, nil
	}
	if f.IsMultiSelect && f.Items != nil {
		return f.Items.Enum, f.Items.EnumNames
	}
	return f.Enum, f.EnumNames
}

// SetOptions stores an enumeration on the slot matching the field shape.
func (f *Field) SetOptions(values, labels []string) {
	if f.IsMultiSelect {
		if f.Items == nil {
			f.Items = &Items{Type: FieldTypeString}
		}
		if f.Items.Type == "" {
			f.Items.Type = FieldTypeString
		}
		f.Items.Enum = values
		f.Items.EnumNames = labels
		return
	}
	f.Enum = values
	f.EnumNames = labels
}

// SkipAndHide returns the skip map or nil.
func (f *Field) SkipAndHide() map[string][]string {
	if f == nil || f.Extra == nil {
		return nil
	}
	return f.Extra.SkipAndHide
}

// UIField carries presentation hints for a single field.
type UIField struct {
	Widget      string         `json:"ui:widget,omitempty" yaml:"ui:widget,omitempty"`
	Options     map[string]any `json:"ui:options,omitempty" yaml:"ui:options,omitempty"`
	Disabled    bool           `json:"ui:disabled,omitempty" yaml:"ui:disabled,omitempty"`
	Readonly    bool           `json:"ui:readonly,omitempty" yaml:"ui:readonly,omitempty"`
	Placeholder string         `json:"ui:placeholder,omitempty" yaml:"ui:placeholder,omitempty"`

	// OriginalWidget remembers the widget a field had before it was hidden.
	OriginalWidget string `json:"originalWidget,omitempty" yaml:"originalWidget,omitempty"`
	// HiddenBy names the rules currently hiding the field.
	HiddenBy []string `json:"ui:hiddenBy,omitempty" yaml:"ui:hiddenBy,omitempty"`
}

// UISchema maps field names to presentation hints.
type UISchema map[string]UIField

// Hidden reports whether the named field is currently rendered hidden.
func (ui UISchema) Hidden(name string) bool {
	if ui == nil {
		return false
	}
	field, ok := ui[name]
	if !ok {
		return false
	}
	return field.Widget == WidgetHidden
}

// HiddenFields lists hidden field names, sorted.
func (ui UISchema) HiddenFields() []string {
	var out []string
	for name, field := range ui {
		if field.Widget == WidgetHidden {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Entity is the composite value used by location fields
// (State/District/Block/Cluster/School).
type Entity struct {
	ID         string `json:"_id" yaml:"_id"`
	Name       string `json:"name" yaml:"name"`
	ExternalID string `json:"externalId" yaml:"externalId"`
}

// IsZero reports whether every property is empty.
func (e Entity) IsZero() bool {
	return strings.TrimSpace(e.ID) == "" && strings.TrimSpace(e.Name) == "" && strings.TrimSpace(e.ExternalID) == ""
}

// FormData is the flat mapping from field name to current value.
type FormData map[string]any

func removeString(list []string, target string) []string {
	if len(list) == 0 {
		return list
	}
	out := list[:0:0]
	for _, item := range list {
		if item != target {
			out = append(out, item)
		}
	}
	return out
}
