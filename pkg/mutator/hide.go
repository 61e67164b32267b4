package mutator

import (
	"strings"

	"github.com/goliatone/go-formflow/pkg/schema"
)

// SkipRulePrefix prefixes the hiding rule name used for extra.skipAndHide,
// one rule per controlling field.
const SkipRulePrefix = "skip:"

// Hide marks name hidden on behalf of rule, remembering the widget to restore.
// Hiding an already hidden field only records the extra rule.
func Hide(ui schema.UISchema, name, rule string) {
	entry := ui[name]
	if containsString(entry.HiddenBy, rule) {
		return
	}
	if len(entry.HiddenBy) == 0 {
		entry.OriginalWidget = entry.Widget
	}
	entry.HiddenBy = append(entry.HiddenBy, rule)
	entry.Widget = schema.WidgetHidden
	ui[name] = entry
}

// Release withdraws rule from name. The original widget comes back once no
// rule hides the field; fields hidden by the ui schema author stay hidden.
func Release(ui schema.UISchema, name, rule string) {
	entry, ok := ui[name]
	if !ok || !containsString(entry.HiddenBy, rule) {
		return
	}
	entry.HiddenBy = removeString(entry.HiddenBy, rule)
	if len(entry.HiddenBy) == 0 {
		entry.HiddenBy = nil
		entry.Widget = entry.OriginalWidget
		entry.OriginalWidget = ""
	}
	ui[name] = entry
}

// Reveal withdraws rule and, when nothing else hides name, shows it with its
// original widget or fallback.
func Reveal(ui schema.UISchema, name, rule, fallback string) {
	Release(ui, name, rule)
	entry := ui[name]
	if len(entry.HiddenBy) > 0 {
		return
	}
	if entry.Widget == "" || entry.Widget == schema.WidgetHidden {
		entry.Widget = fallback
	}
	ui[name] = entry
}

// Hidden reports whether name is rendered hidden.
func Hidden(ui schema.UISchema, name string) bool {
	return ui.Hidden(name)
}

// HiddenFields lists hidden field names, sorted.
func HiddenFields(ui schema.UISchema) []string {
	return ui.HiddenFields()
}

// SkipHidden lists the fields hidden by skip rules. Their values are dropped
// from submissions.
func SkipHidden(ui schema.UISchema) []string {
	var out []string
	for _, name := range ui.HiddenFields() {
		for _, rule := range ui[name].HiddenBy {
			if strings.HasPrefix(rule, SkipRulePrefix) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// MissingRequired lists required, visible fields without a value, in schema
// order.
func MissingRequired(s *schema.Schema, ui schema.UISchema, data schema.FormData) []string {
	var out []string
	for _, name := range s.Names() {
		if !s.IsRequired(name) || ui.Hidden(name) {
			continue
		}
		if schema.IsEmpty(data[name]) {
			out = append(out, name)
		}
	}
	return out
}

// DefaultWidget picks the widget used when a field without a remembered
// widget is revealed.
func DefaultWidget(field *schema.Field) string {
	switch {
	case field == nil:
		return schema.WidgetText
	case field.IsMultiSelect:
		return schema.WidgetMultiSelect
	case len(field.Enum) > 0 || field.API != nil:
		return schema.WidgetSingleSelect
	case field.Format == "date":
		return schema.WidgetDate
	case field.Format == "email":
		return schema.WidgetEmail
	default:
		return schema.WidgetText
	}
}

func containsString(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}

func removeString(list []string, target string) []string {
	out := list[:0:0]
	for _, item := range list {
		if item != target {
			out = append(out, item)
		}
	}
	return out
}
