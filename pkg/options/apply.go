package options

import (
	"github.com/goliatone/go-formflow/pkg/schema"
)

// ApplyUpdates merges updates into a copy of s. Updates for unknown fields
// are ignored.
func ApplyUpdates(s *schema.Schema, updates []Update) *schema.Schema {
	out := s.Clone()
	if out == nil {
		return nil
	}
	for _, update := range updates {
		field, ok := out.Field(update.Field)
		if !ok {
			continue
		}
		field.SetOptions(copyStrings(update.Values), copyStrings(update.Labels))
	}
	return out
}

// Stale returns the names among updates whose current value in data is not
// part of the new enumeration. Empty values are never stale, and failed
// updates never invalidate a value.
func Stale(data schema.FormData, updates []Update) []string {
	var out []string
	for _, update := range updates {
		if update.Failed() {
			continue
		}
		value, ok := data[update.Field]
		if !ok || schema.IsEmpty(value) {
			continue
		}
		allowed := make(map[string]struct{}, len(update.Values))
		for _, v := range update.Values {
			allowed[v] = struct{}{}
		}
		stale := false
		for _, current := range currentKeys(value) {
			if _, ok := allowed[current]; !ok {
				stale = true
				break
			}
		}
		if stale {
			out = append(out, update.Field)
		}
	}
	return out
}

func currentKeys(value any) []string {
	if list, ok := asList(value); ok {
		keys := make([]string, 0, len(list))
		for _, item := range list {
			keys = append(keys, schema.OptionKey(item))
		}
		return keys
	}
	return []string{schema.OptionKey(value)}
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
