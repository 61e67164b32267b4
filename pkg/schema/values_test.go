package schema_test

import (
	"testing"

	"github.com/goliatone/go-formflow/pkg/schema"
)

func TestStringify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{float64(12), "12"},
		{12.5, "12.5"},
		{true, "true"},
		{[]any{"a", float64(2)}, "a,2"},
		{schema.Entity{ID: "1", ExternalID: "ext"}, "ext"},
		{map[string]any{"_id": "9", "externalId": "X9"}, "X9"},
	}
	for _, tc := range cases {
		if got := schema.Stringify(tc.in); got != tc.want {
			t.Errorf("Stringify(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsEmpty(t *testing.T) {
	t.Parallel()

	empty := []any{nil, "", "  ", []any{}, []string{}, map[string]any{"_id": "", "name": nil}, schema.Entity{}}
	for _, value := range empty {
		if !schema.IsEmpty(value) {
			t.Errorf("IsEmpty(%#v) = false", value)
		}
	}
	populated := []any{"x", float64(0), false, []any{"a"}, map[string]any{"_id": "1"}, schema.Entity{Name: "n"}}
	for _, value := range populated {
		if schema.IsEmpty(value) {
			t.Errorf("IsEmpty(%#v) = true", value)
		}
	}
}

func TestValuesEqual(t *testing.T) {
	t.Parallel()

	if !schema.ValuesEqual([]string{"a", "b"}, []any{"a", "b"}) {
		t.Fatalf("expected string slices to match any slices")
	}
	if !schema.ValuesEqual(3, float64(3)) {
		t.Fatalf("expected int and float to match")
	}
	if schema.ValuesEqual("a", "b") {
		t.Fatalf("expected different strings to differ")
	}
	entity := schema.Entity{ID: "1", Name: "Goa", ExternalID: "G"}
	if !schema.ValuesEqual(entity, map[string]any{"_id": "1", "name": "Goa", "externalId": "G"}) {
		t.Fatalf("expected entity map to match entity")
	}
}

func TestOptionKey(t *testing.T) {
	t.Parallel()

	if got := schema.OptionKey(schema.Entity{ID: "s1", ExternalID: "S"}); got != "s1" {
		t.Fatalf("OptionKey(entity) = %q", got)
	}
	if got := schema.OptionKey(map[string]any{"externalId": "S"}); got != "S" {
		t.Fatalf("OptionKey(map) = %q", got)
	}
	if got := schema.OptionKey(float64(4)); got != "4" {
		t.Fatalf("OptionKey(number) = %q", got)
	}
}

func TestSchemaClone_IsIndependent(t *testing.T) {
	t.Parallel()

	original := schema.NewSchema()
	original.AddField("Role", &schema.Field{Type: schema.FieldTypeString, Enum: []string{"a"}})
	original.SetRequired("Role", true)

	clone := original.Clone()
	field, _ := clone.Field("Role")
	field.Enum[0] = "changed"
	clone.SetRequired("Role", false)
	clone.AddField("extra", nil)

	src, _ := original.Field("Role")
	if src.Enum[0] != "a" {
		t.Fatalf("clone shares enum storage")
	}
	if !original.IsRequired("Role") || original.Has("extra") {
		t.Fatalf("clone mutated original: %+v", original)
	}
}
