package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/testsupport"
)

func TestParseBundle_RegistrationFixture(t *testing.T) {
	t.Parallel()

	s, ui := testsupport.Registration(t)

	wantOrder := []string{
		"firstName", "lastName", "Username", "email", "mobile", "password", "dob",
		"guardian_relation", "guardian_name", "parent_phone", "Role", "Sub-Role",
		"State", "District", "Block", "occupation", "udise",
	}
	if diff := cmp.Diff(wantOrder, s.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	for _, name := range s.Names() {
		field, _ := s.Field(name)
		if field.Name != name {
			t.Fatalf("field %q bound to name %q", name, field.Name)
		}
	}
	if !s.IsRequired("Role") || s.IsRequired("lastName") {
		t.Fatalf("unexpected required list: %v", s.Required)
	}

	subRole, _ := s.Field("Sub-Role")
	if subRole.API == nil || subRole.API.CallType != schema.CallTypeDependent || subRole.API.Dependent != "Role" {
		t.Fatalf("unexpected Sub-Role api: %+v", subRole.API)
	}
	if !subRole.API.Payload.HasPlaceholder() {
		t.Fatalf("expected Sub-Role payload placeholder")
	}
	if got := subRole.API.Options.OptionObj; got != "result.data" {
		t.Fatalf("optionObj = %q", got)
	}

	if _, ok := ui["ui:order"]; ok {
		t.Fatalf("ui:order must not be decoded as a field")
	}
	if ui["udise"].Widget != schema.WidgetUdise {
		t.Fatalf("udise widget = %q", ui["udise"].Widget)
	}

	mobile, _ := s.Field("mobile")
	if mobile.Pattern != `^[6-9]\d{9}$` {
		t.Fatalf("mobile pattern = %q", mobile.Pattern)
	}
}

func TestParse_JSONKeepsPropertyOrder(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"type":"object","required":["b"],"properties":{"b":{"type":"string"},"a":{"type":"string"},"c":{"type":"string"}}}`)
	s, err := schema.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, s.Names()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	var decoded schema.Schema
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, decoded.Names()); diff != "" {
		t.Fatalf("json order mismatch (-want +got):\n%s", diff)
	}
	if field, _ := decoded.Field("a"); field.Name != "a" {
		t.Fatalf("json decode did not bind names")
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	t.Parallel()

	if _, err := schema.Parse([]byte("  \n")); err == nil {
		t.Fatalf("expected error for empty document")
	}
}

func TestParseBundle_BareSchema(t *testing.T) {
	t.Parallel()

	bundle, err := schema.ParseBundle([]byte("properties:\n  mobile:\n    type: string\nrequired: [mobile]\n"))
	if err != nil {
		t.Fatalf("parse bundle: %v", err)
	}
	if !bundle.Schema.Has("mobile") || !bundle.Schema.IsRequired("mobile") {
		t.Fatalf("unexpected schema: %+v", bundle.Schema)
	}
	if bundle.UISchema == nil {
		t.Fatalf("expected empty ui schema")
	}
}

func TestTemplate_RoundTripsSentinel(t *testing.T) {
	t.Parallel()

	var tpl schema.Template
	if err := json.Unmarshal([]byte(`{"filter":{"parent":"**"},"limit":10,"tags":["a","**"]}`), &tpl); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !tpl.HasPlaceholder() {
		t.Fatalf("expected placeholder")
	}

	var paths [][]string
	got := tpl.Resolve(func(path []string) any {
		paths = append(paths, path)
		return "x"
	})
	want := map[string]any{
		"filter": map[string]any{"parent": "x"},
		"limit":  float64(10),
		"tags":   []any{"a", "x"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("resolve mismatch (-want +got):\n%s", diff)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 placeholder visits, got %v", paths)
	}

	encoded, err := json.Marshal(tpl)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var roundTrip map[string]any
	if err := json.Unmarshal(encoded, &roundTrip); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if roundTrip["filter"].(map[string]any)["parent"] != schema.PlaceholderToken {
		t.Fatalf("sentinel not re-encoded: %s", encoded)
	}
}

func TestTemplate_NilResolverYieldsNull(t *testing.T) {
	t.Parallel()

	tpl := schema.Template{Root: schema.Object{"parentId": schema.Placeholder{}}}
	got := tpl.Resolve(nil)
	if diff := cmp.Diff(map[string]any{"parentId": nil}, got); diff != "" {
		t.Fatalf("resolve mismatch (-want +got):\n%s", diff)
	}
}
