package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/testsupport"
)

type fieldListEnvelope struct {
	Result struct {
		Data struct {
			Fields struct {
				Result []schema.FieldDef `json:"result"`
				Meta   map[string]any    `json:"meta"`
			} `json:"fields"`
		} `json:"data"`
	} `json:"result"`
}

func TestFromFieldDefs(t *testing.T) {
	t.Parallel()

	var env fieldListEnvelope
	if err := json.Unmarshal(testsupport.Fixture(t, testsupport.FieldListFixture), &env); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}

	conv, err := schema.FromFieldDefs(env.Result.Data.Fields.Result)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if diff := cmp.Diff([]string{"firstName", "email", "Role", "subjects", "udise"}, conv.Schema.Names()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"firstName", "Role"}, conv.Schema.Required); diff != "" {
		t.Fatalf("required mismatch (-want +got):\n%s", diff)
	}

	wantWidgets := map[string]string{
		"firstName": schema.WidgetText,
		"email":     schema.WidgetEmail,
		"Role":      schema.WidgetSingleSelect,
		"subjects":  schema.WidgetMultiSelect,
		"udise":     schema.WidgetUdise,
	}
	for name, want := range wantWidgets {
		if got := conv.UI[name].Widget; got != want {
			t.Errorf("%s widget = %q, want %q", name, got, want)
		}
	}

	subjects, _ := conv.Schema.Field("subjects")
	values, labels := subjects.Options()
	if diff := cmp.Diff([]string{"maths", "science", "english"}, values); diff != "" {
		t.Fatalf("subject values mismatch (-want +got):\n%s", diff)
	}
	if labels[0] != "Maths" || subjects.MaxSelections != 2 || subjects.Type != schema.FieldTypeArray {
		t.Fatalf("unexpected subjects field: %+v", subjects)
	}
	if diff := cmp.Diff(map[string]string{"subjects": "fld-subjects"}, conv.FieldIDs); diff != "" {
		t.Fatalf("field ids mismatch (-want +got):\n%s", diff)
	}

	role, _ := conv.Schema.Field("Role")
	if role.API == nil || !role.API.Header.HasPlaceholder() {
		t.Fatalf("expected Role api header placeholder")
	}
}

func TestFromFieldDefs_ExplicitOrder(t *testing.T) {
	t.Parallel()

	conv, err := schema.FromFieldDefs([]schema.FieldDef{
		{Name: "c", Type: "text"},
		{Name: "b", Type: "text", Order: 2},
		{Name: "a", Type: "text", Order: 1},
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, conv.Schema.Names()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestFromFieldDefs_Errors(t *testing.T) {
	t.Parallel()

	if _, err := schema.FromFieldDefs(nil); err == nil {
		t.Fatalf("expected error for empty list")
	}
	if _, err := schema.FromFieldDefs([]schema.FieldDef{{Name: "a"}, {Name: "a"}}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := schema.FromFieldDefs([]schema.FieldDef{{Name: " "}}); err == nil {
		t.Fatalf("expected missing name error")
	}
}
