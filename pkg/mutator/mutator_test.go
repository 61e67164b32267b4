package mutator_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/mutator"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/testsupport"
)

var fixedNow = time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC)

func newMutator() *mutator.Mutator {
	return mutator.New(mutator.WithNow(func() time.Time { return fixedNow }))
}

func withSubRoleOptions(s *schema.Schema) {
	sub, _ := s.Field("Sub-Role")
	sub.SetOptions([]string{"sr1", "sr2"}, []string{"Head", "Assistant"})
}

func TestApply_GuardianFieldsForMinor(t *testing.T) {
	t.Parallel()

	s, ui := testsupport.Registration(t)
	m := newMutator()

	minor := m.Apply(s, ui, schema.FormData{"dob": "2012-06-16"})
	for _, name := range mutator.GuardianFields {
		if !minor.Schema.IsRequired(name) {
			t.Errorf("%s should be required for a minor", name)
		}
		if minor.UI.Hidden(name) {
			t.Errorf("%s should be visible for a minor", name)
		}
	}
	if got := minor.UI["guardian_relation"].Widget; got != schema.WidgetSingleSelect {
		t.Fatalf("guardian_relation widget = %q", got)
	}

	adult := m.Apply(minor.Schema, minor.UI, schema.FormData{"dob": "15/06/2008"})
	for _, name := range mutator.GuardianFields {
		if adult.Schema.IsRequired(name) {
			t.Errorf("%s should not be required for an adult", name)
		}
		if !adult.UI.Hidden(name) {
			t.Errorf("%s should be hidden for an adult", name)
		}
	}
	if got := adult.UI["guardian_relation"].OriginalWidget; got != schema.WidgetSingleSelect {
		t.Fatalf("original widget not preserved: %q", got)
	}
}

func TestApply_GuardianRequiresOptIn(t *testing.T) {
	t.Parallel()

	s := schema.NewSchema()
	s.AddField("dob", &schema.Field{Type: schema.FieldTypeString})
	s.AddField("guardian_name", &schema.Field{Type: schema.FieldTypeString})
	ui := schema.UISchema{"guardian_name": {Widget: schema.WidgetText}}

	res := newMutator().Apply(s, ui, schema.FormData{"dob": "2015-01-01"})
	if res.Schema.IsRequired("guardian_name") || res.UI.Hidden("guardian_name") {
		t.Fatalf("guardian rule must not run without guardian_relation")
	}
}

func TestApply_RoleGatesSubRole(t *testing.T) {
	t.Parallel()

	s, ui := testsupport.Registration(t)
	withSubRoleOptions(s)
	m := newMutator()

	none := m.Apply(s, ui, schema.FormData{})
	if !none.Schema.IsRequired("Role") || !none.UI.Hidden("Sub-Role") {
		t.Fatalf("expected Role required and Sub-Role hidden")
	}

	chosen := m.Apply(none.Schema, none.UI, schema.FormData{"Role": "r1"})
	if chosen.Schema.IsRequired("Role") {
		t.Fatalf("Role should not be required once chosen")
	}
	if got := chosen.UI["Sub-Role"].Widget; got != schema.WidgetMultiSelect {
		t.Fatalf("Sub-Role widget = %q", got)
	}
}

func TestApply_SubRoleStaysHiddenWithoutOptions(t *testing.T) {
	t.Parallel()

	s, ui := testsupport.Registration(t)
	sub, _ := s.Field("Sub-Role")
	sub.SetOptions([]string{schema.PlaceholderOption}, []string{schema.PlaceholderOption})

	res := newMutator().Apply(s, ui, schema.FormData{"Role": "r1"})
	if !res.UI.Hidden("Sub-Role") {
		t.Fatalf("Sub-Role should stay hidden while only the placeholder is available")
	}
}

func TestApply_SkipAndHideRestoresOriginalWidget(t *testing.T) {
	t.Parallel()

	s, ui := testsupport.Registration(t)
	m := newMutator()

	hidden := m.Apply(s, ui, schema.FormData{"occupation": "student"})
	if !hidden.UI.Hidden("udise") {
		t.Fatalf("udise should be hidden for students")
	}
	if diff := cmp.Diff([]string{"udise"}, mutator.SkipHidden(hidden.UI)); diff != "" {
		t.Fatalf("skip hidden mismatch (-want +got):\n%s", diff)
	}
	if _, ok := hidden.Errors["udise"]; ok {
		t.Fatalf("hidden udise must not raise the form error")
	}

	restored := m.Apply(hidden.Schema, hidden.UI, schema.FormData{"occupation": "teacher"})
	if got := restored.UI["udise"]; got.Widget != schema.WidgetUdise || len(got.HiddenBy) != 0 {
		t.Fatalf("udise not restored: %+v", got)
	}
}

func TestApply_RulesDoNotUnhideEachOther(t *testing.T) {
	t.Parallel()

	s, ui := testsupport.Registration(t)
	occupation, _ := s.Field("occupation")
	occupation.Extra.SkipAndHide["student"] = []string{"guardian_name"}
	m := newMutator()

	both := m.Apply(s, ui, schema.FormData{"occupation": "student", "dob": "2000-01-01"})
	if diff := cmp.Diff([]string{mutator.RuleGuardian, "skip:occupation"}, both.UI["guardian_name"].HiddenBy); diff != "" {
		t.Fatalf("hiddenBy mismatch (-want +got):\n%s", diff)
	}

	minor := m.Apply(both.Schema, both.UI, schema.FormData{"occupation": "student", "dob": "2015-01-01"})
	if !minor.UI.Hidden("guardian_name") {
		t.Fatalf("skip rule must keep guardian_name hidden")
	}

	released := m.Apply(minor.Schema, minor.UI, schema.FormData{"occupation": "teacher", "dob": "2015-01-01"})
	if released.UI.Hidden("guardian_name") {
		t.Fatalf("guardian_name should be visible once no rule hides it")
	}
}

func TestApply_UdisePresence(t *testing.T) {
	t.Parallel()

	s, ui := testsupport.Registration(t)
	m := newMutator()

	empty := m.Apply(s, ui, schema.FormData{})
	if diff := cmp.Diff([]string{mutator.UdiseRequiredMessage}, empty.Errors["udise"]); diff != "" {
		t.Fatalf("udise error mismatch (-want +got):\n%s", diff)
	}
	filled := m.Apply(s, ui, schema.FormData{"udise": "27251000101"})
	if !filled.Errors.Valid() {
		t.Fatalf("expected no form errors, got %v", filled.Errors)
	}
}

func TestApply_IsIdempotentAndPure(t *testing.T) {
	t.Parallel()

	s, ui := testsupport.Registration(t)
	withSubRoleOptions(s)
	beforeSchema := s.Clone()
	beforeUI := ui.Clone()
	m := newMutator()

	inputs := []schema.FormData{
		{},
		{"dob": "2014-02-02", "Role": "r1", "occupation": "student"},
		{"dob": "1990-02-02", "occupation": []any{"teacher"}, "udise": "x"},
	}
	for _, data := range inputs {
		once := m.Apply(s, ui, data)
		twice := m.Apply(once.Schema, once.UI, data)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Fatalf("mutator not idempotent for %v (-once +twice):\n%s", data, diff)
		}
	}

	if diff := cmp.Diff(beforeSchema, s); diff != "" {
		t.Fatalf("input schema modified (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(beforeUI, ui); diff != "" {
		t.Fatalf("input ui modified (-before +after):\n%s", diff)
	}
}

func TestMissingRequired_SkipsHiddenFields(t *testing.T) {
	t.Parallel()

	s, ui := testsupport.Registration(t)
	res := newMutator().Apply(s, ui, schema.FormData{"dob": "2015-01-01"})
	mutator.Hide(res.UI, "guardian_name", "custom")

	missing := mutator.MissingRequired(res.Schema, res.UI, schema.FormData{"firstName": "Asha"})
	want := []string{"Username", "password", "guardian_relation", "parent_phone", "Role", "State"}
	if diff := cmp.Diff(want, missing); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
}

func TestAge(t *testing.T) {
	t.Parallel()

	dob, ok := mutator.ParseDate("16-06-2008")
	if !ok {
		t.Fatalf("expected dd-mm-yyyy to parse")
	}
	if got := mutator.Age(dob, fixedNow); got != 17 {
		t.Fatalf("age = %d, want 17", got)
	}
	if _, ok := mutator.ParseDate("not a date"); ok {
		t.Fatalf("expected parse failure")
	}
}
