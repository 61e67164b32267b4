// Package mutator derives the effective schema and ui schema from the current
// form values: conditional requiredness, rule-tracked hiding, and form-level
// errors. Apply never modifies its inputs and is idempotent.
package mutator

import (
	"strings"
	"time"

	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/validation"
)

// Rule names recorded in ui:hiddenBy.
const (
	RuleGuardian = "guardian"
	RuleRole     = "role"
)

// UdiseRequiredMessage is the form-level error raised for an empty UDISE code.
const UdiseRequiredMessage = "UDISE code is required"

// Result is the derived form shape.
type Result struct {
	Schema *schema.Schema
	UI     schema.UISchema
	// Errors holds form-level messages keyed by field.
	Errors validation.ErrorState
}

// Rule contributes one aspect of the derivation. Rules receive clones and
// mutate them in place.
type Rule interface {
	Apply(res *Result, data schema.FormData)
}

// RuleFunc adapts a function into a Rule.
type RuleFunc func(res *Result, data schema.FormData)

// Apply delegates to the function.
func (fn RuleFunc) Apply(res *Result, data schema.FormData) {
	fn(res, data)
}

// Option configures a Mutator.
type Option func(*Mutator)

// WithNow overrides the clock used for age computation.
func WithNow(now func() time.Time) Option {
	return func(m *Mutator) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRoleFields overrides the role and sub-role field names.
func WithRoleFields(role, subRole string) Option {
	return func(m *Mutator) {
		if role != "" {
			m.roleField = role
		}
		if subRole != "" {
			m.subRoleField = subRole
		}
	}
}

// WithAdultAge overrides the age from which guardian fields are dropped.
func WithAdultAge(age int) Option {
	return func(m *Mutator) {
		if age > 0 {
			m.adultAge = age
		}
	}
}

// WithRules appends custom rules evaluated after the built-in ones.
func WithRules(rules ...Rule) Option {
	return func(m *Mutator) {
		m.extra = append(m.extra, rules...)
	}
}

// Mutator evaluates the built-in rules plus any custom ones.
type Mutator struct {
	now          func() time.Time
	roleField    string
	subRoleField string
	adultAge     int
	extra        []Rule
}

// GuardianFields are required and shown for minors.
var GuardianFields = []string{"parent_phone", "guardian_relation", "guardian_name"}

// New constructs a Mutator.
func New(opts ...Option) *Mutator {
	m := &Mutator{
		now:          time.Now,
		roleField:    "Role",
		subRoleField: "Sub-Role",
		adultAge:     18,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Apply returns the derived schema, ui schema, and form-level errors for data.
func (m *Mutator) Apply(s *schema.Schema, ui schema.UISchema, data schema.FormData) Result {
	res := Result{
		Schema: s.Clone(),
		UI:     ui.Clone(),
		Errors: validation.ErrorState{},
	}
	if res.Schema == nil {
		res.Schema = schema.NewSchema()
	}
	for _, rule := range m.rules() {
		rule.Apply(&res, data)
	}
	return res
}

func (m *Mutator) rules() []Rule {
	rules := []Rule{
		RuleFunc(m.guardianRule),
		RuleFunc(m.roleRule),
		RuleFunc(skipRule),
		RuleFunc(udiseRule),
	}
	return append(rules, m.extra...)
}

func (m *Mutator) guardianRule(res *Result, data schema.FormData) {
	if !res.Schema.Has("guardian_relation") {
		return
	}
	minor := false
	if dob, ok := ParseDate(data.String("dob")); ok {
		minor = Age(dob, m.now()) < m.adultAge
	}
	for _, name := range GuardianFields {
		field, ok := res.Schema.Field(name)
		if !ok {
			continue
		}
		res.Schema.SetRequired(name, minor)
		if minor {
			Reveal(res.UI, name, RuleGuardian, DefaultWidget(field))
		} else {
			Hide(res.UI, name, RuleGuardian)
		}
	}
}

func (m *Mutator) roleRule(res *Result, data schema.FormData) {
	if !res.Schema.Has(m.roleField) {
		return
	}
	selected := !schema.IsEmpty(data[m.roleField])
	res.Schema.SetRequired(m.roleField, !selected)

	sub, ok := res.Schema.Field(m.subRoleField)
	if !ok {
		return
	}
	if selected && hasRealOptions(sub) {
		widget := schema.WidgetSingleSelect
		if sub.IsMultiSelect {
			widget = schema.WidgetMultiSelect
		}
		Reveal(res.UI, m.subRoleField, RuleRole, widget)
		return
	}
	Hide(res.UI, m.subRoleField, RuleRole)
}

func skipRule(res *Result, data schema.FormData) {
	for _, controller := range res.Schema.Names() {
		field, _ := res.Schema.Field(controller)
		rules := field.SkipAndHide()
		if len(rules) == 0 {
			continue
		}
		rule := SkipRulePrefix + controller
		targets := map[string]struct{}{}
		for _, value := range schema.StringList(data[controller]) {
			for _, target := range rules[value] {
				if target != controller && res.Schema.Has(target) {
					targets[target] = struct{}{}
				}
			}
		}

		for _, name := range res.Schema.Names() {
			if _, hide := targets[name]; hide {
				Hide(res.UI, name, rule)
			} else {
				Release(res.UI, name, rule)
			}
		}
	}
}

func udiseRule(res *Result, data schema.FormData) {
	for _, name := range []string{"udise", "Udise"} {
		if !res.Schema.Has(name) {
			continue
		}
		if res.UI.Hidden(name) {
			continue
		}
		if schema.IsEmpty(data[name]) {
			res.Errors.Add(name, UdiseRequiredMessage)
		}
	}
}

func hasRealOptions(field *schema.Field) bool {
	values, _ := field.Options()
	for _, value := range values {
		if strings.TrimSpace(value) != "" && value != schema.PlaceholderOption {
			return true
		}
	}
	return false
}
