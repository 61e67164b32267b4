package validation

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator"

	"github.com/goliatone/go-formflow/pkg/schema"
)

// Issue is a schema authoring problem with its JSON pointer location.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// LintResult captures lint outcomes for previews and the CLI.
type LintResult struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues,omitempty"`
}

// Check contributes issues found by another package (graph checks live with
// the option fetcher).
type Check func(*schema.Schema) []Issue

// IssueAt builds an Issue for pointer, deriving the field path.
func IssueAt(pointer, format string, args ...any) Issue {
	return Issue{
		Path:    pointer,
		Field:   fieldPathFromPointer(pointer),
		Message: fmt.Sprintf(format, args...),
	}
}

var (
	descriptorOnce     sync.Once
	descriptorValidate *validator.Validate
)

func descriptorValidator() *validator.Validate {
	descriptorOnce.Do(func() {
		v := validator.New()
		if err := v.RegisterValidation("apiurl", apiURLValidator); err != nil {
			panic(err)
		}
		descriptorValidate = v
	})
	return descriptorValidate
}

func apiURLValidator(fl validator.FieldLevel) bool {
	raw := strings.TrimSpace(fl.Field().String())
	if strings.HasPrefix(raw, "/") {
		return true
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

// Lint reports authoring problems: undefined required names, invalid
// patterns, contradictory lengths, mismatched enumerations, and malformed api
// descriptors. Extra checks are appended in order.
func (v *Validator) Lint(s *schema.Schema, checks ...Check) LintResult {
	if s == nil {
		return LintResult{Issues: []Issue{{Message: "schema is nil"}}}
	}
	var issues []Issue

	for idx, name := range s.Required {
		if !s.Has(name) {
			issues = append(issues, IssueAt(fmt.Sprintf("#/required/%d", idx), "required field %q is not defined", name))
		}
	}

	for _, name := range s.Names() {
		field, _ := s.Field(name)
		base := "#/properties/" + escapePointer(name)

		if field.Pattern != "" {
			if err := v.Compile(field.Pattern); err != nil {
				issues = append(issues, IssueAt(base+"/pattern", "%s", strings.TrimPrefix(err.Error(), "validation: ")))
			}
		}
		if field.MinLength != nil && field.MaxLength != nil && *field.MinLength > *field.MaxLength {
			issues = append(issues, IssueAt(base+"/minLength", "minLength %d exceeds maxLength %d", *field.MinLength, *field.MaxLength))
		}
		if field.MaxSelections < 0 {
			issues = append(issues, IssueAt(base+"/maxSelections", "maxSelections must not be negative"))
		}
		if field.MaxSelections > 0 && !field.IsMultiSelect {
			issues = append(issues, IssueAt(base+"/maxSelections", "maxSelections requires isMultiSelect"))
		}
		values, labels := field.Options()
		if len(labels) > 0 && len(labels) != len(values) {
			issues = append(issues, IssueAt(base+"/enumNames", "enumNames has %d entries for %d enum values", len(labels), len(values)))
		}
		if field.API != nil {
			issues = append(issues, lintDescriptor(s, name, base+"/api", field.API)...)
		}
	}

	for _, check := range checks {
		if check != nil {
			issues = append(issues, check(s)...)
		}
	}

	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return LintResult{Valid: len(issues) == 0, Issues: issues}
}

func lintDescriptor(s *schema.Schema, name, base string, api *schema.APIDescriptor) []Issue {
	var issues []Issue
	if err := descriptorValidator().Struct(api); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return []Issue{IssueAt(base, "%v", err)}
		}
		for _, fe := range fieldErrs {
			issues = append(issues, IssueAt(base+"/"+descriptorKey(fe.Field()), "%s failed %q check (value %q)", descriptorKey(fe.Field()), fe.Tag(), fmt.Sprint(fe.Value())))
		}
	}
	dependent := strings.TrimSpace(api.Dependent)
	switch {
	case api.CallType == schema.CallTypeDependent && dependent == "":
		issues = append(issues, IssueAt(base+"/dependent", "dependent call requires a controlling field"))
	case dependent != "" && dependent == name:
		issues = append(issues, IssueAt(base+"/dependent", "field cannot depend on itself"))
	case dependent != "" && !s.Has(dependent):
		issues = append(issues, IssueAt(base+"/dependent", "controlling field %q is not defined", dependent))
	}
	if strings.TrimSpace(api.Options.Value) == "" {
		issues = append(issues, IssueAt(base+"/options/value", "option value path is required"))
	}
	return issues
}

func descriptorKey(goField string) string {
	switch goField {
	case "URL":
		return "url"
	case "CallType":
		return "callType"
	case "Method":
		return "method"
	default:
		return strings.ToLower(goField[:1]) + goField[1:]
	}
}

func escapePointer(segment string) string {
	segment = strings.ReplaceAll(segment, "~", "~0")
	return strings.ReplaceAll(segment, "/", "~1")
}

func fieldPathFromPointer(pointer string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(pointer), "#")
	trimmed = strings.TrimPrefix(trimmed, "/")
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	out := make([]string, 0, len(parts))
	for idx := 0; idx < len(parts); idx++ {
		segment := unescapePointer(parts[idx])
		switch segment {
		case "properties":
			if idx+1 < len(parts) {
				out = append(out, unescapePointer(parts[idx+1]))
				idx++
			}
		case "required":
			return ""
		case "":
			continue
		default:
			out = append(out, segment)
		}
	}
	return strings.Join(out, ".")
}

func unescapePointer(segment string) string {
	segment = strings.ReplaceAll(segment, "~1", "/")
	return strings.ReplaceAll(segment, "~0", "~")
}
