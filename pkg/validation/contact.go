package validation

import (
	"strings"

	"github.com/goliatone/go-formflow/pkg/schema"
)

const (
	emailPattern    = `^[^\s@]+@[^\s@]+\.[^\s@]+$`
	usernamePattern = `^[a-zA-Z0-9@._-]{3,40}$`
)

// ContactKind classifies a username as one of the contact channels.
type ContactKind string

const (
	ContactNone   ContactKind = ""
	ContactEmail  ContactKind = "email"
	ContactMobile ContactKind = "mobile"
)

// IsValidEmail reports whether value looks like an email address.
func (v *Validator) IsValidEmail(value string) bool {
	matched, ok := v.Match(emailPattern, strings.TrimSpace(value))
	return ok && matched
}

// IsValidMobile reports whether value is a ten-digit mobile number.
func (v *Validator) IsValidMobile(value string) bool {
	matched, ok := v.Match(MobilePattern, strings.TrimSpace(value))
	return ok && matched
}

// IsValidUsername checks value against the schema's Username field when it
// declares constraints, otherwise against the built-in username rule.
func (v *Validator) IsValidUsername(s *schema.Schema, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if c, ok := ConstraintsFor(s, "Username"); ok && (c.Pattern != "" || c.MinLength != nil || c.MaxLength != nil) {
		c.Required = true
		return len(v.Validate("Username", value, c)) == 0
	}
	matched, ok := v.Match(usernamePattern, value)
	return ok && matched
}

// ClassifyContact reports whether value is an email or a mobile number.
func (v *Validator) ClassifyContact(value string) ContactKind {
	switch {
	case v.IsValidEmail(value):
		return ContactEmail
	case v.IsValidMobile(value):
		return ContactMobile
	default:
		return ContactNone
	}
}

// HasValidContact reports whether data carries a valid email or mobile.
func (v *Validator) HasValidContact(data schema.FormData) bool {
	return v.IsValidEmail(data.String("email")) || v.IsValidMobile(data.String("mobile"))
}
