package validation

import (
	"regexp"
	"strings"
)

// PasswordPattern is the complexity rule shipped with registration schemas.
const PasswordPattern = "^(?=.*[0-9])(?=.*[a-z])(?=.*[A-Z])(?=.*[~!@#$%^&*()_+`\\-={}:\";'<>?,./\\\\])(?!.*\\s).{8,}$"

// MobilePattern accepts ten-digit Indian mobile numbers.
const MobilePattern = `^[6-9]\d{9}$`

// DefaultMessages maps canonical pattern sources to user-facing messages.
var DefaultMessages = map[string]string{
	`^(?=.*[a-zA-Z])[a-zA-Z ]+$`:   "Numbers and special characters are not allowed",
	`^[a-zA-Z][a-zA-Z ]*[a-zA-Z]$`: "Numbers and special characters are not allowed",
	`^[a-zA-Z0-9.@]+$`:             "Space and special characters are not allowed",
	`^[0-9]{10}$`:                  "Enter a valid Mobile Number",
	`^\d{10}$`:                     "Characters and special characters are not allowed",
	MobilePattern:                  "Enter a valid Mobile Number",
	PasswordPattern:                "Password must be at least 8 characters long and include an uppercase letter, a lowercase letter, a number, a special character, and no spaces.",
}

var exactQuantifier = regexp.MustCompile(`\{(\d+)\}`)

// PatternMessage resolves the message shown when value fails pattern:
// policyMsg first, then the canonical table, then a message derived from the
// pattern source, then a generic fallback naming the field.
func PatternMessage(pattern, label, policyMsg string, table map[string]string) string {
	if msg := strings.TrimSpace(policyMsg); msg != "" {
		return msg
	}
	if table == nil {
		table = DefaultMessages
	}
	if msg, ok := table[pattern]; ok {
		return msg
	}
	return heuristicMessage(pattern, label)
}

func heuristicMessage(pattern, label string) string {
	switch {
	case strings.Contains(pattern, "^[0-9]") && strings.Contains(pattern, "{10}$"):
		return "Please enter a valid 10-digit number"
	case strings.Contains(pattern, "^[a-zA-Z]") && strings.Contains(pattern, "+$"):
		return "Only letters are allowed"
	case strings.Contains(pattern, "^[a-zA-Z0-9]") && !strings.Contains(pattern, " "):
		return "Spaces are not allowed"
	}
	if strings.Contains(pattern, `\d`) {
		if match := exactQuantifier.FindStringSubmatch(pattern); match != nil {
			return "Must be exactly " + match[1] + " digits"
		}
	}
	if strings.Contains(pattern, "@") && strings.Contains(pattern, `\.`) {
		return "Please enter a valid email address"
	}
	return "Please enter a valid " + strings.ToLower(label)
}
