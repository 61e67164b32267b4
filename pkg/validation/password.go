package validation

import (
	"errors"
	"fmt"

	"github.com/sethvargo/go-password/password"
)

// suggestAttempts bounds the generate-and-check loop of SuggestPassword.
const suggestAttempts = 16

// ErrNoSuggestion is returned when no generated password met the policy.
var ErrNoSuggestion = errors.New("validation: could not generate a compliant password")

// SuggestPassword generates a random password of length characters that
// satisfies PasswordPattern. Lengths below 8 are raised to 12.
func (v *Validator) SuggestPassword(length int) (string, error) {
	if length < 8 {
		length = 12
	}
	digits, symbols := 2, 2
	for i := 0; i < suggestAttempts; i++ {
		candidate, err := password.Generate(length, digits, symbols, false, true)
		if err != nil {
			return "", fmt.Errorf("validation: generate password: %w", err)
		}
		if matched, ok := v.Match(PasswordPattern, candidate); ok && matched {
			return candidate, nil
		}
	}
	return "", ErrNoSuggestion
}
