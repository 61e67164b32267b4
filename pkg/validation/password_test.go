package validation_test

import (
	"testing"

	"github.com/goliatone/go-formflow/pkg/validation"
)

func TestSuggestPassword_MeetsPolicy(t *testing.T) {
	t.Parallel()

	v := validation.Default()
	for _, length := range []int{0, 8, 16} {
		got, err := v.SuggestPassword(length)
		if err != nil {
			t.Fatalf("suggest(%d): %v", length, err)
		}
		want := length
		if want < 8 {
			want = 12
		}
		if len(got) != want {
			t.Fatalf("suggest(%d) length = %d", length, len(got))
		}
		if matched, ok := v.Match(validation.PasswordPattern, got); !ok || !matched {
			t.Fatalf("suggestion %q does not satisfy the password policy", got)
		}
	}
}
