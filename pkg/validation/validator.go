// Package validation checks form values against the constraints declared on
// schema fields and produces the inline messages shown next to each field.
package validation

import (
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/goliatone/go-formflow/pkg/schema"
)

// DefaultMatchTimeout bounds a single pattern evaluation.
const DefaultMatchTimeout = 250 * time.Millisecond

// Constraints is the validation view of a field.
type Constraints struct {
	Label         string
	Required      bool
	MinLength     *int
	MaxLength     *int
	Pattern       string
	PolicyMsg     string
	IsMultiSelect bool
	MaxSelections int
	Type          schema.FieldType
}

// ConstraintsFor derives constraints for name. ok is false when the schema
// does not define the field.
func ConstraintsFor(s *schema.Schema, name string) (Constraints, bool) {
	field, ok := s.Field(name)
	if !ok {
		return Constraints{}, false
	}
	return Constraints{
		Label:         field.Label(),
		Required:      s.IsRequired(name),
		MinLength:     field.MinLength,
		MaxLength:     field.MaxLength,
		Pattern:       field.Pattern,
		PolicyMsg:     field.PolicyMsg,
		IsMultiSelect: field.IsMultiSelect,
		MaxSelections: field.MaxSelections,
		Type:          field.Type,
	}, true
}

// Option configures a Validator.
type Option func(*Validator)

// WithMessages replaces the canonical pattern message table.
func WithMessages(table map[string]string) Option {
	return func(v *Validator) {
		if table != nil {
			v.messages = table
		}
	}
}

// WithMatchTimeout bounds each pattern evaluation.
func WithMatchTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// Validator evaluates field constraints. Patterns use ECMAScript semantics
// and compiled expressions are cached; it is safe for concurrent use.
type Validator struct {
	messages map[string]string
	timeout  time.Duration

	mu    sync.RWMutex
	cache map[string]compiled
}

type compiled struct {
	re  *regexp2.Regexp
	err error
}

// New constructs a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{
		messages: DefaultMessages,
		timeout:  DefaultMatchTimeout,
		cache:    make(map[string]compiled),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

var defaultValidator = New()

// Default returns the shared validator.
func Default() *Validator {
	return defaultValidator
}

// Validate returns every message produced for the value of name. An empty
// required value only reports the required message; an empty optional value
// reports nothing.
func (v *Validator) Validate(name string, value any, c Constraints) []string {
	if c.Label == "" {
		c.Label = name
	}
	if schema.IsEmpty(value) {
		if c.Required {
			return []string{c.Label + " is required"}
		}
		return nil
	}

	var errs []string
	if list, isList := asList(value); isList {
		if c.IsMultiSelect && c.MaxSelections > 0 && len(list) > c.MaxSelections {
			errs = append(errs, fmt.Sprintf("You can select at most %d options", c.MaxSelections))
		}
		return errs
	}

	text := schema.Stringify(value)
	length := utf8.RuneCountInString(text)
	if c.MinLength != nil && *c.MinLength > 0 && length < *c.MinLength {
		errs = append(errs, fmt.Sprintf("%s must be at least %d characters", c.Label, *c.MinLength))
	}
	if c.MaxLength != nil && *c.MaxLength > 0 && length > *c.MaxLength {
		errs = append(errs, fmt.Sprintf("%s must be at most %d characters", c.Label, *c.MaxLength))
	}
	if c.Pattern != "" {
		if matched, ok := v.Match(c.Pattern, text); ok && !matched {
			errs = append(errs, PatternMessage(c.Pattern, c.Label, c.PolicyMsg, v.messages))
		}
	}
	return errs
}

// ValidateField validates the current value of name against s.
func (v *Validator) ValidateField(s *schema.Schema, name string, value any) []string {
	c, ok := ConstraintsFor(s, name)
	if !ok {
		return nil
	}
	return v.Validate(name, value, c)
}

// ValidateForm validates every field in s. Fields listed in skip are ignored.
func (v *Validator) ValidateForm(s *schema.Schema, data schema.FormData, skip ...string) ErrorState {
	skipped := make(map[string]struct{}, len(skip))
	for _, name := range skip {
		skipped[name] = struct{}{}
	}
	state := ErrorState{}
	for _, name := range s.Names() {
		if _, ok := skipped[name]; ok {
			continue
		}
		state.Set(name, v.ValidateField(s, name, data[name]))
	}
	return state
}

// Match reports whether text matches pattern. ok is false when the pattern
// cannot be compiled or evaluation timed out.
func (v *Validator) Match(pattern, text string) (matched bool, ok bool) {
	re, err := v.compile(pattern)
	if err != nil {
		return false, false
	}
	matched, err = re.MatchString(text)
	if err != nil {
		return false, false
	}
	return matched, true
}

// Compile reports whether pattern is a valid ECMAScript expression.
func (v *Validator) Compile(pattern string) error {
	_, err := v.compile(pattern)
	return err
}

func (v *Validator) compile(pattern string) (*regexp2.Regexp, error) {
	v.mu.RLock()
	entry, ok := v.cache[pattern]
	v.mu.RUnlock()
	if ok {
		return entry.re, entry.err
	}

	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err == nil {
		re.MatchTimeout = v.timeout
	} else {
		err = fmt.Errorf("validation: invalid pattern %q: %w", pattern, err)
	}

	v.mu.Lock()
	v.cache[pattern] = compiled{re: re, err: err}
	v.mu.Unlock()
	return re, err
}

func asList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for idx, item := range v {
			out[idx] = item
		}
		return out, true
	default:
		return nil, false
	}
}

// ErrorState maps field names to their current messages. A missing or empty
// entry means the field is valid.
type ErrorState map[string][]string

// Set stores msgs for name, removing the entry when msgs is empty.
func (e ErrorState) Set(name string, msgs []string) {
	if len(msgs) == 0 {
		delete(e, name)
		return
	}
	e[name] = append([]string(nil), msgs...)
}

// Add appends msg to name unless it is already present.
func (e ErrorState) Add(name, msg string) {
	for _, existing := range e[name] {
		if existing == msg {
			return
		}
	}
	e[name] = append(e[name], msg)
}

// Remove drops msg from name.
func (e ErrorState) Remove(name, msg string) {
	list := e[name]
	out := list[:0:0]
	for _, existing := range list {
		if existing != msg {
			out = append(out, existing)
		}
	}
	e.Set(name, out)
}

// Valid reports whether no field carries a message.
func (e ErrorState) Valid() bool {
	for _, msgs := range e {
		if len(msgs) > 0 {
			return false
		}
	}
	return true
}

// Fields returns the names with messages, sorted.
func (e ErrorState) Fields() []string {
	out := make([]string, 0, len(e))
	for name, msgs := range e {
		if len(msgs) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (e ErrorState) Clone() ErrorState {
	out := make(ErrorState, len(e))
	for name, msgs := range e {
		if len(msgs) > 0 {
			out[name] = append([]string(nil), msgs...)
		}
	}
	return out
}

// Merge copies every entry of other into e, replacing existing entries.
func (e ErrorState) Merge(other ErrorState) {
	for name, msgs := range other {
		e.Set(name, msgs)
	}
}
