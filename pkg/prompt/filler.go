// Package prompt fills a form session interactively on a terminal. Fields
// are asked in schema order; every answer goes through the session so
// visibility, dependent options and errors update before the next question.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-formflow/pkg/orchestrator"
	"github.com/goliatone/go-formflow/pkg/schema"
)

// ResendCommand typed at the OTP prompt requests a new code.
const ResendCommand = "resend"

// maxAttempts bounds how often one field is re-asked after errors.
const maxAttempts = 3

// Form is the session being filled. *orchestrator.Orchestrator satisfies it.
type Form interface {
	Snapshot() orchestrator.Snapshot
	SetValue(ctx context.Context, name string, value any) error
	Submit(ctx context.Context) error
	ResendOTP(ctx context.Context) error
	VerifyOTP(ctx context.Context, code string) error
}

var _ Form = (*orchestrator.Orchestrator)(nil)

// Option configures a Filler.
type Option func(*Filler)

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(f *Filler) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithSkip excludes fields from prompting.
func WithSkip(names ...string) Option {
	return func(f *Filler) {
		for _, name := range names {
			f.skip[name] = struct{}{}
		}
	}
}

// Filler asks for every visible field of a form.
type Filler struct {
	driver Driver
	logger logrus.FieldLogger
	skip   map[string]struct{}
}

// New constructs a Filler on driver.
func New(driver Driver, opts ...Option) *Filler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	f := &Filler{driver: driver, logger: logger, skip: map[string]struct{}{}}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Fill prompts for each visible field until none is left unanswered. Fields
// revealed by earlier answers are asked when they appear.
func (f *Filler) Fill(ctx context.Context, form Form) error {
	asked := map[string]struct{}{}
	for {
		snap := form.Snapshot()
		if snap.State != orchestrator.StateReady {
			return fmt.Errorf("prompt: form is %s", snap.State)
		}
		name, field, ok := f.next(snap, asked)
		if !ok {
			return nil
		}
		asked[name] = struct{}{}
		if err := f.askField(ctx, form, name, field); err != nil {
			return err
		}
	}
}

func (f *Filler) next(snap orchestrator.Snapshot, asked map[string]struct{}) (string, *schema.Field, bool) {
	for _, name := range snap.Schema.Names() {
		if _, done := asked[name]; done {
			continue
		}
		if _, skipped := f.skip[name]; skipped {
			continue
		}
		field, _ := snap.Schema.Field(name)
		if field.ReadOnly || snap.UI.Hidden(name) {
			continue
		}
		return name, field, true
	}
	return "", nil, false
}

func (f *Filler) askField(ctx context.Context, form Form, name string, field *schema.Field) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		snap := form.Snapshot()
		value, set, err := f.ask(ctx, snap, name, field)
		if err != nil {
			return err
		}
		if !set {
			return nil
		}
		err = form.SetValue(ctx, name, value)
		switch {
		case errors.Is(err, orchestrator.ErrSelectionLimit):
			if err := f.driver.Info(ctx, fmt.Sprintf("You can select at most %d options", field.MaxSelections)); err != nil {
				return err
			}
			continue
		case err != nil:
			return err
		}
		msgs := form.Snapshot().Errors[name]
		if len(msgs) == 0 {
			return nil
		}
		for _, msg := range msgs {
			if err := f.driver.Info(ctx, msg); err != nil {
				return err
			}
		}
	}
	f.logger.WithField("field", name).Warn("field left invalid after retries")
	return nil
}

// ask returns the answer for name and whether it should be stored.
func (f *Filler) ask(ctx context.Context, snap orchestrator.Snapshot, name string, field *schema.Field) (any, bool, error) {
	required := snap.Schema.IsRequired(name)
	message := field.Label()
	if required {
		message += " *"
	}
	current := snap.Data[name]

	values, labels := field.Options()
	if len(labels) != len(values) {
		labels = values
	}
	if len(values) == 1 && values[0] == schema.PlaceholderOption {
		return nil, false, f.driver.Info(ctx, field.Label()+": options are unavailable")
	}
	if len(values) > 0 {
		if field.IsMultiSelect {
			chosen, err := f.driver.MultiSelect(ctx, SelectConfig{
				Message:  message,
				Options:  labels,
				Defaults: indicesOf(values, schema.StringList(current)),
				Help:     field.Description,
			})
			if err != nil {
				return nil, false, err
			}
			out := make([]any, 0, len(chosen))
			for _, idx := range chosen {
				out = append(out, values[idx])
			}
			return out, true, nil
		}
		idx, err := f.driver.Select(ctx, SelectConfig{
			Message:      message,
			Options:      labels,
			DefaultIndex: indexOf(values, schema.OptionKey(current)),
			Help:         field.Description,
			Optional:     !required,
		})
		if err != nil {
			return nil, false, err
		}
		if idx < 0 {
			return nil, false, nil
		}
		return values[idx], true, nil
	}

	switch field.Type {
	case schema.FieldTypeBoolean:
		def, _ := current.(bool)
		answer, err := f.driver.Confirm(ctx, ConfirmConfig{Message: message, Default: def, Help: field.Description})
		return answer, err == nil, err
	case schema.FieldTypeInteger, schema.FieldTypeNumber:
		text, err := f.driver.Input(ctx, InputConfig{
			Message:   message,
			Default:   schema.Stringify(current),
			Help:      field.Description,
			Validator: numberValidator(field.Type),
		})
		if err != nil || strings.TrimSpace(text) == "" {
			return nil, false, err
		}
		return parseNumber(field.Type, text), true, nil
	}

	cfg := InputConfig{
		Message:  message,
		Default:  schema.Stringify(current),
		Help:     field.Description,
		Required: required && current == nil,
	}
	var (
		text string
		err  error
	)
	if isSecret(name, field) {
		cfg.Default = ""
		text, err = f.driver.Password(ctx, cfg)
	} else {
		text, err = f.driver.Input(ctx, cfg)
	}
	if err != nil {
		return nil, false, err
	}
	text = strings.TrimSpace(text)
	if text == "" && current == nil {
		return nil, false, nil
	}
	return text, true, nil
}

// Submit submits the form and, when an OTP is required, asks for it until
// the account is created or the user gives up.
func (f *Filler) Submit(ctx context.Context, form Form) error {
	if err := form.Submit(ctx); err != nil {
		var formErr *orchestrator.FormError
		if errors.As(err, &formErr) {
			for _, field := range formErr.Errors.Fields() {
				for _, msg := range formErr.Errors[field] {
					if infoErr := f.driver.Info(ctx, msg); infoErr != nil {
						return infoErr
					}
				}
			}
		}
		f.alert(ctx, form)
		return err
	}

	for form.Snapshot().State == orchestrator.StateOTPPending {
		snap := form.Snapshot()
		message := "Enter the OTP"
		if snap.OTPExpiry.Active {
			message = fmt.Sprintf("Enter the OTP (expires in %s)", snap.OTPExpiry.Label)
		}
		code, err := f.driver.Input(ctx, InputConfig{
			Message: message,
			Help:    fmt.Sprintf("Type %q to request a new code", ResendCommand),
		})
		if err != nil {
			return err
		}
		code = strings.TrimSpace(code)
		if strings.EqualFold(code, ResendCommand) {
			err = form.ResendOTP(ctx)
		} else {
			err = form.VerifyOTP(ctx, code)
		}
		switch {
		case err == nil:
		case errors.Is(err, orchestrator.ErrInvalidOTP),
			errors.Is(err, orchestrator.ErrResendCooldown),
			errors.Is(err, orchestrator.ErrRateLimited):
			f.alert(ctx, form)
			if snap := form.Snapshot(); errors.Is(err, orchestrator.ErrResendCooldown) && snap.Resend.Active {
				if infoErr := f.driver.Info(ctx, "You can resend in "+snap.Resend.Label); infoErr != nil {
					return infoErr
				}
			}
		default:
			f.alert(ctx, form)
			return err
		}
	}
	f.alert(ctx, form)
	return nil
}

func (f *Filler) alert(ctx context.Context, form Form) {
	if msg := form.Snapshot().Alert.Message; msg != "" {
		if err := f.driver.Info(ctx, msg); err != nil {
			f.logger.WithError(err).Debug("alert not shown")
		}
	}
}

func isSecret(name string, field *schema.Field) bool {
	return field.Format == "password" || strings.Contains(strings.ToLower(name), "password")
}

func numberValidator(t schema.FieldType) func(string) error {
	return func(text string) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		var err error
		if t == schema.FieldTypeInteger {
			_, err = strconv.ParseInt(text, 10, 64)
		} else {
			_, err = strconv.ParseFloat(text, 64)
		}
		if err != nil {
			return fmt.Errorf("%q is not a valid %s", text, t)
		}
		return nil
	}
}

func parseNumber(t schema.FieldType, text string) any {
	text = strings.TrimSpace(text)
	if t == schema.FieldTypeInteger {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n
		}
	}
	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return n
	}
	return text
}
