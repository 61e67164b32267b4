package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-formflow/pkg/auth"
	"github.com/goliatone/go-formflow/pkg/mutator"
)

// Submit validates the whole form and starts account creation: it sends the
// OTP when verification is required, otherwise it registers directly.
func (o *Orchestrator) Submit(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state != StateReady {
		o.mu.Unlock()
		return fmt.Errorf("%w: submit from %s", ErrInvalidTransition, o.state)
	}
	if o.registrar == nil {
		o.mu.Unlock()
		return ErrNoRegistrar
	}
	if formErr := o.gateLocked(); formErr != nil {
		o.mu.Unlock()
		o.notify()
		return formErr
	}

	sub := BuildSubmission(o.current, o.currentUI, o.data, o.fieldIDs, o.extra)
	code := RegistrationCode(o.current, o.data)
	register := NewRegisterRequest(o.data, sub, code, 0)
	o.pending = &register
	o.transitionLocked(StateSubmitting)
	o.alert = Alert{}
	otp := NewOTPRequest(o.data, code)
	requireOTP := o.requireOTP
	o.mu.Unlock()
	o.notify()

	if requireOTP {
		return o.sendOTP(ctx, otp, StateReady)
	}
	return o.register(ctx, register)
}

// gateLocked validates every visible field and records the full error state.
// It returns nil when submission may proceed.
func (o *Orchestrator) gateLocked() *FormError {
	o.deriveLocked()
	errs := o.validator.ValidateForm(o.current, o.data, o.currentUI.HiddenFields()...)
	mergeErrors(errs, o.errors)

	missing := mutator.MissingRequired(o.current, o.currentUI, o.data)
	if o.authored.Has(FieldEmail) || o.authored.Has(FieldMobile) {
		if !o.validator.HasValidContact(o.data) {
			target := FieldEmail
			if !o.authored.Has(FieldEmail) {
				target = FieldMobile
			}
			errs.Add(target, MessageContactRequired)
		}
	}
	if o.authored.Has(FieldUsername) {
		username := o.data.String(FieldUsername)
		valid := o.validator.IsValidEmail(username) || o.validator.IsValidMobile(username) || o.validator.IsValidUsername(o.authored, username)
		if username != "" && !valid {
			errs.Add(FieldUsername, HintUsernameContact)
		}
	}

	for _, name := range o.current.Names() {
		o.touched[name] = struct{}{}
	}
	o.errors = errs
	if errs.Valid() {
		return nil
	}
	o.logger.WithField("fields", errs.Fields()).Info("submission blocked")
	return &FormError{Errors: errs.Clone(), Missing: missing}
}

// MessageContactRequired is raised when neither email nor mobile is valid.
const MessageContactRequired = "Please provide either an email or a mobile number."

// ResendOTP requests a new OTP while the dialog is open.
func (o *Orchestrator) ResendOTP(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state != StateOTPPending || o.pending == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: resend from %s", ErrInvalidTransition, o.state)
	}
	if left := o.resendAt.Sub(o.clock.Now()); left > 0 {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s left", ErrResendCooldown, strings.TrimSpace(newCountdown(left).Label))
	}
	otp := NewOTPRequest(o.data, o.pending.RegistrationCode)
	previous := o.resendAt
	reserved := o.clock.Now().Add(o.resendCooldown)
	o.resendAt = reserved
	o.mu.Unlock()

	err := o.sendOTP(ctx, otp, StateOTPPending)
	if err != nil {
		o.mu.Lock()
		if o.resendAt.Equal(reserved) {
			o.resendAt = previous
		}
		o.mu.Unlock()
	}
	return err
}

// sendOTP runs one rate-limited OTP request. fallback is the state restored
// when the request is refused or rejected.
func (o *Orchestrator) sendOTP(ctx context.Context, req auth.OTPRequest, fallback State) error {
	if err := o.limiter.Allow(); err != nil {
		o.mu.Lock()
		o.alert = rateLimitAlert()
		o.transitionLocked(fallback)
		o.mu.Unlock()
		o.notify()
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	o.limiter.Record()

	_, err := o.registrar.SendOTP(ctx, req)
	if err != nil {
		o.mu.Lock()
		defer o.notify()
		defer o.mu.Unlock()
		o.logger.WithError(err).WithField("kind", auth.KindOf(err)).Warn("otp request failed")
		if auth.IsRateLimited(err) {
			var apiErr *auth.APIError
			if errors.As(err, &apiErr) {
				o.limiter.Trip(apiErr.RetryAfter)
			}
			o.alert = rateLimitAlert()
			o.transitionLocked(fallback)
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		o.alert = Alert{Severity: SeverityError, Message: auth.UserMessage(err)}
		if fallback == StateOTPPending {
			return err
		}
		o.transitionLocked(StateError)
		return err
	}

	o.mu.Lock()
	now := o.clock.Now()
	o.resendAt = now.Add(o.resendCooldown)
	o.expiresAt = now.Add(o.otpExpiry)
	o.alert = Alert{}
	o.transitionLocked(StateOTPPending)
	o.mu.Unlock()

	o.resendTimer.Start(o.resendCooldown)
	o.expiryTimer.Start(o.otpExpiry)
	o.logger.Info("otp sent")
	o.notify()
	return nil
}

// VerifyOTP creates the account with code. Rejected codes keep the dialog
// open; other backend failures move the form to the error state.
func (o *Orchestrator) VerifyOTP(ctx context.Context, code string) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state != StateOTPPending || o.pending == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: verify from %s", ErrInvalidTransition, o.state)
	}
	if !o.clock.Now().Before(o.expiresAt) {
		o.alert = Alert{Severity: SeverityError, Message: auth.MessageOTPExpired}
		o.mu.Unlock()
		o.notify()
		return ErrOTPExpired
	}
	otp, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil || otp <= 0 {
		o.alert = Alert{Severity: SeverityError, Message: auth.MessageInvalidOTP}
		o.mu.Unlock()
		o.notify()
		return fmt.Errorf("%w: %q", ErrInvalidOTP, code)
	}
	req := *o.pending
	req.OTP = otp
	o.transitionLocked(StateSubmitting)
	o.mu.Unlock()
	o.notify()

	return o.register(ctx, req)
}

func (o *Orchestrator) register(ctx context.Context, req auth.RegisterRequest) error {
	reg, err := o.registrar.RegisterUser(ctx, req)
	if err != nil {
		o.mu.Lock()
		err = o.registerFailedLocked(req, err)
		o.mu.Unlock()
		o.notify()
		return err
	}

	o.mu.Lock()
	o.result = &reg
	o.pending = nil
	o.resendAt, o.expiresAt = time.Time{}, time.Time{}
	o.transitionLocked(StateSubmitted)
	msg := reg.Message
	if msg == "" {
		msg = MessageRegistered
	}
	o.alert = Alert{Severity: SeveritySuccess, Message: msg}
	o.mu.Unlock()

	o.resendTimer.Stop()
	o.expiryTimer.Stop()
	o.limiter.Reset()
	o.logger.WithFields(logrus.Fields{"user": reg.User.Username}).Info("account created")
	o.notify()
	return nil
}

func (o *Orchestrator) registerFailedLocked(req auth.RegisterRequest, err error) error {
	o.logger.WithError(err).WithField("kind", auth.KindOf(err)).Warn("registration failed")
	o.alert = Alert{Severity: SeverityError, Message: auth.UserMessage(err)}
	if req.OTP > 0 {
		switch auth.KindOf(err) {
		case auth.KindInvalidOTP, auth.KindOTPExpired:
			o.transitionLocked(StateOTPPending)
			return fmt.Errorf("%w: %w", ErrInvalidOTP, err)
		case auth.KindRateLimited:
			var apiErr *auth.APIError
			if errors.As(err, &apiErr) {
				o.limiter.Trip(apiErr.RetryAfter)
			}
			o.alert = rateLimitAlert()
			o.transitionLocked(StateOTPPending)
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}
	o.transitionLocked(StateError)
	return err
}

// MessageRegistered is the success alert when the backend sends no message.
const MessageRegistered = "Registration successful."

func rateLimitAlert() Alert {
	return Alert{Severity: SeverityError, RateLimited: true}
}
