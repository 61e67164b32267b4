package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-formflow/pkg/auth"
	"github.com/goliatone/go-formflow/pkg/countdown"
	"github.com/goliatone/go-formflow/pkg/ratelimit"
	"github.com/goliatone/go-formflow/pkg/validation"
)

// Password reset input messages.
const (
	MessageResetMissing  = "Please provide both identifier and password"
	MessageResetPassword = "Password must contain at least 8 characters, one uppercase, one lowercase, one number, one special character, and no spaces"
)

// ErrInvalidInput is matched by every *InputError.
var ErrInvalidInput = errors.New("orchestrator: invalid input")

// InputError rejects reset input before any request is sent. Message is the
// text shown to the user.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *InputError) Unwrap() error { return ErrInvalidInput }

// Resetter is the backend of the password reset flow. *auth.Client
// satisfies it.
type Resetter interface {
	SendForgetOTP(ctx context.Context, req auth.ForgetOTPRequest) (string, error)
	VerifyOTP(ctx context.Context, req auth.VerifyOTPRequest) (string, error)
}

var _ Resetter = (*auth.Client)(nil)

// ResetOption customises a PasswordReset.
type ResetOption func(*PasswordReset)

// WithResetClock sets the clock of the OTP expiry and the rate limiter.
func WithResetClock(clock countdown.Clock) ResetOption {
	return func(p *PasswordReset) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithResetLogger sets the logger.
func WithResetLogger(logger logrus.FieldLogger) ResetOption {
	return func(p *PasswordReset) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithResetExpiry overrides the OTP lifetime.
func WithResetExpiry(d time.Duration) ResetOption {
	return func(p *PasswordReset) {
		if d > 0 {
			p.expiry = d
		}
	}
}

// WithResetValidator overrides the validator checking the new password.
func WithResetValidator(v *validation.Validator) ResetOption {
	return func(p *PasswordReset) {
		if v != nil {
			p.validator = v
		}
	}
}

// PasswordReset drives the forgot-password flow: request an OTP for an
// identifier and a new password, then verify the OTP, which sets the
// password. Only the server opens its rate limit window.
type PasswordReset struct {
	backend   Resetter
	clock     countdown.Clock
	logger    logrus.FieldLogger
	expiry    time.Duration
	validator *validation.Validator
	limiter   *ratelimit.Limiter

	mu         sync.Mutex
	identifier string
	password   string
	expiresAt  time.Time
}

// NewPasswordReset constructs the flow around backend.
func NewPasswordReset(backend Resetter, opts ...ResetOption) *PasswordReset {
	p := &PasswordReset{
		backend:   backend,
		clock:     countdown.SystemClock{},
		logger:    discardLogger(),
		expiry:    DefaultOTPExpiry,
		validator: validation.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.limiter = ratelimit.New(ratelimit.WithClock(p.clock))
	return p
}

// RequestOTP validates the input and asks the backend to send a reset OTP.
func (p *PasswordReset) RequestOTP(ctx context.Context, identifier, password string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return &InputError{Message: MessageResetMissing}
	}
	if !auth.IsIdentifier(identifier) && !auth.IsEmail(identifier) {
		return &InputError{Message: auth.MessageIdentifierFormat}
	}
	if matched, ok := p.validator.Match(validation.PasswordPattern, password); ok && !matched {
		return &InputError{Message: MessageResetPassword}
	}
	if err := p.limiter.Allow(); err != nil {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	_, err := p.backend.SendForgetOTP(ctx, auth.ForgetOTPRequest{
		Identifier: identifier,
		Password:   password,
		PhoneCode:  auth.PhoneCodeFor(identifier),
	})
	if err != nil {
		return p.failed(err)
	}

	p.mu.Lock()
	p.identifier, p.password = identifier, password
	p.expiresAt = p.clock.Now().Add(p.expiry)
	p.mu.Unlock()
	p.logger.WithField("mobile", auth.IsMobile(identifier)).Info("reset otp sent")
	return nil
}

// Verify submits code; a successful verification sets the new password.
func (p *PasswordReset) Verify(ctx context.Context, code string) error {
	p.mu.Lock()
	identifier, password, expiresAt := p.identifier, p.password, p.expiresAt
	p.mu.Unlock()
	if identifier == "" {
		return fmt.Errorf("%w: no reset otp requested", ErrInvalidTransition)
	}
	if !p.clock.Now().Before(expiresAt) {
		return ErrOTPExpired
	}
	otp, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil || otp <= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidOTP, code)
	}
	if err := p.limiter.Allow(); err != nil {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	_, err = p.backend.VerifyOTP(ctx, auth.VerifyOTPRequest{
		Identifier: identifier,
		PhoneCode:  auth.PhoneCodeFor(identifier),
		Password:   password,
		OTP:        otp,
	})
	if err != nil {
		switch auth.KindOf(err) {
		case auth.KindInvalidOTP:
			return fmt.Errorf("%w: %w", ErrInvalidOTP, err)
		case auth.KindOTPExpired:
			return fmt.Errorf("%w: %w", ErrOTPExpired, err)
		}
		return p.failed(err)
	}

	p.mu.Lock()
	p.identifier, p.password, p.expiresAt = "", "", time.Time{}
	p.mu.Unlock()
	p.limiter.Reset()
	p.logger.Info("password reset")
	return nil
}

// Expiry counts down the lifetime of the requested OTP.
func (p *PasswordReset) Expiry() Countdown {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.identifier == "" {
		return Countdown{}
	}
	return newCountdown(p.expiresAt.Sub(p.clock.Now()))
}

// RateLimit reports the server-signalled rate limit window.
func (p *PasswordReset) RateLimit() ratelimit.Status {
	return p.limiter.Status()
}

// Close stops the rate limit countdown.
func (p *PasswordReset) Close() {
	p.limiter.Close()
}

func (p *PasswordReset) failed(err error) error {
	p.logger.WithError(err).WithField("kind", auth.KindOf(err)).Warn("password reset request failed")
	if auth.IsRateLimited(err) {
		var apiErr *auth.APIError
		if errors.As(err, &apiErr) {
			p.limiter.Trip(apiErr.RetryAfter)
		}
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return err
}
