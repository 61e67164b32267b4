package orchestrator

import (
	"time"

	"github.com/goliatone/go-formflow/pkg/auth"
	"github.com/goliatone/go-formflow/pkg/countdown"
	"github.com/goliatone/go-formflow/pkg/ratelimit"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/validation"
)

// Severity of an alert.
type Severity string

const (
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
)

// Alert is the dismissible message shown above the form.
type Alert struct {
	Severity Severity `json:"severity,omitempty"`
	Message  string   `json:"message,omitempty"`
	// RateLimited marks alerts whose text follows the rate-limit countdown.
	RateLimited bool `json:"rateLimited,omitempty"`
}

// Countdown is a running timer as shown to the user.
type Countdown struct {
	Active    bool          `json:"active"`
	Remaining time.Duration `json:"remaining"`
	Seconds   int           `json:"seconds"`
	Label     string        `json:"label,omitempty"`
}

func newCountdown(remaining time.Duration) Countdown {
	if remaining <= 0 {
		return Countdown{}
	}
	return Countdown{
		Active:    true,
		Remaining: remaining,
		Seconds:   countdown.Seconds(remaining),
		Label:     countdown.Format(remaining),
	}
}

// Snapshot is a consistent copy of the form session. Callers may keep and
// modify it freely.
type Snapshot struct {
	State  State                 `json:"state"`
	Schema *schema.Schema        `json:"schema"`
	UI     schema.UISchema       `json:"uiSchema"`
	Data   schema.FormData       `json:"formData"`
	Errors validation.ErrorState `json:"errors"`
	// ContactHint explains which contact channel is optional.
	ContactHint string `json:"contactHint,omitempty"`
	Alert       Alert  `json:"alert"`
	// RateLimit is the OTP attempt window.
	RateLimit ratelimit.Status `json:"rateLimit"`
	// Resend counts down until another OTP may be requested.
	Resend Countdown `json:"resend"`
	// OTPExpiry counts down until the sent OTP expires.
	OTPExpiry Countdown `json:"otpExpiry"`
	// Registration is set once the account was created.
	Registration *auth.Registration `json:"registration,omitempty"`
}

// Snapshot returns the current form session.
func (o *Orchestrator) Snapshot() Snapshot {
	limit := o.limiter.Status()

	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.clock.Now()

	snap := Snapshot{
		State:       o.state,
		Schema:      o.current.Clone(),
		UI:          o.currentUI.Clone(),
		Data:        o.data.Clone(),
		Errors:      o.errors.Clone(),
		ContactHint: o.hint,
		Alert:       o.alert,
		RateLimit:   limit,
	}
	if snap.Alert.RateLimited {
		if limit.Limited {
			snap.Alert.Message = auth.RateLimitMessage(limit.Remaining)
		} else {
			snap.Alert = Alert{}
		}
	}
	if o.state == StateOTPPending || o.state == StateSubmitting {
		snap.Resend = newCountdown(o.resendAt.Sub(now))
		snap.OTPExpiry = newCountdown(o.expiresAt.Sub(now))
	}
	if o.result != nil {
		reg := *o.result
		snap.Registration = &reg
	}
	return snap
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}
