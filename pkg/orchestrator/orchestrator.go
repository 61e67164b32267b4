package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-formflow/pkg/auth"
	"github.com/goliatone/go-formflow/pkg/countdown"
	"github.com/goliatone/go-formflow/pkg/mutator"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/ratelimit"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/session"
	"github.com/goliatone/go-formflow/pkg/validation"
)

// State is the lifecycle position of a form.
type State string

const (
	StateLoadingInitial State = "loading-initial"
	StateReady          State = "ready"
	StateSubmitting     State = "submitting"
	StateOTPPending     State = "otp-pending"
	StateSubmitted      State = "submitted"
	StateError          State = "error"
)

// Timer defaults of the OTP dialog.
const (
	DefaultResendCooldown = 30 * time.Second
	DefaultOTPExpiry      = 600 * time.Second
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the current state.
	ErrInvalidTransition = errors.New("orchestrator: operation not allowed in current state")
	// ErrUnknownField is returned by SetValue for fields the schema does not
	// define.
	ErrUnknownField = errors.New("orchestrator: unknown field")
	// ErrSelectionLimit is returned when a multi-select value exceeds
	// maxSelections. The stored value is left unchanged.
	ErrSelectionLimit = errors.New("orchestrator: selection limit exceeded")
	// ErrFormInvalid is returned by Submit when validation fails.
	ErrFormInvalid = errors.New("orchestrator: form is invalid")
	// ErrRateLimited is returned while the OTP window refuses requests.
	ErrRateLimited = errors.New("orchestrator: otp requests rate limited")
	// ErrResendCooldown is returned by ResendOTP before the cooldown passed.
	ErrResendCooldown = errors.New("orchestrator: otp resend cooling down")
	// ErrOTPExpired is returned by VerifyOTP after the OTP expired.
	ErrOTPExpired = errors.New("orchestrator: otp expired")
	// ErrInvalidOTP is returned for codes that are not numeric or that the
	// backend rejected.
	ErrInvalidOTP = errors.New("orchestrator: invalid otp")
	// ErrNoRegistrar is returned by Submit when no backend is configured.
	ErrNoRegistrar = errors.New("orchestrator: no registrar configured")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator: closed")
)

// FormError carries the validation state that blocked a submission.
type FormError struct {
	Errors validation.ErrorState
	// Missing lists required visible fields without a value.
	Missing []string
}

func (e *FormError) Error() string {
	return fmt.Sprintf("%v: %d field(s) with errors", ErrFormInvalid, len(e.Errors.Fields()))
}

// Unwrap lets errors.Is match ErrFormInvalid.
func (e *FormError) Unwrap() error { return ErrFormInvalid }

// OptionSource resolves remote enumerations. *options.Fetcher satisfies it.
type OptionSource interface {
	Fetch(ctx context.Context, s *schema.Schema, sess session.Context, names []string, data schema.FormData) []options.Update
}

// Registrar sends registration OTPs and creates accounts. *auth.Client
// satisfies it.
type Registrar interface {
	SendOTP(ctx context.Context, req auth.OTPRequest) (string, error)
	RegisterUser(ctx context.Context, req auth.RegisterRequest) (auth.Registration, error)
}

var (
	_ OptionSource = (*options.Fetcher)(nil)
	_ Registrar    = (*auth.Client)(nil)
)

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithOptionSource sets the option fetcher.
func WithOptionSource(src OptionSource) Option {
	return func(o *Orchestrator) {
		if src != nil {
			o.fetcher = src
		}
	}
}

// WithRegistrar sets the registration backend.
func WithRegistrar(r Registrar) Option {
	return func(o *Orchestrator) {
		o.registrar = r
	}
}

// WithSession sets the session context used for option fetches.
func WithSession(sess session.Context) Option {
	return func(o *Orchestrator) {
		o.session = sess
	}
}

// WithValidator overrides the field validator.
func WithValidator(v *validation.Validator) Option {
	return func(o *Orchestrator) {
		if v != nil {
			o.validator = v
		}
	}
}

// WithMutator overrides the schema mutator.
func WithMutator(m *mutator.Mutator) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.mutator = m
		}
	}
}

// WithClock sets the clock driving timers and the rate limiter.
func WithClock(clock countdown.Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOTP toggles OTP verification before account creation. It is on by
// default.
func WithOTP(required bool) Option {
	return func(o *Orchestrator) {
		o.requireOTP = required
	}
}

// WithOTPTimers overrides the resend cooldown and the OTP lifetime.
func WithOTPTimers(resend, expiry time.Duration) Option {
	return func(o *Orchestrator) {
		if resend > 0 {
			o.resendCooldown = resend
		}
		if expiry > 0 {
			o.otpExpiry = expiry
		}
	}
}

// WithRateLimit overrides the OTP attempt allowance and its window.
func WithRateLimit(attempts int, window time.Duration) Option {
	return func(o *Orchestrator) {
		o.limitAttempts = attempts
		o.limitWindow = window
	}
}

// WithFieldIDs supplies the custom field attribute ids, as returned by
// schema.FromFieldDefs. Fields carrying a fieldId need no entry.
func WithFieldIDs(ids map[string]string) Option {
	return func(o *Orchestrator) {
		o.fieldIDs = copyStringMap(ids)
	}
}

// WithExtraFields adds root-level values to every submission.
func WithExtraFields(extra map[string]any) Option {
	return func(o *Orchestrator) {
		o.extra = extra
	}
}

// WithObserver registers a callback receiving a snapshot after every change,
// including countdown ticks. It runs without the orchestrator lock held.
func WithObserver(fn func(Snapshot)) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// Orchestrator owns one form session: values, derived schema, errors, option
// fetch chains, and the submit/OTP workflow. It is safe for concurrent use;
// network calls never run under the lock.
type Orchestrator struct {
	id             string
	fetcher        OptionSource
	registrar      Registrar
	session        session.Context
	validator      *validation.Validator
	mutator        *mutator.Mutator
	clock          countdown.Clock
	logger         logrus.FieldLogger
	requireOTP     bool
	resendCooldown time.Duration
	otpExpiry      time.Duration
	limitAttempts  int
	limitWindow    time.Duration
	fieldIDs       map[string]string
	extra          map[string]any
	observer       func(Snapshot)

	limiter     *ratelimit.Limiter
	resendTimer *countdown.Timer
	expiryTimer *countdown.Timer

	mu         sync.Mutex
	state      State
	closed     bool
	graph      *options.Graph
	authored   *schema.Schema
	authoredUI schema.UISchema
	current    *schema.Schema
	currentUI  schema.UISchema
	data       schema.FormData
	touched    map[string]struct{}
	errors     validation.ErrorState
	hint       string
	alert      Alert
	gens       map[string]uint64
	chains     map[string]*chain
	pending    *auth.RegisterRequest
	resendAt   time.Time
	expiresAt  time.Time
	result     *auth.Registration
}

// New constructs an Orchestrator in the loading-initial state.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		id:             newFormID(),
		fetcher:        options.New(),
		validator:      validation.Default(),
		clock:          countdown.SystemClock{},
		logger:         discardLogger(),
		requireOTP:     true,
		resendCooldown: DefaultResendCooldown,
		otpExpiry:      DefaultOTPExpiry,
		state:          StateLoadingInitial,
		authored:       schema.NewSchema(),
		authoredUI:     schema.UISchema{},
		data:           schema.FormData{},
		touched:        map[string]struct{}{},
		errors:         validation.ErrorState{},
		gens:           map[string]uint64{},
		chains:         map[string]*chain{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.mutator == nil {
		o.mutator = mutator.New(mutator.WithNow(o.clock.Now))
	}
	o.current, o.currentUI = o.authored, o.authoredUI
	o.logger = o.logger.WithField("form", o.id)

	o.limiter = ratelimit.New(
		ratelimit.WithClock(o.clock),
		ratelimit.WithMaxAttempts(o.limitAttempts),
		ratelimit.WithWindow(o.limitWindow),
		ratelimit.OnChange(func(ratelimit.Status) { o.notify() }),
	)
	tick := countdown.OnTick(func(time.Duration) { o.notify() })
	o.resendTimer = countdown.New(countdown.WithClock(o.clock), tick, countdown.OnExpire(o.notify))
	o.expiryTimer = countdown.New(countdown.WithClock(o.clock), tick, countdown.OnExpire(o.otpExpired))
	return o
}

// ID returns the form session id used in logs.
func (o *Orchestrator) ID() string {
	return o.id
}

// Retry returns from the error state to ready.
func (o *Orchestrator) Retry() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state != StateError {
		o.mu.Unlock()
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, o.state)
	}
	o.transitionLocked(StateReady)
	o.alert = Alert{}
	o.mu.Unlock()
	o.notify()
	return nil
}

// Close cancels running fetch chains and stops every timer.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for root, c := range o.chains {
		c.cancel()
		delete(o.chains, root)
	}
	o.mu.Unlock()

	o.resendTimer.Stop()
	o.expiryTimer.Stop()
	o.resendTimer.Wait()
	o.expiryTimer.Wait()
	o.limiter.Close()
}

func (o *Orchestrator) transitionLocked(next State) {
	if o.state == next {
		return
	}
	o.logger.WithFields(logrus.Fields{"from": o.state, "to": next}).Debug("form state")
	o.state = next
}

// deriveLocked recomputes the effective schema and the error state from the
// authored schema and the current values.
func (o *Orchestrator) deriveLocked() {
	res := o.mutator.Apply(o.authored, o.authoredUI, o.data)
	o.current, o.currentUI = res.Schema, res.UI

	errs := validation.ErrorState{}
	for _, name := range o.current.Names() {
		if _, ok := o.touched[name]; !ok || o.currentUI.Hidden(name) {
			continue
		}
		errs.Set(name, o.validator.ValidateField(o.current, name, o.data[name]))
	}
	mergeErrors(errs, res.Errors)
	o.errors = errs
}

func (o *Orchestrator) otpExpired() {
	o.mu.Lock()
	if o.state == StateOTPPending {
		o.alert = Alert{Severity: SeverityError, Message: auth.MessageOTPExpired}
	}
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) notify() {
	if o.observer == nil {
		return
	}
	o.observer(o.Snapshot())
}

func mergeErrors(dst, src validation.ErrorState) {
	for name, msgs := range src {
		for _, msg := range msgs {
			dst.Add(name, msg)
		}
	}
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func newFormID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	return id.String()
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
