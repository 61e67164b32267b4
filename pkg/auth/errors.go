package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-formflow/pkg/countdown"
)

// Kind classifies a failed call.
type Kind string

const (
	KindUnknown              Kind = "unknown"
	KindNetwork              Kind = "network"
	KindRateLimited          Kind = "rate_limited"
	KindInvalidCredentials   Kind = "invalid_credentials"
	KindInvalidOrganisation  Kind = "invalid_organisation"
	KindInvalidIdentifier    Kind = "invalid_identifier"
	KindIdentifierFormat     Kind = "identifier_format"
	KindInvalidOTP           Kind = "invalid_otp"
	KindOTPExpired           Kind = "otp_expired"
	KindUsernameTaken        Kind = "username_taken"
	KindUserArchived         Kind = "user_archived"
	KindOrganisationMismatch Kind = "organisation_mismatch"
)

// Operation names the call an error came from.
type Operation string

const (
	OpSignin        Operation = "signin"
	OpAuthenticate  Operation = "authenticate"
	OpLogin         Operation = "login"
	OpSendOTP       Operation = "send_otp"
	OpVerifyOTP     Operation = "verify_otp"
	OpRegister      Operation = "register"
	OpResetPassword Operation = "reset_password"
	OpForgetOTP     Operation = "forget_otp"
	OpReadSchema    Operation = "read_schema"
	OpTenants       Operation = "tenants"
)

// Server codes with a dedicated classification.
const (
	CodeInvalidOrgRegistrationCode = "INVALID_ORG_registration_code"
	CodeTooManyRequests            = "Too many requests. Please try again later."
	CodeUsernameTaken              = "Username is already taken"
)

// DefaultRetryAfter applies to rate limits that do not state a duration.
const DefaultRetryAfter = 2 * time.Minute

var (
	// ErrUserArchived is returned by Login for deactivated accounts.
	ErrUserArchived = errors.New("auth: user is archived")
	// ErrOrganisationMismatch is returned by Login when the user's tenant is
	// not the configured organisation.
	ErrOrganisationMismatch = errors.New("auth: user belongs to another organisation")
	// ErrInvalidCredentials is returned by Login when no token is issued.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// APIError is a non-OK response.
type APIError struct {
	Op     Operation
	Status int
	// Code is the structured responseCode or params.err of the envelope.
	Code       string
	Message    string
	Kind       Kind
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Status > 0 {
		return fmt.Sprintf("auth: %s: status %d: %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("auth: %s: %s", e.Op, msg)
}

// Is matches the Login sentinels by kind.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUserArchived:
		return e.Kind == KindUserArchived
	case ErrOrganisationMismatch:
		return e.Kind == KindOrganisationMismatch
	case ErrInvalidCredentials:
		return e.Kind == KindInvalidCredentials
	}
	return false
}

// KindOf returns the kind of an *APIError in err's chain, KindNetwork for
// other errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindNetwork
}

// IsRateLimited reports whether err is a rate limit signalled by the server.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}

var rateLimitPhrases = []string{
	"too many requests",
	"rate limit",
	"request limit",
	"please try again later",
	"too many attempts",
	"rate exceeded",
	"throttled",
}

var firstNumber = regexp.MustCompile(`\d+`)

// Classify derives the kind of a failure. Structured signals (HTTP status and
// known codes) take precedence; message phrases are a fallback for servers
// that only answer with prose.
func Classify(op Operation, status int, code, message string) Kind {
	switch {
	case status == 429:
		return KindRateLimited
	case code == CodeInvalidOrgRegistrationCode || message == CodeInvalidOrgRegistrationCode:
		return KindInvalidOrganisation
	case message == CodeTooManyRequests:
		return KindRateLimited
	case message == CodeUsernameTaken:
		return KindUsernameTaken
	case status == 401 && (op == OpSignin || op == OpLogin || op == OpAuthenticate):
		return KindInvalidCredentials
	}

	lower := strings.ToLower(message)
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(lower, phrase) {
			return KindRateLimited
		}
	}
	switch op {
	case OpVerifyOTP, OpResetPassword:
		switch {
		case strings.Contains(lower, "expired"):
			return KindOTPExpired
		case containsAny(lower, "invalid", "incorrect", "wrong"):
			return KindInvalidOTP
		}
	case OpRegister:
		// Account creation carries the OTP but fails for other reasons too.
		if strings.Contains(lower, "otp") {
			switch {
			case strings.Contains(lower, "expired"):
				return KindOTPExpired
			case containsAny(lower, "invalid", "incorrect", "wrong"):
				return KindInvalidOTP
			}
		}
	case OpForgetOTP:
		switch {
		case containsAny(lower, "invalid", "not found", "does not exist"):
			return KindInvalidIdentifier
		case strings.Contains(lower, "format"):
			return KindIdentifierFormat
		}
	case OpSignin, OpLogin:
		if status == 400 || status == 404 {
			return KindInvalidCredentials
		}
	}
	return KindUnknown
}

// retryAfter picks the retry duration of a rate limit: the Retry-After header
// in seconds, else the first number in the message, else DefaultRetryAfter.
func retryAfter(header, message string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if match := firstNumber.FindString(message); match != "" {
		if secs, err := strconv.Atoi(match); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return DefaultRetryAfter
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

// Alert texts shown for classified failures.
const (
	MessageInvalidOrganisation  = "Invalid Organisation"
	MessageInvalidIdentifier    = "Invalid Login ID."
	MessageIdentifierFormat     = "The identifier format is invalid. Please enter a valid email, mobile number, or username (3-40 characters, lowercase letters, numbers, hyphens, underscores)."
	MessageInvalidOTP           = "Invalid OTP. Please try again."
	MessageOTPExpired           = "OTP has expired. Please request a new one."
	MessageInvalidCredentials   = "Login failed. Invalid Username or Password."
	MessageUserArchived         = "The user is deactivated, please contact admin"
	MessageOrganisationMismatch = "The user does not belong to the same organization."
	MessageUsernameTaken        = CodeUsernameTaken
	MessageGeneric              = "Something went wrong. Please try again."
)

var fallbackMessages = map[Operation]string{
	OpSendOTP:       "Failed to send OTP. Please try again.",
	OpForgetOTP:     "Failed to send OTP. Please try again.",
	OpVerifyOTP:     "Failed to verify OTP. Please try again.",
	OpRegister:      "Registration failed. Please try again.",
	OpResetPassword: "Failed to reset password. Please try again.",
	OpSignin:        "Login failed. Please try again.",
	OpLogin:         "Login failed. Please try again.",
}

// RateLimitMessage renders the countdown alert for a rate limit.
func RateLimitMessage(remaining time.Duration) string {
	return fmt.Sprintf("You've reached the request limit. Please try again in %s.", countdown.Format(remaining))
}

// UserMessage returns the dismissible alert text for err, falling back to
// the server message and then to a generic text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return MessageGeneric
	}
	switch apiErr.Kind {
	case KindRateLimited:
		return RateLimitMessage(apiErr.RetryAfter)
	case KindInvalidOrganisation:
		return MessageInvalidOrganisation
	case KindInvalidIdentifier:
		return MessageInvalidIdentifier
	case KindIdentifierFormat:
		return MessageIdentifierFormat
	case KindInvalidOTP:
		return MessageInvalidOTP
	case KindOTPExpired:
		return MessageOTPExpired
	case KindInvalidCredentials:
		return MessageInvalidCredentials
	case KindUserArchived:
		return MessageUserArchived
	case KindOrganisationMismatch:
		return MessageOrganisationMismatch
	case KindUsernameTaken:
		return MessageUsernameTaken
	}
	if msg := strings.TrimSpace(apiErr.Message); msg != "" {
		return msg
	}
	if msg, ok := fallbackMessages[apiErr.Op]; ok {
		return msg
	}
	return MessageGeneric
}
