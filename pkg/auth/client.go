// Package auth is the client of the user service: sign-in, registration with
// OTP, password reset and the schema service read.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
)

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResponseOK is the envelope code of a successful call.
const ResponseOK = "OK"

// PhoneCode is the dialling code sent with mobile numbers.
const PhoneCode = "+91"

// Option configures a Client.
type Option func(*Client)

// WithDoer sets the HTTP transport.
func WithDoer(doer Doer) Option {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

// WithEndpoints overrides endpoint paths. Empty paths keep their default.
func WithEndpoints(endpoints Endpoints) Option {
	return func(c *Client) {
		c.endpoints = endpoints.merge(DefaultEndpoints())
	}
}

// WithLogger sets the request logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRequestID overrides the request id generator.
func WithRequestID(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.requestID = fn
		}
	}
}

// WithHeader adds a header sent with every call, such as the tenant origin.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if key != "" {
			c.headers.Set(key, value)
		}
	}
}

// Client calls the user service.
type Client struct {
	doer      Doer
	base      *url.URL
	endpoints Endpoints
	logger    logrus.FieldLogger
	timeout   time.Duration
	requestID func() string
	headers   http.Header
}

// New constructs a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("auth: base url required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid base url %q: %w", baseURL, err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("auth: base url %q is not absolute", baseURL)
	}
	c := &Client{
		doer:      http.DefaultClient,
		base:      base,
		endpoints: DefaultEndpoints(),
		logger:    discardLogger(),
		timeout:   30 * time.Second,
		requestID: newRequestID,
		headers:   http.Header{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Endpoints returns the configured paths.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

type envelope struct {
	ResponseCode string          `json:"responseCode"`
	Message      string          `json:"message"`
	Result       json.RawMessage `json:"result"`
	Params       struct {
		Err    string `json:"err"`
		ErrMsg string `json:"errmsg"`
		Status string `json:"status"`
	} `json:"params"`
}

func (e envelope) failed() bool {
	if e.ResponseCode != "" && !strings.EqualFold(e.ResponseCode, ResponseOK) {
		return true
	}
	return e.Params.Err != ""
}

func (e envelope) message() string {
	for _, msg := range []string{e.Message, e.Params.ErrMsg, e.Params.Err} {
		if msg = strings.TrimSpace(msg); msg != "" {
			return msg
		}
	}
	return ""
}

func (e envelope) code() string {
	if e.ResponseCode != "" && !strings.EqualFold(e.ResponseCode, ResponseOK) {
		return e.ResponseCode
	}
	return e.Params.Err
}

type call struct {
	op     Operation
	method string
	path   string
	token  string
	body   any
	header http.Header
}

// do performs one call and decodes the envelope result into out when out is
// not nil. It returns the envelope message of successful calls.
func (c *Client) do(ctx context.Context, spec call, out any) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target, err := c.base.Parse(spec.path)
	if err != nil {
		return "", fmt.Errorf("auth: %s: invalid path %q: %w", spec.op, spec.path, err)
	}
	var body io.Reader
	if spec.body != nil {
		encoded, err := json.Marshal(spec.body)
		if err != nil {
			return "", fmt.Errorf("auth: %s: encode body: %w", spec.op, err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, spec.method, target.String(), body)
	if err != nil {
		return "", fmt.Errorf("auth: %s: build request: %w", spec.op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", c.requestID())
	for key, values := range c.headers {
		req.Header[key] = append([]string(nil), values...)
	}
	for key, values := range spec.header {
		req.Header[key] = append([]string(nil), values...)
	}
	if spec.token != "" {
		req.Header.Set("Authorization", "Bearer "+spec.token)
	}

	started := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"op": spec.op, "url": target.String()}).WithError(err).Warn("auth call failed")
		return "", fmt.Errorf("auth: %s: %w", spec.op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("auth: %s: read body: %w", spec.op, err)
	}
	c.logger.WithFields(logrus.Fields{
		"op":       spec.op,
		"status":   resp.StatusCode,
		"duration": time.Since(started),
	}).Debug("auth call")

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (decodeErr == nil && env.failed()) {
		return "", c.apiError(spec.op, resp, env)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("auth: %s: decode envelope: %w", spec.op, decodeErr)
	}
	if out != nil && len(env.Result) > 0 && string(env.Result) != "null" {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return "", fmt.Errorf("auth: %s: decode result: %w", spec.op, err)
		}
	}
	return env.message(), nil
}

func (c *Client) apiError(op Operation, resp *http.Response, env envelope) *APIError {
	apiErr := &APIError{
		Op:      op,
		Status:  resp.StatusCode,
		Code:    env.code(),
		Message: env.message(),
	}
	apiErr.Kind = Classify(op, apiErr.Status, apiErr.Code, apiErr.Message)
	if apiErr.Kind == KindRateLimited {
		apiErr.RetryAfter = retryAfter(resp.Header.Get("Retry-After"), apiErr.Message)
	}
	c.logger.WithFields(logrus.Fields{
		"op":     op,
		"status": apiErr.Status,
		"code":   apiErr.Code,
		"kind":   apiErr.Kind,
	}).Info("auth call rejected")
	return apiErr
}

// Signin exchanges credentials for tokens.
func (c *Client) Signin(ctx context.Context, creds Credentials) (Tokens, error) {
	var tokens Tokens
	_, err := c.do(ctx, call{op: OpSignin, method: http.MethodPost, path: c.endpoints.Signin, body: creds}, &tokens)
	if err != nil {
		return Tokens{}, err
	}
	return tokens, nil
}

// Authenticate reads the profile of the token's user.
func (c *Client) Authenticate(ctx context.Context, token string) (Profile, error) {
	var profile Profile
	_, err := c.do(ctx, call{op: OpAuthenticate, method: http.MethodGet, path: c.endpoints.Authenticate, token: token}, &profile)
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Tenants lists the tenants visible to the token's user.
func (c *Client) Tenants(ctx context.Context, token string) ([]Tenant, error) {
	var tenants []Tenant
	_, err := c.do(ctx, call{op: OpTenants, method: http.MethodGet, path: c.endpoints.Tenants, token: token}, &tenants)
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

// SendOTP requests a registration OTP. It returns the server message.
func (c *Client) SendOTP(ctx context.Context, req OTPRequest) (string, error) {
	return c.do(ctx, call{op: OpSendOTP, method: http.MethodPost, path: c.endpoints.SendOTP, body: req}, nil)
}

// VerifyOTP confirms a password-reset OTP.
func (c *Client) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (string, error) {
	return c.do(ctx, call{op: OpVerifyOTP, method: http.MethodPost, path: c.endpoints.VerifyOTP, body: req}, nil)
}

// RegisterUser creates the account. The request carries the OTP, so this
// call also verifies it.
func (c *Client) RegisterUser(ctx context.Context, req RegisterRequest) (Registration, error) {
	var reg Registration
	msg, err := c.do(ctx, call{op: OpRegister, method: http.MethodPost, path: c.endpoints.Register, body: req}, &reg)
	if err != nil {
		return Registration{}, err
	}
	reg.Message = msg
	return reg, nil
}

// ResetPassword sets a new password once the reset OTP is verified.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) (string, error) {
	return c.do(ctx, call{op: OpResetPassword, method: http.MethodPost, path: c.endpoints.ResetPassword, body: req}, nil)
}

// SendForgetOTP requests a password-reset OTP.
func (c *Client) SendForgetOTP(ctx context.Context, req ForgetOTPRequest) (string, error) {
	return c.do(ctx, call{op: OpForgetOTP, method: http.MethodPost, path: c.endpoints.ForgetOTP, body: req}, nil)
}

// ReadSchema reads a form definition from the schema service.
func (c *Client) ReadSchema(ctx context.Context, query SchemaQuery) (SchemaDocument, error) {
	var result struct {
		Data struct {
			Fields SchemaDocument `json:"fields"`
		} `json:"data"`
	}
	header := http.Header{}
	if query.TenantCode != "" {
		header.Set("tenantCode", query.TenantCode)
	}
	_, err := c.do(ctx, call{op: OpReadSchema, method: http.MethodPost, path: c.endpoints.ReadSchema, body: query, header: header}, &result)
	if err != nil {
		return SchemaDocument{}, err
	}
	return result.Data.Fields, nil
}

func newRequestID() string {
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
