package auth_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formflow/pkg/auth"
	"github.com/goliatone/go-formflow/pkg/testsupport"
)

const backend = "http://users.test"

func ok(result any) http.HandlerFunc {
	return testsupport.JSONResponse(http.StatusOK, map[string]any{
		"responseCode": "OK",
		"result":       result,
	})
}

func fail(status int, code, message string) http.HandlerFunc {
	return testsupport.JSONResponse(status, map[string]any{
		"responseCode": code,
		"message":      message,
	})
}

func newClient(t *testing.T, mux http.Handler, opts ...auth.Option) (*auth.Client, *testsupport.HandlerDoer) {
	t.Helper()
	doer := testsupport.NewHandlerDoer(mux)
	opts = append([]auth.Option{auth.WithDoer(doer), auth.WithRequestID(func() string { return "rid" })}, opts...)
	client, err := auth.New(backend, opts...)
	require.NoError(t, err)
	return client, doer
}

func loginMux(status string, tenantID string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /user/v1/account/login", ok(map[string]any{"access_token": "at", "refresh_token": "rt"}))
	mux.Handle("GET /user/v1/user/read", ok(map[string]any{
		"userId":     "u1",
		"username":   "asha",
		"firstName":  "Asha",
		"status":     status,
		"tenantData": []any{map[string]any{"tenantId": tenantID}},
	}))
	mux.Handle("GET /user/v1/tenant/list", ok([]any{
		map[string]any{"tenantId": "other", "channelId": "c0"},
		map[string]any{"tenantId": "shikshagraha", "channelId": "c1", "contentFramework": "fw"},
	}))
	return mux
}

func TestNew_RequiresAbsoluteBase(t *testing.T) {
	t.Parallel()

	_, err := auth.New("")
	assert.Error(t, err)
	_, err = auth.New("/relative")
	assert.Error(t, err)
}

func TestLogin_Success(t *testing.T) {
	t.Parallel()

	client, doer := newClient(t, loginMux("ACTIVE", "shikshagraha"))
	result, err := client.Login(testsupport.Context(), auth.Credentials{Username: " asha ", Password: "pw"}, "shikshagraha")
	require.NoError(t, err)

	assert.Equal(t, "at", result.Tokens.AccessToken)
	assert.Equal(t, "u1", result.Profile.UserID)
	assert.Equal(t, "c1", result.Tenant.ChannelID)
	assert.Equal(t, "fw", result.Tenant.ContentFramework)

	signin, found := doer.Last("/user/v1/account/login")
	require.True(t, found)
	assert.Equal(t, map[string]any{"username": "asha", "password": "pw"}, signin.JSON())
	assert.Equal(t, "rid", signin.Header.Get("X-Request-ID"))

	profile, _ := doer.Last("/user/v1/user/read")
	assert.Equal(t, "Bearer at", profile.Header.Get("Authorization"))
}

func TestLogin_Failures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mux     http.Handler
		orgID   string
		target  error
		kind    auth.Kind
		message string
	}{
		{
			name:    "archived",
			mux:     loginMux("archived", "shikshagraha"),
			orgID:   "shikshagraha",
			target:  auth.ErrUserArchived,
			kind:    auth.KindUserArchived,
			message: auth.MessageUserArchived,
		},
		{
			name:    "other organisation",
			mux:     loginMux("ACTIVE", "elsewhere"),
			orgID:   "shikshagraha",
			target:  auth.ErrOrganisationMismatch,
			kind:    auth.KindOrganisationMismatch,
			message: auth.MessageOrganisationMismatch,
		},
		{
			name: "no token",
			mux: func() http.Handler {
				mux := http.NewServeMux()
				mux.Handle("POST /user/v1/account/login", ok(map[string]any{}))
				return mux
			}(),
			target:  auth.ErrInvalidCredentials,
			kind:    auth.KindInvalidCredentials,
			message: auth.MessageInvalidCredentials,
		},
		{
			name: "unauthorized",
			mux: func() http.Handler {
				mux := http.NewServeMux()
				mux.Handle("POST /user/v1/account/login", fail(http.StatusUnauthorized, "UNAUTHORIZED", "bad password"))
				return mux
			}(),
			target:  auth.ErrInvalidCredentials,
			kind:    auth.KindInvalidCredentials,
			message: auth.MessageInvalidCredentials,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client, _ := newClient(t, tc.mux)
			_, err := client.Login(testsupport.Context(), auth.Credentials{Username: "asha", Password: "pw"}, tc.orgID)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.target), "expected %v, got %v", tc.target, err)
			assert.Equal(t, tc.kind, auth.KindOf(err))
			assert.Equal(t, tc.message, auth.UserMessage(err))

			var apiErr *auth.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, auth.OpLogin, apiErr.Op)
		})
	}
}

func TestLogin_TenantListIsOptional(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.Handle("POST /user/v1/account/login", ok(map[string]any{"access_token": "at"}))
	mux.Handle("GET /user/v1/user/read", ok(map[string]any{"userId": "u1", "tenantData": []any{map[string]any{"tenantId": "t1"}}}))
	client, _ := newClient(t, mux)

	result, err := client.Login(testsupport.Context(), auth.Credentials{Username: "asha"}, "")
	require.NoError(t, err)
	assert.Empty(t, result.Tenant.TenantID)
	assert.Equal(t, "t1", result.Profile.PrimaryTenant())
}

func TestRegisterUser(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.Handle("POST /user/v1/account/create", testsupport.JSONResponse(http.StatusOK, map[string]any{
		"responseCode": "OK",
		"message":      "User created",
		"result": map[string]any{
			"access_token":  "at",
			"refresh_token": "rt",
			"status":        "ACTIVE",
			"user": map[string]any{
				"id":            42,
				"name":          "asha",
				"username":      "asha_1",
				"organizations": []any{map[string]any{"id": 7}},
			},
		},
	}))
	client, doer := newClient(t, mux)

	reg, err := client.RegisterUser(testsupport.Context(), auth.RegisterRequest{
		Name:                 "asha",
		Username:             "asha_1",
		Password:             "Secret@123",
		Phone:                "9876543210",
		PhoneCode:            auth.PhoneCode,
		State:                "s1",
		RegistrationCode:     "27",
		ProfessionalSubroles: []string{"12"},
		OTP:                  123456,
	})
	require.NoError(t, err)
	assert.Equal(t, "7", reg.OrgID())
	assert.Equal(t, "User created", reg.Message)
	assert.Equal(t, "at", reg.AccessToken)

	req, _ := doer.Last("/user/v1/account/create")
	body := req.JSON()
	assert.Equal(t, float64(123456), body["otp"])
	assert.Equal(t, "+91", body["phone_code"])
	assert.NotContains(t, body, "email")
	assert.Equal(t, []any{"12"}, body["professional_subroles"])
}

func TestAPIErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		handler    http.HandlerFunc
		send       func(*auth.Client) error
		kind       auth.Kind
		retryAfter time.Duration
		message    string
	}{
		{
			name:    "too many requests text",
			handler: fail(http.StatusBadRequest, "CLIENT_ERROR", auth.CodeTooManyRequests),
			send: func(c *auth.Client) error {
				_, err := c.SendOTP(testsupport.Context(), auth.OTPRequest{Name: "a"})
				return err
			},
			kind:       auth.KindRateLimited,
			retryAfter: auth.DefaultRetryAfter,
			message:    "You've reached the request limit. Please try again in 2:00.",
		},
		{
			name: "429 with retry header",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "90")
				fail(http.StatusTooManyRequests, "", "slow down")(w, r)
			},
			send: func(c *auth.Client) error {
				_, err := c.SendForgetOTP(testsupport.Context(), auth.ForgetOTPRequest{Identifier: "asha"})
				return err
			},
			kind:       auth.KindRateLimited,
			retryAfter: 90 * time.Second,
			message:    "You've reached the request limit. Please try again in 1:30.",
		},
		{
			name:    "seconds in message",
			handler: fail(http.StatusBadRequest, "CLIENT_ERROR", "Too many attempts, try again after 45 seconds"),
			send: func(c *auth.Client) error {
				_, err := c.VerifyOTP(testsupport.Context(), auth.VerifyOTPRequest{Identifier: "asha", OTP: 1})
				return err
			},
			kind:       auth.KindRateLimited,
			retryAfter: 45 * time.Second,
			message:    "You've reached the request limit. Please try again in 0:45.",
		},
		{
			name:    "invalid organisation",
			handler: fail(http.StatusBadRequest, auth.CodeInvalidOrgRegistrationCode, "registration code not valid"),
			send: func(c *auth.Client) error {
				_, err := c.SendOTP(testsupport.Context(), auth.OTPRequest{})
				return err
			},
			kind:    auth.KindInvalidOrganisation,
			message: auth.MessageInvalidOrganisation,
		},
		{
			name:    "invalid otp on register",
			handler: fail(http.StatusBadRequest, "CLIENT_ERROR", "Invalid OTP"),
			send: func(c *auth.Client) error {
				_, err := c.RegisterUser(testsupport.Context(), auth.RegisterRequest{})
				return err
			},
			kind:    auth.KindInvalidOTP,
			message: auth.MessageInvalidOTP,
		},
		{
			name:    "register failure without otp",
			handler: fail(http.StatusBadRequest, "CLIENT_ERROR", "Invalid state"),
			send: func(c *auth.Client) error {
				_, err := c.RegisterUser(testsupport.Context(), auth.RegisterRequest{})
				return err
			},
			kind:    auth.KindUnknown,
			message: "Invalid state",
		},
		{
			name:    "expired otp",
			handler: fail(http.StatusBadRequest, "CLIENT_ERROR", "OTP expired"),
			send: func(c *auth.Client) error {
				_, err := c.VerifyOTP(testsupport.Context(), auth.VerifyOTPRequest{})
				return err
			},
			kind:    auth.KindOTPExpired,
			message: auth.MessageOTPExpired,
		},
		{
			name:    "unknown identifier",
			handler: fail(http.StatusBadRequest, "CLIENT_ERROR", "User not found"),
			send: func(c *auth.Client) error {
				_, err := c.SendForgetOTP(testsupport.Context(), auth.ForgetOTPRequest{})
				return err
			},
			kind:    auth.KindInvalidIdentifier,
			message: auth.MessageInvalidIdentifier,
		},
		{
			name:    "username taken",
			handler: fail(http.StatusBadRequest, "CLIENT_ERROR", auth.CodeUsernameTaken),
			send: func(c *auth.Client) error {
				_, err := c.SendOTP(testsupport.Context(), auth.OTPRequest{})
				return err
			},
			kind:    auth.KindUsernameTaken,
			message: auth.MessageUsernameTaken,
		},
		{
			name:    "empty failure falls back per operation",
			handler: fail(http.StatusInternalServerError, "", ""),
			send: func(c *auth.Client) error {
				_, err := c.ResetPassword(testsupport.Context(), auth.ResetPasswordRequest{})
				return err
			},
			kind:    auth.KindUnknown,
			message: "Failed to reset password. Please try again.",
		},
		{
			name:    "ok status with failed envelope",
			handler: fail(http.StatusOK, "SERVER_ERROR", "backend unavailable"),
			send: func(c *auth.Client) error {
				_, err := c.SendOTP(testsupport.Context(), auth.OTPRequest{})
				return err
			},
			kind:    auth.KindUnknown,
			message: "backend unavailable",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client, _ := newClient(t, tc.handler)
			err := tc.send(client)
			require.Error(t, err)

			var apiErr *auth.APIError
			require.True(t, errors.As(err, &apiErr), "expected *APIError, got %T", err)
			assert.Equal(t, tc.kind, apiErr.Kind)
			assert.Equal(t, tc.retryAfter, apiErr.RetryAfter)
			assert.Equal(t, tc.message, auth.UserMessage(err))
		})
	}
}

func TestNetworkErrorsAreNotAPIErrors(t *testing.T) {
	t.Parallel()

	client, err := auth.New(backend, auth.WithDoer(failingDoer{}))
	require.NoError(t, err)
	_, err = client.SendOTP(testsupport.Context(), auth.OTPRequest{})
	require.Error(t, err)
	assert.Equal(t, auth.KindNetwork, auth.KindOf(err))
	assert.Equal(t, auth.MessageGeneric, auth.UserMessage(err))
}

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestReadSchema(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.Handle("POST /user/v1/form/read", ok(map[string]any{
		"data": map[string]any{
			"fields": map[string]any{
				"result": []any{
					map[string]any{"name": "name", "label": "Name", "type": "text", "isRequired": true, "coreField": 1},
					map[string]any{"name": "udise", "label": "UDISE", "type": "text", "coreField": 0, "fieldId": "f-9"},
				},
				"meta": map[string]any{"registrationCodeConfig": map[string]any{"name": "State", "value_ref": "externalId"}},
			},
		},
	}))
	client, doer := newClient(t, mux, auth.WithEndpoints(auth.Endpoints{Signin: "/custom/login"}))
	assert.Equal(t, "/custom/login", client.Endpoints().Signin)
	assert.Equal(t, "/user/v1/form/read", client.Endpoints().ReadSchema)

	doc, err := client.ReadSchema(testsupport.Context(), auth.SchemaQuery{Type: "user", SubType: "registration", TenantCode: "shikshagraha"})
	require.NoError(t, err)
	require.Len(t, doc.Fields, 2)

	conv, err := doc.Convert()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "udise"}, conv.Schema.Names())
	assert.True(t, conv.Schema.IsRequired("name"))
	assert.Equal(t, "f-9", conv.FieldIDs["udise"])
	assert.Contains(t, conv.Schema.Meta, "registrationCodeConfig")

	req, _ := doer.Last("/user/v1/form/read")
	assert.Equal(t, "shikshagraha", req.Header.Get("tenantCode"))
	assert.Equal(t, map[string]any{"type": "user", "subType": "registration"}, req.JSON())
}

func TestIdentifierHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, auth.IsMobile("9876543210"))
	assert.False(t, auth.IsMobile("1234567890"))
	assert.Equal(t, auth.PhoneCode, auth.PhoneCodeFor("9876543210"))
	assert.Empty(t, auth.PhoneCodeFor("asha@example.com"))
	assert.True(t, auth.IsEmail("asha@example.com"))
	assert.True(t, auth.IsIdentifier("asha_1"))
	assert.False(t, auth.IsIdentifier("As"))
}
