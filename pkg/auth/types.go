package auth

import (
	"github.com/goliatone/go-formflow/pkg/schema"
)

// Endpoints are the backend paths, relative to the client base URL.
type Endpoints struct {
	Signin        string `mapstructure:"signin" yaml:"signin"`
	Authenticate  string `mapstructure:"authenticate" yaml:"authenticate"`
	SendOTP       string `mapstructure:"send_otp" yaml:"send_otp"`
	VerifyOTP     string `mapstructure:"verify_otp" yaml:"verify_otp"`
	Register      string `mapstructure:"register" yaml:"register"`
	ResetPassword string `mapstructure:"reset_password" yaml:"reset_password"`
	ForgetOTP     string `mapstructure:"forget_otp" yaml:"forget_otp"`
	ReadSchema    string `mapstructure:"read_schema" yaml:"read_schema"`
	Tenants       string `mapstructure:"tenants" yaml:"tenants"`
}

// DefaultEndpoints returns the user-service paths.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Signin:        "/user/v1/account/login",
		Authenticate:  "/user/v1/user/read",
		SendOTP:       "/user/v1/account/registrationOtp",
		VerifyOTP:     "/user/v1/account/verifyOtp",
		Register:      "/user/v1/account/create",
		ResetPassword: "/user/v1/account/resetPassword",
		ForgetOTP:     "/user/v1/account/generateOtp",
		ReadSchema:    "/user/v1/form/read",
		Tenants:       "/user/v1/tenant/list",
	}
}

// merge fills empty paths from defaults.
func (e Endpoints) merge(defaults Endpoints) Endpoints {
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Endpoints{
		Signin:        pick(e.Signin, defaults.Signin),
		Authenticate:  pick(e.Authenticate, defaults.Authenticate),
		SendOTP:       pick(e.SendOTP, defaults.SendOTP),
		VerifyOTP:     pick(e.VerifyOTP, defaults.VerifyOTP),
		Register:      pick(e.Register, defaults.Register),
		ResetPassword: pick(e.ResetPassword, defaults.ResetPassword),
		ForgetOTP:     pick(e.ForgetOTP, defaults.ForgetOTP),
		ReadSchema:    pick(e.ReadSchema, defaults.ReadSchema),
		Tenants:       pick(e.Tenants, defaults.Tenants),
	}
}

// Credentials identify a user at sign-in.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Tokens are issued by sign-in and registration.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TenantRef links a user profile to a tenant.
type TenantRef struct {
	TenantID string `json:"tenantId"`
}

// Profile is the authenticated user.
type Profile struct {
	UserID     string      `json:"userId"`
	Username   string      `json:"username"`
	FirstName  string      `json:"firstName"`
	Status     string      `json:"status"`
	TenantData []TenantRef `json:"tenantData"`
}

// StatusArchived marks a deactivated account.
const StatusArchived = "archived"

// PrimaryTenant returns the first tenant id of the profile.
func (p Profile) PrimaryTenant() string {
	if len(p.TenantData) == 0 {
		return ""
	}
	return p.TenantData[0].TenantID
}

// Tenant is an entry of the tenant list.
type Tenant struct {
	TenantID         string `json:"tenantId"`
	Name             string `json:"name,omitempty"`
	ChannelID        string `json:"channelId,omitempty"`
	ContentFramework string `json:"contentFramework,omitempty"`
}

// LoginResult is a completed login.
type LoginResult struct {
	Tokens  Tokens
	Profile Profile
	// Tenant is the matched entry of the tenant list, zero when the list did
	// not contain the user's tenant.
	Tenant Tenant
}

// OTPRequest asks the backend to send a registration OTP.
type OTPRequest struct {
	Name             string `json:"name"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	PhoneCode        string `json:"phone_code,omitempty"`
	Password         string `json:"password"`
	RegistrationCode string `json:"registration_code"`
}

// CustomField is a non-core attribute value, keyed by its attribute id.
type CustomField struct {
	FieldID string `json:"fieldId"`
	Value   any    `json:"value"`
}

// RegisterRequest creates an account, carrying the OTP the user received.
type RegisterRequest struct {
	Name                 string        `json:"name"`
	Username             string        `json:"username"`
	Password             string        `json:"password"`
	Email                string        `json:"email,omitempty"`
	Phone                string        `json:"phone,omitempty"`
	PhoneCode            string        `json:"phone_code,omitempty"`
	State                string        `json:"state"`
	District             string        `json:"district"`
	Block                string        `json:"block"`
	Cluster              string        `json:"cluster"`
	School               string        `json:"school"`
	RegistrationCode     string        `json:"registration_code"`
	ProfessionalRole     string        `json:"professional_role,omitempty"`
	ProfessionalSubroles []string      `json:"professional_subroles"`
	OTP                  int           `json:"otp,omitempty"`
	CustomFields         []CustomField `json:"customFields,omitempty"`
}

// Organization is a membership returned with a new account.
type Organization struct {
	ID any `json:"id"`
}

// RegisteredUser is the account created by RegisterUser.
type RegisteredUser struct {
	ID            any            `json:"id"`
	Name          string         `json:"name"`
	Username      string         `json:"username"`
	Organizations []Organization `json:"organizations"`
}

// Registration is the RegisterUser result.
type Registration struct {
	Tokens
	Status  string         `json:"status"`
	User    RegisteredUser `json:"user"`
	Message string         `json:"-"`
}

// OrgID returns the first organisation id as a string.
func (r Registration) OrgID() string {
	if len(r.User.Organizations) == 0 {
		return ""
	}
	return schema.Stringify(r.User.Organizations[0].ID)
}

// ForgetOTPRequest asks for a password-reset OTP.
type ForgetOTPRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	PhoneCode  string `json:"phone_code,omitempty"`
}

// VerifyOTPRequest confirms a password-reset OTP.
type VerifyOTPRequest struct {
	Identifier string `json:"identifier"`
	PhoneCode  string `json:"phone_code,omitempty"`
	Password   string `json:"password"`
	OTP        int    `json:"otp"`
}

// ResetPasswordRequest sets a new password for a verified identifier.
type ResetPasswordRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	OTP        int    `json:"otp,omitempty"`
}

// SchemaQuery selects a form from the schema service.
type SchemaQuery struct {
	Type       string `json:"type"`
	SubType    string `json:"subType,omitempty"`
	TenantCode string `json:"-"`
}

// SchemaDocument is the schema service read result.
type SchemaDocument struct {
	Fields []schema.FieldDef `json:"result"`
	Meta   map[string]any    `json:"meta"`
}

// Convert builds the schema and ui schema, attaching the meta block.
func (d SchemaDocument) Convert() (schema.Conversion, error) {
	conv, err := schema.FromFieldDefs(d.Fields)
	if err != nil {
		return schema.Conversion{}, err
	}
	if len(d.Meta) > 0 {
		conv.Schema.Meta = d.Meta
	}
	return conv, nil
}
