package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goliatone/go-formflow/pkg/validation"
)

var (
	mobilePattern     = regexp.MustCompile(validation.MobilePattern)
	emailPattern      = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	identifierPattern = regexp.MustCompile(`^(?:[a-z0-9_-]{3,40}|[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,})$`)
)

// Login signs in, reads the profile and checks it against orgID. An empty
// orgID skips the organisation check.
func (c *Client) Login(ctx context.Context, creds Credentials, orgID string) (LoginResult, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	tokens, err := c.Signin(ctx, creds)
	if err != nil {
		return LoginResult{}, relabel(err, OpLogin)
	}
	if tokens.AccessToken == "" {
		return LoginResult{}, &APIError{Op: OpLogin, Kind: KindInvalidCredentials, Message: MessageInvalidCredentials}
	}

	profile, err := c.Authenticate(ctx, tokens.AccessToken)
	if err != nil {
		return LoginResult{}, relabel(err, OpLogin)
	}
	if strings.EqualFold(profile.Status, StatusArchived) {
		return LoginResult{}, &APIError{Op: OpLogin, Kind: KindUserArchived, Message: MessageUserArchived}
	}
	tenantID := profile.PrimaryTenant()
	if orgID != "" && tenantID != orgID {
		return LoginResult{}, &APIError{
			Op:      OpLogin,
			Kind:    KindOrganisationMismatch,
			Message: MessageOrganisationMismatch,
			Code:    fmt.Sprintf("tenant %q", tenantID),
		}
	}

	result := LoginResult{Tokens: tokens, Profile: profile}
	tenants, err := c.Tenants(ctx, tokens.AccessToken)
	if err != nil {
		// The tenant list only enriches the result.
		c.logger.WithError(err).WithField("tenant", tenantID).Warn("tenant list unavailable")
		return result, nil
	}
	for _, tenant := range tenants {
		if tenant.TenantID == tenantID {
			result.Tenant = tenant
			break
		}
	}
	return result, nil
}

// relabel reports the sign-in steps of a login under OpLogin, keeping the
// classification.
func relabel(err error, op Operation) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	out := *apiErr
	out.Op = op
	if out.Kind == KindUnknown {
		out.Kind = Classify(op, out.Status, out.Code, out.Message)
	}
	return &out
}

// IsMobile reports whether identifier is a 10 digit mobile number.
func IsMobile(identifier string) bool {
	return mobilePattern.MatchString(strings.TrimSpace(identifier))
}

// IsEmail reports whether identifier looks like an email address.
func IsEmail(identifier string) bool {
	return emailPattern.MatchString(strings.TrimSpace(identifier))
}

// IsIdentifier reports whether identifier is a mobile, an email or a
// lowercase username.
func IsIdentifier(identifier string) bool {
	identifier = strings.TrimSpace(identifier)
	return IsMobile(identifier) || identifierPattern.MatchString(identifier)
}

// PhoneCodeFor returns PhoneCode for mobile identifiers and "" otherwise.
func PhoneCodeFor(identifier string) string {
	if IsMobile(identifier) {
		return PhoneCode
	}
	return ""
}
