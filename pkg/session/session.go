// Package session carries the per-user request context (tenant, token,
// academic year) explicitly instead of reading it from ambient storage.
package session

import (
	"strings"
)

// Context is the request context handed to option fetches and auth calls.
// The zero value is usable and resolves every attribute to "".
type Context struct {
	TenantID       string
	TenantCode     string
	Token          string
	AcademicYearID string
	OrgID          string
	// Extras resolves header placeholders outside the fixed attribute set.
	Extras map[string]string
}

// Option mutates a Context.
type Option func(*Context)

// WithTenant sets the tenant id and code.
func WithTenant(id, code string) Option {
	return func(c *Context) {
		c.TenantID = id
		c.TenantCode = code
	}
}

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Context) {
		c.Token = token
	}
}

// WithAcademicYear sets the academic year id.
func WithAcademicYear(id string) Option {
	return func(c *Context) {
		c.AcademicYearID = id
	}
}

// WithOrg sets the organisation id sent as org-id.
func WithOrg(id string) Option {
	return func(c *Context) {
		c.OrgID = id
	}
}

// WithExtra sets an extra header attribute.
func WithExtra(key, value string) Option {
	return func(c *Context) {
		if c.Extras == nil {
			c.Extras = map[string]string{}
		}
		c.Extras[key] = value
	}
}

// New builds a Context.
func New(opts ...Option) Context {
	var c Context
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// With returns a copy of c with opts applied.
func (c Context) With(opts ...Option) Context {
	out := c
	if c.Extras != nil {
		out.Extras = make(map[string]string, len(c.Extras))
		for k, v := range c.Extras {
			out.Extras[k] = v
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

// Tenant returns the tenant id, falling back to the tenant code.
func (c Context) Tenant() string {
	if c.TenantID != "" {
		return c.TenantID
	}
	return c.TenantCode
}

// Bearer returns the Authorization header value, empty without a token.
func (c Context) Bearer() string {
	token := strings.TrimSpace(c.Token)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return token
	}
	return "Bearer " + token
}

// Header resolves a header placeholder by header name. ok is false when the
// name is unknown.
func (c Context) Header(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tenantid", "tenant-id", "x-tenant-id":
		return c.Tenant(), true
	case "tenantcode", "tenant-code":
		return c.TenantCode, true
	case "authorization":
		return c.Bearer(), true
	case "academicyearid", "academic-year-id":
		return c.AcademicYearID, true
	case "org-id", "orgid":
		return c.OrgID, true
	}
	if value, ok := c.Extras[name]; ok {
		return value, true
	}
	for key, value := range c.Extras {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return "", false
}
