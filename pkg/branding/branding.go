// Package branding derives the tenant of a request host and resolves its
// public branding.
package branding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults used when the host or the backend do not yield a tenant.
const (
	DefaultTenant = "shikshagraha"
	DefaultLogo   = "/icons/icon-192x192.png"
	Path          = "/user/v1/public/branding"
)

var (
	skipLabels = map[string]struct{}{
		"app": {}, "www": {}, "dev": {}, "staging": {},
		"tekdinext": {}, "org": {}, "com": {}, "net": {},
	}
	envSuffixes = []string{"-qa", "-dev", "-staging"}
	aliases     = map[string]string{"shikshagrah": DefaultTenant}
)

// TenantCode returns the tenant encoded in host: the first label outside the
// skip list, with an environment suffix removed. Hosts without such a label
// map to DefaultTenant.
func TenantCode(host string) string {
	if code, ok := tenantCode(host); ok {
		return code
	}
	return DefaultTenant
}

func tenantCode(host string) (string, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			continue
		}
		if _, skip := skipLabels[label]; skip {
			continue
		}
		for _, suffix := range envSuffixes {
			if strings.HasSuffix(label, suffix) {
				label = strings.TrimSuffix(label, suffix)
				break
			}
		}
		if alias, ok := aliases[label]; ok {
			label = alias
		}
		return label, label != ""
	}
	return "", false
}

// Branding is the app identity shown for a tenant.
type Branding struct {
	AppName string `json:"appName"`
	Logo    string `json:"logo"`
	Tenant  string `json:"tenant"`
	// Fallback is set when the backend did not supply the branding.
	Fallback bool `json:"fallback"`
}

// Doer executes HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDoer sets the HTTP transport.
func WithDoer(doer Doer) Option {
	return func(r *Resolver) {
		if doer != nil {
			r.doer = doer
		}
	}
}

// WithBaseURL sets the user service base url. Without it every host
// resolves to its fallback branding.
func WithBaseURL(base string) Option {
	return func(r *Resolver) {
		r.base = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithLogger sets the logger used for fetch failures.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTimeout bounds the branding request.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithFallbackTenant replaces the tenant used when the host does not name
// one.
func WithFallbackTenant(code string) Option {
	return func(r *Resolver) {
		if code = strings.TrimSpace(code); code != "" {
			r.fallbackTenant = code
		}
	}
}

// Resolver fetches branding per host.
type Resolver struct {
	doer           Doer
	base           string
	logger         logrus.FieldLogger
	timeout        time.Duration
	fallbackTenant string
}

// New constructs a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		doer:           http.DefaultClient,
		timeout:        5 * time.Second,
		fallbackTenant: DefaultTenant,
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r.logger = logger
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Tenant returns the tenant code of host, honouring the fallback tenant.
func (r *Resolver) Tenant(host string) string {
	if code, ok := tenantCode(host); ok {
		return code
	}
	return r.fallbackTenant
}

// Resolve returns the branding of host. Backend failures are logged and
// yield the fallback branding; Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, host string) Branding {
	tenant := r.Tenant(host)
	fallback := Branding{AppName: tenant, Logo: DefaultLogo, Tenant: tenant, Fallback: true}
	if r.base == "" {
		return fallback
	}
	fetched, err := r.fetch(ctx, host)
	if err != nil {
		r.logger.WithFields(logrus.Fields{"host": host, "tenant": tenant}).WithError(err).Warn("branding unavailable")
		return fallback
	}
	out := Branding{AppName: tenant, Logo: DefaultLogo, Tenant: tenant}
	if fetched.Code != "" {
		out.AppName = fetched.Code
	}
	switch {
	case fetched.LogoURL != "":
		out.Logo = fetched.LogoURL
	case fetched.Logo != "":
		out.Logo = fetched.Logo
	}
	return out
}

type payload struct {
	Code    string `json:"code"`
	LogoURL string `json:"logoUrl"`
	Logo    string `json:"logo"`
}

func (r *Resolver) fetch(ctx context.Context, host string) (payload, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	target, err := url.JoinPath(r.base, Path)
	if err != nil {
		return payload{}, fmt.Errorf("branding: invalid base url %q: %w", r.base, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return payload{}, fmt.Errorf("branding: build request: %w", err)
	}
	req.Header.Set("Origin", "https://"+strings.ToLower(strings.TrimSpace(host)))
	req.Header.Set("Cache-Control", "no-store")

	resp, err := r.doer.Do(req)
	if err != nil {
		return payload{}, fmt.Errorf("branding: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return payload{}, fmt.Errorf("branding: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		Result payload `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return payload{}, fmt.Errorf("branding: decode: %w", err)
	}
	return body.Result, nil
}
