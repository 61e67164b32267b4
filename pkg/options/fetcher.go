package options

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/session"
)

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestIDHeader carries a per-request id for tracing on the backend.
const RequestIDHeader = "X-Request-ID"

// Update is the fetched enumeration for one field.
type Update struct {
	Field  string
	Values []string
	Labels []string
	// Err is set when the fetch failed and the placeholder enumeration was
	// substituted.
	Err error
}

// Failed reports whether the update carries the placeholder enumeration.
func (u Update) Failed() bool {
	return u.Err != nil
}

// PlaceholderUpdate is the update applied when a field's options cannot be
// resolved.
func PlaceholderUpdate(field string, err error) Update {
	return Update{
		Field:  field,
		Values: []string{schema.PlaceholderOption},
		Labels: []string{schema.PlaceholderOption},
		Err:    err,
	}
}

// ClearUpdate empties a field's enumeration.
func ClearUpdate(field string) Update {
	return Update{Field: field, Values: []string{}, Labels: []string{}}
}

// ErrHostNotAllowed is returned when an api url points outside the allowed
// hosts.
var ErrHostNotAllowed = errors.New("options: host not allowed")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Field  string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("options: fetch %q: unexpected status %d", e.Field, e.Status)
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithDoer sets the HTTP transport.
func WithDoer(doer Doer) Option {
	return func(f *Fetcher) {
		if doer != nil {
			f.doer = doer
		}
	}
}

// WithBaseURL resolves relative api urls against base.
func WithBaseURL(base string) Option {
	return func(f *Fetcher) {
		base = strings.TrimSpace(base)
		if base == "" {
			f.base = nil
			return
		}
		parsed, err := url.Parse(base)
		if err != nil {
			f.initErr = fmt.Errorf("options: invalid base url %q: %w", base, err)
			return
		}
		f.base = parsed
	}
}

// WithAllowedHosts restricts api urls to the given hosts. Entries are
// host names or host:port pairs; base url hosts are always allowed. Without
// this option any absolute url is fetched.
func WithAllowedHosts(hosts ...string) Option {
	return func(f *Fetcher) {
		if f.allowed == nil {
			f.allowed = map[string]struct{}{}
		}
		for _, host := range hosts {
			if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
				f.allowed[host] = struct{}{}
			}
		}
	}
}

// WithLogger sets the logger used for fetch failures.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics sets the fetch observer.
func WithMetrics(m Metrics) Option {
	return func(f *Fetcher) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithRequestTimeout bounds each request.
func WithRequestTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithConcurrency caps the number of in-flight requests of a pass.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.limit = n
		}
	}
}

// WithRequestID overrides the request id generator.
func WithRequestID(fn func() string) Option {
	return func(f *Fetcher) {
		if fn != nil {
			f.requestID = fn
		}
	}
}

// WithLabelTransform post-processes sanitised labels.
func WithLabelTransform(fn func(string) string) Option {
	return func(f *Fetcher) {
		f.labelTransform = fn
	}
}

// Fetcher runs fetch passes. It is safe for concurrent use.
type Fetcher struct {
	doer           Doer
	base           *url.URL
	logger         logrus.FieldLogger
	metrics        Metrics
	timeout        time.Duration
	limit          int
	requestID      func() string
	labelTransform func(string) string
	allowed        map[string]struct{}
	initErr        error
}

// New constructs a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		doer:      http.DefaultClient,
		logger:    discardLogger(),
		metrics:   noopMetrics{},
		timeout:   15 * time.Second,
		requestID: newRequestID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Err returns the first configuration error.
func (f *Fetcher) Err() error {
	return f.initErr
}

// Fetch requests every named field in parallel and waits for all of them.
// Updates follow the order of names. Failures produce placeholder updates
// without affecting other fields.
func (f *Fetcher) Fetch(ctx context.Context, s *schema.Schema, sess session.Context, names []string, data schema.FormData) []Update {
	updates := make([]Update, len(names))
	var g errgroup.Group
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}
	for idx, name := range names {
		g.Go(func() error {
			updates[idx] = f.FetchField(ctx, s, sess, name, data)
			return nil
		})
	}
	_ = g.Wait()
	return updates
}

// FetchField requests the options of a single field. A dependent field whose
// controller is empty yields a ClearUpdate without a request.
func (f *Fetcher) FetchField(ctx context.Context, s *schema.Schema, sess session.Context, name string, data schema.FormData) Update {
	field, ok := s.Field(name)
	if !ok || field.API == nil {
		return PlaceholderUpdate(name, fmt.Errorf("options: field %q has no api block", name))
	}
	api := field.API

	var (
		controllerValue any
		hasController   bool
	)
	if api.CallType == schema.CallTypeDependent {
		controllerValue = data[api.Dependent]
		if schema.IsEmpty(controllerValue) {
			return ClearUpdate(name)
		}
		hasController = true
	}

	started := time.Now()
	update, err := f.fetch(ctx, field, sess, controllerValue, hasController)
	elapsed := time.Since(started)
	if err != nil {
		outcome := OutcomeError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			outcome = OutcomeCancelled
		} else {
			f.logger.WithFields(logrus.Fields{
				"field": name,
				"url":   api.URL,
			}).WithError(err).Warn("option fetch failed")
		}
		f.metrics.ObserveFetch(name, outcome, elapsed)
		return PlaceholderUpdate(name, err)
	}
	f.metrics.ObserveFetch(name, OutcomeSuccess, elapsed)
	return update
}

func (f *Fetcher) fetch(ctx context.Context, field *schema.Field, sess session.Context, controllerValue any, hasController bool) (Update, error) {
	if f.initErr != nil {
		return Update{}, f.initErr
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	req, err := f.BuildRequest(ctx, field, sess, controllerValue, hasController)
	if err != nil {
		return Update{}, err
	}
	resp, err := f.doer.Do(req)
	if err != nil {
		return Update{}, fmt.Errorf("options: fetch %q: %w", field.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Update{}, &StatusError{Field: field.Name, Status: resp.StatusCode}
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Update{}, fmt.Errorf("options: decode %q: %w", field.Name, err)
	}
	values, labels, err := f.project(field.API.Options, body)
	if err != nil {
		return Update{}, fmt.Errorf("options: project %q: %w", field.Name, err)
	}
	return Update{Field: field.Name, Values: values, Labels: labels}, nil
}

// BuildRequest renders the api block of field into an HTTP request. Header
// placeholders resolve from sess; payload placeholders resolve to the
// controller value, wrapped in a list for multi-select fields and null when
// there is no controller.
func (f *Fetcher) BuildRequest(ctx context.Context, field *schema.Field, sess session.Context, controllerValue any, hasController bool) (*http.Request, error) {
	api := field.API
	method := strings.ToUpper(strings.TrimSpace(api.Method))
	if method == "" {
		method = http.MethodGet
	}
	target, err := f.resolveURL(api.URL)
	if err != nil {
		return nil, fmt.Errorf("options: field %q: %w", field.Name, err)
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead && !api.Payload.IsZero() {
		substitute := payloadValue(controllerValue, hasController, field.IsMultiSelect)
		payload := api.Payload.Resolve(func([]string) any { return substitute })
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("options: encode payload for %q: %w", field.Name, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("options: build request for %q: %w", field.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, f.requestID())
	for key, value := range resolveHeaders(api.Header, sess) {
		if value != "" {
			req.Header.Set(key, value)
		}
	}
	return req, nil
}

func (f *Fetcher) resolveURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if !parsed.IsAbs() {
		if f.base == nil {
			return "", fmt.Errorf("relative url %q without base url", raw)
		}
		parsed = f.base.ResolveReference(parsed)
	}
	if !f.hostAllowed(parsed) {
		return "", fmt.Errorf("%w: %s", ErrHostNotAllowed, parsed.Host)
	}
	return parsed.String(), nil
}

func (f *Fetcher) hostAllowed(target *url.URL) bool {
	if f.allowed == nil {
		return true
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return false
	}
	host := strings.ToLower(target.Host)
	if f.base != nil && host == strings.ToLower(f.base.Host) {
		return true
	}
	if _, ok := f.allowed[host]; ok {
		return true
	}
	_, ok := f.allowed[strings.ToLower(target.Hostname())]
	return ok
}

func payloadValue(value any, hasController, multi bool) any {
	if !hasController {
		return nil
	}
	if list, ok := asList(value); ok {
		keys := make([]any, 0, len(list))
		for _, item := range list {
			keys = append(keys, schema.OptionKey(item))
		}
		return keys
	}
	key := schema.OptionKey(value)
	if multi {
		return []any{key}
	}
	return key
}

// resolveHeaders renders a header template. Only top-level keys become
// headers; placeholders use the session attribute named by the key.
func resolveHeaders(tpl schema.Template, sess session.Context) map[string]string {
	if tpl.IsZero() {
		return nil
	}
	resolved, ok := tpl.Resolve(func(path []string) any {
		if len(path) == 0 {
			return nil
		}
		value, _ := sess.Header(path[0])
		return value
	}).(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(resolved))
	for key, value := range resolved {
		out[key] = schema.Stringify(value)
	}
	return out
}

func (f *Fetcher) project(mapping schema.OptionMapping, body any) ([]string, []string, error) {
	records, ok := asList(lookup(body, mapping.OptionObj))
	if !ok {
		return nil, nil, fmt.Errorf("path %q is not a list", mapping.OptionObj)
	}
	values := make([]string, 0, len(records))
	labels := make([]string, 0, len(records))
	for _, record := range records {
		value := schema.Stringify(lookup(record, mapping.Value))
		label := f.label(schema.Stringify(lookup(record, mapping.Label)))
		values = append(values, value)
		labels = append(labels, label)
	}
	return values, labels, nil
}

func (f *Fetcher) label(raw string) string {
	label := strings.TrimSpace(html.UnescapeString(labelSanitizer().Sanitize(raw)))
	if f.labelTransform != nil {
		label = f.labelTransform(label)
	}
	return label
}

// lookup walks a dotted path through decoded JSON. An empty path returns
// the value itself.
func lookup(value any, path string) any {
	path = strings.TrimSpace(path)
	if path == "" {
		return value
	}
	current := value
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}

func asList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for idx, item := range v {
			out[idx] = item
		}
		return out, true
	default:
		return nil, false
	}
}

var (
	labelPolicyOnce sync.Once
	labelPolicy     *bluemonday.Policy
)

func labelSanitizer() *bluemonday.Policy {
	labelPolicyOnce.Do(func() {
		labelPolicy = bluemonday.StrictPolicy()
	})
	return labelPolicy
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
