package options_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/session"
	"github.com/goliatone/go-formflow/pkg/testsupport"
)

const backend = "http://backend.test"

type recordedMetric struct {
	field   string
	outcome string
}

type metricsRecorder struct {
	mu   sync.Mutex
	seen []recordedMetric
}

func (m *metricsRecorder) ObserveFetch(field, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, recordedMetric{field: field, outcome: outcome})
}

func registrationBackend() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /user/v1/entity-type/roles", testsupport.JSONResponse(http.StatusOK, map[string]any{
		"result": []any{
			map[string]any{"_id": "r1", "title": "Teacher"},
			map[string]any{"_id": "r2", "title": "<b>Head</b> &amp; Master"},
		},
	}))
	mux.Handle("GET /entity/v1/states", testsupport.JSONResponse(http.StatusInternalServerError, map[string]any{"message": "boom"}))
	mux.Handle("POST /user/v1/entity/subroles", testsupport.JSONResponse(http.StatusOK, map[string]any{
		"result": map[string]any{"data": []any{
			map[string]any{"externalId": 12, "title": "Science"},
			map[string]any{"externalId": true, "title": "Maths"},
		}},
	}))
	return mux
}

func TestFetch_InitialPassIsolatesFailures(t *testing.T) {
	t.Parallel()

	s, _ := testsupport.Registration(t)
	doer := testsupport.NewHandlerDoer(registrationBackend())
	metrics := &metricsRecorder{}
	logger, hook := logtest.NewNullLogger()
	fetcher := options.New(
		options.WithDoer(doer),
		options.WithBaseURL(backend),
		options.WithMetrics(metrics),
		options.WithLogger(logger),
		options.WithRequestID(func() string { return "req-1" }),
	)
	sess := session.New(session.WithTenant("", "shikshagraha"), session.WithToken("tok"), session.WithAcademicYear("ay"))

	updates := fetcher.Fetch(testsupport.Context(), s, sess, []string{"Role", "State"}, schema.FormData{})
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}

	role := updates[0]
	if role.Failed() {
		t.Fatalf("role fetch failed: %v", role.Err)
	}
	if diff := cmp.Diff([]string{"r1", "r2"}, role.Values); diff != "" {
		t.Fatalf("role values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Teacher", "Head & Master"}, role.Labels); diff != "" {
		t.Fatalf("role labels mismatch (-want +got):\n%s", diff)
	}

	state := updates[1]
	if !state.Failed() {
		t.Fatalf("expected state fetch to fail")
	}
	if diff := cmp.Diff([]string{schema.PlaceholderOption}, state.Values); diff != "" {
		t.Fatalf("placeholder mismatch (-want +got):\n%s", diff)
	}

	req, ok := doer.Last("/user/v1/entity-type/roles")
	if !ok {
		t.Fatalf("roles request not recorded")
	}
	if got := req.Header.Get("tenantId"); got != "shikshagraha" {
		t.Fatalf("tenantId header = %q", got)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("Authorization header = %q", got)
	}
	if got := req.Header.Get(options.RequestIDHeader); got != "req-1" {
		t.Fatalf("request id = %q", got)
	}
	if diff := cmp.Diff(map[string]any{"type": "professional_role"}, req.JSON()); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}

	stateReq, _ := doer.Last("/entity/v1/states")
	if stateReq.Method != http.MethodGet || len(stateReq.Body) != 0 {
		t.Fatalf("GET requests must not carry a body: %+v", stateReq)
	}
	if got := stateReq.Header.Get("academicyearid"); got != "ay" {
		t.Fatalf("academicyearid header = %q", got)
	}

	if len(hook.AllEntries()) != 1 || hook.LastEntry().Level != logrus.WarnLevel || hook.LastEntry().Data["field"] != "State" {
		t.Fatalf("expected one warn entry for State, got %+v", hook.AllEntries())
	}
	if len(metrics.seen) != 2 {
		t.Fatalf("expected 2 metric observations, got %v", metrics.seen)
	}
}

func TestFetch_DependentPayloadForMultiSelect(t *testing.T) {
	t.Parallel()

	s, _ := testsupport.Registration(t)
	doer := testsupport.NewHandlerDoer(registrationBackend())
	fetcher := options.New(options.WithDoer(doer), options.WithBaseURL(backend))

	update := fetcher.FetchField(testsupport.Context(), s, session.Context{}, "Sub-Role", schema.FormData{"Role": "r1"})
	if update.Failed() {
		t.Fatalf("sub-role fetch failed: %v", update.Err)
	}
	if diff := cmp.Diff([]string{"12", "true"}, update.Values); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}

	req, _ := doer.Last("/user/v1/entity/subroles")
	want := map[string]any{"filter": map[string]any{"parent": []any{"r1"}}}
	if diff := cmp.Diff(want, req.JSON()); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	if _, ok := req.Header["Authorization"]; ok {
		t.Fatalf("unset token must not produce an Authorization header")
	}
}

func TestFetch_EntityControllerUsesID(t *testing.T) {
	t.Parallel()

	s, _ := testsupport.Registration(t)
	mux := http.NewServeMux()
	mux.Handle("POST /entity/v1/districts", testsupport.JSONResponse(http.StatusOK, map[string]any{
		"result": []any{map[string]any{"_id": "d1", "name": "Pune"}},
	}))
	doer := testsupport.NewHandlerDoer(mux)
	fetcher := options.New(options.WithDoer(doer), options.WithBaseURL(backend))

	state := schema.Entity{ID: "s1", Name: "Maharashtra", ExternalID: "27"}
	update := fetcher.FetchField(testsupport.Context(), s, session.Context{}, "District", schema.FormData{"State": state})
	if diff := cmp.Diff([]string{"d1"}, update.Values); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	req, _ := doer.Last("/entity/v1/districts")
	if diff := cmp.Diff(map[string]any{"parentId": "s1"}, req.JSON()); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestFetch_EmptyControllerClearsWithoutRequest(t *testing.T) {
	t.Parallel()

	s, _ := testsupport.Registration(t)
	doer := testsupport.NewHandlerDoer(http.NotFoundHandler())
	fetcher := options.New(options.WithDoer(doer), options.WithBaseURL(backend))

	update := fetcher.FetchField(testsupport.Context(), s, session.Context{}, "District", schema.FormData{"State": ""})
	if update.Failed() || len(update.Values) != 0 {
		t.Fatalf("expected cleared update, got %+v", update)
	}
	if len(doer.Requests()) != 0 {
		t.Fatalf("no request expected, got %d", len(doer.Requests()))
	}
}

func TestFetch_CancelledContextYieldsPlaceholder(t *testing.T) {
	t.Parallel()

	s, _ := testsupport.Registration(t)
	gate := testsupport.NewGate()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /entity/v1/states", func(w http.ResponseWriter, r *http.Request) {
		gate.Wait(r)
	})
	metrics := &metricsRecorder{}
	fetcher := options.New(
		options.WithDoer(testsupport.NewHandlerDoer(mux)),
		options.WithBaseURL(backend),
		options.WithMetrics(metrics),
	)

	ctx, cancel := context.WithCancel(testsupport.Context())
	done := make(chan options.Update, 1)
	go func() {
		done <- fetcher.FetchField(ctx, s, session.Context{}, "State", schema.FormData{})
	}()
	cancel()

	select {
	case update := <-done:
		if !update.Failed() {
			t.Fatalf("expected cancelled fetch to fail")
		}
	case <-time.After(5 * time.Second):
		gate.Release()
		t.Fatalf("fetch did not observe cancellation")
	}
	if len(metrics.seen) != 1 || metrics.seen[0].outcome != options.OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %v", metrics.seen)
	}
}

func TestFetch_RelativeURLWithoutBaseFails(t *testing.T) {
	t.Parallel()

	s, _ := testsupport.Registration(t)
	fetcher := options.New(options.WithDoer(testsupport.NewHandlerDoer(http.NotFoundHandler())))
	update := fetcher.FetchField(testsupport.Context(), s, session.Context{}, "State", schema.FormData{})
	if !update.Failed() {
		t.Fatalf("expected failure for relative url without base")
	}
}

func TestApplyUpdatesAndStale(t *testing.T) {
	t.Parallel()

	s, _ := testsupport.Registration(t)
	updates := []options.Update{
		{Field: "State", Values: []string{"s1", "s2"}, Labels: []string{"One", "Two"}},
		{Field: "Sub-Role", Values: []string{"12"}, Labels: []string{"Science"}},
		{Field: "Unknown", Values: []string{"x"}},
	}
	merged := options.ApplyUpdates(s, updates)

	state, _ := merged.Field("State")
	if diff := cmp.Diff([]string{"One", "Two"}, state.EnumNames); diff != "" {
		t.Fatalf("state labels mismatch (-want +got):\n%s", diff)
	}
	sub, _ := merged.Field("Sub-Role")
	if sub.Items == nil || len(sub.Items.Enum) != 1 || len(sub.Enum) != 0 {
		t.Fatalf("multi-select options must land on items: %+v", sub)
	}
	if original, _ := s.Field("State"); len(original.Enum) != 0 {
		t.Fatalf("ApplyUpdates modified its input")
	}

	data := schema.FormData{"State": "s3", "Sub-Role": []any{"12"}}
	if diff := cmp.Diff([]string{"State"}, options.Stale(data, updates)); diff != "" {
		t.Fatalf("stale mismatch (-want +got):\n%s", diff)
	}
	failed := []options.Update{options.PlaceholderUpdate("State", errors.New("bad gateway"))}
	if got := options.Stale(data, failed); len(got) != 0 {
		t.Fatalf("failed updates must not invalidate values, got %v", got)
	}
}

func TestFetch_AllowedHosts(t *testing.T) {
	t.Parallel()

	s := testsupport.SchemaFrom(t, `{"type":"object","properties":{
	  "Local":{"type":"string","api":{"url":"/entity/v1/states","options":{"value":"id"},"callType":"initial"}},
	  "Partner":{"type":"string","api":{"url":"http://partner.test:8443/states","options":{"value":"id","optionObj":"result"},"callType":"initial"}},
	  "Foreign":{"type":"string","api":{"url":"http://169.254.169.254/latest/meta-data","options":{"value":"id"},"callType":"initial"}},
	  "File":{"type":"string","api":{"url":"file:///etc/passwd","options":{"value":"id"},"callType":"initial"}}}}`)
	mux := http.NewServeMux()
	mux.Handle("GET /states", testsupport.JSONResponse(http.StatusOK, map[string]any{
		"result": []any{map[string]any{"id": "p1"}},
	}))
	doer := testsupport.NewHandlerDoer(mux)
	fetcher := options.New(
		options.WithDoer(doer),
		options.WithBaseURL(backend),
		options.WithAllowedHosts("partner.test"),
	)

	updates := fetcher.Fetch(testsupport.Context(), s, session.Context{}, []string{"Partner", "Foreign", "File"}, schema.FormData{})
	if updates[0].Failed() {
		t.Fatalf("allowed host refused: %v", updates[0].Err)
	}
	for _, update := range updates[1:] {
		if !errors.Is(update.Err, options.ErrHostNotAllowed) {
			t.Fatalf("%s: expected ErrHostNotAllowed, got %v", update.Field, update.Err)
		}
	}
	if got := len(doer.Requests()); got != 1 {
		t.Fatalf("refused hosts must not be requested, got %d requests", got)
	}

	field, _ := s.Field("Local")
	if _, err := fetcher.BuildRequest(testsupport.Context(), field, session.Context{}, nil, false); err != nil {
		t.Fatalf("base url host refused: %v", err)
	}
}
