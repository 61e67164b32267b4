package testsupport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// RecordedRequest captures a request served by HandlerDoer.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// JSON decodes the recorded body into a generic value.
func (r RecordedRequest) JSON() map[string]any {
	var out map[string]any
	_ = json.Unmarshal(r.Body, &out)
	return out
}

// HandlerDoer serves requests through an http.Handler in-process, recording
// every call. It satisfies the Do contract used by the HTTP clients.
type HandlerDoer struct {
	Handler http.Handler

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewHandlerDoer wraps handler.
func NewHandlerDoer(handler http.Handler) *HandlerDoer {
	return &HandlerDoer{Handler: handler}
}

// Do executes req against the handler. Cancelled contexts fail before and
// after the handler runs.
func (d *HandlerDoer) Do(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	var body []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
		body = data
	}

	d.mu.Lock()
	d.requests = append(d.requests, RecordedRequest{
		Method: req.Method,
		Path:   req.URL.Path,
		Header: req.Header.Clone(),
		Body:   body,
	})
	d.mu.Unlock()

	served := req.Clone(req.Context())
	served.Body = io.NopCloser(bytes.NewReader(body))
	rec := httptest.NewRecorder()
	d.Handler.ServeHTTP(rec, served)

	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	return rec.Result(), nil
}

// Requests returns a copy of the recorded requests.
func (d *HandlerDoer) Requests() []RecordedRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]RecordedRequest(nil), d.requests...)
}

// Calls counts recorded requests for path.
func (d *HandlerDoer) Calls(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, req := range d.requests {
		if req.Path == path {
			count++
		}
	}
	return count
}

// Last returns the most recent request for path.
func (d *HandlerDoer) Last(path string) (RecordedRequest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for idx := len(d.requests) - 1; idx >= 0; idx-- {
		if d.requests[idx].Path == path {
			return d.requests[idx], true
		}
	}
	return RecordedRequest{}, false
}

// Reset clears recorded requests.
func (d *HandlerDoer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = nil
}

// JSONResponse returns a handler writing v with status.
func JSONResponse(status int, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Gate blocks handlers until Release is called or the request is cancelled.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate returns a closed-over barrier.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Wait blocks until release or cancellation and reports whether it was
// released.
func (g *Gate) Wait(req *http.Request) bool {
	select {
	case <-g.ch:
		return true
	case <-req.Context().Done():
		return false
	}
}

// Release unblocks every waiter.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.ch) })
}
