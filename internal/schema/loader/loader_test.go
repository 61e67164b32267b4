package loader_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/goliatone/go-formflow/internal/schema/loader"
	"github.com/goliatone/go-formflow/pkg/schema"
)

func TestLoader_File(t *testing.T) {
	t.Parallel()

	l := loader.New(schema.NewLoaderOptions())
	bundle, err := l.LoadBundle(context.Background(), schema.SourceFromFile("testdata/contact.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := bundle.Schema.Names(); strings.Join(got, ",") != "email,mobile" {
		t.Fatalf("names = %v", got)
	}
	if !bundle.UISchema.Hidden("mobile") {
		t.Fatalf("mobile should be hidden")
	}
}

func TestLoader_FS(t *testing.T) {
	t.Parallel()

	raw, err := os.ReadFile("testdata/contact.yaml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	files := fstest.MapFS{"forms/contact.yaml": {Data: raw}}
	l := loader.New(schema.NewLoaderOptions(schema.WithFileSystem(files)))

	doc, err := l.Load(context.Background(), schema.SourceFromFS("/forms/contact.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Digest() == "" || doc.Location() != "/forms/contact.yaml" {
		t.Fatalf("unexpected document %q %q", doc.Location(), doc.Digest())
	}
}

func TestLoader_URLSendsHeaders(t *testing.T) {
	t.Parallel()

	var tenant string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant = r.Header.Get("X-Tenant-Code")
		_, _ = w.Write([]byte(`{"schema":{"properties":{"email":{"type":"string"}}}}`))
	}))
	defer srv.Close()

	l := loader.New(schema.NewLoaderOptions(
		schema.WithHTTPFallback(time.Second),
		schema.WithRequestHeader("X-Tenant-Code", "shikshagraha"),
	))
	src, err := schema.SourceFromURL(srv.URL + "/form")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	bundle, err := l.LoadBundle(context.Background(), src)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bundle.Schema.Has("email") || tenant != "shikshagraha" {
		t.Fatalf("unexpected bundle %+v (tenant %q)", bundle.Schema, tenant)
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()
	src, _ := schema.SourceFromURL(srv.URL)

	disabled := loader.New(schema.NewLoaderOptions())
	if _, err := disabled.Load(context.Background(), src); err == nil || !strings.Contains(err.Error(), "http support disabled") {
		t.Fatalf("expected disabled http error, got %v", err)
	}

	enabled := loader.New(schema.NewLoaderOptions(schema.WithHTTPClient(srv.Client())))
	if _, err := enabled.Load(context.Background(), src); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status error, got %v", err)
	}

	if _, err := disabled.Load(context.Background(), schema.SourceFromFS("x.yaml")); err == nil {
		t.Fatalf("expected nil fs error")
	}
	if _, err := disabled.Load(context.Background(), nil); err == nil {
		t.Fatalf("expected nil source error")
	}
}
