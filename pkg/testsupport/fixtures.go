package testsupport

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/schema"
)

//go:embed testdata/*
var fixtures embed.FS

// RegistrationFixture is the bundled registration form used across package
// tests: name, contact, password, guardian, role/sub-role, the
// State → District → Block chain, a custom field with skip rules, and udise.
const RegistrationFixture = "testdata/registration.yaml"

// FieldListFixture is a schema-service read response.
const FieldListFixture = "testdata/fields.json"

// Fixture returns the raw bytes of an embedded fixture.
func Fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := fixtures.ReadFile(name)
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

// Fixtures exposes the embedded fixtures as an fs.FS.
func Fixtures() embed.FS {
	return fixtures
}

// LoadBundle parses an embedded form bundle.
func LoadBundle(t *testing.T, name string) schema.Bundle {
	t.Helper()
	bundle, err := LoadBundleFromFS(name)
	if err != nil {
		t.Fatalf("load bundle: %v", err)
	}
	return bundle
}

// LoadBundleFromFS parses an embedded form bundle without a testing.T.
func LoadBundleFromFS(name string) (schema.Bundle, error) {
	if name == "" {
		return schema.Bundle{}, errors.New("testsupport: fixture name is required")
	}
	data, err := fixtures.ReadFile(name)
	if err != nil {
		return schema.Bundle{}, fmt.Errorf("testsupport: read fixture: %w", err)
	}
	doc, err := schema.NewDocument(schema.SourceFromFS(name), data)
	if err != nil {
		return schema.Bundle{}, fmt.Errorf("testsupport: new document: %w", err)
	}
	return schema.ParseDocument(doc)
}

// Registration returns a fresh copy of the registration bundle.
func Registration(t *testing.T) (*schema.Schema, schema.UISchema) {
	t.Helper()
	bundle := LoadBundle(t, RegistrationFixture)
	return bundle.Schema, bundle.UISchema
}

// SchemaFrom builds a schema from a JSON literal.
func SchemaFrom(t *testing.T, raw string) *schema.Schema {
	t.Helper()
	var out schema.Schema
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if out.Properties == nil {
		out.Properties = map[string]*schema.Field{}
	}
	return &out
}

// WriteGolden writes value as indented JSON when UPDATE_GOLDENS is set.
func WriteGolden(t *testing.T, path string, value any) {
	t.Helper()

	if os.Getenv("UPDATE_GOLDENS") == "" {
		return
	}
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		t.Fatalf("marshal golden: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
}

// MustReadGolden reads a golden file and returns its raw bytes.
func MustReadGolden(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	return data
}

// CompareGolden returns a diff string if the values differ.
func CompareGolden(want, got any) string {
	return cmp.Diff(want, got)
}

// Context returns a background context for tests.
func Context() context.Context {
	return context.Background()
}
