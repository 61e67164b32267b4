// Package formflow is the quick-start surface of the module: load a form
// bundle from a file, URL, OpenAPI operation or the schema service, then open
// an orchestrated session over it.
package formflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-formflow/pkg/auth"
	"github.com/goliatone/go-formflow/pkg/openapi"
	"github.com/goliatone/go-formflow/pkg/orchestrator"
	"github.com/goliatone/go-formflow/pkg/schema"
)

// Request names a form document. When Operation is set, Ref is an OpenAPI
// document and the form is the request body of that operation.
type Request struct {
	Ref       string
	Operation string
	Loader    []schema.LoaderOption
	Parser    []openapi.Option
}

// LoadBundle resolves req.Ref and decodes the form bundle it describes.
func LoadBundle(ctx context.Context, req Request) (schema.Bundle, error) {
	src, err := schema.ResolveSource(req.Ref)
	if err != nil {
		return schema.Bundle{}, fmt.Errorf("formflow: %w", err)
	}
	l := NewLoader(req.Loader...)
	if req.Operation == "" {
		return l.LoadBundle(ctx, src)
	}
	doc, err := l.Load(ctx, src)
	if err != nil {
		return schema.Bundle{}, err
	}
	return NewParser(req.Parser...).Form(ctx, doc, req.Operation)
}

// LoadFromService reads a form definition from the schema service and
// converts it. The conversion carries the custom field ids used in
// submissions.
func LoadFromService(ctx context.Context, client *auth.Client, query auth.SchemaQuery) (schema.Conversion, error) {
	if client == nil {
		return schema.Conversion{}, errors.New("formflow: auth client is required")
	}
	doc, err := client.ReadSchema(ctx, query)
	if err != nil {
		return schema.Conversion{}, fmt.Errorf("formflow: read schema: %w", err)
	}
	return doc.Convert()
}

// NewOrchestrator exposes the orchestrator constructor from the top-level
// module.
func NewOrchestrator(options ...orchestrator.Option) *orchestrator.Orchestrator {
	return orchestrator.New(options...)
}

// Open builds an orchestrator and loads bundle with prefill. The session is
// closed again when loading fails.
func Open(ctx context.Context, bundle schema.Bundle, prefill schema.FormData, options ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	if bundle.Schema == nil {
		return nil, errors.New("formflow: bundle has no schema")
	}
	o := orchestrator.New(options...)
	if err := o.Load(ctx, bundle.Schema, bundle.UISchema, prefill); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}

// OpenConversion opens a session over a schema service conversion, wiring its
// custom field ids.
func OpenConversion(ctx context.Context, conv schema.Conversion, prefill schema.FormData, options ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	options = append([]orchestrator.Option{orchestrator.WithFieldIDs(conv.FieldIDs)}, options...)
	return Open(ctx, schema.Bundle{Schema: conv.Schema, UISchema: conv.UI}, prefill, options...)
}
