package openapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formflow/pkg/schema"
)

// Operation is a form-capable OpenAPI operation.
type Operation struct {
	ID      string
	Method  string
	Path    string
	Summary string
	Form    schema.Bundle
}

// Options configures a Parser.
type Options struct {
	// Validate runs the kin-openapi document validation before conversion.
	Validate bool
	// ExternalRefs allows $ref values pointing outside the document.
	ExternalRefs bool
}

// Option mutates Options.
type Option func(*Options)

// WithValidation enables document validation.
func WithValidation() Option {
	return func(opts *Options) {
		opts.Validate = true
	}
}

// WithExternalRefs allows external references.
func WithExternalRefs() Option {
	return func(opts *Options) {
		opts.ExternalRefs = true
	}
}

// Parser converts OpenAPI documents into form bundles.
type Parser struct {
	options Options
}

// NewParser constructs a Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		if opt != nil {
			opt(&p.options)
		}
	}
	return p
}

var formMethods = []string{"POST", "PUT", "PATCH"}

// Operations lists every POST, PUT or PATCH operation with an object request
// body, keyed by operationId. Operations without an id are keyed
// "<method>:<path>".
func (p *Parser) Operations(ctx context.Context, doc schema.Document) (map[string]Operation, error) {
	spec, err := p.load(ctx, doc)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Operation)
	if spec.Paths == nil {
		return out, nil
	}
	for path, item := range spec.Paths.Map() {
		if item == nil {
			continue
		}
		for _, method := range formMethods {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			body := requestSchema(op.RequestBody)
			if body == nil || body.Value == nil || !isObject(body.Value) {
				continue
			}
			id := op.OperationID
			if id == "" {
				id = strings.ToLower(method) + ":" + path
			}
			form, err := convertBody(body.Value)
			if err != nil {
				return nil, fmt.Errorf("openapi: operation %s: %w", id, err)
			}
			if form.Schema.Title == "" {
				form.Schema.Title = op.Summary
			}
			out[id] = Operation{ID: id, Method: method, Path: path, Summary: op.Summary, Form: form}
		}
	}
	return out, nil
}

// Form returns the bundle of a single operation.
func (p *Parser) Form(ctx context.Context, doc schema.Document, operationID string) (schema.Bundle, error) {
	ops, err := p.Operations(ctx, doc)
	if err != nil {
		return schema.Bundle{}, err
	}
	op, ok := ops[operationID]
	if !ok {
		return schema.Bundle{}, fmt.Errorf("openapi: operation %q not found (available: %s)", operationID, strings.Join(OperationIDs(ops), ", "))
	}
	return op.Form, nil
}

// OperationIDs returns the sorted keys of ops.
func OperationIDs(ops map[string]Operation) []string {
	ids := make([]string, 0, len(ops))
	for id := range ops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Parser) load(ctx context.Context, doc schema.Document) (*openapi3.T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw := doc.Raw()
	if len(raw) == 0 {
		return nil, errors.New("openapi: document payload is empty")
	}
	loader := &openapi3.Loader{Context: ctx, IsExternalRefsAllowed: p.options.ExternalRefs}
	spec, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("openapi: load document: %w", err)
	}
	if p.options.Validate {
		if err := spec.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
			return nil, fmt.Errorf("openapi: validate: %w", err)
		}
	}
	return spec, nil
}

func requestSchema(body *openapi3.RequestBodyRef) *openapi3.SchemaRef {
	if body == nil || body.Value == nil {
		return nil
	}
	content := body.Value.Content
	for _, mediaType := range []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"} {
		if mt, ok := content[mediaType]; ok && mt != nil {
			return mt.Schema
		}
	}
	keys := make([]string, 0, len(content))
	for key := range content {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if mt := content[key]; mt != nil {
			return mt.Schema
		}
	}
	return nil
}

func isObject(s *openapi3.Schema) bool {
	if s.Type != nil && s.Type.Is(openapi3.TypeObject) {
		return true
	}
	return s.Type == nil && len(s.Properties) > 0
}
