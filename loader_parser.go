package formflow

import (
	"context"

	"github.com/goliatone/go-formflow/internal/schema/loader"
	"github.com/goliatone/go-formflow/pkg/openapi"
	"github.com/goliatone/go-formflow/pkg/schema"
)

// BundleLoader reads form documents and decodes {schema, uiSchema} bundles.
type BundleLoader interface {
	schema.Loader
	LoadBundle(ctx context.Context, src schema.Source) (schema.Bundle, error)
}

// NewLoader constructs a loader using the internal implementation while keeping
// the concrete type hidden from consumers.
func NewLoader(options ...schema.LoaderOption) BundleLoader {
	return loader.New(schema.NewLoaderOptions(options...))
}

// NewParser constructs the OpenAPI form parser.
func NewParser(options ...openapi.Option) *openapi.Parser {
	return openapi.NewParser(options...)
}
