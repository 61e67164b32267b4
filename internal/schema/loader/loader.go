package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/goliatone/go-formflow/pkg/schema"
)

// Loader implements schema.Loader for files, fs.FS entries and schema-service
// URLs.
type Loader struct {
	fs      fs.FS
	http    *http.Client
	timeout time.Duration
	headers http.Header
}

var _ schema.Loader = (*Loader)(nil)

// New constructs a Loader from resolved options. URL sources are rejected
// unless a client was supplied or the HTTP fallback is enabled.
func New(options schema.LoaderOptions) *Loader {
	timeout := options.RequestTimeout

	var client *http.Client
	switch {
	case options.HTTPClient != nil:
		clone := *options.HTTPClient
		if timeout > 0 && clone.Timeout == 0 {
			clone.Timeout = timeout
		}
		client = &clone
	case options.AllowHTTPFallback:
		client = &http.Client{Timeout: timeout}
	}

	return &Loader{
		fs:      options.FileSystem,
		http:    client,
		timeout: timeout,
		headers: options.Headers.Clone(),
	}
}

// Load reads src and wraps the bytes in a schema.Document.
func (l *Loader) Load(ctx context.Context, src schema.Source) (schema.Document, error) {
	if src == nil {
		return schema.Document{}, errors.New("schema loader: source is nil")
	}

	var (
		data []byte
		err  error
	)
	switch src.Kind() {
	case schema.SourceKindFile:
		data, err = loadFile(ctx, src.Location())
	case schema.SourceKindFS:
		data, err = loadFromFS(ctx, l.fs, src.Location())
	case schema.SourceKindURL:
		if l.http == nil {
			return schema.Document{}, errors.New("schema loader: http support disabled")
		}
		data, err = loadHTTP(ctx, l.http, src.Location(), l.timeout, l.headers)
	default:
		err = fmt.Errorf("schema loader: unsupported source kind %q", src.Kind())
	}
	if err != nil {
		return schema.Document{}, fmt.Errorf("schema loader: %s: %w", src.Location(), err)
	}
	return schema.NewDocument(src, data)
}

// LoadBundle loads src and decodes it as a {schema, uiSchema} bundle.
func (l *Loader) LoadBundle(ctx context.Context, src schema.Source) (schema.Bundle, error) {
	doc, err := l.Load(ctx, src)
	if err != nil {
		return schema.Bundle{}, err
	}
	return schema.ParseDocument(doc)
}
