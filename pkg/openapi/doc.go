// Package openapi builds form schemas from OpenAPI 3 request bodies. Each
// operation with an object request body becomes a schema.Bundle; the
// x-formflow schema extension carries the option source, widget and payload
// hints that OpenAPI itself cannot express.
package openapi
