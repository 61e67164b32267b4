// Package orchestrator owns a single form session. It keeps the values, the
// derived schema and the error state consistent while option chains resolve,
// and runs the submit, OTP and password reset workflows against the user
// service. Snapshot exposes the session to renderers and prompt drivers.
package orchestrator
