// Package wiring assembles the default stage registry, the stack catalog and
// the job runner with its persistence, progress and telemetry collaborators.
// The CLI builds one App per invocation.
package wiring
