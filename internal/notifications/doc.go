// Package notifications publishes job results to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the job runner can call it unconditionally. Messages are sent as plain text
// with ntfy's Title, Tags and Priority headers.
package notifications
