// Package logging assembles structured slog loggers and formatting helpers used
// across shotline.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with job IDs, stage ids, and correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail,
// a tee for per-job log files, and a sampler that thins progress chatter.
package logging
