// Package services defines shared utilities consumed by the stage engine,
// the stages themselves and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and KindOf, which turns
//     any engine or stage error into a stable kind string for persistence.
//   - Result, the single success-or-failure value shared by stage execution
//     and the bounded concurrency runner.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, partial failure) stays uniform across stacks.
package services
