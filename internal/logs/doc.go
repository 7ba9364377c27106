// Package logs reads per-job log files written by the job runner.
//
// Tail returns the last lines of a log or the lines appended after a byte
// offset, and Follow keeps polling until the context ends. ParseEntry turns
// one JSON log line back into a structured Entry so the CLI can filter by
// level or stage and print a compact console rendering.
package logs
