// Package batch runs a function over a list of items with bounded
// concurrency and per-item failure capture.
//
// Run starts min(Concurrency, len(items)) workers. Each worker claims the
// next unclaimed index under a lock, so at most Concurrency items are in
// flight and no item is processed twice. Results are aligned with the input
// order regardless of completion order. A failing or panicking item becomes
// a failed Result rather than aborting its siblings; with StopOnError set no
// new index is claimed after the first failure and every unclaimed slot is
// reported as skipped.
package batch
