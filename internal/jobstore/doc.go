// Package jobstore persists job status in SQLite so the CLI can report on
// runs that have finished or are still in flight.
//
// A job row carries the latest progress update, the terminal status with its
// error kind, a warning summary for partial failures and the encoded result
// bag. Stage timings live in their own table keyed by job id.
//
// The database is transient bookkeeping rather than an archive. Schema
// changes bump schemaVersion in schema.go; users delete the database to adopt
// the new schema.
package jobstore
