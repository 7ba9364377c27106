// Package download provides the stages that bring a source video into a job
// workspace.
//
// The download stage fetches job.Source over HTTP(S) with a size cap and
// retries on transient failures. The import-local stage copies a file that
// already exists on disk and verifies the copy by SHA-256. Both produce the
// video IO type with the same contract, so either can be swapped for the
// other at run time.
package download
