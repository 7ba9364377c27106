// Package jobrun executes one job end to end: it allocates the job id and
// workspace, opens the per-job log, persists status and progress in the
// job store, runs the stack, and maps the outcome onto a terminal status.
//
// A stage error fails the job. A stack that completes while some stage
// reported partial failures in the bag metadata finishes as
// succeeded_with_warnings.
package jobrun
