// Package progress fans runner progress updates out to the places that
// consume them: the job log (sampled so long stages do not flood it), the
// job store, and an optional Redis pub/sub channel for dashboards.
//
// Every sink is a stage.ProgressFunc; Fanout combines them. Sinks never
// block the pipeline on failure. They log and carry on.
package progress
