// Package workspace owns the on-disk layout of a job: its working
// directories under [paths] work_dir, the advisory lock that keeps two
// processes from running the same job, directory preflight checks and
// cleanup of stale job directories.
package workspace
