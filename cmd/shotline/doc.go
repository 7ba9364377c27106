// Package main hosts the shotline CLI entrypoint and command graph.
//
// The Cobra-based command tree runs stacks as local jobs, inspects the stage
// registry and stack catalog, scores ad-hoc frame directories, reads the job
// database, and scaffolds configuration. Config resolution, logger setup and
// collaborator wiring live in context.go so subcommands stay declarative.
//
// Add functionality to the internal packages first and surface it here.
package main
