// Package registry holds the set of stages available to stack execution.
//
// A Registry is an explicit instance built at startup and handed to the
// stack runner and the CLI. Registration replaces any stage with the same id,
// which lets tests override a real stage with a fake. Reads are safe from
// concurrent job executions.
package registry
