// Package stackexec validates and runs stacks of registered stages.
//
// Validation is a forward reachability check: walking the stack in order,
// each stage's requires set must be covered by the stack's initial types plus
// everything produced by earlier stages. Execution resolves requested swaps,
// re-validates the effective stage list, then runs the stages one at a time,
// merging each result into the bag. The first failing stage stops the run;
// side effects of earlier stages are left in place.
//
// Progress is interpolated across the stack. Stage i of n owns the range
// [100*i/n, 100*(i+1)/n], and percentages a stage reports through
// ExecContext.Report are mapped into that range. Emitted percentages never
// decrease.
package stackexec
