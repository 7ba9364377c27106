// Package stage defines the unit of pipeline work and the data it exchanges.
//
// A Stage declares the IO types it requires and produces and an Execute
// function. Execute is only called once every required type is present in the
// Bag; it returns a Result whose value is merged into the running Bag on
// success. A failed Result means the stage produced nothing usable and aborts
// the stack. Partial per-item failure inside a stage that still produced
// output is reported through a Report stored under the Bag's metadata key.
package stage
