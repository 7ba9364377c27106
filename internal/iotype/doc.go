// Package iotype defines the closed vocabulary of data kinds that stages
// consume and produce.
//
// Every stage declares its inputs and outputs as a Set of IOType values. The
// stack runner walks those sets to prove a stack is runnable before any stage
// executes, and the registry compares them to decide whether two stages can
// stand in for each other. Set comparisons are order independent: the order
// in which a stage lists its types never changes validation or swap results.
package iotype
