// Package scoring implements the two frame scoring stages. Both decode and
// analyze frames in parallel through the batch runner, compute motion
// sequentially, then pick candidates:
//
//   - score-frames keeps the top K frames while enforcing a minimum gap
//     between their timestamps
//   - score-frames-per-second keeps the best sharp frame of every second
//
// The stages share one IO contract and can be swapped for each other.
package scoring
