// Package framescore rates extracted video frames for visual quality and
// picks the ones worth sending downstream.
//
// Sharpness is the population standard deviation of the 4-neighbour
// Laplacian over the interior pixels of the intensity image. Motion is the
// mean absolute intensity difference between a frame and its predecessor,
// both downsampled to a small square and normalized to [0,1]. The combined
// score subtracts a weighted motion penalty from sharpness:
//
//	score = sharpness - alpha * motion * 255
//
// Two selection strategies are provided. SelectCandidates returns a
// temporally diverse top-K; SelectBestFramePerSecond keeps the best sharp
// frame in each whole-second bucket.
package framescore
