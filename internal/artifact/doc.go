// Package artifact defines the values stages store in the data bag.
//
// Each IO type maps to one Go type:
//
//	video             Video
//	images            []string (frame image paths, in extraction order)
//	frames            []framescore.Frame
//	scored-frames     []framescore.ScoredFrame
//	candidates        []framescore.ScoredFrame
//	classifications   []Classification
//	generated-images  []GeneratedImage
//	uploads           []Upload
//	text              string
//
// Stages that process many items record partial failure as a StageReport in
// the bag metadata under their own stage id. A job whose bag carries any
// report with failures finishes with warnings rather than plain success.
package artifact
