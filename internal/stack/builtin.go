package stack

import "shotline/internal/iotype"

// Built-in stack names.
const (
	ProductImages      = "product-images"
	ProductImagesLocal = "product-images-local"
	FrameCandidates    = "frame-candidates"
	Rescore            = "rescore"
)

// Builtins returns the stacks shipped with the binary.
func Builtins() []Definition {
	return []Definition{
		New(ProductImages,
			"Download a product video, pick the best frames and publish generated product images",
			iotype.NewSet(),
			"download", "extract-frames", "score-frames", "classify-variants", "generate-images", "upload-images"),
		New(ProductImagesLocal,
			"Same as product-images for a video already on disk",
			iotype.NewSet(),
			"import-local", "extract-frames", "score-frames", "classify-variants", "generate-images", "upload-images"),
		New(FrameCandidates,
			"Download a video and select candidate frames without calling external services",
			iotype.NewSet(),
			"download", "extract-frames", "score-frames"),
		New(Rescore,
			"Re-extract and score an existing video keeping the best frame per second",
			iotype.NewSet(iotype.Video),
			"extract-frames", "score-frames-per-second"),
	}
}

// DefaultCatalog returns a catalog holding the built-in stacks.
func DefaultCatalog() *Catalog {
	return NewCatalog(Builtins()...)
}
