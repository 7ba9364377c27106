package framescore

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

const (
	// DefaultAlpha weights the motion penalty.
	DefaultAlpha = 0.25
	// DefaultThumbSize is the edge of the square used for motion estimation.
	DefaultThumbSize = 64
	// maxIntensity normalizes 8-bit differences.
	maxIntensity = 255.0
)

// Frame identifies one extracted frame on disk.
type Frame struct {
	ID        string  `json:"id"`
	Path      string  `json:"path"`
	Timestamp float64 `json:"timestamp"`
	Index     int     `json:"index"`
}

// ScoredFrame is a frame with its quality metrics. Values are never mutated
// after ScoreSequence returns them.
type ScoredFrame struct {
	FrameID   string  `json:"frame_id"`
	Path      string  `json:"path"`
	Timestamp float64 `json:"timestamp"`
	Index     int     `json:"index"`
	Sharpness float64 `json:"sharpness"`
	Motion    float64 `json:"motion"`
	Score     float64 `json:"score"`
}

// Analysis holds the per-frame work that can run in parallel: sharpness and
// the thumbnail later compared against the previous frame.
type Analysis struct {
	Frame     Frame
	Sharpness float64
	Thumb     *image.Gray
}

// Intensity converts img to a single-channel 8-bit image.
func Intensity(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(gray, gray.Bounds(), img, b.Min, xdraw.Src)
	return gray
}

// Thumbnail downsamples img to a size x size intensity image.
func Thumbnail(img image.Image, size int) *image.Gray {
	if size <= 0 {
		size = DefaultThumbSize
	}
	dst := image.NewGray(image.Rect(0, 0, size, size))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// Sharpness returns the standard deviation of the Laplacian response over
// interior pixels. Images without interior pixels, and flat images, score 0.
func Sharpness(img image.Image) float64 {
	gray := Intensity(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	at := func(x, y int) float64 {
		return float64(gray.Pix[(y-b.Min.Y)*gray.Stride+(x-b.Min.X)])
	}

	// Welford accumulation keeps the variance stable on large frames.
	var (
		n    float64
		mean float64
		m2   float64
	)
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			lap := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			n++
			delta := lap - mean
			mean += delta / n
			m2 += delta * (lap - mean)
		}
	}
	if n == 0 {
		return 0
	}
	variance := m2 / n
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// ThumbDifference is the mean absolute difference of two equally sized
// intensity thumbnails, normalized to [0,1]. Mismatched sizes compare the
// overlapping region.
func ThumbDifference(a, b *image.Gray) float64 {
	if a == nil || b == nil {
		return 0
	}
	w := min(a.Bounds().Dx(), b.Bounds().Dx())
	h := min(a.Bounds().Dy(), b.Bounds().Dy())
	if w == 0 || h == 0 {
		return 0
	}
	var total float64
	for y := 0; y < h; y++ {
		rowA := a.Pix[y*a.Stride : y*a.Stride+w]
		rowB := b.Pix[y*b.Stride : y*b.Stride+w]
		for x := range rowA {
			total += math.Abs(float64(rowA[x]) - float64(rowB[x]))
		}
	}
	return total / float64(w*h) / maxIntensity
}

// Motion compares cur against prev after downsampling both to size x size.
// A nil prev means cur is the first frame and has no motion.
func Motion(prev, cur image.Image, size int) float64 {
	if prev == nil || cur == nil {
		return 0
	}
	return ThumbDifference(Thumbnail(prev, size), Thumbnail(cur, size))
}

// Score combines sharpness and motion.
func Score(sharpness, motion, alpha float64) float64 {
	return sharpness - alpha*motion*maxIntensity
}

// Analyze computes the parallelizable part of scoring for one frame.
func Analyze(frame Frame, img image.Image, thumbSize int) Analysis {
	return Analysis{
		Frame:     frame,
		Sharpness: Sharpness(img),
		Thumb:     Thumbnail(img, thumbSize),
	}
}

// ScoreSequence computes motion against the immediately preceding analysis
// and returns scored frames in the same order. Entries with a nil Thumb are
// treated as having no predecessor information.
func ScoreSequence(analyses []Analysis, alpha float64) []ScoredFrame {
	out := make([]ScoredFrame, len(analyses))
	for i, a := range analyses {
		var motion float64
		if i > 0 {
			motion = ThumbDifference(analyses[i-1].Thumb, a.Thumb)
		}
		out[i] = ScoredFrame{
			FrameID:   a.Frame.ID,
			Path:      a.Frame.Path,
			Timestamp: a.Frame.Timestamp,
			Index:     a.Frame.Index,
			Sharpness: a.Sharpness,
			Motion:    motion,
			Score:     Score(a.Sharpness, motion, alpha),
		}
	}
	return out
}
