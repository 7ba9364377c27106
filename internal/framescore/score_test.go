package framescore_test

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"

	"shotline/internal/framescore"
)

func uniform(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func checkerboard(w, h, cell int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func TestSharpnessOfUniformImageIsZero(t *testing.T) {
	for _, c := range []color.Color{color.Black, color.White, color.RGBA{R: 120, G: 40, B: 200, A: 255}} {
		if got := framescore.Sharpness(uniform(32, 24, c)); got != 0 {
			t.Fatalf("Sharpness(uniform %v) = %v, want 0", c, got)
		}
	}
}

func TestSharpnessPrefersDetail(t *testing.T) {
	fine := framescore.Sharpness(checkerboard(64, 64, 1))
	coarse := framescore.Sharpness(checkerboard(64, 64, 16))
	if fine <= coarse || coarse <= 0 {
		t.Fatalf("expected fine detail (%v) to beat coarse detail (%v) > 0", fine, coarse)
	}
}

func TestSharpnessTinyImage(t *testing.T) {
	if got := framescore.Sharpness(checkerboard(2, 2, 1)); got != 0 {
		t.Fatalf("expected 0 for image without interior, got %v", got)
	}
}

func TestSharpnessMatchesHandComputedValue(t *testing.T) {
	// 3x3 with a single bright centre: one interior pixel, Laplacian -4*255,
	// population std-dev of a single sample is 0.
	img := image.NewGray(image.Rect(0, 0, 3, 3))
	img.SetGray(1, 1, color.Gray{Y: 255})
	if got := framescore.Sharpness(img); got != 0 {
		t.Fatalf("single interior sample should have zero deviation, got %v", got)
	}

	// 4x3: interior pixels (1,1) and (2,1). Centre (1,1)=100 gives laplacians
	// -400 and 100; mean -150, population std-dev 250.
	img = image.NewGray(image.Rect(0, 0, 4, 3))
	img.SetGray(1, 1, color.Gray{Y: 100})
	if got := framescore.Sharpness(img); math.Abs(got-250) > 1e-9 {
		t.Fatalf("Sharpness = %v, want 250", got)
	}
}

func TestMotion(t *testing.T) {
	black := uniform(40, 30, color.Black)
	white := uniform(40, 30, color.White)

	if got := framescore.Motion(black, black, 16); got != 0 {
		t.Fatalf("identical frames should have zero motion, got %v", got)
	}
	if got := framescore.Motion(black, white, 16); math.Abs(got-1) > 0.01 {
		t.Fatalf("black vs white should be ~1, got %v", got)
	}
	if got := framescore.Motion(nil, white, 16); got != 0 {
		t.Fatalf("first frame should have zero motion, got %v", got)
	}
}

func TestScore(t *testing.T) {
	if got := framescore.Score(100, 0.5, 0.2); math.Abs(got-(100-0.2*0.5*255)) > 1e-9 {
		t.Fatalf("unexpected score %v", got)
	}
}

func TestScoreSequenceAssignsMotionFromPredecessor(t *testing.T) {
	frames := []image.Image{uniform(20, 20, color.Black), uniform(20, 20, color.Black), uniform(20, 20, color.White)}
	analyses := make([]framescore.Analysis, len(frames))
	for i, img := range frames {
		analyses[i] = framescore.Analyze(framescore.Frame{ID: string(rune('a' + i)), Timestamp: float64(i), Index: i}, img, 8)
	}
	scored := framescore.ScoreSequence(analyses, 0.2)
	if len(scored) != 3 {
		t.Fatalf("expected 3 scored frames, got %d", len(scored))
	}
	if scored[0].Motion != 0 || scored[1].Motion != 0 {
		t.Fatalf("unexpected motion for static frames: %+v", scored[:2])
	}
	if math.Abs(scored[2].Motion-1) > 0.01 {
		t.Fatalf("expected full motion on cut, got %v", scored[2].Motion)
	}
	if math.Abs(scored[2].Score-(-0.2*255)) > 1 {
		t.Fatalf("unexpected score %v", scored[2].Score)
	}
	if scored[1].FrameID != "b" || scored[1].Index != 1 {
		t.Fatalf("frame identity not carried: %+v", scored[1])
	}
}

func TestLoadImageDecodesPNGAndBMP(t *testing.T) {
	dir := t.TempDir()
	src := checkerboard(16, 16, 2)

	pngPath := filepath.Join(dir, "frame.png")
	writeWith(t, pngPath, func(f *os.File) error { return png.Encode(f, src) })
	bmpPath := filepath.Join(dir, "frame.bmp")
	writeWith(t, bmpPath, func(f *os.File) error { return bmp.Encode(f, src) })

	want := framescore.Sharpness(src)
	for _, path := range []string{pngPath, bmpPath} {
		analysis, err := framescore.AnalyzeFile(framescore.Frame{Path: path}, 8)
		if err != nil {
			t.Fatalf("AnalyzeFile(%s): %v", path, err)
		}
		if math.Abs(analysis.Sharpness-want) > 1e-9 {
			t.Fatalf("%s: sharpness %v, want %v", path, analysis.Sharpness, want)
		}
		if analysis.Thumb.Bounds().Dx() != 8 {
			t.Fatalf("unexpected thumb size %v", analysis.Thumb.Bounds())
		}
	}

	if _, err := framescore.LoadImage(filepath.Join(dir, "missing.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func writeWith(t *testing.T, path string, encode func(*os.File) error) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := encode(f); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}
