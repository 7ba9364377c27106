package framescore

import (
	"bufio"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// LoadImage decodes a JPEG, PNG, BMP, or WebP file.
func LoadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return img, nil
}

// AnalyzeFile loads the frame's image and analyzes it.
func AnalyzeFile(frame Frame, thumbSize int) (Analysis, error) {
	img, err := LoadImage(frame.Path)
	if err != nil {
		return Analysis{}, err
	}
	return Analyze(frame, img, thumbSize), nil
}
