package llm

import (
	"context"
	"fmt"
	"strings"
)

// FrameClassificationPrompt instructs the model to identify the product
// variant visible in a video frame.
const FrameClassificationPrompt = `You review still frames taken from a product video.
For the frame provided, identify which product variant is shown (for example a colour, size or model name)
and the camera angle. Decide whether the frame would work as the source for a commercial product photo:
the product must be fully visible, in focus and not obstructed by hands or text overlays.
Respond with JSON only: {"variant": "...", "label": "...", "description": "...", "angle": "front|back|side|top|detail|other", "usable": true|false, "confidence": 0.0-1.0}.
Use a short lowercase slug for "variant" and a human readable "label".`

// FrameClassification is the model's verdict on one frame.
type FrameClassification struct {
	Variant     string  `json:"variant"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
	Angle       string  `json:"angle"`
	Usable      bool    `json:"usable"`
	Confidence  float64 `json:"confidence"`
	Raw         string  `json:"-"`
}

// ClassifyFrame asks the model which variant an encoded frame shows. hint is
// optional product context such as a job name.
func (c *Client) ClassifyFrame(ctx context.Context, image []byte, mimeType, hint string) (FrameClassification, error) {
	var empty FrameClassification
	prompt := "Classify this frame."
	if hint = strings.TrimSpace(hint); hint != "" {
		prompt = fmt.Sprintf("Product: %s\nClassify this frame.", hint)
	}
	content, err := c.DescribeImage(ctx, FrameClassificationPrompt, prompt, image, mimeType)
	if err != nil {
		return empty, err
	}
	var parsed FrameClassification
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("llm classify frame: parse payload: %w", err)
	}
	parsed.Raw = content
	parsed.Variant = normalizeSlug(parsed.Variant)
	parsed.Label = strings.TrimSpace(parsed.Label)
	if parsed.Label == "" {
		parsed.Label = parsed.Variant
	}
	parsed.Description = strings.TrimSpace(parsed.Description)
	parsed.Angle = strings.ToLower(strings.TrimSpace(parsed.Angle))
	parsed.Confidence = min(max(parsed.Confidence, 0), 1)
	return parsed, nil
}

func normalizeSlug(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	dash := false
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
