package artifact

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Video describes the source video for a job.
type Video struct {
	Path            string  `json:"path"`
	SourceURL       string  `json:"source_url,omitempty"`
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	Codec           string  `json:"codec,omitempty"`
	ContentType     string  `json:"content_type,omitempty"`
}

// Classification assigns one candidate frame to a product variant.
type Classification struct {
	Variant     string  `json:"variant"`
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	Angle       string  `json:"angle,omitempty"`
	FrameID     string  `json:"frame_id"`
	FramePath   string  `json:"frame_path"`
	Timestamp   float64 `json:"timestamp"`
	Confidence  float64 `json:"confidence"`
	Score       float64 `json:"score"`
}

// GeneratedImage is one image produced for a variant.
type GeneratedImage struct {
	Variant       string `json:"variant"`
	SourceFrameID string `json:"source_frame_id"`
	Path          string `json:"path"`
	Index         int    `json:"index"`
	Style         string `json:"style,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	SizeBytes     int64  `json:"size_bytes"`
}

// Upload records where a generated image was stored.
type Upload struct {
	Path        string `json:"path"`
	Variant     string `json:"variant,omitempty"`
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	URL         string `json:"url,omitempty"`
	ETag        string `json:"etag,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Failure records one sub-item that a stage could not process.
type Failure struct {
	Index int    `json:"index"`
	Item  string `json:"item,omitempty"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// StageReport summarizes per-item outcomes of a stage that processed many
// items and still produced usable output.
type StageReport struct {
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Failures  []Failure `json:"failures,omitempty"`
}

// HasFailures reports whether any item failed or was skipped.
func (r StageReport) HasFailures() bool {
	return r.Failed > 0 || r.Skipped > 0
}

// Summary renders the report as a short human-readable line.
func (r StageReport) Summary() string {
	total := r.Succeeded + r.Failed + r.Skipped
	if !r.HasFailures() {
		return fmt.Sprintf("%d/%d succeeded", r.Succeeded, total)
	}
	return fmt.Sprintf("%d/%d succeeded, %d failed, %d skipped", r.Succeeded, total, r.Failed, r.Skipped)
}

// Warnings collects the stage reports with failures from a bag metadata map,
// keyed by stage id.
func Warnings(metadata map[string]any) map[string]StageReport {
	out := make(map[string]StageReport)
	for key, value := range metadata {
		report, ok := value.(StageReport)
		if !ok {
			if ptr, isPtr := value.(*StageReport); isPtr && ptr != nil {
				report, ok = *ptr, true
			}
		}
		if ok && report.HasFailures() {
			out[key] = report
		}
	}
	return out
}

// WarningSummary joins the warning reports into one sorted line, or returns
// an empty string when there are none.
func WarningSummary(metadata map[string]any) string {
	warnings := Warnings(metadata)
	if len(warnings) == 0 {
		return ""
	}
	keys := make([]string, 0, len(warnings))
	for key := range warnings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, warnings[key].Summary()))
	}
	return strings.Join(parts, "; ")
}

// EncodeBag serialises a bag for persistence. Values that cannot be encoded
// are replaced with their fmt representation so one odd value does not lose
// the whole record.
func EncodeBag(bag map[string]any) ([]byte, error) {
	if len(bag) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(bag)
	if err == nil {
		return data, nil
	}
	safe := make(map[string]any, len(bag))
	for key, value := range bag {
		if _, itemErr := json.Marshal(value); itemErr != nil {
			safe[key] = fmt.Sprintf("%v", value)
			continue
		}
		safe[key] = value
	}
	return json.MarshalIndent(safe, "", "  ")
}
