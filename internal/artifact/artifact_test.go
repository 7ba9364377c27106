package artifact_test

import (
	"encoding/json"
	"strings"
	"testing"

	"shotline/internal/artifact"
)

func TestWarningsOnlyReportsFailures(t *testing.T) {
	meta := map[string]any{
		"generate-images": artifact.StageReport{Succeeded: 7, Failed: 3},
		"upload-images":   artifact.StageReport{Succeeded: 7},
		"classify-variants": &artifact.StageReport{
			Succeeded: 2,
			Skipped:   1,
		},
		"source": "url",
	}
	warnings := artifact.Warnings(meta)
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
	if _, ok := warnings["upload-images"]; ok {
		t.Fatalf("clean report should not be a warning")
	}

	summary := artifact.WarningSummary(meta)
	want := "classify-variants: 2/3 succeeded, 0 failed, 1 skipped; generate-images: 7/10 succeeded, 3 failed, 0 skipped"
	if summary != want {
		t.Fatalf("WarningSummary = %q, want %q", summary, want)
	}
	if artifact.WarningSummary(map[string]any{}) != "" {
		t.Fatalf("expected empty summary")
	}
}

func TestEncodeBagFallsBackForUnencodableValues(t *testing.T) {
	data, err := artifact.EncodeBag(map[string]any{
		"video": artifact.Video{Path: "/v.mp4"},
		"bad":   make(chan int),
	})
	if err != nil {
		t.Fatalf("EncodeBag: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(string(data), "/v.mp4") {
		t.Fatalf("video missing from %s", data)
	}
	if _, ok := decoded["bad"].(string); !ok {
		t.Fatalf("expected string fallback for channel, got %T", decoded["bad"])
	}
}
