package ffprobe

import (
	"context"
	"errors"
	"math"
	"testing"

	"shotline/internal/services"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_type": "audio", "codec_name": "aac"},
    {"index": 1, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "r_frame_rate": "30/1", "avg_frame_rate": "30000/1001", "nb_frames": "300", "duration": "10.01"}
  ],
  "format": {"duration": "", "size": "1000", "format_name": "mov,mp4"}
}`

func TestParseAndHelpers(t *testing.T) {
	result, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	video, ok := result.VideoStream()
	if !ok || video.Index != 1 || video.Width != 1920 {
		t.Fatalf("unexpected video stream %+v", video)
	}
	if !result.HasAudio() {
		t.Fatal("expected audio stream")
	}
	if got := video.FrameRate(); math.Abs(got-29.97) > 0.01 {
		t.Fatalf("unexpected frame rate %v", got)
	}
	if video.FrameCount() != 300 {
		t.Fatalf("unexpected frame count %d", video.FrameCount())
	}
	if result.DurationSeconds() != 10.01 {
		t.Fatalf("duration should fall back to the stream: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	if len(result.RawJSON()) == 0 {
		t.Fatal("raw json not retained")
	}
}

func TestHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", AvgFrameRate: "0/0", RFrameRate: "bad", NBFrames: "n/a"}},
		Format:  Format{Duration: "bad", Size: "-1"},
	}
	if result.DurationSeconds() != 0 {
		t.Fatalf("expected unknown duration, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	video, _ := result.VideoStream()
	if video.FrameRate() != 0 || video.FrameCount() != 0 {
		t.Fatalf("expected zero rate and count, got %v %d", video.FrameRate(), video.FrameCount())
	}
}

func TestInspectMissingBinary(t *testing.T) {
	_, err := Inspect(context.Background(), "/nonexistent/ffprobe", "/tmp/video.mp4")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, err := Inspect(context.Background(), "", " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
