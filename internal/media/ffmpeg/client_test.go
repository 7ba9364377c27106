package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

type fakeExecutor struct {
	args   []string
	lines  []string
	frames int
	err    error
}

func (f *fakeExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	f.args = args
	for _, line := range f.lines {
		onOutput(line)
	}
	if f.err != nil {
		return f.err
	}
	pattern := args[len(args)-1]
	dir := filepath.Dir(pattern)
	ext := filepath.Ext(pattern)
	for i := 1; i <= f.frames; i++ {
		name := filepath.Join(dir, FramePrefix+strings.Repeat("0", 4)+string(rune('0'+i))+ext)
		if err := os.WriteFile(name, []byte("frame"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func TestExtractFramesListsOutputInOrder(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, FramePrefix+"09999.jpg")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatalf("write stale frame: %v", err)
	}
	exec := &fakeExecutor{
		frames: 3,
		lines:  []string{"frame=3", "out_time_us=500000", "out_time_ms=1000000", "progress=end"},
	}
	client, err := New("ffmpeg", 0, WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var updates []Progress
	frames, err := client.ExtractFrames(context.Background(), ExtractRequest{
		Input: "/videos/in.mp4", OutputDir: dir, FPS: 2, MaxWidth: 640, Format: "jpg", Quality: 3, MaxFrames: 10,
	}, func(p Progress) { updates = append(updates, p) })
	if err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	want := []string{
		filepath.Join(dir, "frame_00001.jpg"),
		filepath.Join(dir, "frame_00002.jpg"),
		filepath.Join(dir, "frame_00003.jpg"),
	}
	if !slices.Equal(frames, want) {
		t.Fatalf("frames = %v, want %v", frames, want)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale frame removed, stat err=%v", err)
	}
	if len(updates) != 3 || updates[0].Seconds != 0.5 || updates[1].Seconds != 1 || !updates[2].Done {
		t.Fatalf("unexpected progress updates %#v", updates)
	}
	joined := strings.Join(exec.args, " ")
	for _, fragment := range []string{"-vf fps=2,scale='min(640,iw)':-2", "-frames:v 10", "-q:v 3", "-i /videos/in.mp4"} {
		if !strings.Contains(joined, fragment) {
			t.Errorf("args missing %q: %s", fragment, joined)
		}
	}
}

func TestExtractFramesNoOutput(t *testing.T) {
	client, _ := New("ffmpeg", 0, WithExecutor(&fakeExecutor{}))
	_, err := client.ExtractFrames(context.Background(), ExtractRequest{Input: "in.mp4", OutputDir: t.TempDir(), FPS: 1}, nil)
	if err == nil || !strings.Contains(err.Error(), "no frames") {
		t.Fatalf("expected no frames error, got %v", err)
	}
}

func TestExtractFramesReportsCommandFailure(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("exit status 1"), lines: []string{"Invalid data found when processing input"}}
	client, _ := New("ffmpeg", 0, WithExecutor(exec))
	_, err := client.ExtractFrames(context.Background(), ExtractRequest{Input: "in.mp4", OutputDir: t.TempDir(), FPS: 1}, nil)
	if err == nil || !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
}

func TestExtractFramesRejectsBadRequest(t *testing.T) {
	client, _ := New("ffmpeg", 0, WithExecutor(&fakeExecutor{}))
	if _, err := client.ExtractFrames(context.Background(), ExtractRequest{Input: "in.mp4", OutputDir: t.TempDir()}, nil); err == nil {
		t.Fatal("expected error for zero fps")
	}
	if _, err := New("  ", 0); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestParseProgress(t *testing.T) {
	if _, ok := parseProgress("bitrate=N/A"); ok {
		t.Fatal("unexpected progress for bitrate line")
	}
	if p, ok := parseProgress("out_time_us=2500000"); !ok || p.Seconds != 2.5 {
		t.Fatalf("parse out_time_us = %#v %v", p, ok)
	}
	if p, ok := parseProgress("progress=continue"); ok {
		t.Fatalf("unexpected progress %#v", p)
	}
}

func TestCommandExecutorRunsBinary(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffmpeg")
	body := "#!/bin/sh\necho out_time_us=1000000\necho oops >&2\nexit 0\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	var lines []string
	if err := (commandExecutor{}).Run(context.Background(), script, nil, func(line string) {
		lines = append(lines, line)
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	slices.Sort(lines)
	if !slices.Equal(lines, []string{"oops", "out_time_us=1000000"}) {
		t.Fatalf("unexpected lines %v", lines)
	}
}
