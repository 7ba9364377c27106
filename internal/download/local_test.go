package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"shotline/internal/artifact"
	"shotline/internal/iotype"
	"shotline/internal/logging"
	"shotline/internal/services"
	"shotline/internal/stage"
	"shotline/internal/testsupport"
)

func TestImportLocalCopiesAndHashes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := filepath.Join(testsupport.BaseDir(cfg), "source", "clip.mp4")
	testsupport.WriteFile(t, src, 70*1024)

	ec, _ := testsupport.NewExecContext(t, cfg, "file://"+src)
	result := NewImporter(logging.NewNop()).Execute(context.Background(), ec, stage.Bag{}, nil)
	bag, err := result.Get()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	video, err := stage.Get[artifact.Video](bag, iotype.Video)
	if err != nil {
		t.Fatalf("video missing: %v", err)
	}
	if video.Path != filepath.Join(ec.Dirs.Input, "clip.mp4") {
		t.Fatalf("unexpected destination %q", video.Path)
	}
	if video.SizeBytes != 70*1024 {
		t.Fatalf("size = %d", video.SizeBytes)
	}
	if _, err := os.Stat(video.Path); err != nil {
		t.Fatalf("copied file missing: %v", err)
	}
	meta := bag.Metadata()
	if digest, _ := meta["source_sha256"].(string); len(digest) != 64 {
		t.Fatalf("expected sha256 digest in metadata, got %#v", meta["source_sha256"])
	}
	if meta["source_path"] != src {
		t.Fatalf("source_path = %#v", meta["source_path"])
	}
}

func TestImportLocalMissingSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ec, _ := testsupport.NewExecContext(t, cfg, filepath.Join(testsupport.BaseDir(cfg), "nope.mp4"))

	result := NewImporter(logging.NewNop()).Execute(context.Background(), ec, stage.Bag{}, nil)
	if !errors.Is(result.Err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", result.Err)
	}
}

func TestImportLocalRejectsDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ec, _ := testsupport.NewExecContext(t, cfg, "")

	result := NewImporter(logging.NewNop()).Execute(context.Background(), ec, stage.Bag{}, LocalOptions{Path: testsupport.BaseDir(cfg)})
	if !errors.Is(result.Err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", result.Err)
	}
}

func TestImportLocalRejectsForeignOptions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ec, _ := testsupport.NewExecContext(t, cfg, "/tmp/x.mp4")

	result := NewImporter(logging.NewNop()).Execute(context.Background(), ec, stage.Bag{}, Options{})
	if !errors.Is(result.Err, services.ErrValidation) {
		t.Fatalf("expected validation error for download options, got %v", result.Err)
	}
}
