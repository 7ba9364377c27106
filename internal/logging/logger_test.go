package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shotline/internal/config"
	"shotline/internal/logging"
	"shotline/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "shotline.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerCallerOnlyForDebug(t *testing.T) {
	for _, tc := range []struct {
		level      string
		wantCaller bool
	}{
		{"info", false},
		{"debug", true},
	} {
		t.Run(tc.level, func(t *testing.T) {
			logPath := filepath.Join(t.TempDir(), "console.log")
			logger, err := logging.New(logging.Options{
				Format:      "console",
				Level:       tc.level,
				OutputPaths: []string{logPath},
			})
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}
			logger.Info("message")

			content, err := os.ReadFile(logPath)
			if err != nil {
				t.Fatalf("read log file: %v", err)
			}
			if got := strings.Contains(string(content), ".go:"); got != tc.wantCaller {
				t.Fatalf("caller present = %v, want %v: %q", got, tc.wantCaller, content)
			}
		})
	}
}

func TestConsoleHandlerRendersSubjectAndHighlights(t *testing.T) {
	var buf bytes.Buffer
	handler, err := logging.NewHandler(&buf, logging.Options{Format: "console", Level: "info"})
	if err != nil {
		t.Fatalf("NewHandler returned error: %v", err)
	}
	logger := slog.New(handler).With(
		logging.String(logging.FieldComponent, "stackexec"),
		logging.String(logging.FieldJobID, "3f2a9c10-aaaa-bbbb"),
	)
	logger.Info("stage completed",
		logging.String(logging.FieldStage, "score-frames"),
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("output_dir", "/tmp/frames"),
	)

	out := buf.String()
	for _, fragment := range []string{"INFO [stackexec]", "Job 3f2a9c10 (score-frames)", "stage completed", "- Event: stage_complete", "1 more field hidden"} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %q in output:\n%s", fragment, out)
		}
	}
}

func TestJSONLoggerShape(t *testing.T) {
	var buf bytes.Buffer
	handler, err := logging.NewHandler(&buf, logging.Options{Format: "json", Level: "info"})
	if err != nil {
		t.Fatalf("NewHandler returned error: %v", err)
	}
	slog.New(handler).Warn("json message", logging.Error(errors.New("boom")))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode json log: %v (%s)", err, buf.String())
	}
	if payload["level"] != "warn" || payload["msg"] != "json message" || payload["error"] != "boom" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key: %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-1")
	ctx = services.WithStage(ctx, "extract-frames")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{
		logging.FieldJobID:         "job-1",
		logging.FieldStage:         "extract-frames",
		logging.FieldCorrelationID: "req-xyz",
	}
	for key, value := range want {
		if payload[key] != value {
			t.Fatalf("field %s = %v, want %q", key, payload[key], value)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "partial failure", "generation_partial", logging.String(logging.FieldErrorHint, "retry the job"))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload[logging.FieldEventType] != "generation_partial" {
		t.Fatalf("unexpected event type %v", payload[logging.FieldEventType])
	}
	if payload[logging.FieldErrorHint] != "retry the job" {
		t.Fatalf("hint should not be overridden: %v", payload[logging.FieldErrorHint])
	}
	if _, ok := payload[logging.FieldImpact]; !ok {
		t.Fatal("expected impact default")
	}
}
