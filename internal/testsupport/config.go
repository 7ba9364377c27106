package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"shotline/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Download.Retries = 0
	cfgVal.LLM.APIKey = "test"
	cfgVal.LLM.RequestsPerMinute = 0
	cfgVal.Generation.APIKey = "test"
	cfgVal.Generation.RequestsPerMinute = 0
	cfgVal.Progress.RedisAddr = ""
	cfgVal.Telemetry.MetricsFile = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLLMEndpoint points the vision model client at a test server.
func WithLLMEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = url
	}
}

// WithGenerationEndpoint points the image generation client at a test server.
func WithGenerationEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generation.BaseURL = url
	}
}

// WithUploadEndpoint configures S3 uploads against a test server.
func WithUploadEndpoint(url, bucket string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.Endpoint = url
		b.cfg.Upload.Bucket = bucket
		b.cfg.Upload.Region = "us-east-1"
		b.cfg.Upload.AccessKeyID = "test"
		b.cfg.Upload.SecretAccessKey = "test"
		b.cfg.Upload.UsePathStyle = true
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// points the extraction config at them. If names is empty, ffmpeg and ffprobe
// are stubbed with a script that exits 0.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		for _, name := range names {
			target := WriteScript(b.t, filepath.Join(b.baseDir, "bin"), name, "exit 0\n")
			switch name {
			case "ffmpeg":
				b.cfg.Extraction.FFmpegBinary = target
			case "ffprobe":
				b.cfg.Extraction.FFprobeBinary = target
			}
		}
	}
}

// WithScript installs a named stub executable with the given shell body and
// wires it into the extraction config when the name matches a known tool.
func WithScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		target := WriteScript(b.t, filepath.Join(b.baseDir, "bin"), name, body)
		switch name {
		case "ffmpeg":
			b.cfg.Extraction.FFmpegBinary = target
		case "ffprobe":
			b.cfg.Extraction.FFprobeBinary = target
		}
	}
}

// WriteScript writes an executable /bin/sh script and returns its path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
