package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format  string `toml:"format"`
	Level   string `toml:"level"`
	JobLogs bool   `toml:"job_logs"`
}

// Concurrency bounds the batch runner used by I/O heavy stages. Per-stage
// values are clamped to Max.
type Concurrency struct {
	Max            int `toml:"max"`
	Scoring        int `toml:"scoring"`
	Classification int `toml:"classification"`
	Generation     int `toml:"generation"`
	Upload         int `toml:"upload"`
}

// Download contains settings for fetching source videos.
type Download struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxBytes       int64  `toml:"max_bytes"`
	Retries        int    `toml:"retries"`
	UserAgent      string `toml:"user_agent"`
}

// Extraction contains settings for frame extraction with ffmpeg.
type Extraction struct {
	FFmpegBinary   string  `toml:"ffmpeg_binary"`
	FFprobeBinary  string  `toml:"ffprobe_binary"`
	FPS            float64 `toml:"fps"`
	MaxWidth       int     `toml:"max_width"`
	Format         string  `toml:"format"`
	Quality        int     `toml:"quality"`
	MaxFrames      int     `toml:"max_frames"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Scoring contains the frame scoring parameters.
type Scoring struct {
	Alpha         float64 `toml:"alpha"`
	ThumbSize     int     `toml:"thumb_size"`
	TopK          int     `toml:"top_k"`
	MinGapSeconds float64 `toml:"min_gap_seconds"`
	MinSharpness  float64 `toml:"min_sharpness"`
}

// LLM contains the vision model connection used by classification.
type LLM struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	Referer           string `toml:"referer"`
	Title             string `toml:"title"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// Classification contains variant grouping settings.
type Classification struct {
	MaxVariants   int     `toml:"max_variants"`
	MinConfidence float64 `toml:"min_confidence"`
}

// Generation contains the external image generation service settings.
type Generation struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	Style             string `toml:"style"`
	ImagesPerVariant  int    `toml:"images_per_variant"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// Upload contains S3 compatible object storage settings.
type Upload struct {
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
	PublicBaseURL   string `toml:"public_base_url"`
}

// Stacks contains stack template settings.
type Stacks struct {
	File    string `toml:"file"`
	Default string `toml:"default"`
}

// Progress contains progress reporting settings.
type Progress struct {
	LogBucketPercent float64 `toml:"log_bucket_percent"`
	RedisAddr        string  `toml:"redis_addr"`
	RedisPassword    string  `toml:"redis_password"`
	RedisDB          int     `toml:"redis_db"`
	RedisChannel     string  `toml:"redis_channel"`
}

// Telemetry contains tracing and metrics export settings.
type Telemetry struct {
	Tracing      bool    `toml:"tracing"`
	OTLPEndpoint string  `toml:"otlp_endpoint"`
	SampleRate   float64 `toml:"sample_rate"`
	MetricsFile  string  `toml:"metrics_file"`
}

// Notifications contains ntfy delivery settings. An empty topic disables
// notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout"`
	OnSuccess             bool   `toml:"on_success"`
}

// Config encapsulates all configuration values for shotline.
//
// Configuration sections by subsystem:
//   - Paths: job workspaces, state database, and log directories
//   - Logging: log format and level
//   - Concurrency: batch runner limits per stage
//   - Download / Extraction: source acquisition and ffmpeg settings
//   - Scoring: frame scoring weights and selection parameters
//   - LLM / Classification: vision model connection and variant grouping
//   - Generation: external image generation service
//   - Upload: S3 compatible storage
//   - Stacks: user stack templates
//   - Progress / Telemetry: progress fan-out, spans, and metrics
//   - Notifications: ntfy messages when jobs finish
type Config struct {
	Paths          Paths          `toml:"paths"`
	Logging        Logging        `toml:"logging"`
	Concurrency    Concurrency    `toml:"concurrency"`
	Download       Download       `toml:"download"`
	Extraction     Extraction     `toml:"extraction"`
	Scoring        Scoring        `toml:"scoring"`
	LLM            LLM            `toml:"llm"`
	Classification Classification `toml:"classification"`
	Generation     Generation     `toml:"generation"`
	Upload         Upload         `toml:"upload"`
	Stacks         Stacks         `toml:"stacks"`
	Progress       Progress       `toml:"progress"`
	Telemetry      Telemetry      `toml:"telemetry"`
	Notifications  Notifications  `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shotline.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the working, state, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobDBPath returns the location of the job status database.
func (c *Config) JobDBPath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// FFprobeBinary returns the ffprobe executable used to inspect source videos.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Extraction.FFprobeBinary); v != "" {
		return v
	}
	return defaultFFprobeBinary
}

// FFmpegBinary returns the ffmpeg executable used to extract frames.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Extraction.FFmpegBinary); v != "" {
		return v
	}
	return defaultFFmpegBinary
}

// StageConcurrency returns the configured worker count for a stage id, or
// zero when the stage should use the runner default.
func (c *Config) StageConcurrency(stageID string) int {
	switch stageID {
	case "score-frames", "score-frames-per-second":
		return c.Concurrency.Scoring
	case "classify-variants":
		return c.Concurrency.Classification
	case "generate-images":
		return c.Concurrency.Generation
	case "upload-images":
		return c.Concurrency.Upload
	default:
		return 0
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
