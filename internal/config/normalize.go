package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeConcurrency()
	c.normalizeDownload()
	c.normalizeExtraction()
	c.normalizeScoring()
	c.normalizeLLM()
	c.normalizeGeneration()
	c.normalizeUpload()
	if err := c.normalizeStacks(); err != nil {
		return err
	}
	c.normalizeProgress()
	c.normalizeNotifications()
	return c.normalizeTelemetry()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeConcurrency() {
	if c.Concurrency.Max <= 0 {
		c.Concurrency.Max = defaultConcurrencyMax
	}
	clamp := func(value, fallback int) int {
		if value <= 0 {
			value = fallback
		}
		if value > c.Concurrency.Max {
			value = c.Concurrency.Max
		}
		return value
	}
	c.Concurrency.Scoring = clamp(c.Concurrency.Scoring, defaultScoringConcurrency)
	c.Concurrency.Classification = clamp(c.Concurrency.Classification, defaultClassifyConcurrency)
	c.Concurrency.Generation = clamp(c.Concurrency.Generation, defaultGenerationConcurrency)
	c.Concurrency.Upload = clamp(c.Concurrency.Upload, defaultUploadConcurrency)
}

func (c *Config) normalizeDownload() {
	if c.Download.TimeoutSeconds <= 0 {
		c.Download.TimeoutSeconds = defaultDownloadTimeoutSeconds
	}
	if c.Download.MaxBytes <= 0 {
		c.Download.MaxBytes = defaultDownloadMaxBytes
	}
	if c.Download.Retries < 0 {
		c.Download.Retries = 0
	}
	c.Download.UserAgent = strings.TrimSpace(c.Download.UserAgent)
	if c.Download.UserAgent == "" {
		c.Download.UserAgent = defaultDownloadUserAgent
	}
}

func (c *Config) normalizeExtraction() {
	c.Extraction.FFmpegBinary = strings.TrimSpace(c.Extraction.FFmpegBinary)
	if c.Extraction.FFmpegBinary == "" {
		c.Extraction.FFmpegBinary = defaultFFmpegBinary
	}
	c.Extraction.FFprobeBinary = strings.TrimSpace(c.Extraction.FFprobeBinary)
	if c.Extraction.FFprobeBinary == "" {
		c.Extraction.FFprobeBinary = defaultFFprobeBinary
	}
	c.Extraction.Format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Extraction.Format), "."))
	switch c.Extraction.Format {
	case "jpeg":
		c.Extraction.Format = "jpg"
	case "":
		c.Extraction.Format = defaultExtractionFormat
	}
	if c.Extraction.FPS <= 0 {
		c.Extraction.FPS = defaultExtractionFPS
	}
	if c.Extraction.Quality <= 0 {
		c.Extraction.Quality = defaultExtractionQuality
	}
	if c.Extraction.TimeoutSeconds <= 0 {
		c.Extraction.TimeoutSeconds = defaultExtractionTimeout
	}
	if c.Extraction.MaxFrames < 0 {
		c.Extraction.MaxFrames = 0
	}
}

func (c *Config) normalizeScoring() {
	if c.Scoring.ThumbSize <= 0 {
		c.Scoring.ThumbSize = defaultScoringThumbSize
	}
	if c.Scoring.TopK <= 0 {
		c.Scoring.TopK = defaultScoringTopK
	}
	if c.Scoring.MinGapSeconds < 0 {
		c.Scoring.MinGapSeconds = 0
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.RequestsPerMinute < 0 {
		c.LLM.RequestsPerMinute = 0
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("SHOTLINE_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Classification.MaxVariants <= 0 {
		c.Classification.MaxVariants = defaultMaxVariants
	}
}

func (c *Config) normalizeGeneration() {
	c.Generation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generation.BaseURL), "/")
	c.Generation.Model = strings.TrimSpace(c.Generation.Model)
	if c.Generation.Model == "" {
		c.Generation.Model = defaultGenerationModel
	}
	c.Generation.Style = strings.TrimSpace(c.Generation.Style)
	if c.Generation.ImagesPerVariant <= 0 {
		c.Generation.ImagesPerVariant = defaultImagesPerVariant
	}
	if c.Generation.TimeoutSeconds <= 0 {
		c.Generation.TimeoutSeconds = defaultGenerationTimeout
	}
	if c.Generation.RequestsPerMinute < 0 {
		c.Generation.RequestsPerMinute = 0
	}
	c.Generation.APIKey = strings.TrimSpace(c.Generation.APIKey)
	if c.Generation.APIKey == "" {
		if value, ok := os.LookupEnv("SHOTLINE_GENERATION_API_KEY"); ok {
			c.Generation.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeUpload() {
	c.Upload.Bucket = strings.TrimSpace(c.Upload.Bucket)
	c.Upload.Prefix = strings.Trim(strings.TrimSpace(c.Upload.Prefix), "/")
	c.Upload.Region = strings.TrimSpace(c.Upload.Region)
	if c.Upload.Region == "" {
		if value, ok := os.LookupEnv("AWS_REGION"); ok && strings.TrimSpace(value) != "" {
			c.Upload.Region = strings.TrimSpace(value)
		} else {
			c.Upload.Region = defaultUploadRegion
		}
	}
	c.Upload.Endpoint = strings.TrimSpace(c.Upload.Endpoint)
	c.Upload.AccessKeyID = strings.TrimSpace(c.Upload.AccessKeyID)
	c.Upload.SecretAccessKey = strings.TrimSpace(c.Upload.SecretAccessKey)
	c.Upload.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Upload.PublicBaseURL), "/")
}

func (c *Config) normalizeStacks() error {
	c.Stacks.Default = strings.TrimSpace(c.Stacks.Default)
	if c.Stacks.Default == "" {
		c.Stacks.Default = defaultStack
	}
	var err error
	if c.Stacks.File, err = expandPath(strings.TrimSpace(c.Stacks.File)); err != nil {
		return fmt.Errorf("stacks.file: %w", err)
	}
	return nil
}

func (c *Config) normalizeProgress() {
	if c.Progress.LogBucketPercent <= 0 {
		c.Progress.LogBucketPercent = defaultProgressBucket
	}
	c.Progress.RedisAddr = strings.TrimSpace(c.Progress.RedisAddr)
	c.Progress.RedisChannel = strings.TrimSpace(c.Progress.RedisChannel)
	if c.Progress.RedisChannel == "" {
		c.Progress.RedisChannel = defaultRedisChannel
	}
	if c.Progress.RedisPassword == "" {
		if value, ok := os.LookupEnv("SHOTLINE_REDIS_PASSWORD"); ok {
			c.Progress.RedisPassword = value
		}
	}
}

func (c *Config) normalizeTelemetry() error {
	var err error
	if c.Telemetry.MetricsFile, err = expandPath(strings.TrimSpace(c.Telemetry.MetricsFile)); err != nil {
		return fmt.Errorf("telemetry.metrics_file: %w", err)
	}
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	if c.Telemetry.OTLPEndpoint == "" {
		c.Telemetry.OTLPEndpoint = defaultOTLPEndpoint
	}
	if c.Telemetry.SampleRate < 0 {
		c.Telemetry.SampleRate = 0
	}
	if c.Telemetry.SampleRate > 1 {
		c.Telemetry.SampleRate = 1
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SHOTLINE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}
