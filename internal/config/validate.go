package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. Credentials for external
// services are checked lazily by the stages that need them so that stacks
// which never call those services still run.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateConcurrency(); err != nil {
		return err
	}
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	if err := c.validateClassification(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func (c *Config) validateConcurrency() error {
	return ensurePositiveMap(map[string]int{
		"concurrency.max":            c.Concurrency.Max,
		"concurrency.scoring":        c.Concurrency.Scoring,
		"concurrency.classification": c.Concurrency.Classification,
		"concurrency.generation":     c.Concurrency.Generation,
		"concurrency.upload":         c.Concurrency.Upload,
		"download.timeout_seconds":   c.Download.TimeoutSeconds,
		"extraction.timeout_seconds": c.Extraction.TimeoutSeconds,
		"llm.timeout_seconds":        c.LLM.TimeoutSeconds,
		"generation.timeout_seconds": c.Generation.TimeoutSeconds,
	})
}

func (c *Config) validateExtraction() error {
	switch c.Extraction.Format {
	case "jpg", "png", "bmp":
	default:
		return fmt.Errorf("extraction.format: unsupported value %q (use jpg, png, or bmp)", c.Extraction.Format)
	}
	if c.Extraction.Quality < 1 || c.Extraction.Quality > 31 {
		return errors.New("extraction.quality must be between 1 and 31")
	}
	if c.Extraction.MaxWidth < 0 {
		return errors.New("extraction.max_width must be >= 0")
	}
	return nil
}

func (c *Config) validateScoring() error {
	if c.Scoring.Alpha < 0 {
		return errors.New("scoring.alpha must be >= 0")
	}
	if c.Scoring.ThumbSize < 2 {
		return errors.New("scoring.thumb_size must be at least 2")
	}
	if c.Scoring.MinSharpness < 0 {
		return errors.New("scoring.min_sharpness must be >= 0")
	}
	return nil
}

func (c *Config) validateClassification() error {
	if c.Classification.MinConfidence < 0 || c.Classification.MinConfidence > 1 {
		return errors.New("classification.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if (c.Upload.AccessKeyID == "") != (c.Upload.SecretAccessKey == "") {
		return errors.New("upload.access_key_id and upload.secret_access_key must be set together")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL such as https://ntfy.sh/my-topic, got %q", topic)
	}
	return nil
}
