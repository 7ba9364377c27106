package config

const (
	defaultConfigPath             = "~/.config/shotline/config.toml"
	defaultWorkDir                = "~/.local/share/shotline/jobs"
	defaultStateDir               = "~/.local/share/shotline"
	defaultLogDir                 = "~/.local/share/shotline/logs"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultConcurrencyMax         = 10
	defaultScoringConcurrency     = 4
	defaultClassifyConcurrency    = 4
	defaultGenerationConcurrency  = 2
	defaultUploadConcurrency      = 6
	defaultDownloadTimeoutSeconds = 600
	defaultDownloadMaxBytes       = 2 << 30
	defaultDownloadRetries        = 3
	defaultDownloadUserAgent      = "shotline/dev"
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultExtractionFPS          = 2.0
	defaultExtractionMaxWidth     = 1280
	defaultExtractionFormat       = "jpg"
	defaultExtractionQuality      = 3
	defaultExtractionMaxFrames    = 600
	defaultExtractionTimeout      = 900
	defaultScoringAlpha           = 0.25
	defaultScoringThumbSize       = 64
	defaultScoringTopK            = 12
	defaultScoringMinGapSeconds   = 1.0
	defaultScoringMinSharpness    = 5.0
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "google/gemini-2.5-flash"
	defaultLLMReferer             = "https://github.com/shotline/shotline"
	defaultLLMTitle               = "shotline variant classifier"
	defaultLLMTimeoutSeconds      = 60
	defaultLLMRequestsPerMinute   = 60
	defaultMaxVariants            = 6
	defaultMinConfidence          = 0.5
	defaultGenerationModel        = "product-studio-v1"
	defaultGenerationStyle        = "studio-white"
	defaultImagesPerVariant       = 1
	defaultGenerationTimeout      = 120
	defaultGenerationRPM          = 20
	defaultUploadPrefix           = "shotline"
	defaultUploadRegion           = "us-east-1"
	defaultStack                  = "product-images"
	defaultProgressBucket         = 5.0
	defaultRedisChannel           = "shotline:progress"
	defaultOTLPEndpoint           = "localhost:4317"
	defaultNtfyTimeoutSeconds     = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Concurrency: Concurrency{
			Max:            defaultConcurrencyMax,
			Scoring:        defaultScoringConcurrency,
			Classification: defaultClassifyConcurrency,
			Generation:     defaultGenerationConcurrency,
			Upload:         defaultUploadConcurrency,
		},
		Download: Download{
			TimeoutSeconds: defaultDownloadTimeoutSeconds,
			MaxBytes:       defaultDownloadMaxBytes,
			Retries:        defaultDownloadRetries,
			UserAgent:      defaultDownloadUserAgent,
		},
		Extraction: Extraction{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			FPS:            defaultExtractionFPS,
			MaxWidth:       defaultExtractionMaxWidth,
			Format:         defaultExtractionFormat,
			Quality:        defaultExtractionQuality,
			MaxFrames:      defaultExtractionMaxFrames,
			TimeoutSeconds: defaultExtractionTimeout,
		},
		Scoring: Scoring{
			Alpha:         defaultScoringAlpha,
			ThumbSize:     defaultScoringThumbSize,
			TopK:          defaultScoringTopK,
			MinGapSeconds: defaultScoringMinGapSeconds,
			MinSharpness:  defaultScoringMinSharpness,
		},
		LLM: LLM{
			BaseURL:           defaultLLMBaseURL,
			Model:             defaultLLMModel,
			Referer:           defaultLLMReferer,
			Title:             defaultLLMTitle,
			TimeoutSeconds:    defaultLLMTimeoutSeconds,
			RequestsPerMinute: defaultLLMRequestsPerMinute,
		},
		Classification: Classification{
			MaxVariants:   defaultMaxVariants,
			MinConfidence: defaultMinConfidence,
		},
		Generation: Generation{
			Model:             defaultGenerationModel,
			Style:             defaultGenerationStyle,
			ImagesPerVariant:  defaultImagesPerVariant,
			TimeoutSeconds:    defaultGenerationTimeout,
			RequestsPerMinute: defaultGenerationRPM,
		},
		Upload: Upload{
			Prefix: defaultUploadPrefix,
			Region: defaultUploadRegion,
		},
		Stacks: Stacks{
			Default: defaultStack,
		},
		Progress: Progress{
			LogBucketPercent: defaultProgressBucket,
			RedisChannel:     defaultRedisChannel,
		},
		Telemetry: Telemetry{
			OTLPEndpoint: defaultOTLPEndpoint,
			SampleRate:   1.0,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
			OnSuccess:             true,
		},
	}
}
