package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"shotline/internal/artifact"
	"shotline/internal/config"
	"shotline/internal/deps"
	"shotline/internal/framescore"
	"shotline/internal/iotype"
	"shotline/internal/logging"
	"shotline/internal/media/ffmpeg"
	"shotline/internal/media/ffprobe"
	"shotline/internal/services"
	"shotline/internal/stage"
)

// StageID identifies the frame extraction stage.
const StageID = "extract-frames"

// Options configures frame sampling.
type Options struct {
	FPS       float64 `yaml:"fps"`
	MaxWidth  int     `yaml:"max_width"`
	Format    string  `yaml:"format"`
	Quality   int     `yaml:"quality"`
	MaxFrames int     `yaml:"max_frames"`
}

// StageID implements stage.Options.
func (Options) StageID() string { return StageID }

// Extractor samples frames from the job video.
type Extractor struct {
	cfg        *config.Config
	logger     *slog.Logger
	ffmpegOpts []ffmpeg.Option
	probe      func(ctx context.Context, binary, path string) (ffprobe.Result, error)
}

// NewExtractor constructs the extract-frames stage implementation.
func NewExtractor(cfg *config.Config, logger *slog.Logger, opts ...ffmpeg.Option) *Extractor {
	return &Extractor{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "extraction"),
		ffmpegOpts: opts,
		probe:      ffprobe.Inspect,
	}
}

// DefaultOptions derives options from configuration.
func (e *Extractor) DefaultOptions() Options {
	return Options{
		FPS:       e.cfg.Extraction.FPS,
		MaxWidth:  e.cfg.Extraction.MaxWidth,
		Format:    e.cfg.Extraction.Format,
		Quality:   e.cfg.Extraction.Quality,
		MaxFrames: e.cfg.Extraction.MaxFrames,
	}
}

// Stage describes the extract-frames stage.
func (e *Extractor) Stage() stage.Stage {
	defaults := e.DefaultOptions()
	return stage.Stage{
		ID:             StageID,
		DisplayName:    "Extract Frames",
		Status:         "extracting",
		Description:    "Sample still frames from the video with ffmpeg",
		Requires:       iotype.NewSet(iotype.Video),
		Produces:       iotype.NewSet(iotype.Images, iotype.Frames),
		Execute:        e.Execute,
		DefaultOptions: defaults,
		DecodeOptions:  stage.DecodeInto(defaults),
		HealthCheck:    e.HealthCheck,
	}
}

// HealthCheck verifies ffmpeg and ffprobe are installed.
func (e *Extractor) HealthCheck(ctx context.Context, cfg *config.Config) stage.Health {
	if cfg == nil {
		cfg = e.cfg
	}
	missing := deps.Missing(deps.CheckBinaries(ctx, deps.Requirements(cfg)))
	if len(missing) == 0 {
		return stage.Healthy(StageID)
	}
	details := make([]string, 0, len(missing))
	for _, status := range missing {
		details = append(details, status.Detail)
	}
	return stage.Unhealthy(StageID, strings.Join(details, "; "))
}

// Execute probes the video and extracts frames into ec.Dirs.Frames.
func (e *Extractor) Execute(ctx context.Context, ec *stage.ExecContext, bag stage.Bag, raw stage.Options) stage.Result {
	opts, err := stage.OptionsAs(raw, e.DefaultOptions())
	if err != nil {
		return stage.Fail(err)
	}
	if opts.FPS <= 0 {
		return stage.Fail(services.Wrap(services.ErrValidation, StageID, "options", fmt.Sprintf("fps must be positive, got %v", opts.FPS), nil))
	}
	if strings.TrimSpace(opts.Format) == "" {
		opts.Format = "jpg"
	}
	video, err := stage.Get[artifact.Video](bag, iotype.Video)
	if err != nil {
		return stage.Fail(err)
	}
	if strings.TrimSpace(ec.Dirs.Frames) == "" {
		return stage.Fail(services.Wrap(services.ErrConfiguration, StageID, "prepare", "job frames directory not set", nil))
	}

	logger := ec.Log()
	probe, err := e.probe(ctx, e.cfg.FFprobeBinary(), video.Path)
	if err != nil {
		if ctx.Err() != nil {
			return stage.Fail(ctx.Err())
		}
		return stage.Fail(services.Wrap(services.ErrExternalTool, StageID, "ffprobe", video.Path, err))
	}
	stream, ok := probe.VideoStream()
	if !ok {
		return stage.Fail(services.Wrap(services.ErrValidation, StageID, "ffprobe", fmt.Sprintf("%s has no video stream", video.Path), nil))
	}
	duration := probe.DurationSeconds()

	fps := opts.FPS
	if opts.MaxFrames > 0 && duration > 0 && duration*fps > float64(opts.MaxFrames) {
		fps = float64(opts.MaxFrames) / duration
		logger.Info("lowering sample rate to respect frame cap",
			logging.Float64("requested_fps", opts.FPS),
			logging.Float64("effective_fps", fps),
			logging.Int("max_frames", opts.MaxFrames),
			logging.Float64("duration_seconds", duration),
		)
	}

	client, err := ffmpeg.New(e.cfg.FFmpegBinary(), e.cfg.Extraction.TimeoutSeconds, e.ffmpegOpts...)
	if err != nil {
		return stage.Fail(services.Wrap(services.ErrConfiguration, StageID, "ffmpeg", "", err))
	}
	req := ffmpeg.ExtractRequest{
		Input:     video.Path,
		OutputDir: ec.Dirs.Frames,
		FPS:       fps,
		MaxWidth:  opts.MaxWidth,
		Format:    strings.TrimPrefix(strings.ToLower(opts.Format), "."),
		Quality:   opts.Quality,
		MaxFrames: opts.MaxFrames,
	}
	paths, err := client.ExtractFrames(ctx, req, func(p ffmpeg.Progress) {
		if p.Done || duration <= 0 {
			return
		}
		ec.Report(math.Min(99, p.Seconds/duration*100), fmt.Sprintf("Extracted %.1fs of %.1fs", p.Seconds, duration))
	})
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return stage.Fail(services.Wrap(services.ErrTimeout, StageID, "ffmpeg", "frame extraction timed out", err))
		case ctx.Err() != nil:
			return stage.Fail(ctx.Err())
		default:
			return stage.Fail(services.Wrap(services.ErrExternalTool, StageID, "ffmpeg", "", err))
		}
	}

	frames := framesFromPaths(paths, fps)
	ec.Report(100, fmt.Sprintf("Extracted %d frames", len(frames)))
	logger.Info("frames extracted",
		logging.Int("frame_count", len(frames)),
		logging.Float64("fps", fps),
		logging.String("frames_dir", ec.Dirs.Frames),
		logging.String("video_stream", stream.String()),
	)

	out := stage.Bag{}
	out.Set(iotype.Images, paths)
	out.Set(iotype.Frames, frames)
	out.WithMetadata("video_probe", map[string]any{
		"duration_seconds": duration,
		"width":            stream.Width,
		"height":           stream.Height,
		"codec":            stream.CodecName,
		"frame_rate":       stream.FrameRate(),
		"has_audio":        probe.HasAudio(),
		"sample_fps":       fps,
	})
	return stage.Succeed(out)
}

// framesFromPaths assigns each frame a timestamp from its position in the
// fps sampled sequence, rounded to the millisecond.
func framesFromPaths(paths []string, fps float64) []framescore.Frame {
	frames := make([]framescore.Frame, 0, len(paths))
	for i, path := range paths {
		base := filepath.Base(path)
		frames = append(frames, framescore.Frame{
			ID:        strings.TrimSuffix(base, filepath.Ext(base)),
			Path:      path,
			Timestamp: math.Round(float64(i)/fps*1000) / 1000,
			Index:     i,
		})
	}
	return frames
}
