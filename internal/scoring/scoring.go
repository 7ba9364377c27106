package scoring

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"shotline/internal/artifact"
	"shotline/internal/batch"
	"shotline/internal/config"
	"shotline/internal/framescore"
	"shotline/internal/iotype"
	"shotline/internal/logging"
	"shotline/internal/services"
	"shotline/internal/stage"
)

const (
	// StageID identifies the temporally diverse top-K scoring stage.
	StageID = "score-frames"
	// PerSecondStageID identifies the best-per-second scoring stage.
	PerSecondStageID = "score-frames-per-second"
)

// analysisShare is the slice of stage progress spent decoding frames.
const analysisShare = 90.0

// Options configures the score-frames stage.
type Options struct {
	TopK          int     `yaml:"top_k"`
	MinGapSeconds float64 `yaml:"min_gap_seconds"`
	Alpha         float64 `yaml:"alpha"`
	ThumbSize     int     `yaml:"thumb_size"`
}

// StageID implements stage.Options.
func (Options) StageID() string { return StageID }

// PerSecondOptions configures the score-frames-per-second stage.
type PerSecondOptions struct {
	MinSharpness float64 `yaml:"min_sharpness"`
	Alpha        float64 `yaml:"alpha"`
	ThumbSize    int     `yaml:"thumb_size"`
}

// StageID implements stage.Options.
func (PerSecondOptions) StageID() string { return PerSecondStageID }

// Scorer runs frame analysis for both scoring stages.
type Scorer struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewScorer constructs the scoring stage implementations.
func NewScorer(cfg *config.Config, logger *slog.Logger) *Scorer {
	return &Scorer{cfg: cfg, logger: logging.NewComponentLogger(logger, "scoring")}
}

// DefaultOptions derives score-frames options from configuration.
func (s *Scorer) DefaultOptions() Options {
	return Options{
		TopK:          s.cfg.Scoring.TopK,
		MinGapSeconds: s.cfg.Scoring.MinGapSeconds,
		Alpha:         s.cfg.Scoring.Alpha,
		ThumbSize:     s.cfg.Scoring.ThumbSize,
	}
}

// DefaultPerSecondOptions derives score-frames-per-second options from configuration.
func (s *Scorer) DefaultPerSecondOptions() PerSecondOptions {
	return PerSecondOptions{
		MinSharpness: s.cfg.Scoring.MinSharpness,
		Alpha:        s.cfg.Scoring.Alpha,
		ThumbSize:    s.cfg.Scoring.ThumbSize,
	}
}

// Stage describes the score-frames stage.
func (s *Scorer) Stage() stage.Stage {
	defaults := s.DefaultOptions()
	return stage.Stage{
		ID:             StageID,
		DisplayName:    "Score Frames",
		Status:         "scoring",
		Description:    "Rank frames by sharpness and motion; keep a temporally diverse top K",
		Requires:       iotype.NewSet(iotype.Images, iotype.Frames),
		Produces:       iotype.NewSet(iotype.ScoredFrames, iotype.Candidates),
		Execute:        s.executeTopK,
		DefaultOptions: defaults,
		DecodeOptions:  stage.DecodeInto(defaults),
	}
}

// PerSecondStage describes the score-frames-per-second stage.
func (s *Scorer) PerSecondStage() stage.Stage {
	defaults := s.DefaultPerSecondOptions()
	return stage.Stage{
		ID:             PerSecondStageID,
		DisplayName:    "Score Frames Per Second",
		Status:         "scoring",
		Description:    "Drop blurry frames and keep the best frame of every second",
		Requires:       iotype.NewSet(iotype.Frames, iotype.Images),
		Produces:       iotype.NewSet(iotype.Candidates, iotype.ScoredFrames),
		Execute:        s.executePerSecond,
		DefaultOptions: defaults,
		DecodeOptions:  stage.DecodeInto(defaults),
	}
}

func (s *Scorer) executeTopK(ctx context.Context, ec *stage.ExecContext, bag stage.Bag, raw stage.Options) stage.Result {
	opts, err := stage.OptionsAs(raw, s.DefaultOptions())
	if err != nil {
		return stage.Fail(err)
	}
	if opts.TopK <= 0 {
		return stage.Fail(services.Wrap(services.ErrValidation, StageID, "options", fmt.Sprintf("top_k must be positive, got %d", opts.TopK), nil))
	}
	scored, report, err := s.scoreFrames(ctx, ec, bag, StageID, opts.Alpha, opts.ThumbSize)
	if err != nil {
		return stage.Fail(err)
	}
	candidates := framescore.SelectCandidates(scored, opts.TopK, opts.MinGapSeconds)
	ec.Log().Info("candidates selected",
		logging.Int("scored", len(scored)),
		logging.Int("candidates", len(candidates)),
		logging.Int("top_k", opts.TopK),
		logging.Float64("min_gap_seconds", opts.MinGapSeconds),
	)
	return stage.Succeed(output(StageID, scored, candidates, report))
}

func (s *Scorer) executePerSecond(ctx context.Context, ec *stage.ExecContext, bag stage.Bag, raw stage.Options) stage.Result {
	opts, err := stage.OptionsAs(raw, s.DefaultPerSecondOptions())
	if err != nil {
		return stage.Fail(err)
	}
	scored, report, err := s.scoreFrames(ctx, ec, bag, PerSecondStageID, opts.Alpha, opts.ThumbSize)
	if err != nil {
		return stage.Fail(err)
	}
	candidates := framescore.SelectBestFramePerSecond(scored, opts.MinSharpness)
	if len(candidates) == 0 {
		return stage.Fail(services.Wrap(services.ErrValidation, PerSecondStageID, "select",
			fmt.Sprintf("no frame reached sharpness %.2f", opts.MinSharpness), nil))
	}
	ec.Log().Info("candidates selected",
		logging.Int("scored", len(scored)),
		logging.Int("candidates", len(candidates)),
		logging.Float64("min_sharpness", opts.MinSharpness),
	)
	return stage.Succeed(output(PerSecondStageID, scored, candidates, report))
}

// scoreFrames analyzes every frame in parallel and scores the decodable ones
// in timestamp order. Frames that fail to decode are dropped and reported.
func (s *Scorer) scoreFrames(ctx context.Context, ec *stage.ExecContext, bag stage.Bag, stageID string, alpha float64, thumbSize int) ([]framescore.ScoredFrame, artifact.StageReport, error) {
	frames, err := stage.Get[[]framescore.Frame](bag, iotype.Frames)
	if err != nil {
		return nil, artifact.StageReport{}, err
	}
	if len(frames) == 0 {
		return nil, artifact.StageReport{}, services.Wrap(services.ErrValidation, stageID, "score", "no frames to score", nil)
	}
	if thumbSize <= 0 {
		thumbSize = framescore.DefaultThumbSize
	}

	cfg := ec.ConfigOr(s.cfg)
	total := len(frames)
	var done atomic.Int64
	summary := batch.Run(ctx, frames, func(ctx context.Context, _ int, frame framescore.Frame) (framescore.Analysis, error) {
		if err := ctx.Err(); err != nil {
			return framescore.Analysis{}, err
		}
		analysis, err := framescore.AnalyzeFile(frame, thumbSize)
		n := done.Add(1)
		ec.Report(float64(n)/float64(total)*analysisShare, fmt.Sprintf("Analyzed %d/%d frames", n, total))
		if err != nil {
			return framescore.Analysis{}, services.Wrap(services.ErrValidation, stageID, "decode", frame.ID, err)
		}
		return analysis, nil
	}, batch.Options{
		Concurrency: cfg.StageConcurrency(stageID),
		Max:         cfg.Concurrency.Max,
	})
	if err := ctx.Err(); err != nil {
		return nil, artifact.StageReport{}, err
	}

	report := artifact.ReportFromResults(summary.Results, func(i int) string { return frames[i].ID })
	analyses := summary.Values()
	if len(analyses) == 0 {
		return nil, report, services.Wrap(services.ErrValidation, stageID, "score",
			fmt.Sprintf("none of %d frames could be decoded", total), nil)
	}
	if report.HasFailures() {
		logging.WarnWithContext(ec.Log(), "some frames could not be analyzed", "frame_decode_failed",
			logging.String("report", report.Summary()),
			logging.String(logging.FieldErrorHint, "check the extracted frame files"),
			logging.String(logging.FieldImpact, "undecodable frames are excluded from selection"),
		)
	}
	sortAnalyses(analyses)
	scored := framescore.ScoreSequence(analyses, alpha)
	ec.Report(100, fmt.Sprintf("Scored %d frames", len(scored)))
	return scored, report, nil
}

// sortAnalyses orders analyses by timestamp so motion is always measured
// against the preceding moment in the video.
func sortAnalyses(analyses []framescore.Analysis) {
	slices.SortStableFunc(analyses, func(a, b framescore.Analysis) int {
		return cmp.Compare(a.Frame.Timestamp, b.Frame.Timestamp)
	})
}

func output(stageID string, scored, candidates []framescore.ScoredFrame, report artifact.StageReport) stage.Bag {
	out := stage.Bag{}
	out.Set(iotype.ScoredFrames, scored)
	out.Set(iotype.Candidates, candidates)
	out.WithMetadata(stageID, report)
	return out
}
