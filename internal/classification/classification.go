package classification

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"shotline/internal/artifact"
	"shotline/internal/batch"
	"shotline/internal/config"
	"shotline/internal/framescore"
	"shotline/internal/iotype"
	"shotline/internal/logging"
	"shotline/internal/services"
	"shotline/internal/services/llm"
	"shotline/internal/stage"
)

// StageID identifies the variant classification stage.
const StageID = "classify-variants"

// Options configures variant grouping.
type Options struct {
	MaxVariants   int     `yaml:"max_variants"`
	MinConfidence float64 `yaml:"min_confidence"`
	// Hint is product context passed to the model; defaults to the job name.
	Hint string `yaml:"hint"`
}

// StageID implements stage.Options.
func (Options) StageID() string { return StageID }

// Classifier assigns candidate frames to product variants.
type Classifier struct {
	cfg    *config.Config
	logger *slog.Logger
	client *llm.Client
}

// NewClassifier constructs the classify-variants stage implementation. The
// LLM client is rate limited to the configured requests per minute; opts are
// applied after that and may override it.
func NewClassifier(cfg *config.Config, logger *slog.Logger, opts ...llm.Option) *Classifier {
	clientOpts := append([]llm.Option{llm.WithRequestsPerMinute(cfg.LLM.RequestsPerMinute)}, opts...)
	client := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, clientOpts...)
	return &Classifier{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "classification"),
		client: client,
	}
}

// DefaultOptions derives options from configuration.
func (c *Classifier) DefaultOptions() Options {
	return Options{
		MaxVariants:   c.cfg.Classification.MaxVariants,
		MinConfidence: c.cfg.Classification.MinConfidence,
	}
}

// Stage describes the classify-variants stage.
func (c *Classifier) Stage() stage.Stage {
	defaults := c.DefaultOptions()
	return stage.Stage{
		ID:             StageID,
		DisplayName:    "Classify Variants",
		Status:         "classifying",
		Description:    "Identify product variants in candidate frames with a vision model",
		Requires:       iotype.NewSet(iotype.Candidates),
		Produces:       iotype.NewSet(iotype.Classifications),
		Execute:        c.Execute,
		DefaultOptions: defaults,
		DecodeOptions:  stage.DecodeInto(defaults),
		HealthCheck:    c.HealthCheck,
	}
}

// HealthCheck reports whether the vision model is configured.
func (c *Classifier) HealthCheck(_ context.Context, _ *config.Config) stage.Health {
	if !c.client.Configured() {
		return stage.Unhealthy(StageID, "llm api key not configured")
	}
	return stage.Healthy(StageID)
}

type verdict struct {
	frame  framescore.ScoredFrame
	result llm.FrameClassification
}

// Execute classifies every candidate and keeps the best frame per variant.
func (c *Classifier) Execute(ctx context.Context, ec *stage.ExecContext, bag stage.Bag, raw stage.Options) stage.Result {
	opts, err := stage.OptionsAs(raw, c.DefaultOptions())
	if err != nil {
		return stage.Fail(err)
	}
	candidates, err := stage.Get[[]framescore.ScoredFrame](bag, iotype.Candidates)
	if err != nil {
		return stage.Fail(err)
	}
	if len(candidates) == 0 {
		return stage.Fail(services.Wrap(services.ErrValidation, StageID, "classify", "no candidate frames", nil))
	}
	if !c.client.Configured() {
		return stage.Fail(services.Wrap(services.ErrConfiguration, StageID, "classify", "llm api key not configured", nil))
	}
	hint := strings.TrimSpace(opts.Hint)
	if hint == "" {
		hint = ec.Job.Name
	}

	cfg := ec.ConfigOr(c.cfg)
	total := len(candidates)
	var done atomic.Int64
	summary := batch.Run(ctx, candidates, func(ctx context.Context, _ int, frame framescore.ScoredFrame) (verdict, error) {
		defer func() {
			n := done.Add(1)
			ec.Report(float64(n)/float64(total)*100, fmt.Sprintf("Classified %d/%d frames", n, total))
		}()
		data, err := os.ReadFile(frame.Path)
		if err != nil {
			return verdict{}, services.Wrap(services.ErrNotFound, StageID, "read frame", frame.FrameID, err)
		}
		result, err := c.client.ClassifyFrame(ctx, data, mimeType(frame.Path), hint)
		if err != nil {
			return verdict{}, err
		}
		return verdict{frame: frame, result: result}, nil
	}, batch.Options{
		Concurrency: cfg.StageConcurrency(StageID),
		Max:         cfg.Concurrency.Max,
	})
	if err := ctx.Err(); err != nil {
		return stage.Fail(err)
	}

	report := artifact.ReportFromResults(summary.Results, func(i int) string { return candidates[i].FrameID })
	verdicts := summary.Values()
	if len(verdicts) == 0 {
		return stage.Fail(services.Wrap(services.ErrExternalTool, StageID, "classify",
			fmt.Sprintf("all %d classification requests failed", total), summary.FirstError()))
	}
	if report.HasFailures() {
		logging.WarnWithContext(ec.Log(), "some frames could not be classified", "classification_partial",
			logging.String("report", report.Summary()),
			logging.String(logging.FieldErrorHint, "check llm connectivity and rate limits"),
			logging.String(logging.FieldImpact, "variants may be missing from the output"),
		)
	}

	classifications, rejected := selectVariants(verdicts, opts.MinConfidence, opts.MaxVariants)
	if len(classifications) == 0 {
		return stage.Fail(services.Wrap(services.ErrValidation, StageID, "select",
			fmt.Sprintf("no usable frame reached confidence %.2f", opts.MinConfidence), nil))
	}
	ec.Log().Info("variants classified",
		logging.Int("candidates", total),
		logging.Int("variants", len(classifications)),
		logging.Int("rejected", rejected),
		logging.String("model", c.client.Model()),
	)

	out := stage.Bag{}
	out.Set(iotype.Classifications, classifications)
	out.WithMetadata(StageID, report)
	return stage.Succeed(out)
}

// selectVariants keeps usable verdicts at or above minConfidence, picks the
// most confident frame of each variant (frame score breaks ties) and caps
// the result at maxVariants, preferring the most confident variants. The
// result is ordered by frame timestamp. rejected counts discarded verdicts.
func selectVariants(verdicts []verdict, minConfidence float64, maxVariants int) ([]artifact.Classification, int) {
	best := make(map[string]verdict)
	rejected := 0
	for _, v := range verdicts {
		if !v.result.Usable || v.result.Variant == "" || v.result.Confidence < minConfidence {
			rejected++
			continue
		}
		cur, ok := best[v.result.Variant]
		if !ok || preferred(v, cur) {
			best[v.result.Variant] = v
		}
	}

	chosen := make([]verdict, 0, len(best))
	for _, v := range best {
		chosen = append(chosen, v)
	}
	slices.SortFunc(chosen, func(a, b verdict) int {
		if preferred(a, b) {
			return -1
		}
		if preferred(b, a) {
			return 1
		}
		return cmp.Compare(a.result.Variant, b.result.Variant)
	})
	if maxVariants > 0 && len(chosen) > maxVariants {
		chosen = chosen[:maxVariants]
	}
	slices.SortStableFunc(chosen, func(a, b verdict) int {
		return cmp.Compare(a.frame.Timestamp, b.frame.Timestamp)
	})

	out := make([]artifact.Classification, 0, len(chosen))
	for _, v := range chosen {
		out = append(out, artifact.Classification{
			Variant:     v.result.Variant,
			Label:       v.result.Label,
			Description: v.result.Description,
			Angle:       v.result.Angle,
			FrameID:     v.frame.FrameID,
			FramePath:   v.frame.Path,
			Timestamp:   v.frame.Timestamp,
			Confidence:  v.result.Confidence,
			Score:       v.frame.Score,
		})
	}
	return out, rejected
}

func preferred(a, b verdict) bool {
	if a.result.Confidence != b.result.Confidence {
		return a.result.Confidence > b.result.Confidence
	}
	if a.frame.Score != b.frame.Score {
		return a.frame.Score > b.frame.Score
	}
	return a.frame.Timestamp < b.frame.Timestamp
}

func mimeType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
		return t
	}
	return "image/jpeg"
}
