package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"shotline/internal/artifact"
	"shotline/internal/batch"
	"shotline/internal/config"
	"shotline/internal/fileutil"
	"shotline/internal/iotype"
	"shotline/internal/logging"
	"shotline/internal/services"
	"shotline/internal/stage"
)

// StageID identifies the image generation stage.
const StageID = "generate-images"

const maxImageBytes = 64 << 20

// Options is forwarded verbatim to the generation service. See the package
// documentation for the keys the stage reads itself.
type Options map[string]any

// StageID implements stage.Options.
func (Options) StageID() string { return StageID }

func decodeOptions(decode func(target any) error) (stage.Options, error) {
	var params map[string]any
	if err := decode(&params); err != nil {
		return nil, services.Wrap(services.ErrValidation, StageID, "decode options", "", err)
	}
	return Options(params), nil
}

func (o Options) str(key, fallback string) string {
	if v, ok := o[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (o Options) count(key string, fallback int) (int, error) {
	raw, ok := o[key]
	if !ok {
		return fallback, nil
	}
	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, services.Wrap(services.ErrValidation, StageID, "options", fmt.Sprintf("%s must be a number", key), err)
		}
		n = parsed
	default:
		return 0, services.Wrap(services.ErrValidation, StageID, "options", fmt.Sprintf("%s must be a number, got %T", key, raw), nil)
	}
	if n <= 0 {
		return 0, services.Wrap(services.ErrValidation, StageID, "options", fmt.Sprintf("%s must be positive", key), nil)
	}
	return n, nil
}

// Generator produces studio images for classified variants.
type Generator struct {
	cfg    *config.Config
	logger *slog.Logger
	client *Client
}

// NewGenerator constructs the generate-images stage implementation. A nil
// httpClient uses one with the configured timeout.
func NewGenerator(cfg *config.Config, logger *slog.Logger, httpClient *http.Client) *Generator {
	g := cfg.Generation
	return &Generator{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "generation"),
		client: NewClient(g.BaseURL, g.APIKey, g.TimeoutSeconds, g.RequestsPerMinute, httpClient),
	}
}

// Stage describes the generate-images stage.
func (g *Generator) Stage() stage.Stage {
	return stage.Stage{
		ID:             StageID,
		DisplayName:    "Generate Images",
		Status:         "generating",
		Description:    "Create studio product images for each variant with the image service",
		Requires:       iotype.NewSet(iotype.Classifications),
		Produces:       iotype.NewSet(iotype.GeneratedImages),
		Execute:        g.Execute,
		DefaultOptions: Options{},
		DecodeOptions:  decodeOptions,
		HealthCheck:    g.HealthCheck,
	}
}

// HealthCheck reports whether the image service is configured.
func (g *Generator) HealthCheck(_ context.Context, _ *config.Config) stage.Health {
	if !g.client.Configured() {
		return stage.Unhealthy(StageID, "generation base_url or api_key not configured")
	}
	return stage.Healthy(StageID)
}

// Execute requests images for every classification.
func (g *Generator) Execute(ctx context.Context, ec *stage.ExecContext, bag stage.Bag, raw stage.Options) stage.Result {
	opts, err := stage.OptionsAs(raw, Options{})
	if err != nil {
		return stage.Fail(err)
	}
	perVariant, err := opts.count("images_per_variant", max(g.cfg.Generation.ImagesPerVariant, 1))
	if err != nil {
		return stage.Fail(err)
	}
	model := opts.str("model", g.cfg.Generation.Model)
	style := opts.str("style", g.cfg.Generation.Style)

	classifications, err := stage.Get[[]artifact.Classification](bag, iotype.Classifications)
	if err != nil {
		return stage.Fail(err)
	}
	if len(classifications) == 0 {
		return stage.Fail(services.Wrap(services.ErrValidation, StageID, "generate", "no classified variants", nil))
	}
	if !g.client.Configured() {
		return stage.Fail(services.Wrap(services.ErrConfiguration, StageID, "generate", "generation base_url or api_key not configured", nil))
	}
	if strings.TrimSpace(ec.Dirs.Generated) == "" {
		return stage.Fail(services.Wrap(services.ErrConfiguration, StageID, "prepare", "job generated directory not set", nil))
	}
	if err := os.MkdirAll(ec.Dirs.Generated, 0o755); err != nil {
		return stage.Fail(services.Wrap(services.ErrConfiguration, StageID, "prepare", ec.Dirs.Generated, err))
	}

	cfg := ec.ConfigOr(g.cfg)
	total := len(classifications)
	var done atomic.Int64
	summary := batch.Run(ctx, classifications, func(ctx context.Context, _ int, c artifact.Classification) ([]artifact.GeneratedImage, error) {
		defer func() {
			n := done.Add(1)
			ec.Report(float64(n)/float64(total)*100, fmt.Sprintf("Generated images for %d/%d variants", n, total))
		}()
		return g.generateVariant(ctx, ec, c, opts, model, style, perVariant)
	}, batch.Options{
		Concurrency: cfg.StageConcurrency(StageID),
		Max:         cfg.Concurrency.Max,
	})
	if err := ctx.Err(); err != nil {
		return stage.Fail(err)
	}

	report := artifact.ReportFromResults(summary.Results, func(i int) string { return classifications[i].Variant })
	var images []artifact.GeneratedImage
	for _, batchImages := range summary.Values() {
		images = append(images, batchImages...)
	}
	if len(images) == 0 {
		return stage.Fail(services.Wrap(services.ErrExternalTool, StageID, "generate",
			fmt.Sprintf("no images generated for %d variants", total), summary.FirstError()))
	}
	if report.HasFailures() {
		logging.WarnWithContext(ec.Log(), "image generation failed for some variants", "generation_partial",
			logging.String("report", report.Summary()),
			logging.String(logging.FieldErrorHint, "check the image service status and quota"),
			logging.String(logging.FieldImpact, "some variants have no generated images"),
		)
	}
	ec.Log().Info("images generated",
		logging.Int("variants", total),
		logging.Int("images", len(images)),
		logging.String("model", model),
		logging.String("style", style),
	)

	out := stage.Bag{}
	out.Set(iotype.GeneratedImages, images)
	out.WithMetadata(StageID, report)
	return stage.Succeed(out)
}

func (g *Generator) generateVariant(ctx context.Context, ec *stage.ExecContext, c artifact.Classification, opts Options, model, style string, perVariant int) ([]artifact.GeneratedImage, error) {
	frame, err := os.ReadFile(c.FramePath)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, StageID, "read frame", c.FrameID, err)
	}
	frameType := mime.TypeByExtension(strings.ToLower(filepath.Ext(c.FramePath)))
	if frameType == "" {
		frameType = http.DetectContentType(frame)
	}
	images, err := g.client.Generate(ctx, Request{
		Model:   model,
		Style:   style,
		Prompt:  prompt(c, style),
		Variant: c.Variant,
		Image:   "data:" + frameType + ";base64," + base64.StdEncoding.EncodeToString(frame),
		Options: opts,
	})
	if err != nil {
		return nil, err
	}
	if len(images) > perVariant {
		images = images[:perVariant]
	}

	out := make([]artifact.GeneratedImage, 0, len(images))
	for i, img := range images {
		body, err := g.client.Fetch(ctx, img)
		if err != nil {
			return nil, err
		}
		contentType := img.ContentType
		if contentType == "" {
			contentType = "image/png"
		}
		dst := filepath.Join(ec.Dirs.Generated, fmt.Sprintf("%s-%02d%s", c.Variant, i+1, extension(contentType)))
		size, err := fileutil.WriteAtomic(dst, body, maxImageBytes)
		body.Close()
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, StageID, "write image", dst, err)
		}
		out = append(out, artifact.GeneratedImage{
			Variant:       c.Variant,
			SourceFrameID: c.FrameID,
			Path:          dst,
			Index:         i,
			Style:         style,
			ContentType:   contentType,
			SizeBytes:     size,
		})
	}
	return out, nil
}

func prompt(c artifact.Classification, style string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Commercial product photo of the %s variant", c.Label)
	if c.Angle != "" {
		fmt.Fprintf(&b, ", %s view", c.Angle)
	}
	if style != "" {
		fmt.Fprintf(&b, ", %s style", style)
	}
	b.WriteString(".")
	if c.Description != "" {
		b.WriteString(" ")
		b.WriteString(c.Description)
	}
	return b.String()
}

func extension(contentType string) string {
	base, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		base = contentType
	}
	switch base {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
