package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"shotline/internal/classification"
	"shotline/internal/config"
	"shotline/internal/download"
	"shotline/internal/extraction"
	"shotline/internal/generation"
	"shotline/internal/jobrun"
	"shotline/internal/jobstore"
	"shotline/internal/logging"
	"shotline/internal/notifications"
	"shotline/internal/progress"
	"shotline/internal/registry"
	"shotline/internal/scoring"
	"shotline/internal/stack"
	"shotline/internal/stackexec"
	"shotline/internal/stage"
	"shotline/internal/telemetry"
	"shotline/internal/upload"
)

// Stages constructs every built-in stage.
func Stages(cfg *config.Config, logger *slog.Logger) []stage.Stage {
	scorer := scoring.NewScorer(cfg, logger)
	return []stage.Stage{
		download.NewDownloader(cfg, nil, logger).Stage(),
		download.NewImporter(logger).Stage(),
		extraction.NewExtractor(cfg, logger).Stage(),
		scorer.Stage(),
		scorer.PerSecondStage(),
		classification.NewClassifier(cfg, logger).Stage(),
		generation.NewGenerator(cfg, logger, nil).Stage(),
		upload.NewUploader(cfg, logger).Stage(),
	}
}

// Registry returns a registry holding every built-in stage.
func Registry(cfg *config.Config, logger *slog.Logger) (*registry.Registry, error) {
	return registry.New(Stages(cfg, logger)...)
}

// Catalog returns the built-in stacks plus any declared in [stacks] file.
func Catalog(cfg *config.Config, reg *registry.Registry) (*stack.Catalog, error) {
	catalog := stack.DefaultCatalog()
	if _, err := catalog.LoadFile(cfg.Stacks.File, reg); err != nil {
		return nil, err
	}
	return catalog, nil
}

// App bundles the collaborators a command needs.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Registry  *registry.Registry
	Catalog   *stack.Catalog
	Engine    *stackexec.Runner
	Store     *jobstore.Store
	Publisher *progress.RedisPublisher
	Metrics   *telemetry.Metrics
	Tracing   *telemetry.Provider
	Notifier  notifications.Service
	Jobs      *jobrun.Runner
}

// Options selects which optional collaborators New opens.
type Options struct {
	// Version is reported in trace resources.
	Version string
	// WithStore opens the job database.
	WithStore bool
	// WithRuntime connects Redis and tracing for job execution.
	WithRuntime bool
}

// New builds an App. Close releases everything it opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	reg, err := Registry(cfg, logger)
	if err != nil {
		return nil, err
	}
	catalog, err := Catalog(cfg, reg)
	if err != nil {
		return nil, err
	}
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Catalog:  catalog,
		Engine:   stackexec.NewRunner(reg, logger),
		Metrics:  telemetry.NewMetrics(),
		Notifier: notifications.NewService(cfg),
	}

	if opts.WithStore {
		store, err := jobstore.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open job store: %w", err)
		}
		app.Store = store
	}
	if opts.WithRuntime {
		publisher, err := progress.NewRedisPublisher(ctx, cfg.Progress, logger)
		if err != nil {
			logging.WarnWithContext(logger, "redis progress publishing disabled", "progress_redis_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check [progress] redis_addr"),
				logging.String(logging.FieldImpact, "progress is only logged and stored locally"),
			)
		}
		app.Publisher = publisher
		tracing, err := telemetry.InitTracing(ctx, cfg.Telemetry, opts.Version, logger)
		if err != nil {
			_ = app.Close(ctx)
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		app.Tracing = tracing
	}

	jobOpts := []jobrun.Option{
		jobrun.WithMetrics(app.Metrics),
		jobrun.WithPublisher(app.Publisher),
		jobrun.WithTracer(app.Tracing.Tracer()),
		jobrun.WithNotifier(app.Notifier),
	}
	if app.Store != nil {
		jobOpts = append(jobOpts, jobrun.WithStore(app.Store))
	}
	app.Jobs = jobrun.New(cfg, app.Engine, catalog, logger, jobOpts...)
	return app, nil
}

// Close releases the store, Redis connection and tracer provider.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Tracing != nil {
		errs = append(errs, a.Tracing.Shutdown(ctx))
	}
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
