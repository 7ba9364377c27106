package jobrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"shotline/internal/artifact"
	"shotline/internal/config"
	"shotline/internal/iotype"
	"shotline/internal/jobstore"
	"shotline/internal/logging"
	"shotline/internal/notifications"
	"shotline/internal/progress"
	"shotline/internal/services"
	"shotline/internal/stack"
	"shotline/internal/stackexec"
	"shotline/internal/stage"
	"shotline/internal/telemetry"
	"shotline/internal/workspace"
)

// Store is the subset of the job store used while running a job.
type Store interface {
	Create(ctx context.Context, job jobstore.Job) (*jobstore.Job, error)
	MarkRunning(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id, stageID string, percent float64, message string) error
	Finish(ctx context.Context, id string, outcome jobstore.Outcome) error
	RecordTimings(ctx context.Context, id string, timings []jobstore.StageTiming) error
}

// Request describes one job.
type Request struct {
	// JobID is optional; a UUID is generated when empty.
	JobID   string
	Name    string
	Source  string
	Stack   string
	Params  map[string]string
	Swaps   map[string]string
	Options map[string]stage.Options
	// Initial seeds the bag, for stacks that start from existing artifacts.
	Initial stage.Bag
	// Progress receives every update in addition to the configured sinks.
	Progress stage.ProgressFunc
}

// Outcome is the result of a job.
type Outcome struct {
	JobID    string
	Status   jobstore.Status
	Stack    string
	Dirs     stage.Dirs
	Report   stackexec.Report
	Warnings string
	Records  []telemetry.Record
	LogPath  string
	Duration time.Duration
}

// Runner executes jobs.
type Runner struct {
	cfg       *config.Config
	engine    *stackexec.Runner
	catalog   *stack.Catalog
	store     Store
	publisher *progress.RedisPublisher
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	notifier  notifications.Service
	base      *slog.Logger
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithStore persists job status in store.
func WithStore(store Store) Option {
	return func(r *Runner) { r.store = store }
}

// WithPublisher publishes progress to Redis.
func WithPublisher(p *progress.RedisPublisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithMetrics records job and operation metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer wraps operations in spans from tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// WithNotifier sends a notification when a job finishes.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) { r.newID = fn }
}

// New constructs a job runner.
func New(cfg *config.Config, engine *stackexec.Runner, catalog *stack.Catalog, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:     cfg,
		engine:  engine,
		catalog: catalog,
		base:    logger,
		logger:  logging.NewComponentLogger(logger, "jobrun"),
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes req. A non-nil error means the job did not succeed; the
// outcome still describes whatever was recorded.
func (r *Runner) Run(ctx context.Context, req Request) (Outcome, error) {
	stackName := strings.TrimSpace(req.Stack)
	if stackName == "" {
		stackName = r.cfg.Stacks.Default
	}
	def, err := r.catalog.Get(stackName)
	if err != nil {
		return Outcome{Stack: stackName}, err
	}
	if strings.TrimSpace(req.Source) == "" && len(req.Initial) == 0 {
		return Outcome{Stack: stackName}, services.Wrap(services.ErrValidation, "jobrun", "run", "job source is required", nil)
	}

	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		jobID = r.newID()
	}
	ctx = services.WithRequestID(services.WithJobID(ctx, jobID), uuid.NewString())
	outcome := Outcome{JobID: jobID, Stack: def.Name}

	ws, err := workspace.Prepare(r.cfg, jobID)
	if err != nil {
		return outcome, services.Wrap(services.ErrConfiguration, "jobrun", "prepare workspace", jobID, err)
	}
	defer func() {
		if relErr := ws.Release(); relErr != nil {
			r.logger.Warn("failed to release job lock", logging.String(logging.FieldJobID, jobID), logging.Error(relErr))
		}
	}()
	outcome.Dirs = ws.Dirs()

	stageLogger, logPath, closeLog := r.jobLogger(jobID)
	defer closeLog()
	outcome.LogPath = logPath
	logger := logging.WithContext(ctx, stageLogger).With(logging.Args(logging.String(logging.FieldComponent, "jobrun"))...)

	// Persistence outlives cancellation so a canceled job is still recorded.
	persistCtx := context.WithoutCancel(ctx)
	if r.store != nil {
		if _, err := r.store.Create(persistCtx, jobstore.Job{
			ID:      jobID,
			Name:    req.Name,
			Source:  req.Source,
			Stack:   def.Name,
			LogPath: logPath,
		}); err != nil {
			return outcome, fmt.Errorf("record job: %w", err)
		}
		if err := r.store.MarkRunning(persistCtx, jobID); err != nil {
			return outcome, fmt.Errorf("mark job running: %w", err)
		}
	}

	recorder := telemetry.NewRecorder(r.tracer, r.metrics, logging.WithContext(ctx, stageLogger))
	ec := &stage.ExecContext{
		JobID: jobID,
		Job: stage.Job{
			ID:     jobID,
			Name:   req.Name,
			Source: req.Source,
			Params: req.Params,
		},
		Config: r.cfg,
		Dirs:   outcome.Dirs,
		Logger: stageLogger,
		Progress: progress.Fanout(
			progress.LogSink(logger, r.cfg.Progress.LogBucketPercent),
			progress.StoreSink(persistCtx, r.store, jobID, logger),
			r.publisher.Sink(persistCtx, jobID),
			req.Progress,
		),
		Timer: recorder,
	}

	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String(logging.FieldStack, def.Name),
		logging.String("source", req.Source),
		logging.String("workspace", outcome.Dirs.Root),
	)
	started := r.now()
	var report stackexec.Report
	runErr := recorder.TimeOperation(ctx, "job", func(ctx context.Context) error {
		var execErr error
		report, execErr = r.engine.Execute(ctx, def, ec, req.Initial, stackexec.RuntimeConfig{
			Swaps:   req.Swaps,
			Options: req.Options,
		})
		return execErr
	}, logging.String(logging.FieldStack, def.Name))
	outcome.Duration = r.now().Sub(started)
	outcome.Report = report
	outcome.Records = recorder.Records()

	jobOutcome := classify(report, runErr)
	outcome.Status = jobOutcome.Status
	outcome.Warnings = jobOutcome.Warnings
	r.persist(persistCtx, logger, jobID, report, jobOutcome)
	r.observe(logger, def.Name, outcome)
	r.notify(persistCtx, logger, req, outcome, runErr)

	switch {
	case runErr != nil:
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.String(logging.FieldErrorKind, jobOutcome.ErrorKind),
			logging.Duration("job_duration", outcome.Duration),
			logging.Error(runErr),
		)
	case outcome.Warnings != "":
		logging.WarnWithContext(logger, "job completed with warnings", "job_complete_warnings",
			logging.String("warnings", outcome.Warnings),
			logging.Duration("job_duration", outcome.Duration),
			logging.String(logging.FieldImpact, "some items were not processed"),
		)
	default:
		logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_complete"),
			logging.Duration("job_duration", outcome.Duration),
		)
	}
	return outcome, runErr
}

// classify maps the engine result onto a terminal job status.
func classify(report stackexec.Report, err error) jobstore.Outcome {
	if err != nil {
		status := jobstore.StatusFailed
		if errors.Is(err, context.Canceled) {
			status = jobstore.StatusCanceled
		}
		return jobstore.Outcome{
			Status:       status,
			ErrorKind:    string(services.KindOf(err)),
			ErrorMessage: err.Error(),
			Warnings:     artifact.WarningSummary(report.Bag.Metadata()),
		}
	}
	warnings := artifact.WarningSummary(report.Bag.Metadata())
	status := jobstore.StatusSucceeded
	if warnings != "" {
		status = jobstore.StatusSucceededWithWarnings
	}
	return jobstore.Outcome{Status: status, Warnings: warnings}
}

func (r *Runner) persist(ctx context.Context, logger *slog.Logger, jobID string, report stackexec.Report, outcome jobstore.Outcome) {
	if r.store == nil {
		return
	}
	timings := make([]jobstore.StageTiming, 0, len(report.Timings))
	for _, t := range report.Timings {
		timings = append(timings, jobstore.StageTiming{
			Index:     t.Index,
			StageID:   t.StageID,
			Started:   t.Started,
			Duration:  t.Duration,
			Succeeded: t.Succeeded,
		})
	}
	if err := r.store.RecordTimings(ctx, jobID, timings); err != nil {
		logger.Warn("failed to record stage timings", logging.Error(err))
	}
	if report.Bag != nil {
		if data, err := artifact.EncodeBag(report.Bag); err == nil {
			outcome.ResultJSON = data
		} else {
			logger.Warn("failed to encode job result", logging.Error(err))
		}
	}
	if err := r.store.Finish(ctx, jobID, outcome); err != nil {
		logging.ErrorWithContext(logger, "failed to record job outcome", "job_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory and job database"),
		)
	}
}

func (r *Runner) observe(logger *slog.Logger, stackName string, outcome Outcome) {
	if r.metrics == nil {
		return
	}
	status := string(outcome.Status)
	r.metrics.JobsTotal.WithLabelValues(status).Inc()
	r.metrics.JobDuration.WithLabelValues(stackName, status).Observe(outcome.Duration.Seconds())
	for key, report := range artifact.Warnings(outcome.Report.Bag.Metadata()) {
		r.metrics.StageItems.WithLabelValues(key, "failed").Add(float64(report.Failed))
		r.metrics.StageItems.WithLabelValues(key, "skipped").Add(float64(report.Skipped))
	}
	if err := r.metrics.WriteTextfile(r.cfg.Telemetry.MetricsFile); err != nil {
		logger.Warn("failed to write metrics textfile", logging.Error(err))
	}
}

func (r *Runner) notify(ctx context.Context, logger *slog.Logger, req Request, outcome Outcome, runErr error) {
	if r.notifier == nil || errors.Is(runErr, context.Canceled) {
		return
	}
	summary := notifications.JobSummary{
		JobID:    outcome.JobID,
		Name:     req.Name,
		Stack:    outcome.Stack,
		Warnings: outcome.Warnings,
		Duration: outcome.Duration,
	}
	if images, err := stage.Get[[]artifact.GeneratedImage](outcome.Report.Bag, iotype.GeneratedImages); err == nil {
		summary.Images = len(images)
	}
	if uploads, err := stage.Get[[]artifact.Upload](outcome.Report.Bag, iotype.Uploads); err == nil {
		summary.Uploads = len(uploads)
	}
	var err error
	if runErr != nil {
		err = r.notifier.NotifyJobFailed(ctx, summary, runErr)
	} else {
		err = r.notifier.NotifyJobCompleted(ctx, summary)
	}
	if err != nil {
		logger.Warn("failed to send job notification",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

// jobLogger returns the logger handed to stages, mirrored into a per-job log
// file when enabled. Context fields are added by the caller.
func (r *Runner) jobLogger(jobID string) (*slog.Logger, string, func()) {
	if !r.cfg.Logging.JobLogs || strings.TrimSpace(r.cfg.Paths.LogDir) == "" {
		return r.base, "", func() {}
	}
	path := LogPathFor(r.cfg, jobID)
	file, err := logging.OpenLogFile(path)
	if err != nil {
		r.logger.Warn("failed to open job log", logging.String("path", path), logging.Error(err))
		return r.base, "", func() {}
	}
	handler, err := logging.NewHandler(file, logging.Options{Level: r.cfg.Logging.Level, Format: "json"})
	if err != nil {
		_ = file.Close()
		return r.base, "", func() {}
	}
	return logging.TeeLogger(r.base, handler), path, func() { _ = file.Close() }
}

// LogPathFor returns where the job log of jobID is written.
func LogPathFor(cfg *config.Config, jobID string) string {
	return filepath.Join(cfg.Paths.LogDir, "jobs", jobID+".log")
}
