package stackexec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shotline/internal/logging"
	"shotline/internal/registry"
	"shotline/internal/services"
	"shotline/internal/stack"
	"shotline/internal/stage"
)

// Timing records how long one stage ran.
type Timing struct {
	StageID   string        `json:"stage_id"`
	Index     int           `json:"index"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Succeeded bool          `json:"succeeded"`
}

// Report is the outcome of one stack execution.
type Report struct {
	Stack   string
	Stages  []string
	Bag     stage.Bag
	Timings []Timing
}

// Runner validates and executes stacks against a registry.
type Runner struct {
	registry *registry.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner constructs a runner. A nil logger discards runner logs.
func NewRunner(reg *registry.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		registry: reg,
		logger:   logging.NewComponentLogger(logger, "stackexec"),
		now:      time.Now,
	}
}

// Validate checks that every stage in def is registered and that its
// requirements are met by def.Initial and the stages before it.
func (r *Runner) Validate(def stack.Definition) error {
	_, err := r.plan(def, RuntimeConfig{}, def.Initial)
	return err
}

// Execute runs def. Swap and validation errors are returned before any stage
// runs. A failing stage returns a *StageError together with the partial
// report.
func (r *Runner) Execute(ctx context.Context, def stack.Definition, ec *stage.ExecContext, initial stage.Bag, rt RuntimeConfig) (Report, error) {
	bag := stage.Bag{}
	if initial != nil {
		bag = initial.Clone()
	}
	report := Report{Stack: def.Name, Bag: bag}

	steps, err := r.plan(def, rt, def.Initial.Union(bag.Available()))
	if err != nil {
		return report, err
	}
	for _, step := range steps {
		report.Stages = append(report.Stages, step.Stage.ID)
	}

	if ec == nil {
		ec = &stage.ExecContext{}
	}
	ctx = services.WithStack(ctx, def.Name)
	if ec.JobID != "" {
		ctx = services.WithJobID(ctx, ec.JobID)
	}
	baseLogger := ec.Logger
	if baseLogger == nil {
		baseLogger = r.logger
	}
	tracker := newProgressTracker(len(steps), ec.Progress)

	for _, step := range steps {
		s := step.Stage
		stageCtx := services.WithStage(ctx, s.ID)
		logger := logging.WithContext(stageCtx, baseLogger).With(logging.Args(
			logging.Int(logging.FieldStageIndex, step.Index),
		)...)

		if err := ctx.Err(); err != nil {
			stageErr := &StageError{StageID: s.ID, Index: step.Index, Err: err}
			r.logFailure(logger, stageErr, 0)
			return report, stageErr
		}

		tracker.begin(step.Index, s)
		logger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String(logging.FieldProgressStage, s.StatusLabel()),
			logging.String("swapped_from", step.SwappedFrom),
		)

		stageEC := *ec
		stageEC.Logger = logger
		stageEC.Progress = tracker.stageFunc(step.Index, s)

		started := r.now()
		result := r.run(stageCtx, &stageEC, s, bag.Clone(), step.Options)
		elapsed := r.now().Sub(started)
		report.Timings = append(report.Timings, Timing{
			StageID:   s.ID,
			Index:     step.Index,
			Started:   started.UTC(),
			Duration:  elapsed,
			Succeeded: result.OK(),
		})

		if !result.OK() {
			stageErr := &StageError{StageID: s.ID, Index: step.Index, Err: result.Err}
			r.logFailure(logger, stageErr, elapsed)
			return report, stageErr
		}
		bag.Merge(result.Value)
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", elapsed),
			logging.Int("bag_keys", len(bag)),
		)
	}

	tracker.finish()
	return report, nil
}

// run executes one stage through the context timer and turns a panic into a
// stage failure.
func (r *Runner) run(ctx context.Context, ec *stage.ExecContext, s stage.Stage, bag stage.Bag, opts stage.Options) (result stage.Result) {
	timerErr := ec.Time(ctx, "stage."+s.ID, func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				result = stage.Fail(services.Wrap(services.ErrStageFailed, s.ID, "execute", fmt.Sprintf("panic: %v", recovered), nil))
				err = result.Err
			}
		}()
		result = s.Execute(ctx, ec, bag, opts)
		return result.Err
	}, logging.String(logging.FieldStage, s.ID))
	if result.OK() && timerErr != nil {
		result = stage.Fail(timerErr)
	}
	return result
}

func (r *Runner) logFailure(logger *slog.Logger, stageErr *StageError, elapsed time.Duration) {
	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorKind, string(stageErr.Kind())),
		logging.Duration("stage_duration", elapsed),
		logging.Error(stageErr.Err),
	)
}
