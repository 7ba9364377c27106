package stage

import (
	"context"
	"log/slog"

	"shotline/internal/config"
	"shotline/internal/logging"
)

// Job is the record of the work being processed, as supplied by the caller.
type Job struct {
	ID     string            `json:"id"`
	Name   string            `json:"name,omitempty"`
	Source string            `json:"source"`
	Params map[string]string `json:"params,omitempty"`
}

// Dirs is the set of working directories owned by one job.
type Dirs struct {
	Root      string
	Input     string
	Frames    string
	Generated string
}

// ProgressUpdate is emitted before each stage and whenever a stage reports
// finer-grained progress. Percent is the overall job percentage.
type ProgressUpdate struct {
	StageID string
	Status  string
	Percent float64
	Message string
}

// ProgressFunc receives progress updates.
type ProgressFunc func(ProgressUpdate)

// Timer records the duration of named operations.
type Timer interface {
	TimeOperation(ctx context.Context, name string, fn func(context.Context) error, attrs ...logging.Attr) error
}

// ExecContext is the per-job collaborator bundle handed to every stage. The
// engine only reads it.
type ExecContext struct {
	JobID    string
	Job      Job
	Config   *config.Config
	Dirs     Dirs
	Logger   *slog.Logger
	Progress ProgressFunc
	Timer    Timer
}

// Log returns the context logger or a no-op logger.
func (ec *ExecContext) Log() *slog.Logger {
	if ec == nil || ec.Logger == nil {
		return logging.NewNop()
	}
	return ec.Logger
}

// ConfigOr returns the job's effective configuration, or fallback when the
// context carries none.
func (ec *ExecContext) ConfigOr(fallback *config.Config) *config.Config {
	if ec == nil || ec.Config == nil {
		return fallback
	}
	return ec.Config
}

// Report emits stage-local progress. percent is 0-100 within the current
// stage; the runner maps it into the stage's share of the job.
func (ec *ExecContext) Report(percent float64, message string) {
	if ec == nil || ec.Progress == nil {
		return
	}
	ec.Progress(ProgressUpdate{Percent: percent, Message: message})
}

// Time runs fn through the context timer when one is configured.
func (ec *ExecContext) Time(ctx context.Context, name string, fn func(context.Context) error, attrs ...logging.Attr) error {
	if ec == nil || ec.Timer == nil {
		return fn(ctx)
	}
	return ec.Timer.TimeOperation(ctx, name, fn, attrs...)
}
