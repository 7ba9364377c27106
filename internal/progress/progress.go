package progress

import (
	"context"
	"log/slog"
	"sync/atomic"

	"shotline/internal/logging"
	"shotline/internal/stage"
)

// Fanout returns a ProgressFunc that forwards every update to each non-nil
// sink in order.
func Fanout(sinks ...stage.ProgressFunc) stage.ProgressFunc {
	active := make([]stage.ProgressFunc, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			active = append(active, sink)
		}
	}
	return func(update stage.ProgressUpdate) {
		for _, sink := range active {
			sink(update)
		}
	}
}

// LogSink logs the first update of each stage and status and every crossing
// into a new bucketPercent bucket.
func LogSink(logger *slog.Logger, bucketPercent float64) stage.ProgressFunc {
	if logger == nil {
		logger = logging.NewNop()
	}
	sampled := newSampler(bucketPercent)
	return func(update stage.ProgressUpdate) {
		if !sampled.allow(update) {
			return
		}
		logger.Info("progress",
			logging.String(logging.FieldEventType, "progress"),
			logging.String(logging.FieldStage, update.StageID),
			logging.String(logging.FieldProgressStage, update.Status),
			logging.Float64(logging.FieldProgressPercent, update.Percent),
			logging.String(logging.FieldProgressMessage, update.Message),
		)
	}
}

// Recorder persists the latest progress of a job.
type Recorder interface {
	UpdateProgress(ctx context.Context, id, stageID string, percent float64, message string) error
}

// StoreSink writes progress to a job store. Writes are sampled at one
// percent granularity and the first failure is logged once.
func StoreSink(ctx context.Context, store Recorder, jobID string, logger *slog.Logger) stage.ProgressFunc {
	if store == nil {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var warned atomic.Bool
	sampled := newSampler(1)
	return func(update stage.ProgressUpdate) {
		if !sampled.allow(update) && update.Percent < 100 {
			return
		}
		if err := store.UpdateProgress(ctx, jobID, update.StageID, update.Percent, update.Message); err != nil {
			if warned.CompareAndSwap(false, true) {
				logging.WarnWithContext(logger, "failed to persist job progress", "progress_persist_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the state directory and job database"),
					logging.String(logging.FieldImpact, "jobs show may report stale progress"),
				)
			}
		}
	}
}
