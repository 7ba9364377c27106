package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Create inserts a queued job. ID and Source are required.
func (s *Store) Create(ctx context.Context, job Job) (*Job, error) {
	if strings.TrimSpace(job.ID) == "" {
		return nil, errors.New("job id is required")
	}
	if strings.TrimSpace(job.Source) == "" {
		return nil, errors.New("job source is required")
	}
	now := formatTime(time.Now())
	status := job.Status
	if status == "" {
		status = StatusQueued
	}
	if _, err := s.exec(
		ctx,
		`INSERT INTO jobs (
            id, name, source, stack, status, progress_percent, log_path, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		job.ID,
		nullableString(job.Name),
		job.Source,
		job.Stack,
		status,
		nullableString(job.LogPath),
		now,
		now,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, job.ID)
}

// Get fetches a job by id. A missing job returns nil without error.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), newest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, len(statuses))
	if len(statuses) > 0 {
		for i, status := range statuses {
			args[i] = status
		}
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkRunning moves a job into the running state.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	return s.updateStatus(ctx, id, StatusRunning)
}

func (s *Store) updateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.exec(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return requireRow(res, id)
}

// UpdateProgress records the latest progress update for a job.
func (s *Store) UpdateProgress(ctx context.Context, id, stageID string, percent float64, message string) error {
	res, err := s.exec(ctx,
		`UPDATE jobs
         SET progress_stage = ?, progress_percent = ?, progress_message = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(stageID), percent, nullableString(message), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return requireRow(res, id)
}

// Finish records the terminal state of a job.
func (s *Store) Finish(ctx context.Context, id string, outcome Outcome) error {
	if !outcome.Status.IsTerminal() {
		return fmt.Errorf("finish job %s: status %q is not terminal", id, outcome.Status)
	}
	now := formatTime(time.Now())
	var result any
	if len(outcome.ResultJSON) > 0 {
		result = string(outcome.ResultJSON)
	}
	res, err := s.exec(ctx,
		`UPDATE jobs
         SET status = ?, error_kind = ?, error_message = ?, warnings = ?, result_json = ?,
             updated_at = ?, finished_at = ?
         WHERE id = ?`,
		outcome.Status,
		nullableString(outcome.ErrorKind),
		nullableString(outcome.ErrorMessage),
		nullableString(outcome.Warnings),
		result,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return requireRow(res, id)
}

// RecordTimings replaces the stage timings stored for a job.
func (s *Store) RecordTimings(ctx context.Context, id string, timings []StageTiming) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin timings tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM stage_timings WHERE job_id = ?`, id); err != nil {
			return fmt.Errorf("clear timings: %w", err)
		}
		for _, timing := range timings {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO stage_timings (job_id, stage_index, stage_id, started_at, duration_ms, succeeded)
                 VALUES (?, ?, ?, ?, ?, ?)`,
				id,
				timing.Index,
				timing.StageID,
				formatTime(timing.Started),
				timing.Duration.Milliseconds(),
				boolToInt(timing.Succeeded),
			); err != nil {
				return fmt.Errorf("insert timing %s: %w", timing.StageID, err)
			}
		}
		return tx.Commit()
	})
}

// Timings returns the stage timings of a job in execution order.
func (s *Store) Timings(ctx context.Context, id string) ([]StageTiming, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT stage_index, stage_id, started_at, duration_ms, succeeded
         FROM stage_timings WHERE job_id = ? ORDER BY stage_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query timings: %w", err)
	}
	defer rows.Close()

	var timings []StageTiming
	for rows.Next() {
		var (
			timing     StageTiming
			startedRaw string
			durationMS int64
			succeeded  int
		)
		if err := rows.Scan(&timing.Index, &timing.StageID, &startedRaw, &durationMS, &succeeded); err != nil {
			return nil, err
		}
		timing.Started = parseTime(startedRaw)
		timing.Duration = time.Duration(durationMS) * time.Millisecond
		timing.Succeeded = succeeded == 1
		timings = append(timings, timing)
	}
	return timings, rows.Err()
}

// ResetInterrupted fails jobs left queued or running by a previous process.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.exec(ctx,
		`UPDATE jobs
         SET status = ?, error_kind = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE status IN (?, ?)`,
		StatusFailed, "canceled", InterruptedReason, now, now,
		StatusQueued, StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes a job and its timings.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ErrJobNotFound is returned when an update targets an unknown job.
var ErrJobNotFound = errors.New("job not found")

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}
