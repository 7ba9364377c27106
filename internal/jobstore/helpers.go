package jobstore

import (
	"database/sql"
	"strings"
	"time"
)

const jobColumns = "id, name, source, stack, status, progress_stage, progress_percent, progress_message, error_kind, error_message, warnings, result_json, log_path, created_at, updated_at, finished_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job             Job
		name            sql.NullString
		statusStr       string
		progressStage   sql.NullString
		progressMessage sql.NullString
		errorKind       sql.NullString
		errorMessage    sql.NullString
		warnings        sql.NullString
		resultJSON      sql.NullString
		logPath         sql.NullString
		createdRaw      string
		updatedRaw      string
		finishedRaw     sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&name,
		&job.Source,
		&job.Stack,
		&statusStr,
		&progressStage,
		&job.ProgressPercent,
		&progressMessage,
		&errorKind,
		&errorMessage,
		&warnings,
		&resultJSON,
		&logPath,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	job.Name = name.String
	job.Status = Status(statusStr)
	job.ProgressStage = progressStage.String
	job.ProgressMessage = progressMessage.String
	job.ErrorKind = errorKind.String
	job.ErrorMessage = errorMessage.String
	job.Warnings = warnings.String
	job.ResultJSON = resultJSON.String
	job.LogPath = logPath.String
	job.CreatedAt = parseTime(createdRaw)
	job.UpdatedAt = parseTime(updatedRaw)
	job.FinishedAt = parseTime(finishedRaw.String)
	return &job, nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
