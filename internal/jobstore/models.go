package jobstore

import "time"

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued                Status = "queued"
	StatusRunning               Status = "running"
	StatusSucceeded             Status = "succeeded"
	StatusSucceededWithWarnings Status = "succeeded_with_warnings"
	StatusFailed                Status = "failed"
	StatusCanceled              Status = "canceled"
)

// InterruptedReason is the error message recorded for jobs found running at
// startup.
const InterruptedReason = "Interrupted before completion"

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusSucceeded,
	StatusSucceededWithWarnings,
	StatusFailed,
	StatusCanceled,
}

// ParseStatus converts a string into a Status.
func ParseStatus(value string) (Status, bool) {
	for _, status := range allStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// Statuses returns every known status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// IsTerminal reports whether the job can no longer change state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusSucceededWithWarnings, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Job is one persisted stack execution.
type Job struct {
	ID              string
	Name            string
	Source          string
	Stack           string
	Status          Status
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	ErrorKind       string
	ErrorMessage    string
	Warnings        string
	ResultJSON      string
	LogPath         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FinishedAt      time.Time
}

// StageTiming records the duration of one stage of a job.
type StageTiming struct {
	Index     int           `json:"index"`
	StageID   string        `json:"stage_id"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Succeeded bool          `json:"succeeded"`
}

// Outcome is the terminal state written by Finish.
type Outcome struct {
	Status       Status
	ErrorKind    string
	ErrorMessage string
	Warnings     string
	ResultJSON   []byte
}
