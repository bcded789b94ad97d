package types

import "time"

// ExecutionStatus tracks the lifecycle of one submitted execution.
// Failed means an infrastructure fault (sandbox unreachable, internal
// error); a grading fail is a completed execution with Passed=false.
type ExecutionStatus string

const (
	ExecutionStatusQueued    ExecutionStatus = "queued"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// ExecutionRecord is the stored state of one submission execution.
type ExecutionRecord struct {
	ID         string          `json:"id"`
	TaskID     string          `json:"task_id,omitempty"`
	Status     ExecutionStatus `json:"status"`
	Result     *JobVerdict     `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}
