package domain

import (
	"time"

	"gorm.io/datatypes"
)

// StepResult is one row per executed step per task, keyed by
// (task_id, step_index) (spec.md §3). Append-only: the executor never
// updates a committed row, only inserts new ones — including a second row at
// the same step_index for a retry attempt (spec.md §8, scenario 6).
type StepResult struct {
	ID          string `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	TaskID      string `gorm:"type:uuid;not null;index"`
	StepIndex   int    `gorm:"column:step_index;not null"`
	ToolID      string `gorm:"column:tool_id;not null"`
	StepName    string `gorm:"column:step_name"`
	Status      StepStatus `gorm:"type:varchar(16);not null"`
	StartedAt   time.Time  `gorm:"column:started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	Input       datatypes.JSON `gorm:"type:jsonb"`
	Output      datatypes.JSON `gorm:"type:jsonb"`
	ErrorMessage string        `gorm:"column:error_message"`
}

func (StepResult) TableName() string { return "step_results" }

// IsSentinel reports whether this row records a control or worker-level
// event rather than an ordinary tool step (spec.md §3).
func (s StepResult) IsSentinel() bool {
	switch s.StepIndex {
	case StepIndexControlEvent, StepIndexWorkerFailure, StepIndexRetryFence, StepIndexTerminalMarker:
		return true
	default:
		return false
	}
}

// TruncateError caps an error message at 1000 chars (spec.md §7).
func TruncateError(msg string) string {
	const maxLen = 1000
	if len(msg) <= maxLen {
		return msg
	}
	return msg[:maxLen]
}
