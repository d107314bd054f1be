// Package domain holds the GORM-backed entities of spec.md §3: Project,
// Candidate, Preset, PresetStep, PublishTask, StepResult, ExportProfile, and
// PublishedVideoMetric, plus their status enums.
package domain

// CandidateStatus is the Candidate state machine (spec.md §3): once a
// candidate leaves New it may only advance monotonically New->Approved->Used
// or New->Rejected.
type CandidateStatus string

const (
	CandidateNew      CandidateStatus = "NEW"
	CandidateApproved CandidateStatus = "APPROVED"
	CandidateUsed     CandidateStatus = "USED"
	CandidateRejected CandidateStatus = "REJECTED"
)

// canAdvanceCandidate reports whether the monotonic transition is legal.
func canAdvanceCandidate(from, to CandidateStatus) bool {
	switch from {
	case CandidateNew:
		return to == CandidateApproved || to == CandidateUsed || to == CandidateRejected
	case CandidateApproved:
		return to == CandidateUsed
	default:
		return false
	}
}

// TaskStatus is the PublishTask state machine (spec.md §4.2):
// queued -> processing -> {published, error, canceled, paused}.
// AwaitingModeration is modeled as a distinct status rather than a flavour of
// paused (SPEC_FULL.md §3, Open Question (a)): a bare resume() must never
// clear a moderation gate.
type TaskStatus string

const (
	TaskQueued             TaskStatus = "queued"
	TaskProcessing         TaskStatus = "processing"
	TaskPublished          TaskStatus = "published"
	TaskError              TaskStatus = "error"
	TaskCanceled           TaskStatus = "canceled"
	TaskPaused             TaskStatus = "paused"
	TaskAwaitingModeration TaskStatus = "awaiting_moderation"
)

// Resumable reports whether status may transition back to processing via the
// ordinary resume path (awaiting_moderation requires a separate moderation
// approval action, not resume()).
func (s TaskStatus) Resumable() bool {
	return s == TaskPaused || s == TaskError
}

// StepStatus is StepResult.Status (spec.md §3).
type StepStatus string

const (
	StepOK       StepStatus = "ok"
	StepError    StepStatus = "error"
	StepSkipped  StepStatus = "skipped"
	StepPaused   StepStatus = "paused"
	StepCanceled StepStatus = "canceled"
	StepRetrying StepStatus = "retrying"
)

// Sentinel step_index values reserved for non-tool StepResult rows
// (spec.md §3).
const (
	StepIndexControlEvent    = 9996
	StepIndexWorkerFailure   = 9997
	StepIndexRetryFence      = 9998
	StepIndexTerminalMarker  = 9999
)

const ToolIDControl = "CONTROL"
