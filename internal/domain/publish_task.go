package domain

import (
	"time"

	"gorm.io/datatypes"

	"github.com/clipforge/pipeline/internal/artifact"
)

// PublishTask is the unit of work (spec.md §3). Mutated only by the
// dispatcher/executor currently holding its lease; StepResult rows are the
// append-only execution log for it.
type PublishTask struct {
	ID          string `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	ProjectID   string `gorm:"type:uuid;not null;index"`
	CandidateID string `gorm:"type:uuid;not null;index"`
	PresetID    string `gorm:"type:uuid;not null"`

	Status   TaskStatus `gorm:"type:varchar(24);not null;default:'queued'"`
	Priority int        `gorm:"not null;default:0"`

	CreatedAt           time.Time
	ProcessingStartedAt  *time.Time
	ProcessingFinishedAt *time.Time
	PausedAt             *time.Time
	CanceledAt           *time.Time
	PublishedAt          *time.Time
	LastMetricsAt        *time.Time

	ErrorMessage string `gorm:"column:error_message"`
	PublishError string `gorm:"column:publish_error"`

	PauseRequestedAt  *time.Time `gorm:"column:pause_requested_at"`
	PauseReason       string     `gorm:"column:pause_reason"`
	CancelRequestedAt *time.Time `gorm:"column:cancel_requested_at"`
	CancelReason      string     `gorm:"column:cancel_reason"`

	// WorkerLeaseID is the claiming worker's identifier (spec.md §4.3's
	// lease_id). Cleared on terminal status or on watchdog reclaim.
	WorkerLeaseID string `gorm:"column:worker_lease_id"`

	// Attempts is the retry attempt counter. Stored on the task row rather
	// than derived from StepResult history (SPEC_FULL.md §3, Open Question
	// (b)) so the dispatcher's retry policy reads and increments it directly
	// without a join.
	Attempts int `gorm:"not null;default:0"`

	Artifacts artifact.Map   `gorm:"type:jsonb"`
	DagDebug  datatypes.JSON `gorm:"column:dag_debug;type:jsonb"`

	LastMetricsViews    int64 `gorm:"column:last_metrics_views"`
	LastMetricsLikes    int64 `gorm:"column:last_metrics_likes"`
	LastMetricsComments int64 `gorm:"column:last_metrics_comments"`

	PublishedExternalID string `gorm:"column:published_external_id"`
	PublishedURL         string `gorm:"column:published_url"`

	UpdatedAt time.Time
}

func (PublishTask) TableName() string { return "publish_tasks" }

// EffectivePriority resolves resumed tasks back to their original priority
// per spec.md §4.4's resume() contract ("re-enqueues with the task's
// original priority") — Priority is never mutated by control operations, so
// this is simply an accessor kept for call-site clarity.
func (t *PublishTask) EffectivePriority() int { return t.Priority }
