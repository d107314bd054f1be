// Package repos implements the durable-store access layer for every
// domain entity, grounded on the teacher's internal/data/repos/jobs pattern:
// an interface + struct pair per entity, every method taking a dbctx.Context
// so callers can share an ambient connection or a caller-supplied
// transaction.
package repos

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/platform/dbctx"
	"github.com/clipforge/pipeline/internal/platform/logger"
)

// PublishTaskRepo is grounded on internal/data/repos/jobs/job_run.go's
// JobRunRepo: Create/claim/update surface, adapted to spec.md §4.3's
// priority-ordered SKIP LOCKED claim and §4.4's control-request fields.
type PublishTaskRepo interface {
	Create(dbc dbctx.Context, task *domain.PublishTask) error
	GetByID(dbc dbctx.Context, id string) (*domain.PublishTask, error)
	List(dbc dbctx.Context, filter TaskFilter) ([]*domain.PublishTask, error)

	// ClaimNextRunnable implements spec.md §4.3's claim step: highest
	// priority queued task with no active lease, over composite index
	// (status, priority, created_at), priority descending, created
	// ascending (FIFO within priority). workerID becomes the new lease_id.
	ClaimNextRunnable(dbc dbctx.Context, workerID string) (*domain.PublishTask, error)

	UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error
	// UpdateFieldsUnlessStatus is the optimistic guard used by control
	// operations and the executor so a terminal status (e.g. canceled) is
	// never clobbered by a late-arriving update.
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id string, disallowed []domain.TaskStatus, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id, workerID string) error

	// StaleProcessing returns processing tasks whose processing_started_at
	// predates cutoff, for the watchdog's stuck-state scan (spec.md §4.6).
	StaleProcessing(dbc dbctx.Context, cutoff time.Time) ([]*domain.PublishTask, error)
	// StaleQueued returns queued tasks older than cutoff with no claim yet.
	StaleQueued(dbc dbctx.Context, cutoff time.Time) ([]*domain.PublishTask, error)

	// RecentPublishedTopicSignatures returns the topic_signature values
	// (from the candidate's meta) of the N most recently published tasks on
	// a destination, for the anti-repeat guard (spec.md §4.5).
	RecentPublishedTopicSignatures(dbc dbctx.Context, projectID, destination string, n int) ([]string, error)
}

type TaskFilter struct {
	ProjectID string
	Status    *domain.TaskStatus
	Limit     int
}

type publishTaskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPublishTaskRepo(db *gorm.DB, baseLog *logger.Logger) PublishTaskRepo {
	return &publishTaskRepo{db: db, log: baseLog.With("repo", "PublishTaskRepo")}
}

func (r *publishTaskRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *publishTaskRepo) Create(dbc dbctx.Context, task *domain.PublishTask) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(task).Error
}

func (r *publishTaskRepo) GetByID(dbc dbctx.Context, id string) (*domain.PublishTask, error) {
	var task domain.PublishTask
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *publishTaskRepo) List(dbc dbctx.Context, filter TaskFilter) ([]*domain.PublishTask, error) {
	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.PublishTask{})
	if filter.ProjectID != "" {
		q = q.Where("project_id = ?", filter.ProjectID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []*domain.PublishTask
	if err := q.Order("priority DESC, created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *publishTaskRepo) ClaimNextRunnable(dbc dbctx.Context, workerID string) (*domain.PublishTask, error) {
	now := time.Now()
	var claimed *domain.PublishTask
	err := r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var task domain.PublishTask
		err := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", domain.TaskQueued).
			Order("priority DESC, created_at ASC").
			First(&task).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		uErr := txx.Model(&domain.PublishTask{}).
			Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"status":                domain.TaskProcessing,
				"worker_lease_id":       workerID,
				"processing_started_at": now,
				"updated_at":            now,
			}).Error
		if uErr != nil {
			return uErr
		}
		task.Status = domain.TaskProcessing
		task.WorkerLeaseID = workerID
		task.ProcessingStartedAt = &now
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *publishTaskRepo) UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.PublishTask{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *publishTaskRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id string, disallowed []domain.TaskStatus, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.PublishTask{}).Where("id = ?", id)
	if len(disallowed) == 1 {
		q = q.Where("status <> ?", disallowed[0])
	} else if len(disallowed) > 1 {
		q = q.Where("status NOT IN ?", disallowed)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *publishTaskRepo) Heartbeat(dbc dbctx.Context, id, workerID string) error {
	now := time.Now()
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.PublishTask{}).
		Where("id = ? AND status = ? AND worker_lease_id = ?", id, domain.TaskProcessing, workerID).
		Updates(map[string]interface{}{"updated_at": now}).Error
}

func (r *publishTaskRepo) StaleProcessing(dbc dbctx.Context, cutoff time.Time) ([]*domain.PublishTask, error) {
	var out []*domain.PublishTask
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("status = ? AND processing_started_at < ?", domain.TaskProcessing, cutoff).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *publishTaskRepo) StaleQueued(dbc dbctx.Context, cutoff time.Time) ([]*domain.PublishTask, error) {
	var out []*domain.PublishTask
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("status = ? AND created_at < ?", domain.TaskQueued, cutoff).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *publishTaskRepo) RecentPublishedTopicSignatures(dbc dbctx.Context, projectID, destination string, n int) ([]string, error) {
	var rows []struct {
		TopicSignature string
	}
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Table("publish_tasks AS t").
		Select("c.meta->>'topic_signature' AS topic_signature").
		Joins("JOIN candidates AS c ON c.id = t.candidate_id").
		Where("t.project_id = ? AND t.status = ? AND t.published_external_id <> ''", projectID, domain.TaskPublished).
		Where("c.meta->>'destination' = ? OR ? = ''", destination, destination).
		Order("t.published_at DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.TopicSignature != "" {
			out = append(out, row.TopicSignature)
		}
	}
	return out, nil
}
