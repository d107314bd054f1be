package repos

import (
	"errors"

	"gorm.io/gorm"

	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/platform/dbctx"
	"github.com/clipforge/pipeline/internal/platform/logger"
)

// StepResultRepo is append-only (spec.md §3): no Update method is exposed.
// The task_id+step_index uniqueness constraint over ok rows (migrated in
// internal/db) acts as the fence spec.md §4.2 describes for concurrent-lease
// races: a second ok commit for the same step fails, while error and
// sentinel rows may repeat an index.
type StepResultRepo interface {
	Append(dbc dbctx.Context, result *domain.StepResult) error
	ListByTask(dbc dbctx.Context, taskID string) ([]*domain.StepResult, error)
	// HasOK reports whether a given step_index already has a committed ok
	// row for this task.
	HasOK(dbc dbctx.Context, taskID string, stepIndex int) (bool, error)
	// LastOKStepIndex returns the highest ordinary (non-sentinel) step_index
	// with a committed ok row, or -1 if none.
	LastOKStepIndex(dbc dbctx.Context, taskID string) (int, error)
}

type stepResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStepResultRepo(db *gorm.DB, baseLog *logger.Logger) StepResultRepo {
	return &stepResultRepo{db: db, log: baseLog.With("repo", "StepResultRepo")}
}

func (r *stepResultRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *stepResultRepo) Append(dbc dbctx.Context, result *domain.StepResult) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(result).Error
}

func (r *stepResultRepo) ListByTask(dbc dbctx.Context, taskID string) ([]*domain.StepResult, error) {
	var out []*domain.StepResult
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("task_id = ?", taskID).
		Order("step_index ASC, started_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stepResultRepo) HasOK(dbc dbctx.Context, taskID string, stepIndex int) (bool, error) {
	var count int64
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.StepResult{}).
		Where("task_id = ? AND step_index = ? AND status = ?", taskID, stepIndex, domain.StepOK).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *stepResultRepo) LastOKStepIndex(dbc dbctx.Context, taskID string) (int, error) {
	var row domain.StepResult
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("task_id = ? AND status = ? AND step_index < ?", taskID, domain.StepOK, domain.StepIndexControlEvent).
		Order("step_index DESC").
		Limit(1).
		Find(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	if row.ID == "" {
		return -1, nil
	}
	return row.StepIndex, nil
}
