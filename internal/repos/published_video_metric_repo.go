package repos

import (
	"gorm.io/gorm"

	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/platform/dbctx"
	"github.com/clipforge/pipeline/internal/platform/logger"
)

// PublishedVideoMetricRepo is append-only; the uniqueness constraint on
// (platform, external_id, snapshot_at) is the conflict fence (spec.md §3).
type PublishedVideoMetricRepo interface {
	Append(dbc dbctx.Context, m *domain.PublishedVideoMetric) error
	LatestForTask(dbc dbctx.Context, taskID string) (*domain.PublishedVideoMetric, error)
}

type publishedVideoMetricRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPublishedVideoMetricRepo(db *gorm.DB, baseLog *logger.Logger) PublishedVideoMetricRepo {
	return &publishedVideoMetricRepo{db: db, log: baseLog.With("repo", "PublishedVideoMetricRepo")}
}

func (r *publishedVideoMetricRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *publishedVideoMetricRepo) Append(dbc dbctx.Context, m *domain.PublishedVideoMetric) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(m).Error
}

func (r *publishedVideoMetricRepo) LatestForTask(dbc dbctx.Context, taskID string) (*domain.PublishedVideoMetric, error) {
	var m domain.PublishedVideoMetric
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("task_id = ?", taskID).
		Order("snapshot_at DESC").
		Limit(1).
		Find(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == "" {
		return nil, nil
	}
	return &m, nil
}
