package repos

import (
	"errors"

	"gorm.io/gorm"

	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/platform/dbctx"
	"github.com/clipforge/pipeline/internal/platform/logger"
)

type CandidateRepo interface {
	Create(dbc dbctx.Context, c *domain.Candidate) error
	GetByID(dbc dbctx.Context, id string) (*domain.Candidate, error)
	UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error
	// FindByContentSignature implements spec.md §4.5's duplicate lookup:
	// any candidate in project with meta.content_signature = sig and status
	// in {APPROVED, USED}, excluding excludeID.
	FindByContentSignature(dbc dbctx.Context, projectID, sig, excludeID string) (*domain.Candidate, error)
}

type candidateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCandidateRepo(db *gorm.DB, baseLog *logger.Logger) CandidateRepo {
	return &candidateRepo{db: db, log: baseLog.With("repo", "CandidateRepo")}
}

func (r *candidateRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *candidateRepo) Create(dbc dbctx.Context, c *domain.Candidate) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(c).Error
}

func (r *candidateRepo) GetByID(dbc dbctx.Context, id string) (*domain.Candidate, error) {
	var c domain.Candidate
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *candidateRepo) UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Candidate{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *candidateRepo) FindByContentSignature(dbc dbctx.Context, projectID, sig, excludeID string) (*domain.Candidate, error) {
	if sig == "" {
		return nil, nil
	}
	var c domain.Candidate
	q := r.tx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ? AND meta->>'content_signature' = ? AND status IN ?",
			projectID, sig, []domain.CandidateStatus{domain.CandidateApproved, domain.CandidateUsed})
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
