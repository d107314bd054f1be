package repos

import (
	"errors"

	"gorm.io/gorm"

	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/platform/dbctx"
	"github.com/clipforge/pipeline/internal/platform/logger"
)

type ExportProfileRepo interface {
	Create(dbc dbctx.Context, p *domain.ExportProfile) error
	GetByID(dbc dbctx.Context, id string) (*domain.ExportProfile, error)
}

type exportProfileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExportProfileRepo(db *gorm.DB, baseLog *logger.Logger) ExportProfileRepo {
	return &exportProfileRepo{db: db, log: baseLog.With("repo", "ExportProfileRepo")}
}

func (r *exportProfileRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *exportProfileRepo) Create(dbc dbctx.Context, p *domain.ExportProfile) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(p).Error
}

func (r *exportProfileRepo) GetByID(dbc dbctx.Context, id string) (*domain.ExportProfile, error) {
	var p domain.ExportProfile
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
