package repos

import (
	"errors"

	"gorm.io/gorm"

	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/platform/dbctx"
	"github.com/clipforge/pipeline/internal/platform/logger"
)

type ProjectRepo interface {
	Create(dbc dbctx.Context, p *domain.Project) error
	GetByID(dbc dbctx.Context, id string) (*domain.Project, error)
	// Delete cascades to children at the repo layer (no DB-level foreign
	// keys are declared — see internal/db's DisableForeignKeyConstraint
	// setting) by deleting dependent rows inside one transaction.
	Delete(dbc dbctx.Context, id string) error
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{db: db, log: baseLog.With("repo", "ProjectRepo")}
}

func (r *projectRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *projectRepo) Create(dbc dbctx.Context, p *domain.Project) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(p).Error
}

func (r *projectRepo) GetByID(dbc dbctx.Context, id string) (*domain.Project, error) {
	var p domain.Project
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectRepo) Delete(dbc dbctx.Context, id string) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("project_id = ?", id).Delete(&domain.PublishTask{}).Error; err != nil {
			return err
		}
		if err := txx.Where("project_id = ?", id).Delete(&domain.Candidate{}).Error; err != nil {
			return err
		}
		var presetIDs []string
		if err := txx.Model(&domain.Preset{}).Where("project_id = ?", id).Pluck("id", &presetIDs).Error; err != nil {
			return err
		}
		if len(presetIDs) > 0 {
			if err := txx.Where("preset_id IN ?", presetIDs).Delete(&domain.PresetStep{}).Error; err != nil {
				return err
			}
		}
		if err := txx.Where("project_id = ?", id).Delete(&domain.Preset{}).Error; err != nil {
			return err
		}
		return txx.Where("id = ?", id).Delete(&domain.Project{}).Error
	})
}
