package repos

import (
	"errors"

	"gorm.io/gorm"

	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/platform/dbctx"
	"github.com/clipforge/pipeline/internal/platform/logger"
)

// PresetRepo treats presets as immutable once in use (spec.md §3): no Update
// method is exposed; a changed preset is a new row.
type PresetRepo interface {
	Create(dbc dbctx.Context, p *domain.Preset) error
	GetByID(dbc dbctx.Context, id string) (*domain.Preset, error)
	StepsByPresetID(dbc dbctx.Context, presetID string) ([]*domain.PresetStep, error)
}

type presetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPresetRepo(db *gorm.DB, baseLog *logger.Logger) PresetRepo {
	return &presetRepo{db: db, log: baseLog.With("repo", "PresetRepo")}
}

func (r *presetRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *presetRepo) Create(dbc dbctx.Context, p *domain.Preset) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(p).Error
}

func (r *presetRepo) GetByID(dbc dbctx.Context, id string) (*domain.Preset, error) {
	var p domain.Preset
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *presetRepo) StepsByPresetID(dbc dbctx.Context, presetID string) ([]*domain.PresetStep, error) {
	var steps []*domain.PresetStep
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("preset_id = ?", presetID).
		Order("order_index ASC").
		Find(&steps).Error
	if err != nil {
		return nil, err
	}
	return steps, nil
}
