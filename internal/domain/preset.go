package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Preset is an ordered, immutable-once-in-use list of PresetSteps
// (spec.md §3). Treated as versioned: a change creates a new Preset row
// rather than mutating an in-use one.
type Preset struct {
	ID        string `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	ProjectID string `gorm:"type:uuid;not null;index"`
	Name      string `gorm:"not null"`
	Version   int    `gorm:"not null;default:1"`
	Steps     []PresetStep `gorm:"foreignKey:PresetID"`
	CreatedAt time.Time
}

func (Preset) TableName() string { return "presets" }

// PresetStep is one tool invocation within a Preset (spec.md §3).
type PresetStep struct {
	ID                string         `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	PresetID          string         `gorm:"type:uuid;not null;index"`
	OrderIndex        int            `gorm:"column:order_index;not null"`
	ToolID            string         `gorm:"column:tool_id;not null"`
	ParamOverrides    datatypes.JSON `gorm:"column:param_overrides;type:jsonb"`
	RequiresModeration bool          `gorm:"column:requires_moderation;not null;default:false"`
}

func (PresetStep) TableName() string { return "preset_steps" }
