package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Project is the container for candidates and publish tasks (spec.md §3).
// Deletion cascades to children; the cascade itself is a repo-level concern,
// not enforced by a DB foreign key (no foreign-key constraints are declared,
// matching the teacher's DisableForeignKeyConstraintWhenMigrating setup).
type Project struct {
	ID        string         `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	Name      string         `gorm:"not null"`
	Policy    datatypes.JSON `gorm:"type:jsonb"`
	Feed      datatypes.JSON `gorm:"column:feed_settings;type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Project) TableName() string { return "projects" }
