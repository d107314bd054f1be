package domain

import "time"

// PublishedVideoMetric is an append-only external-metrics snapshot keyed by
// (task, snapshot_at), unique on (platform, external_id, snapshot_at)
// (spec.md §3).
type PublishedVideoMetric struct {
	ID         string `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	TaskID     string `gorm:"type:uuid;not null;index"`
	Platform   string `gorm:"not null"`
	ExternalID string `gorm:"column:external_id;not null"`
	SnapshotAt time.Time `gorm:"column:snapshot_at;not null"`
	Views      int64
	Likes      int64
	Comments   int64
	Shares     int64
}

func (PublishedVideoMetric) TableName() string { return "published_video_metrics" }
