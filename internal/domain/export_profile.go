package domain

import "time"

// ExportProfile is a target-platform encoding contract (spec.md §3).
// Immutable once referenced by a task, consumed by encode/publish steps.
type ExportProfile struct {
	ID                string `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	Name              string `gorm:"not null"`
	Width             int
	Height            int
	FPS               int     `gorm:"column:fps"`
	Codec             string
	BitrateVideoKbps  int     `gorm:"column:bitrate_video_kbps"`
	BitrateAudioKbps  int     `gorm:"column:bitrate_audio_kbps"`
	SafeAreaX         float64 `gorm:"column:safe_area_x"`
	SafeAreaY         float64 `gorm:"column:safe_area_y"`
	SafeAreaW         float64 `gorm:"column:safe_area_w"`
	SafeAreaH         float64 `gorm:"column:safe_area_h"`
	MaxDurationSec       int `gorm:"column:max_duration_sec"`
	RecommendedDurationSec int `gorm:"column:recommended_duration_sec"`
	PixelFormat       string `gorm:"column:pixel_format"`
	CreatedAt         time.Time
}

func (ExportProfile) TableName() string { return "export_profiles" }
