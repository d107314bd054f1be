package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Candidate is an ingested source media item (spec.md §3). meta
// conventionally stores content_signature, topic_tags, topic_signature, and
// an optional script_analysis blob — kept as an opaque JSON bag so new
// analysis fields need no migration. The dedup package computes the
// signatures as pure functions; the repos read them straight out of meta
// (CandidateRepo.FindByContentSignature,
// PublishTaskRepo.RecentPublishedTopicSignatures).
type Candidate struct {
	ID              string          `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	ProjectID       string          `gorm:"type:uuid;not null;index:idx_candidate_platform_video,unique"`
	Platform        string          `gorm:"not null;index:idx_candidate_platform_video,unique"`
	PlatformVideoID string          `gorm:"column:platform_video_id;not null;index:idx_candidate_platform_video,unique"`
	URL             string          `gorm:"not null"`
	Views           int64
	Likes           int64
	Comments        int64
	Shares          int64
	Subscribers     int64
	ViralityScore   *float64        `gorm:"column:virality_score"`
	Status          CandidateStatus `gorm:"type:varchar(16);not null;default:'NEW'"`
	Meta            datatypes.JSON  `gorm:"type:jsonb"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Candidate) TableName() string { return "candidates" }

// Advance enforces the monotonic status transition invariant from spec.md §3.
func (c *Candidate) Advance(to CandidateStatus) bool {
	if !canAdvanceCandidate(c.Status, to) {
		return false
	}
	c.Status = to
	return true
}
