package model

import "time"

// Vote is one vote attempt, kept even when flagged so fraud audits can
// replay what the scorer saw. The composite unique index enforces at
// most one active vote per (post, voter); the service-level existence
// check is only an optimization on top of it.
type Vote struct {
	ID           string  `gorm:"primaryKey;type:varchar(36)"`
	PostID       string  `gorm:"type:varchar(36);not null;uniqueIndex:ux_vote_post_voter,priority:1"`
	VoterID      string  `gorm:"type:varchar(36);not null;uniqueIndex:ux_vote_post_voter,priority:2"`
	PostAuthorID string  `gorm:"type:varchar(36);not null;index:idx_vote_author"`
	DeviceID     string  `gorm:"type:varchar(64)"`
	IPHash       string  `gorm:"type:varchar(64)"`
	FraudScore   float64 `gorm:"not null;default:0"`
	Flagged      bool    `gorm:"not null;default:false;index:idx_vote_settle"`
	// GemAwarded flips exactly once, during settlement. An awarded vote
	// is immutable and can no longer be undone.
	GemAwarded bool   `gorm:"not null;default:false;index:idx_vote_settle"`
	GemBatchID string `gorm:"type:varchar(36)"`
	CreatedAt  time.Time
}

func (Vote) TableName() string { return "votes" }
