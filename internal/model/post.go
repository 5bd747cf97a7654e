package model

import "time"

// Post holds the authoritative engagement counters and the derived
// ranking scores. Counters are only ever moved with atomic increments;
// the three scores are recomputed from them and never trusted as input.
type Post struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	AuthorID     string `gorm:"type:varchar(36);index:idx_post_author"`
	Deleted      bool   `gorm:"not null;default:false"`
	VoteCount    int64  `gorm:"not null;default:0"`
	ViewCount    int64  `gorm:"not null;default:0"`
	ShareCount   int64  `gorm:"not null;default:0"`
	CommentCount int64  `gorm:"not null;default:0"`

	EngagementScore float64 `gorm:"not null;default:0"`
	TrendingScore   float64 `gorm:"not null;default:0"`
	HotScore        float64 `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Post) TableName() string { return "posts" }
