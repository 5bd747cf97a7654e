package model

import "time"

// User carries the reputation and wallet attributes the vote pipeline
// reads and mutates. Registration and auth live elsewhere.
type User struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)"`
	Username        string    `gorm:"type:varchar(64)"`
	TrustScore      int       `gorm:"not null;default:50"`
	ShadowBanned    bool      `gorm:"not null;default:false"`
	GemBalance      int64     `gorm:"not null;default:0"`
	TotalGemsEarned int64     `gorm:"not null;default:0"`
	TotalVotesGiven int64     `gorm:"not null;default:0"`
	// Multiplier applies to gem awards while MultiplierExpiresAt is in
	// the future (referral bonus); 1.0 otherwise.
	Multiplier          float64    `gorm:"not null;default:1"`
	MultiplierExpiresAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (User) TableName() string { return "users" }

// ActiveMultiplier returns the award multiplier in effect at now.
func (u *User) ActiveMultiplier(now time.Time) float64 {
	if u.Multiplier > 1 && u.MultiplierExpiresAt != nil && u.MultiplierExpiresAt.After(now) {
		return u.Multiplier
	}
	return 1.0
}
