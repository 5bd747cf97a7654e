package model

import "time"

const (
	GemTxEarn  = "earn"
	GemTxSpend = "spend"
)

// GemTransaction is one append-only ledger row. Rows are never updated
// or deleted; the running invariant is
// user.gem_balance == SUM(amount) over the user's rows.
type GemTransaction struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"`
	UserID string `gorm:"type:varchar(36);not null;index:idx_gemtx_user"`
	Type   string `gorm:"type:varchar(10);not null"`
	Source string `gorm:"type:varchar(50);not null"`
	// Amount is signed: positive for earn, negative for spend.
	Amount        int64   `gorm:"not null"`
	BalanceBefore int64   `gorm:"not null"`
	BalanceAfter  int64   `gorm:"not null"`
	BaseAmount    int64   `gorm:"not null"`
	Multiplier    float64 `gorm:"not null;default:1"`
	// IdempotencyKey makes retries safe: the unique index guarantees a
	// key commits at most one row no matter how many callers race.
	IdempotencyKey string `gorm:"type:varchar(100);not null;uniqueIndex:ux_gemtx_idem"`
	CreatedAt      time.Time
}

func (GemTransaction) TableName() string { return "gem_transactions" }
