package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/vote-rewards/internal/model"
)

// DailyTotals aggregates one day of ledger activity for economy
// monitoring.
type DailyTotals struct {
	Emitted int64
	Burned  int64
	TxCount int64
}

type LedgerRepository interface {
	ExistsKey(ctx context.Context, idempotencyKey string) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.GemTransaction, error)
	// SumAmount returns the signed ledger sum for a user; it must equal
	// the user's gem_balance at all times.
	SumAmount(ctx context.Context, userID string) (int64, error)
	Totals(ctx context.Context, since time.Time) (DailyTotals, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository { return &ledgerRepository{db: db} }

func (r *ledgerRepository) ExistsKey(ctx context.Context, idempotencyKey string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.GemTransaction{}).
		Where("idempotency_key = ?", idempotencyKey).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *ledgerRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.GemTransaction, error) {
	var txs []*model.GemTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (r *ledgerRepository) SumAmount(ctx context.Context, userID string) (int64, error) {
	var sum *int64
	err := r.db.WithContext(ctx).
		Model(&model.GemTransaction{}).
		Select("SUM(amount)").
		Where("user_id = ?", userID).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

func (r *ledgerRepository) Totals(ctx context.Context, since time.Time) (DailyTotals, error) {
	var out DailyTotals
	row := r.db.WithContext(ctx).
		Model(&model.GemTransaction{}).
		Select(
			"COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0) AS emitted, "+
				"COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END), 0) AS burned, "+
				"COUNT(*) AS tx_count").
		Where("created_at >= ?", since).
		Row()
	if row == nil {
		return out, errors.New("ledger totals query returned no row")
	}
	if err := row.Scan(&out.Emitted, &out.Burned, &out.TxCount); err != nil {
		return out, err
	}
	return out, nil
}
