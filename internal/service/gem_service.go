package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/vote-rewards/config"
	"github.com/d60-Lab/vote-rewards/internal/model"
	"github.com/d60-Lab/vote-rewards/internal/repository"
)

const (
	KindInsufficientGems     = "insufficient_gems"
	KindDuplicateTransaction = "duplicate_transaction"
)

var (
	ErrInsufficientGems     = errors.New("insufficient gems")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrEarnTrustFloor       = errors.New("trust score below earning floor")
	ErrBalanceCap           = errors.New("award would exceed balance cap")
	ErrInvalidAmount        = errors.New("amount must be positive")

	// errBalanceRace aborts a transaction whose balance read went stale
	// before commit. Internal only: callers see the policy error after
	// the rollback.
	errBalanceRace = errors.New("gem balance changed concurrently")
)

// EconomyHealth aggregates one day of ledger flow for monitoring.
type EconomyHealth struct {
	DailyEmission int64   `json:"daily_emission"`
	DailyBurn     int64   `json:"daily_burn"`
	NetEmission   int64   `json:"net_emission"`
	TxVelocity    int64   `json:"tx_velocity"`
	InflationRisk float64 `json:"inflation_risk"`
}

// GemService owns the append-only ledger. Every award/spend commits
// the ledger row and the balance mutation as one transaction; under
// uncertainty it aborts rather than risk a double-award or lost debit.
// This is the one component that never fails open.
type GemService struct {
	db     *gorm.DB
	ledger repository.LedgerRepository
	cfg    config.EconomyConfig
	log    *zap.Logger
}

func NewGemService(db *gorm.DB, ledger repository.LedgerRepository, cfg config.EconomyConfig, log *zap.Logger) *GemService {
	return &GemService{db: db, ledger: ledger, cfg: cfg, log: log}
}

// Award credits gems to a user. A reused idempotency key is a no-op
// returning (nil, nil): the original row already paid out. The award
// amount is scaled by any active referral multiplier and rejected when
// the resulting balance would breach the system cap.
func (s *GemService) Award(ctx context.Context, userID string, amount int64, source, idempotencyKey string) (*model.GemTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var tx *model.GemTransaction
	err := s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var dup int64
		if err := dbtx.Model(&model.GemTransaction{}).
			Where("idempotency_key = ?", idempotencyKey).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return nil // replay: the first commit stands
		}

		var user model.User
		if err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).First(&user).Error; err != nil {
			return err
		}
		if user.TrustScore < s.cfg.EarnTrustFloor {
			return ErrEarnTrustFloor
		}

		now := time.Now()
		multiplier := user.ActiveMultiplier(now)
		effective := int64(math.Floor(float64(amount) * multiplier))
		if user.GemBalance+effective > int64(s.cfg.BalanceCap) {
			return ErrBalanceCap
		}

		row := &model.GemTransaction{
			ID:             uuid.New().String(),
			UserID:         userID,
			Type:           model.GemTxEarn,
			Source:         source,
			Amount:         effective,
			BalanceBefore:  user.GemBalance,
			BalanceAfter:   user.GemBalance + effective,
			BaseAmount:     amount,
			Multiplier:     multiplier,
			IdempotencyKey: idempotencyKey,
			CreatedAt:      now,
		}
		ins := dbtx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			return nil // concurrent replay won the unique index
		}

		// Compare-and-swap on the balance we read under lock: if a
		// concurrent writer slipped in anyway, abort and roll the
		// ledger row back with us.
		res := dbtx.Model(&model.User{}).
			Where("id = ? AND gem_balance = ?", userID, user.GemBalance).
			UpdateColumns(map[string]any{
				"gem_balance":       user.GemBalance + effective,
				"total_gems_earned": gorm.Expr("total_gems_earned + ?", effective),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errBalanceRace
		}

		tx = row
		return nil
	})
	if err != nil {
		if isPolicyErr(err) {
			return nil, err
		}
		sentry.CaptureException(err)
		s.log.Error("gem award aborted", zap.String("user", userID), zap.Error(err))
		return nil, err
	}
	return tx, nil
}

// Spend debits gems. The decrement is conditional on the balance still
// covering the amount at commit time; a lost race rolls the ledger row
// back entirely and reports insufficient_gems so the caller may retry.
func (s *GemService) Spend(ctx context.Context, userID string, amount int64, source, idempotencyKey string) (*model.GemTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var tx *model.GemTransaction
	err := s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var dup int64
		if err := dbtx.Model(&model.GemTransaction{}).
			Where("idempotency_key = ?", idempotencyKey).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return ErrDuplicateTransaction
		}

		var user model.User
		if err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).First(&user).Error; err != nil {
			return err
		}
		if user.GemBalance < amount {
			return ErrInsufficientGems
		}

		now := time.Now()
		row := &model.GemTransaction{
			ID:             uuid.New().String(),
			UserID:         userID,
			Type:           model.GemTxSpend,
			Source:         source,
			Amount:         -amount,
			BalanceBefore:  user.GemBalance,
			BalanceAfter:   user.GemBalance - amount,
			BaseAmount:     amount,
			Multiplier:     1,
			IdempotencyKey: idempotencyKey,
			CreatedAt:      now,
		}
		ins := dbtx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			return ErrDuplicateTransaction
		}

		res := dbtx.Model(&model.User{}).
			Where("id = ? AND gem_balance >= ?", userID, amount).
			UpdateColumn("gem_balance", gorm.Expr("gem_balance - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the balance race: abort so the ledger row vanishes
			// with the rollback.
			return ErrInsufficientGems
		}

		tx = row
		return nil
	})
	if err != nil {
		if isPolicyErr(err) {
			return nil, err
		}
		sentry.CaptureException(err)
		s.log.Error("gem spend aborted", zap.String("user", userID), zap.Error(err))
		return nil, err
	}
	return tx, nil
}

// GetBalance returns the wallet balance for a user.
func (s *GemService) GetBalance(ctx context.Context, userID string) (int64, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return 0, err
	}
	return user.GemBalance, nil
}

// GetEconomyHealth aggregates today's emission, burn and transaction
// velocity. InflationRisk is net emission relative to total flow:
// near 1 means gems are only being minted, near -1 only burned.
func (s *GemService) GetEconomyHealth(ctx context.Context) (*EconomyHealth, error) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	totals, err := s.ledger.Totals(ctx, midnight)
	if err != nil {
		return nil, err
	}

	health := &EconomyHealth{
		DailyEmission: totals.Emitted,
		DailyBurn:     totals.Burned,
		NetEmission:   totals.Emitted - totals.Burned,
		TxVelocity:    totals.TxCount,
	}
	if flow := totals.Emitted + totals.Burned; flow > 0 {
		health.InflationRisk = float64(health.NetEmission) / float64(flow)
	}
	return health, nil
}

func isPolicyErr(err error) bool {
	return errors.Is(err, ErrInsufficientGems) ||
		errors.Is(err, ErrDuplicateTransaction) ||
		errors.Is(err, ErrEarnTrustFloor) ||
		errors.Is(err, ErrBalanceCap) ||
		errors.Is(err, gorm.ErrRecordNotFound)
}
