package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/vote-rewards/internal/model"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	IncrTotalVotesGiven(ctx context.Context, id string) error
	// AdjustTrustScore moves trust_score by delta, clamped to [0,100],
	// in one statement so concurrent penalties never lose updates.
	AdjustTrustScore(ctx context.Context, id string, delta int) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) IncrTotalVotesGiven(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		UpdateColumn("total_votes_given", gorm.Expr("total_votes_given + 1")).Error
}

func (r *userRepository) AdjustTrustScore(ctx context.Context, id string, delta int) error {
	// CASE expression works on both sqlite and postgres; GREATEST/LEAST
	// do not exist on sqlite.
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		UpdateColumn("trust_score", gorm.Expr(
			"CASE WHEN trust_score + ? < 0 THEN 0 WHEN trust_score + ? > 100 THEN 100 ELSE trust_score + ? END",
			delta, delta, delta,
		)).Error
}
