package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/vote-rewards/internal/model"
)

type PostRepository interface {
	GetByID(ctx context.Context, id string) (*model.Post, error)
	// IncrVoteCount moves vote_count by delta with a single atomic
	// expression, never read-modify-write.
	IncrVoteCount(ctx context.Context, id string, delta int) error
	UpdateScores(ctx context.Context, id string, engagement, trending, hot float64) error
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var p model.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) IncrVoteCount(ctx context.Context, id string, delta int) error {
	return r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("id = ?", id).
		UpdateColumn("vote_count", gorm.Expr("vote_count + ?", delta)).Error
}

func (r *postRepository) UpdateScores(ctx context.Context, id string, engagement, trending, hot float64) error {
	return r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"engagement_score": engagement,
			"trending_score":   trending,
			"hot_score":        hot,
		}).Error
}
