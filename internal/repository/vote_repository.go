package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/vote-rewards/internal/model"
)

type VoteRepository interface {
	// Create inserts the vote. Returns false without error when the
	// (post_id, voter_id) unique index already holds an active vote;
	// the index, not the caller's pre-check, is the duplicate guard.
	Create(ctx context.Context, v *model.Vote) (bool, error)
	FindActive(ctx context.Context, postID, voterID string) (*model.Vote, error)
	Exists(ctx context.Context, postID, voterID string) (bool, error)
	Delete(ctx context.Context, id string) error
	// ListUnsettled returns unflagged, unawarded votes in FIFO order.
	ListUnsettled(ctx context.Context) ([]*model.Vote, error)
	MarkAwarded(ctx context.Context, ids []string, batchID string) error
	// RecentVoteTimes returns the voter's latest vote timestamps,
	// newest first, capped at limit.
	RecentVoteTimes(ctx context.Context, voterID string, limit int) ([]time.Time, error)
	// CountReciprocal counts votes the post author cast back onto the
	// voter's own posts since the cutoff.
	CountReciprocal(ctx context.Context, authorID, voterID string, since time.Time) (int64, error)
}

type voteRepository struct {
	db *gorm.DB
}

func NewVoteRepository(db *gorm.DB) VoteRepository { return &voteRepository{db: db} }

func (r *voteRepository) Create(ctx context.Context, v *model.Vote) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(v)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *voteRepository) FindActive(ctx context.Context, postID, voterID string) (*model.Vote, error) {
	var v model.Vote
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND voter_id = ?", postID, voterID).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *voteRepository) Exists(ctx context.Context, postID, voterID string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Vote{}).
		Where("post_id = ? AND voter_id = ?", postID, voterID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *voteRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Vote{}).Error
}

func (r *voteRepository) ListUnsettled(ctx context.Context) ([]*model.Vote, error) {
	var votes []*model.Vote
	err := r.db.WithContext(ctx).
		Where("gem_awarded = ? AND flagged = ?", false, false).
		Order("created_at, id").
		Find(&votes).Error
	return votes, err
}

func (r *voteRepository) MarkAwarded(ctx context.Context, ids []string, batchID string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.Vote{}).
		Where("id IN ? AND gem_awarded = ?", ids, false).
		Updates(map[string]any{"gem_awarded": true, "gem_batch_id": batchID}).Error
}

func (r *voteRepository) RecentVoteTimes(ctx context.Context, voterID string, limit int) ([]time.Time, error) {
	var times []time.Time
	err := r.db.WithContext(ctx).
		Model(&model.Vote{}).
		Where("voter_id = ?", voterID).
		Order("created_at DESC").
		Limit(limit).
		Pluck("created_at", &times).Error
	return times, err
}

func (r *voteRepository) CountReciprocal(ctx context.Context, authorID, voterID string, since time.Time) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&model.Vote{}).
		Where("voter_id = ? AND post_author_id = ? AND created_at >= ?", authorID, voterID, since).
		Count(&cnt).Error
	return cnt, err
}
