package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/vote-rewards/internal/counter"
	"github.com/d60-Lab/vote-rewards/internal/ranking"
	"github.com/d60-Lab/vote-rewards/internal/repository"
)

const (
	LeaderboardHot        = "rank:hot"
	LeaderboardTrending   = "rank:trending"
	LeaderboardEngagement = "rank:engagement"
)

// RankingService recomputes a post's derived scores from its counters
// and keeps the score-ordered feed indexes current. Recomputation is
// idempotent; skipping a refresh under load only delays feed order,
// never corrupts it.
type RankingService struct {
	posts    repository.PostRepository
	counters counter.Store
	calc     *ranking.Calculator
	log      *zap.Logger
}

func NewRankingService(posts repository.PostRepository, counters counter.Store, calc *ranking.Calculator, log *zap.Logger) *RankingService {
	return &RankingService{posts: posts, counters: counters, calc: calc, log: log}
}

// RecalculatePostScores reloads the authoritative counters, derives
// the three scores and persists them, then upserts the post into the
// ordered indexes for top-k reads.
func (s *RankingService) RecalculatePostScores(ctx context.Context, postID string) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}

	ageHours := time.Since(post.CreatedAt).Hours()
	scores := s.calc.Compute(ranking.Counters{
		Votes:    post.VoteCount,
		Views:    post.ViewCount,
		Shares:   post.ShareCount,
		Comments: post.CommentCount,
	}, ageHours)

	if err := s.posts.UpdateScores(ctx, postID, scores.Engagement, scores.Trending, scores.Hot); err != nil {
		return err
	}

	// Leaderboard upserts are best-effort: the DB row is authoritative
	// and the index converges on the next recompute.
	if err := s.counters.UpsertScore(ctx, LeaderboardHot, postID, scores.Hot); err != nil {
		s.log.Warn("hot leaderboard upsert", zap.String("post", postID), zap.Error(err))
	}
	if err := s.counters.UpsertScore(ctx, LeaderboardTrending, postID, scores.Trending); err != nil {
		s.log.Warn("trending leaderboard upsert", zap.String("post", postID), zap.Error(err))
	}
	if err := s.counters.UpsertScore(ctx, LeaderboardEngagement, postID, scores.Engagement); err != nil {
		s.log.Warn("engagement leaderboard upsert", zap.String("post", postID), zap.Error(err))
	}
	return nil
}

// TopPosts reads up to k post ids from one of the ordered indexes.
func (s *RankingService) TopPosts(ctx context.Context, board string, k int64) ([]counter.ScoredMember, error) {
	return s.counters.TopK(ctx, board, k)
}
