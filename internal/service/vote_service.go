package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/vote-rewards/config"
	"github.com/d60-Lab/vote-rewards/internal/counter"
	"github.com/d60-Lab/vote-rewards/internal/fraud"
	"github.com/d60-Lab/vote-rewards/internal/model"
	"github.com/d60-Lab/vote-rewards/internal/repository"
)

// Stable policy-rejection kinds surfaced to clients.
const (
	KindContentNotFound = "content_not_found"
	KindSelfVote        = "self_vote"
	KindUserNotFound    = "user_not_found"
	KindAccountTooNew   = "account_too_new"
	KindRateLimited     = "rate_limited"
	KindDuplicateVote   = "duplicate_vote"
	KindUndoExpired     = "undo_expired"
	KindVoteNotFound    = "vote_not_found"
)

var (
	ErrUndoExpired  = errors.New("undo window has closed")
	ErrVoteSettled  = errors.New("vote already converted to gems")
	ErrVoteNotFound = errors.New("no active vote to undo")
)

// CastResult reports the outcome of a cast attempt. Accepted is true
// for silent acceptances too; those simply leave NewVoteCount at its
// previous value.
type CastResult struct {
	Accepted            bool   `json:"accepted"`
	NewVoteCount        int64  `json:"new_vote_count"`
	DailyVotesRemaining int    `json:"daily_votes_remaining"`
	ErrorKind           string `json:"error_kind,omitempty"`
}

// DailyVoteStatus reports quota consumption for one voter.
type DailyVoteStatus struct {
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
	Limit     int   `json:"limit"`
}

// VoteService is the intake for cast/undo requests: policy checks in
// order, fraud scoring, persistence, counter updates and ranking
// refresh.
type VoteService struct {
	cfg      config.VoteConfig
	votes    repository.VoteRepository
	posts    repository.PostRepository
	users    repository.UserRepository
	counters counter.Store
	scorer   *fraud.Scorer
	ranking  *RankingService
	flagAt   float64
	log      *zap.Logger
}

func NewVoteService(
	cfg config.VoteConfig,
	flagThreshold float64,
	votes repository.VoteRepository,
	posts repository.PostRepository,
	users repository.UserRepository,
	counters counter.Store,
	scorer *fraud.Scorer,
	ranking *RankingService,
	log *zap.Logger,
) *VoteService {
	return &VoteService{
		cfg:      cfg,
		votes:    votes,
		posts:    posts,
		users:    users,
		counters: counters,
		scorer:   scorer,
		ranking:  ranking,
		flagAt:   flagThreshold,
		log:      log,
	}
}

// CastVote runs the policy gate in order, short-circuiting on the
// first failure, then scores, persists and counts the vote. Flagged
// votes persist for audit but never touch the post counter or the
// ranking; shadow-banned and low-trust voters get a silent success so
// detection is never signalled back.
func (s *VoteService) CastVote(ctx context.Context, voterID, postID, deviceID, ipHash string) (*CastResult, error) {
	now := time.Now()

	post, err := s.posts.GetByID(ctx, postID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &CastResult{ErrorKind: KindContentNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	if post.Deleted {
		return &CastResult{ErrorKind: KindContentNotFound}, nil
	}

	if voterID == post.AuthorID {
		return &CastResult{ErrorKind: KindSelfVote}, nil
	}

	voter, err := s.users.GetByID(ctx, voterID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &CastResult{ErrorKind: KindUserNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	if voter.ShadowBanned {
		// Silent acceptance: no vote row, no counters, no signal back.
		return s.silentAccept(ctx, voterID, post.VoteCount)
	}

	if now.Sub(voter.CreatedAt) < s.cfg.MinAccountAge {
		return &CastResult{ErrorKind: KindAccountTooNew}, nil
	}

	if voter.TrustScore < s.cfg.MinTrustScore {
		// Same anti-detection posture as the shadow ban: intentional.
		return s.silentAccept(ctx, voterID, post.VoteCount)
	}

	used, err := s.counters.Get(ctx, quotaKey(voterID, now))
	if err != nil {
		return nil, err
	}
	if used >= int64(s.cfg.DailyLimit) {
		return &CastResult{ErrorKind: KindRateLimited, DailyVotesRemaining: 0}, nil
	}

	if exists, err := s.votes.Exists(ctx, postID, voterID); err != nil {
		return nil, err
	} else if exists {
		return &CastResult{ErrorKind: KindDuplicateVote}, nil
	}

	attempt := fraud.Attempt{
		VoterID:          voterID,
		PostID:           postID,
		PostAuthorID:     post.AuthorID,
		DeviceID:         deviceID,
		IPHash:           ipHash,
		AccountCreatedAt: voter.CreatedAt,
	}
	score := s.scorer.Score(ctx, attempt)
	flagged := score > s.flagAt

	vote := &model.Vote{
		ID:           uuid.New().String(),
		PostID:       postID,
		VoterID:      voterID,
		PostAuthorID: post.AuthorID,
		DeviceID:     deviceID,
		IPHash:       ipHash,
		FraudScore:   score,
		Flagged:      flagged,
		CreatedAt:    now,
	}
	inserted, err := s.votes.Create(ctx, vote)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the race against a concurrent cast; the unique index
		// already holds the other vote.
		return &CastResult{ErrorKind: KindDuplicateVote}, nil
	}

	// Quota and lifetime counters move even for flagged votes, so a
	// flagged attacker still burns quota retrying.
	quotaUsed, err := s.counters.Incr(ctx, quotaKey(voterID, now), 48*time.Hour)
	if err != nil {
		s.log.Warn("daily quota counter", zap.String("voter", voterID), zap.Error(err))
		quotaUsed = used + 1
	}
	if err := s.users.IncrTotalVotesGiven(ctx, voterID); err != nil {
		s.log.Warn("total votes counter", zap.String("voter", voterID), zap.Error(err))
	}
	s.scorer.RecordVote(ctx, attempt, now)

	newCount := post.VoteCount
	if !flagged {
		if err := s.posts.IncrVoteCount(ctx, postID, 1); err != nil {
			return nil, err
		}
		newCount++
		if err := s.ranking.RecalculatePostScores(ctx, postID); err != nil {
			// Ranking is eventually consistent; log and move on.
			s.log.Warn("ranking refresh skipped", zap.String("post", postID), zap.Error(err))
		}
	} else {
		s.log.Info("vote flagged",
			zap.String("voter", voterID),
			zap.String("post", postID),
			zap.Float64("score", score))
	}

	return &CastResult{
		Accepted:            true,
		NewVoteCount:        newCount,
		DailyVotesRemaining: remaining(s.cfg.DailyLimit, quotaUsed),
	}, nil
}

// UndoVote removes a vote cast less than the undo window ago, as long
// as settlement has not converted it to gems yet.
func (s *VoteService) UndoVote(ctx context.Context, voterID, postID string) error {
	vote, err := s.votes.FindActive(ctx, postID, voterID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrVoteNotFound
	}
	if err != nil {
		return err
	}
	if vote.GemAwarded {
		return ErrVoteSettled
	}
	if time.Since(vote.CreatedAt) >= s.cfg.UndoWindow {
		return ErrUndoExpired
	}

	if err := s.votes.Delete(ctx, vote.ID); err != nil {
		return err
	}
	if !vote.Flagged {
		if err := s.posts.IncrVoteCount(ctx, postID, -1); err != nil {
			return err
		}
		if err := s.ranking.RecalculatePostScores(ctx, postID); err != nil {
			s.log.Warn("ranking refresh skipped", zap.String("post", postID), zap.Error(err))
		}
	}
	return nil
}

// GetDailyVoteStatus reports today's quota usage for a voter.
func (s *VoteService) GetDailyVoteStatus(ctx context.Context, voterID string) (*DailyVoteStatus, error) {
	used, err := s.counters.Get(ctx, quotaKey(voterID, time.Now()))
	if err != nil {
		return nil, err
	}
	return &DailyVoteStatus{
		Used:      used,
		Remaining: int64(remaining(s.cfg.DailyLimit, used)),
		Limit:     s.cfg.DailyLimit,
	}, nil
}

func (s *VoteService) silentAccept(ctx context.Context, voterID string, currentCount int64) (*CastResult, error) {
	used, err := s.counters.Get(ctx, quotaKey(voterID, time.Now()))
	if err != nil {
		used = 0
	}
	return &CastResult{
		Accepted:            true,
		NewVoteCount:        currentCount,
		DailyVotesRemaining: remaining(s.cfg.DailyLimit, used),
	}, nil
}

func remaining(limit int, used int64) int {
	r := limit - int(used)
	if r < 0 {
		return 0
	}
	return r
}

func quotaKey(voterID string, now time.Time) string {
	return fmt.Sprintf("quota:votes:%s:%s", now.UTC().Format("2006-01-02"), voterID)
}
