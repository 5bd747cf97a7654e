package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/vote-rewards/config"
	"github.com/d60-Lab/vote-rewards/internal/counter"
	"github.com/d60-Lab/vote-rewards/internal/repository"
)

// SettlementReport summarizes one batch run.
type SettlementReport struct {
	BatchID      string `json:"batch_id"`
	AuthorsPaid  int    `json:"authors_paid"`
	GemsAwarded  int64  `json:"gems_awarded"`
	VotesSettled int    `json:"votes_settled"`
}

// SettlementService converts accumulated unflagged votes into gem
// awards, one ledger row per author instead of one per vote. Each
// author is a self-contained atomic step, so an interrupted run leaves
// no inconsistent state; overlapping runs are the caller's job to
// prevent (the runner holds a single-flight lock).
type SettlementService struct {
	cfg      config.EconomyConfig
	votes    repository.VoteRepository
	gems     *GemService
	counters counter.Store
	log      *zap.Logger
}

func NewSettlementService(cfg config.EconomyConfig, votes repository.VoteRepository, gems *GemService, counters counter.Store, log *zap.Logger) *SettlementService {
	return &SettlementService{cfg: cfg, votes: votes, gems: gems, counters: counters, log: log}
}

// SettleVoteGems groups unsettled votes by author, awards
// floor(votes/votesPerGem) gems capped by the author's remaining daily
// allowance, and marks the earliest votes as spent. The FIFO selection
// is deterministic: leftover votes roll into the next run.
func (s *SettlementService) SettleVoteGems(ctx context.Context) (*SettlementReport, error) {
	batchID := uuid.New().String()

	votes, err := s.votes.ListUnsettled(ctx)
	if err != nil {
		return nil, err
	}

	// Group by author keeping per-author FIFO order (input is already
	// ordered by created_at).
	byAuthor := make(map[string][]string)
	for _, v := range votes {
		byAuthor[v.PostAuthorID] = append(byAuthor[v.PostAuthorID], v.ID)
	}
	authors := make([]string, 0, len(byAuthor))
	for a := range byAuthor {
		authors = append(authors, a)
	}
	sort.Strings(authors)

	report := &SettlementReport{BatchID: batchID}
	for _, author := range authors {
		ids := byAuthor[author]
		gems := int64(len(ids) / s.cfg.VotesPerGem)
		if gems == 0 {
			continue
		}

		earnedToday, err := s.counters.Get(ctx, earnKey(author))
		if err != nil {
			s.log.Warn("daily earn counter read", zap.String("author", author), zap.Error(err))
			continue
		}
		capped := gems
		if room := int64(s.cfg.DailyEarnCap) - earnedToday; room < capped {
			capped = room
		}
		if capped <= 0 {
			continue
		}

		idemKey := fmt.Sprintf("vote-batch-%s-%s", batchID, author)
		tx, err := s.gems.Award(ctx, author, capped, "votes", idemKey)
		if err != nil {
			// Per-author isolation: a capped-out or low-trust author
			// must not poison the rest of the batch.
			if errors.Is(err, ErrEarnTrustFloor) || errors.Is(err, ErrBalanceCap) {
				s.log.Info("settlement skipped author", zap.String("author", author), zap.Error(err))
				continue
			}
			return report, err
		}
		if tx == nil {
			continue
		}

		settle := ids[:capped*int64(s.cfg.VotesPerGem)]
		if err := s.votes.MarkAwarded(ctx, settle, batchID); err != nil {
			return report, err
		}
		if _, err := s.counters.IncrBy(ctx, earnKey(author), capped, 24*time.Hour); err != nil {
			s.log.Warn("daily earn counter bump", zap.String("author", author), zap.Error(err))
		}

		report.AuthorsPaid++
		report.GemsAwarded += capped
		report.VotesSettled += len(settle)
	}

	if report.AuthorsPaid > 0 {
		s.log.Info("settlement batch complete",
			zap.String("batch", batchID),
			zap.Int("authors", report.AuthorsPaid),
			zap.Int64("gems", report.GemsAwarded),
			zap.Int("votes", report.VotesSettled))
	}
	return report, nil
}

// EarnedToday reports how many gems an author has already earned from
// votes inside the rolling 24h cap window.
func (s *SettlementService) EarnedToday(ctx context.Context, authorID string) (int64, error) {
	return s.counters.Get(ctx, earnKey(authorID))
}

func earnKey(authorID string) string {
	return fmt.Sprintf("gems:daily:%s", authorID)
}
