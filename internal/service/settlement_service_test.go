package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/vote-rewards/internal/model"
)

func (f *fixture) seedVotes(t *testing.T, authorID string, n int, flagged bool) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		require.NoError(t, f.db.Create(&model.Vote{
			ID:           fmt.Sprintf("%s-v%03d-%v", authorID, i, flagged),
			PostID:       fmt.Sprintf("%s-p%03d", authorID, i),
			VoterID:      fmt.Sprintf("voter-%s-%d-%v", authorID, i, flagged),
			PostAuthorID: authorID,
			Flagged:      flagged,
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}).Error)
	}
}

func TestSettlementScenarioTenVotesOneGem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedUser(t, "author")
	f.seedVotes(t, "author", 10, false)

	report, err := f.settleSvc.SettleVoteGems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AuthorsPaid)
	assert.Equal(t, int64(1), report.GemsAwarded)
	assert.Equal(t, 10, report.VotesSettled)

	assert.Equal(t, int64(1), f.user(t, "author").GemBalance)

	var settled int64
	require.NoError(t, f.db.Model(&model.Vote{}).
		Where("gem_awarded = ? AND gem_batch_id = ?", true, report.BatchID).
		Count(&settled).Error)
	assert.Equal(t, int64(10), settled)
}

func TestSettlementRemainderRollsForward(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedUser(t, "author")
	f.seedVotes(t, "author", 27, false)

	report, err := f.settleSvc.SettleVoteGems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.GemsAwarded)
	assert.Equal(t, 20, report.VotesSettled)

	var unsettled int64
	require.NoError(t, f.db.Model(&model.Vote{}).
		Where("gem_awarded = ?", false).
		Count(&unsettled).Error)
	assert.Equal(t, int64(7), unsettled, "remainder rolls into the next run")
}

func TestSettlementSelectsEarliestVotesFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedUser(t, "author")
	f.seedVotes(t, "author", 15, false)

	_, err := f.settleSvc.SettleVoteGems(ctx)
	require.NoError(t, err)

	var leftover []model.Vote
	require.NoError(t, f.db.Where("gem_awarded = ?", false).Order("created_at").Find(&leftover).Error)
	require.Len(t, leftover, 5)
	for _, v := range leftover {
		// The five newest votes survive; ids v010..v014 sort last.
		assert.GreaterOrEqual(t, v.ID, "author-v010-false")
	}
}

func TestSettlementSkipsFlaggedVotes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedUser(t, "author")
	f.seedVotes(t, "author", 5, false)
	f.seedVotes(t, "author", 30, true)

	report, err := f.settleSvc.SettleVoteGems(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.AuthorsPaid, "five clean votes are below one gem")
	assert.Equal(t, int64(0), f.user(t, "author").GemBalance)
}

func TestSettlementHonorsDailyCap(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedUser(t, "author")
	// 48 gems already earned today leaves room for 2.
	_, err := f.store.IncrBy(ctx, earnKey("author"), 48, 24*time.Hour)
	require.NoError(t, err)
	f.seedVotes(t, "author", 100, false)

	report, err := f.settleSvc.SettleVoteGems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.GemsAwarded)
	assert.Equal(t, 20, report.VotesSettled)

	earned, err := f.settleSvc.EarnedToday(ctx, "author")
	require.NoError(t, err)
	assert.Equal(t, int64(50), earned)

	// Next run: cap fully consumed, nothing moves.
	second, err := f.settleSvc.SettleVoteGems(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.GemsAwarded)
}

func TestSettlementMultipleAuthorsIsolated(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedUser(t, "alice")
	f.seedUser(t, "bob", func(u *model.User) { u.TrustScore = 5 })
	f.seedVotes(t, "alice", 20, false)
	f.seedVotes(t, "bob", 20, false)

	report, err := f.settleSvc.SettleVoteGems(ctx)
	require.NoError(t, err)
	// Bob sits below the earning floor; Alice still gets paid.
	assert.Equal(t, 1, report.AuthorsPaid)
	assert.Equal(t, int64(2), f.user(t, "alice").GemBalance)
	assert.Equal(t, int64(0), f.user(t, "bob").GemBalance)

	var bobUnsettled int64
	require.NoError(t, f.db.Model(&model.Vote{}).
		Where("post_author_id = ? AND gem_awarded = ?", "bob", false).
		Count(&bobUnsettled).Error)
	assert.Equal(t, int64(20), bobUnsettled)
}

func TestSettlementIdempotentAcrossRuns(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedUser(t, "author")
	f.seedVotes(t, "author", 10, false)

	first, err := f.settleSvc.SettleVoteGems(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), first.GemsAwarded)

	second, err := f.settleSvc.SettleVoteGems(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.GemsAwarded, "settled votes never pay twice")
	assert.Equal(t, int64(1), f.user(t, "author").GemBalance)
}

func TestEndToEndCastThenSettle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedUser(t, "author")
	f.seedPost(t, "p1", "author")
	for i := 0; i < 10; i++ {
		f.seedUser(t, fmt.Sprintf("voter-%d", i))
	}

	for i := 0; i < 10; i++ {
		res, err := f.voteSvc.CastVote(ctx, fmt.Sprintf("voter-%d", i), "p1",
			fmt.Sprintf("dev-%d", i), fmt.Sprintf("ip-%d", i))
		require.NoError(t, err)
		require.True(t, res.Accepted, "voter %d", i)
		require.Empty(t, res.ErrorKind)
	}

	post := f.post(t, "p1")
	assert.Equal(t, int64(10), post.VoteCount)
	assert.Equal(t, 10.0, post.EngagementScore)

	report, err := f.settleSvc.SettleVoteGems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.GemsAwarded)
	assert.Equal(t, 10, report.VotesSettled)
	assert.Equal(t, int64(1), f.user(t, "author").GemBalance)

	sum, err := f.ledger.SumAmount(ctx, "author")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum)
}
