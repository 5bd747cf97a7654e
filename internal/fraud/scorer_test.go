package fraud

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/vote-rewards/config"
	"github.com/d60-Lab/vote-rewards/internal/counter"
	"github.com/d60-Lab/vote-rewards/internal/model"
	"github.com/d60-Lab/vote-rewards/internal/repository"
)

func defaultFraudConfig() config.FraudConfig {
	return config.FraudConfig{
		VelocityWeight:   0.20,
		IPClusterWeight:  0.20,
		DeviceWeight:     0.15,
		ReciprocalWeight: 0.15,
		BurstWeight:      0.10,
		AccountAgeWeight: 0.10,
		BehavioralWeight: 0.10,

		MinuteVoteLimit:    5,
		HourVoteLimit:      60,
		IPClusterSoftLimit: 3,
		IPClusterHardLimit: 10,
		DeviceSoftLimit:    2,
		DeviceHardLimit:    8,
		BurstSoftLimit:     3,
		BurstHardLimit:     10,
		FlagThreshold:      0.7,
		TrustPenalty:       5,
	}
}

type scorerFixture struct {
	scorer *Scorer
	store  counter.Store
	db     *gorm.DB
	mr     *miniredis.Miniredis
	users  repository.UserRepository
	votes  repository.VoteRepository
}

func setupScorer(t *testing.T) *scorerFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	// Every pooled connection to :memory: is its own database; pin to one.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Post{}, &model.Vote{}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := counter.NewRedisStore(client)
	votes := repository.NewVoteRepository(db)
	users := repository.NewUserRepository(db)
	scorer := NewScorer(defaultFraudConfig(), store, votes, users, zap.NewNop())
	return &scorerFixture{scorer: scorer, store: store, db: db, mr: mr, users: users, votes: votes}
}

func seedUser(t *testing.T, db *gorm.DB, id string, createdAt time.Time, trust int) {
	t.Helper()
	require.NoError(t, db.Create(&model.User{
		ID:         id,
		Username:   id,
		TrustScore: trust,
		CreatedAt:  createdAt,
	}).Error)
}

func TestCompositeCleanVoterIsZero(t *testing.T) {
	f := setupScorer(t)
	seedUser(t, f.db, "v1", time.Now().Add(-72*time.Hour), 50)

	score := f.scorer.Score(context.Background(), Attempt{
		VoterID:          "v1",
		PostID:           "p1",
		PostAuthorID:     "a1",
		DeviceID:         "dev-1",
		IPHash:           "ip-1",
		AccountCreatedAt: time.Now().Add(-72 * time.Hour),
	})
	assert.Equal(t, 0.0, score)
}

func TestCompositeStaysWithinBounds(t *testing.T) {
	f := setupScorer(t)
	ctx := context.Background()
	seedUser(t, f.db, "bot", time.Now(), 50)

	// Max out every counter-backed signal.
	attempt := Attempt{
		VoterID:          "bot",
		PostID:           "p1",
		PostAuthorID:     "a1",
		DeviceID:         "shared-dev",
		IPHash:           "shared-ip",
		AccountCreatedAt: time.Now(),
	}
	for i := 0; i < 200; i++ {
		f.scorer.RecordVote(ctx, attempt, time.Now())
	}
	for i := 0; i < 20; i++ {
		other := Attempt{VoterID: fmt.Sprintf("sock-%d", i), PostID: "p1", PostAuthorID: "a1", DeviceID: "shared-dev", IPHash: "shared-ip"}
		f.scorer.RecordVote(ctx, other, time.Now())
	}
	// Reciprocal ring: the author voted the voter's posts three times.
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.db.Create(&model.Vote{
			ID: fmt.Sprintf("rv-%d", i), PostID: fmt.Sprintf("bp-%d", i),
			VoterID: "a1", PostAuthorID: "bot", CreatedAt: base,
		}).Error)
	}
	// Metronome history for the behavioral signal.
	for i := 0; i < 8; i++ {
		require.NoError(t, f.db.Create(&model.Vote{
			ID: fmt.Sprintf("bv-%d", i), PostID: fmt.Sprintf("op-%d", i),
			VoterID: "bot", PostAuthorID: "x", CreatedAt: base.Add(time.Duration(i) * 2 * time.Second),
		}).Error)
	}

	score := f.scorer.Score(ctx, attempt)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
	assert.Greater(t, score, 0.7, "fully adversarial attempt should flag")
}

func TestHighCompositeCostsTrust(t *testing.T) {
	f := setupScorer(t)
	ctx := context.Background()
	seedUser(t, f.db, "bot", time.Now(), 3)

	attempt := Attempt{VoterID: "bot", PostID: "p1", PostAuthorID: "a1", DeviceID: "d", IPHash: "i", AccountCreatedAt: time.Now()}
	for i := 0; i < 200; i++ {
		f.scorer.RecordVote(ctx, attempt, time.Now())
	}
	for i := 0; i < 20; i++ {
		f.scorer.RecordVote(ctx, Attempt{VoterID: fmt.Sprintf("s%d", i), PostID: "p1", PostAuthorID: "a1", DeviceID: "d", IPHash: "i"}, time.Now())
	}
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.db.Create(&model.Vote{
			ID: fmt.Sprintf("rv-%d", i), PostID: fmt.Sprintf("bp-%d", i),
			VoterID: "a1", PostAuthorID: "bot", CreatedAt: base,
		}).Error)
	}

	score := f.scorer.Score(ctx, attempt)
	require.Greater(t, score, 0.7)

	u, err := f.users.GetByID(ctx, "bot")
	require.NoError(t, err)
	// Penalty floors at zero, never negative.
	assert.Equal(t, 0, u.TrustScore)
}

func TestAccountAgeSignal(t *testing.T) {
	f := setupScorer(t)
	ctx := context.Background()

	brandNew := f.scorer.Score(ctx, Attempt{
		VoterID: "n1", PostID: "p1", PostAuthorID: "a1",
		AccountCreatedAt: time.Now(),
	})
	// Only the age signal fires: 0.8 * 0.10 weight.
	assert.InDelta(t, 0.08, brandNew, 0.002)

	old := f.scorer.Score(ctx, Attempt{
		VoterID: "n2", PostID: "p1", PostAuthorID: "a1",
		AccountCreatedAt: time.Now().Add(-48 * time.Hour),
	})
	assert.Equal(t, 0.0, old)
}

func TestVelocitySignalScalesWithRecordedVotes(t *testing.T) {
	f := setupScorer(t)
	ctx := context.Background()

	attempt := Attempt{VoterID: "v1", PostID: "p-a", PostAuthorID: "a1", AccountCreatedAt: time.Now().Add(-48 * time.Hour)}
	for i := 0; i < 5; i++ {
		// Spread across posts so the burst counter stays quiet.
		a := attempt
		a.PostID = fmt.Sprintf("p-%d", i)
		f.scorer.RecordVote(ctx, a, time.Now())
	}

	score := f.scorer.Score(ctx, attempt)
	// 5 votes this minute at limit 5 → velocity 1.0 × weight 0.20.
	assert.InDelta(t, 0.20, score, 0.02)
}

func TestBehavioralNeedsEnoughSamples(t *testing.T) {
	f := setupScorer(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.db.Create(&model.Vote{
			ID: fmt.Sprintf("v-%d", i), PostID: fmt.Sprintf("p-%d", i),
			VoterID: "v1", PostAuthorID: "x", CreatedAt: base.Add(time.Duration(i) * time.Second),
		}).Error)
	}

	// Three votes is only two intervals: not enough evidence.
	score := f.scorer.Score(ctx, Attempt{
		VoterID: "v1", PostID: "px", PostAuthorID: "a1",
		AccountCreatedAt: time.Now().Add(-48 * time.Hour),
	})
	assert.Equal(t, 0.0, score)
}

func TestSignalsFailOpenWhenStoreUnreachable(t *testing.T) {
	f := setupScorer(t)
	f.mr.Close()

	score := f.scorer.Score(context.Background(), Attempt{
		VoterID: "v1", PostID: "p1", PostAuthorID: "a1",
		DeviceID: "d", IPHash: "i",
		AccountCreatedAt: time.Now().Add(-48 * time.Hour),
	})
	assert.Equal(t, 0.0, score)
}
