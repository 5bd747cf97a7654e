package service

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/vote-rewards/config"
	"github.com/d60-Lab/vote-rewards/internal/counter"
	"github.com/d60-Lab/vote-rewards/internal/fraud"
	"github.com/d60-Lab/vote-rewards/internal/model"
	"github.com/d60-Lab/vote-rewards/internal/ranking"
	"github.com/d60-Lab/vote-rewards/internal/repository"
)

type fixture struct {
	db         *gorm.DB
	mr         *miniredis.Miniredis
	store      counter.Store
	votes      repository.VoteRepository
	users      repository.UserRepository
	posts      repository.PostRepository
	ledger     repository.LedgerRepository
	voteSvc    *VoteService
	gemSvc     *GemService
	rankSvc    *RankingService
	settleSvc  *SettlementService
}

func testConfig() *config.Config {
	return &config.Config{
		Fraud: config.FraudConfig{
			VelocityWeight: 0.20, IPClusterWeight: 0.20, DeviceWeight: 0.15,
			ReciprocalWeight: 0.15, BurstWeight: 0.10, AccountAgeWeight: 0.10,
			BehavioralWeight: 0.10,
			MinuteVoteLimit:  5, HourVoteLimit: 60,
			IPClusterSoftLimit: 3, IPClusterHardLimit: 10,
			DeviceSoftLimit: 2, DeviceHardLimit: 8,
			BurstSoftLimit: 3, BurstHardLimit: 10,
			FlagThreshold: 0.7, TrustPenalty: 5,
		},
		Ranking: config.RankingConfig{
			VoteWeight: 1.0, ViewWeight: 0.01, ShareWeight: 3.0,
			CommentWeight: 2.0, Gravity: 1.8, WilsonZ: 1.96,
		},
		Vote: config.VoteConfig{
			DailyLimit: 100, MinAccountAge: time.Hour,
			MinTrustScore: 10, UndoWindow: 5 * time.Minute,
		},
		Economy: config.EconomyConfig{
			VotesPerGem: 10, DailyEarnCap: 50,
			BalanceCap: 100000, EarnTrustFloor: 20,
		},
	}
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	// Every pooled connection to :memory: is its own database; pin to one.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Post{}, &model.Vote{}, &model.GemTransaction{}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := counter.NewRedisStore(client)

	cfg := testConfig()
	log := zap.NewNop()

	votes := repository.NewVoteRepository(db)
	users := repository.NewUserRepository(db)
	posts := repository.NewPostRepository(db)
	ledger := repository.NewLedgerRepository(db)

	calc := ranking.NewCalculator(cfg.Ranking)
	rankSvc := NewRankingService(posts, store, calc, log)
	scorer := fraud.NewScorer(cfg.Fraud, store, votes, users, log)
	voteSvc := NewVoteService(cfg.Vote, cfg.Fraud.FlagThreshold, votes, posts, users, store, scorer, rankSvc, log)
	gemSvc := NewGemService(db, ledger, cfg.Economy, log)
	settleSvc := NewSettlementService(cfg.Economy, votes, gemSvc, store, log)

	return &fixture{
		db: db, mr: mr, store: store,
		votes: votes, users: users, posts: posts, ledger: ledger,
		voteSvc: voteSvc, gemSvc: gemSvc, rankSvc: rankSvc, settleSvc: settleSvc,
	}
}

func (f *fixture) seedUser(t *testing.T, id string, opts ...func(*model.User)) {
	t.Helper()
	u := &model.User{
		ID:         id,
		Username:   id,
		TrustScore: 50,
		CreatedAt:  time.Now().Add(-72 * time.Hour),
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, f.db.Create(u).Error)
}

func (f *fixture) seedPost(t *testing.T, id, authorID string) {
	t.Helper()
	require.NoError(t, f.db.Create(&model.Post{
		ID:        id,
		AuthorID:  authorID,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}).Error)
}

func (f *fixture) user(t *testing.T, id string) *model.User {
	t.Helper()
	var u model.User
	require.NoError(t, f.db.Where("id = ?", id).First(&u).Error)
	return &u
}

func (f *fixture) post(t *testing.T, id string) *model.Post {
	t.Helper()
	var p model.Post
	require.NoError(t, f.db.Where("id = ?", id).First(&p).Error)
	return &p
}
