// votebench drives the cast-vote path end to end against the configured
// DB and Redis, then runs one settlement batch and prints latency
// percentiles. Intended for local capacity checks, not CI.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/vote-rewards/config"
	"github.com/d60-Lab/vote-rewards/internal/counter"
	"github.com/d60-Lab/vote-rewards/internal/fraud"
	"github.com/d60-Lab/vote-rewards/internal/model"
	"github.com/d60-Lab/vote-rewards/internal/ranking"
	"github.com/d60-Lab/vote-rewards/internal/repository"
	"github.com/d60-Lab/vote-rewards/internal/service"
	"github.com/d60-Lab/vote-rewards/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	log := zap.NewNop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	store := counter.NewRedisStore(rdb)

	voteRepo := repository.NewVoteRepository(db)
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	calc := ranking.NewCalculator(cfg.Ranking)
	rankSvc := service.NewRankingService(postRepo, store, calc, log)
	scorer := fraud.NewScorer(cfg.Fraud, store, voteRepo, userRepo, log)
	voteSvc := service.NewVoteService(cfg.Vote, cfg.Fraud.FlagThreshold, voteRepo, postRepo, userRepo, store, scorer, rankSvc, log)
	gemSvc := service.NewGemService(db, ledgerRepo, cfg.Economy, log)
	settleSvc := service.NewSettlementService(cfg.Economy, voteRepo, gemSvc, store, log)

	ctx := context.Background()
	N := envInt("N", 10000)
	CONC := envInt("CONC", 8)
	POSTS := envInt("POSTS", 100)

	// seed: one author, POSTS posts, N voters old enough to pass the gate
	author := model.User{ID: "bench-author", Username: "bench-author", TrustScore: 80, CreatedAt: time.Now().Add(-30 * 24 * time.Hour)}
	_ = db.Where("id = ?", author.ID).FirstOrCreate(&author).Error
	for i := 0; i < POSTS; i++ {
		p := model.Post{ID: fmt.Sprintf("bench-post-%04d", i), AuthorID: author.ID, CreatedAt: time.Now().Add(-6 * time.Hour)}
		_ = db.Where("id = ?", p.ID).FirstOrCreate(&p).Error
	}
	voters := make([]model.User, N)
	batch := 1000
	for i := 0; i < N; i++ {
		id := uuid.New().String()
		voters[i] = model.User{ID: id, Username: "v" + id[:8], TrustScore: 60, CreatedAt: time.Now().Add(-48 * time.Hour)}
		if (i+1)%batch == 0 {
			sub := voters[i+1-batch : i+1]
			_ = db.Create(&sub).Error
		}
	}
	if N%batch != 0 {
		sub := voters[N-N%batch:]
		_ = db.Create(&sub).Error
	}

	recs := make([]time.Duration, 0, N)
	recCh := make(chan time.Duration, N)
	feed := make(chan int, N)
	for i := 0; i < N; i++ {
		feed <- i
	}
	close(feed)

	t0 := time.Now()
	doneCh := make(chan struct{}, CONC)
	for w := 0; w < CONC; w++ {
		go func() {
			for i := range feed {
				st := time.Now()
				_, _ = voteSvc.CastVote(ctx, voters[i].ID, fmt.Sprintf("bench-post-%04d", i%POSTS), voters[i].ID, voters[i].ID)
				recCh <- time.Since(st)
			}
			doneCh <- struct{}{}
		}()
	}
	for w := 0; w < CONC; w++ {
		<-doneCh
	}
	close(recCh)
	for d := range recCh {
		recs = append(recs, d)
	}
	castDur := time.Since(t0)

	t1 := time.Now()
	report := must(settleSvc.SettleVoteGems(ctx))
	settleDur := time.Since(t1)

	pct := func(vs []time.Duration, p float64) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(math.Ceil(p*float64(len(xs)))) - 1
		if k < 0 {
			k = 0
		}
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}

	fmt.Printf("N=%d, CONC=%d, POSTS=%d\n", N, CONC, POSTS)
	fmt.Printf("Cast total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
		castDur, castDur/time.Duration(N), pct(recs, 0.50), pct(recs, 0.95), pct(recs, 0.99))
	fmt.Printf("Settlement: %v (authors=%d gems=%d votes=%d)\n",
		settleDur, report.AuthorsPaid, report.GemsAwarded, report.VotesSettled)
}
