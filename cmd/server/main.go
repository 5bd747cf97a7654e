package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/vote-rewards/config"
	"github.com/d60-Lab/vote-rewards/internal/api/handler"
	"github.com/d60-Lab/vote-rewards/internal/api/middleware"
	"github.com/d60-Lab/vote-rewards/internal/counter"
	"github.com/d60-Lab/vote-rewards/internal/fraud"
	"github.com/d60-Lab/vote-rewards/internal/ranking"
	"github.com/d60-Lab/vote-rewards/internal/repository"
	"github.com/d60-Lab/vote-rewards/internal/service"
	"github.com/d60-Lab/vote-rewards/pkg/database"
	"github.com/d60-Lab/vote-rewards/pkg/logger"
)

const settlementInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Server.Mode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			log.Fatal("sentry init", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	if cfg.Trace.Enabled {
		shutdown, err := initTracer(cfg)
		if err != nil {
			log.Fatal("tracer init", zap.Error(err))
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatal("database init", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatal("redis ping", zap.Error(err))
	}
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
	settleRun := service.NewSettlementRunner(settleSvc, settlementInterval, log)
	stopSettlement := settleRun.Start()
	postCache := service.NewPostCache(db, rdb, 30*time.Second)

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gzip.Gzip(gzip.DefaultCompression))
	engine.Use(middleware.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
	if cfg.Trace.Enabled {
		engine.Use(otelgin.Middleware("vote-rewards"))
	}
	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	handler.New(voteSvc, gemSvc, rankSvc, settleRun, postCache).RegisterRoutes(engine)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout,
	}

	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	if err := stopSettlement(shutdownCtx); err != nil {
		log.Error("settlement shutdown", zap.Error(err))
	}
	_ = rdb.Close()
}

func initTracer(cfg *config.Config) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(cfg.Trace.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
