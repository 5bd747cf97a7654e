package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/vote-rewards/internal/service"
)

// Handler mounts the vote pipeline's public operation surface.
type Handler struct {
	voteSvc   *service.VoteService
	gemSvc    *service.GemService
	rankSvc   *service.RankingService
	settleRun *service.SettlementRunner
	postCache *service.PostCache
}

func New(voteSvc *service.VoteService, gemSvc *service.GemService, rankSvc *service.RankingService, settleRun *service.SettlementRunner, postCache *service.PostCache) *Handler {
	return &Handler{voteSvc: voteSvc, gemSvc: gemSvc, rankSvc: rankSvc, settleRun: settleRun, postCache: postCache}
}

// RegisterRoutes wires the API under /api/v1.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/api/v1")

	votes := v1.Group("/votes")
	votes.POST("", h.CastVote)
	votes.POST("/undo", h.UndoVote)
	votes.GET("/status/:user_id", h.DailyVoteStatus)

	posts := v1.Group("/posts")
	posts.POST("/:post_id/recalculate", h.RecalculateScores)
	posts.GET("/top", h.TopPosts)

	gems := v1.Group("/gems")
	gems.POST("/award", h.Award)
	gems.POST("/spend", h.Spend)
	gems.GET("/balance/:user_id", h.Balance)

	v1.GET("/economy/health", h.EconomyHealth)
	v1.POST("/settlement/run", h.RunSettlement)
}
