package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/d60-Lab/vote-rewards/internal/service"
	"github.com/d60-Lab/vote-rewards/pkg/response"
)

// RecalculateScores forces a ranking refresh for one post.
// @Summary Recalculate post scores
// @Produce json
// @Router /api/v1/posts/{post_id}/recalculate [post]
func (h *Handler) RecalculateScores(c *gin.Context) {
	postID := c.Param("post_id")
	err := h.rankSvc.RecalculatePostScores(c.Request.Context(), postID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.NotFound(c, "post not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}

// TopPosts reads the top-k posts from one of the ordered indexes.
// @Summary Top posts by score
// @Produce json
// @Router /api/v1/posts/top [get]
func (h *Handler) TopPosts(c *gin.Context) {
	board := service.LeaderboardHot
	switch c.DefaultQuery("board", "hot") {
	case "hot":
		board = service.LeaderboardHot
	case "trending":
		board = service.LeaderboardTrending
	case "engagement":
		board = service.LeaderboardEngagement
	default:
		response.BadRequest(c, "unknown board")
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	top, err := h.rankSvc.TopPosts(c.Request.Context(), board, limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	ids := make([]string, len(top))
	for i, m := range top {
		ids[i] = m.Member
	}
	snapshots, err := h.postCache.Snapshots(c.Request.Context(), ids)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"board": c.DefaultQuery("board", "hot"), "list": snapshots})
}

// RunSettlement triggers one settlement batch; a batch already in
// flight is reported, not queued.
// @Summary Run vote settlement
// @Produce json
// @Router /api/v1/settlement/run [post]
func (h *Handler) RunSettlement(c *gin.Context) {
	report, err := h.settleRun.RunOnce(c.Request.Context())
	if errors.Is(err, service.ErrSettlementRunning) {
		response.Rejected(c, "settlement_running")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, report)
}
