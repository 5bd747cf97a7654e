package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/vote-rewards/internal/service"
	"github.com/d60-Lab/vote-rewards/pkg/response"
)

type castVoteRequest struct {
	VoterID  string `json:"voter_id" binding:"required"`
	PostID   string `json:"post_id" binding:"required"`
	DeviceID string `json:"device_id" binding:"required"`
	IPHash   string `json:"ip_hash"`
}

// CastVote submits one vote attempt.
// @Summary Cast a vote
// @Accept json
// @Produce json
// @Router /api/v1/votes [post]
func (h *Handler) CastVote(c *gin.Context) {
	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ipHash := req.IPHash
	if ipHash == "" {
		ipHash = hashIP(c.ClientIP())
	}

	res, err := h.voteSvc.CastVote(c.Request.Context(), req.VoterID, req.PostID, req.DeviceID, ipHash)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if res.ErrorKind != "" {
		response.Rejected(c, res.ErrorKind)
		return
	}
	response.Success(c, res)
}

type undoVoteRequest struct {
	VoterID string `json:"voter_id" binding:"required"`
	PostID  string `json:"post_id" binding:"required"`
}

// UndoVote retracts a vote inside the undo window.
// @Summary Undo a vote
// @Accept json
// @Produce json
// @Router /api/v1/votes/undo [post]
func (h *Handler) UndoVote(c *gin.Context) {
	var req undoVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.voteSvc.UndoVote(c.Request.Context(), req.VoterID, req.PostID)
	switch {
	case err == nil:
		response.Success(c, nil)
	case errors.Is(err, service.ErrVoteNotFound):
		response.Rejected(c, service.KindVoteNotFound)
	case errors.Is(err, service.ErrUndoExpired), errors.Is(err, service.ErrVoteSettled):
		response.Rejected(c, service.KindUndoExpired)
	default:
		response.InternalError(c, err)
	}
}

// DailyVoteStatus reports quota usage for a voter.
// @Summary Daily vote quota status
// @Produce json
// @Router /api/v1/votes/status/{user_id} [get]
func (h *Handler) DailyVoteStatus(c *gin.Context) {
	status, err := h.voteSvc.GetDailyVoteStatus(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, status)
}

func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}
