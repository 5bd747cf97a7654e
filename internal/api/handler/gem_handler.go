package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/d60-Lab/vote-rewards/internal/service"
	"github.com/d60-Lab/vote-rewards/pkg/response"
)

type ledgerRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Source         string `json:"source" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

// Award credits gems to a user.
// @Summary Award gems
// @Accept json
// @Produce json
// @Router /api/v1/gems/award [post]
func (h *Handler) Award(c *gin.Context) {
	var req ledgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tx, err := h.gemSvc.Award(c.Request.Context(), req.UserID, req.Amount, req.Source, req.IdempotencyKey)
	switch {
	case err == nil:
		// tx == nil is an idempotent replay: report success, no row.
		response.Success(c, tx)
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, service.ErrEarnTrustFloor), errors.Is(err, service.ErrBalanceCap), errors.Is(err, service.ErrInvalidAmount):
		response.Rejected(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

// Spend debits gems from a user.
// @Summary Spend gems
// @Accept json
// @Produce json
// @Router /api/v1/gems/spend [post]
func (h *Handler) Spend(c *gin.Context) {
	var req ledgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tx, err := h.gemSvc.Spend(c.Request.Context(), req.UserID, req.Amount, req.Source, req.IdempotencyKey)
	switch {
	case err == nil:
		response.Success(c, tx)
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, service.ErrInsufficientGems):
		response.Rejected(c, service.KindInsufficientGems)
	case errors.Is(err, service.ErrDuplicateTransaction):
		response.Rejected(c, service.KindDuplicateTransaction)
	case errors.Is(err, service.ErrInvalidAmount):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

// Balance returns a user's gem balance.
// @Summary Gem balance
// @Produce json
// @Router /api/v1/gems/balance/{user_id} [get]
func (h *Handler) Balance(c *gin.Context) {
	balance, err := h.gemSvc.GetBalance(c.Request.Context(), c.Param("user_id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.NotFound(c, "user not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": c.Param("user_id"), "balance": balance})
}

// EconomyHealth reports daily emission/burn aggregates.
// @Summary Economy health
// @Produce json
// @Router /api/v1/economy/health [get]
func (h *Handler) EconomyHealth(c *gin.Context) {
	health, err := h.gemSvc.GetEconomyHealth(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, health)
}
