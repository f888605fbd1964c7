package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meditrace/meditrace-api/internal/models"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
	"github.com/meditrace/meditrace-api/pkg/response"
)

type reversalService interface {
	Recall(ctx context.Context, orgID, batchID, reason string) (*models.TransferReceipt, error)
	Return(ctx context.Context, orgID, batchID, reason string) (*models.TransferReceipt, error)
}

// ReversalHandler handles recall and return endpoints.
type ReversalHandler struct {
	service reversalService
}

// NewReversalHandler constructs a reversal handler.
func NewReversalHandler(svc reversalService) *ReversalHandler {
	return &ReversalHandler{service: svc}
}

type reversalRequest struct {
	Reason string `json:"reason"`
}

// Recall godoc
// @Summary Recall a treatment batch
// @Tags Reversals
// @Accept json
// @Produce json
// @Param batchId path string true "Batch ID"
// @Param payload body reversalRequest true "Recall reason"
// @Success 200 {object} response.Envelope
// @Router /recalls/{batchId} [post]
func (h *ReversalHandler) Recall(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req reversalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	receipt, err := h.service.Recall(c.Request.Context(), claims.OrganizationID, c.Param("batchId"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipt, nil)
}

// Return godoc
// @Summary Return a shipment batch to its sender
// @Tags Reversals
// @Accept json
// @Produce json
// @Param batchId path string true "Batch ID"
// @Param payload body reversalRequest true "Return reason"
// @Success 200 {object} response.Envelope
// @Router /returns/{batchId} [post]
func (h *ReversalHandler) Return(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req reversalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	receipt, err := h.service.Return(c.Request.Context(), claims.OrganizationID, c.Param("batchId"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipt, nil)
}
