package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meditrace/meditrace-api/internal/service"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
	"github.com/meditrace/meditrace-api/pkg/response"
)

// InventoryHandler handles availability endpoints.
type InventoryHandler struct {
	service *service.InventoryService
}

// NewInventoryHandler constructs an inventory handler.
func NewInventoryHandler(svc *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{service: svc}
}

// Available godoc
// @Summary Available quantity of a product for the calling organization
// @Tags Inventory
// @Produce json
// @Param product_id query string true "Product ID"
// @Param lot_id query string false "Narrow to one lot"
// @Success 200 {object} response.Envelope
// @Router /inventory [get]
func (h *InventoryHandler) Available(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	count, err := h.service.Available(c.Request.Context(), c.Query("product_id"), claims.OrganizationID, c.Query("lot_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"product_id":      c.Query("product_id"),
		"organization_id": claims.OrganizationID,
		"available":       count,
	}, nil)
}

// Summary godoc
// @Summary Per-lot availability breakdown in FIFO order
// @Tags Inventory
// @Produce json
// @Param product_id query string true "Product ID"
// @Success 200 {object} response.Envelope
// @Router /inventory/summary [get]
func (h *InventoryHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), c.Query("product_id"), claims.OrganizationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
