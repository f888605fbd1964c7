package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meditrace/meditrace-api/internal/models"
	"github.com/meditrace/meditrace-api/internal/service"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
	"github.com/meditrace/meditrace-api/pkg/response"
)

// LotHandler handles production registration endpoints.
type LotHandler struct {
	service *service.LotService
}

// NewLotHandler constructs a lot handler.
func NewLotHandler(svc *service.LotService) *LotHandler {
	return &LotHandler{service: svc}
}

// Register godoc
// @Summary Register a manufacturing lot and mint its codes
// @Tags Lots
// @Accept json
// @Produce json
// @Param payload body service.RegisterLotRequest true "Lot payload"
// @Success 201 {object} response.Envelope
// @Router /lots [post]
func (h *LotHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.RegisterLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lot, err := h.service.Register(c.Request.Context(), claims.OrganizationID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lot)
}

// Get godoc
// @Summary Get a lot
// @Tags Lots
// @Produce json
// @Param id path string true "Lot ID"
// @Success 200 {object} response.Envelope
// @Router /lots/{id} [get]
func (h *LotHandler) Get(c *gin.Context) {
	lot, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lot, nil)
}

// List godoc
// @Summary List lots
// @Tags Lots
// @Produce json
// @Param product_id query string false "Filter by product"
// @Param lot_number query string false "Filter by lot number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lots [get]
func (h *LotHandler) List(c *gin.Context) {
	var filter models.LotFilter
	filter.ProductID = c.Query("product_id")
	filter.LotNumber = c.Query("lot_number")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	lots, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lots, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}
