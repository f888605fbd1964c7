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

// ProductHandler handles catalog endpoints.
type ProductHandler struct {
	service *service.ProductService
}

// NewProductHandler constructs a product handler.
func NewProductHandler(svc *service.ProductService) *ProductHandler {
	return &ProductHandler{service: svc}
}

// Create godoc
// @Summary Register a catalog product
// @Tags Products
// @Accept json
// @Produce json
// @Param payload body service.CreateProductRequest true "Product payload"
// @Success 201 {object} response.Envelope
// @Router /products [post]
func (h *ProductHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	product, err := h.service.Create(c.Request.Context(), claims.OrganizationID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, product)
}

// Get godoc
// @Summary Get product by id
// @Tags Products
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} response.Envelope
// @Router /products/{id} [get]
func (h *ProductHandler) Get(c *gin.Context) {
	product, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

// List godoc
// @Summary List products
// @Tags Products
// @Produce json
// @Param manufacturer_org_id query string false "Filter by manufacturer"
// @Param active_only query bool false "Exclude deactivated products"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /products [get]
func (h *ProductHandler) List(c *gin.Context) {
	var filter models.ProductFilter
	filter.ManufacturerOrgID = c.Query("manufacturer_org_id")
	filter.ActiveOnly = c.Query("active_only") == "true"
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	products, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, products, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Deactivate godoc
// @Summary Deactivate a product
// @Tags Products
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param payload body service.DeactivateProductRequest true "Deactivation payload"
// @Success 200 {object} response.Envelope
// @Router /products/{id}/deactivate [patch]
func (h *ProductHandler) Deactivate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.DeactivateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	product, err := h.service.Deactivate(c.Request.Context(), claims.OrganizationID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}
