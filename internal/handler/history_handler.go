package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meditrace/meditrace-api/internal/models"
	"github.com/meditrace/meditrace-api/internal/service"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
	"github.com/meditrace/meditrace-api/pkg/response"
)

// HistoryHandler handles ledger history and export endpoints.
type HistoryHandler struct {
	service *service.HistoryService
}

// NewHistoryHandler constructs a history handler.
func NewHistoryHandler(svc *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{service: svc}
}

func eventFilterFromQuery(c *gin.Context) models.EventFilter {
	var filter models.EventFilter
	if raw := c.Query("from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = &ts
		}
	}
	if raw := c.Query("to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = &ts
		}
	}
	filter.Action = models.ActionType(c.Query("action"))
	filter.LotNumber = c.Query("lot_number")
	filter.ProductID = c.Query("product_id")
	filter.OrgID = c.Query("org_id")
	filter.BatchID = c.Query("batch_id")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = limit
	}
	return filter
}

// List godoc
// @Summary List ledger events
// @Tags History
// @Produce json
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param action query string false "Filter by action"
// @Param lot_number query string false "Filter by lot number"
// @Param product_id query string false "Filter by product"
// @Param org_id query string false "Filter by organization"
// @Param batch_id query string false "Filter by batch"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	filter := eventFilterFromQuery(c)
	events, total, err := h.service.ListEvents(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// CodeHistory godoc
// @Summary Full custody chain for one code
// @Tags History
// @Produce json
// @Param code path string true "Public code token"
// @Success 200 {object} response.Envelope
// @Router /codes/{code}/history [get]
func (h *HistoryHandler) CodeHistory(c *gin.Context) {
	history, err := h.service.CodeHistory(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Export godoc
// @Summary Export filtered ledger events as CSV
// @Tags History
// @Produce text/csv
// @Success 200 {file} file
// @Router /history/export [get]
func (h *HistoryHandler) Export(c *gin.Context) {
	filter := eventFilterFromQuery(c)
	payload, err := h.service.ExportCSV(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("ledger-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}

// ReportHandler handles asynchronous traceability certificates.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler constructs a report handler.
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

type traceabilityRequest struct {
	Code string `json:"code" binding:"required"`
}

// Request godoc
// @Summary Request a traceability certificate for one code
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body traceabilityRequest true "Code payload"
// @Success 202 {object} response.Envelope
// @Router /reports/traceability [post]
func (h *ReportHandler) Request(c *gin.Context) {
	var req traceabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	report, err := h.service.Request(c.Request.Context(), req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, report, nil)
}

// Get godoc
// @Summary Report status and signed download link
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Download godoc
// @Summary Download a generated report via signed token
// @Tags Reports
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /reports/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	path, err := h.service.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="traceability.pdf"`)
	c.File(h.service.FilePath(path))
}
